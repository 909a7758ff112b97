package margin

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gopkg.in/yaml.v3"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

// ParameterStore resolves versioned parameter sets. A set must never change
// once referenced by a completed calculation; updates ship as new versions.
type ParameterStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ParameterSet, error)
	GetByVersion(ctx context.Context, versionName string) (*model.ParameterSet, error)
	// ActiveForDate returns the single active set covering the given date.
	ActiveForDate(ctx context.Context, date time.Time) (*model.ParameterSet, error)
	Create(ctx context.Context, set *model.ParameterSet) error
	List(ctx context.Context) ([]model.ParameterSet, error)
}

type parameterStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewParameterStore creates a gorm-backed parameter store.
func NewParameterStore(logger *zap.Logger, db *gorm.DB) ParameterStore {
	return &parameterStore{logger: logger, db: db}
}

func (s *parameterStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ParameterSet, error) {
	var set model.ParameterSet
	if err := s.db.WithContext(ctx).
		Preload("RiskWeights").Preload("Correlations").Preload("BucketMappings").
		First(&set, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load parameter set %s: %w", id, err)
	}
	return &set, nil
}

func (s *parameterStore) GetByVersion(ctx context.Context, versionName string) (*model.ParameterSet, error) {
	var set model.ParameterSet
	if err := s.db.WithContext(ctx).
		Preload("RiskWeights").Preload("Correlations").Preload("BucketMappings").
		First(&set, "version_name = ?", versionName).Error; err != nil {
		return nil, fmt.Errorf("failed to load parameter set %s: %w", versionName, err)
	}
	return &set, nil
}

func (s *parameterStore) ActiveForDate(ctx context.Context, date time.Time) (*model.ParameterSet, error) {
	var set model.ParameterSet
	if err := s.db.WithContext(ctx).
		Preload("RiskWeights").Preload("Correlations").Preload("BucketMappings").
		Where("is_active = ? AND effective_date <= ? AND (end_date IS NULL OR end_date >= ?)", true, date, date).
		Order("effective_date desc").
		First(&set).Error; err != nil {
		return nil, fmt.Errorf("no active parameter set for %s: %w", date.Format("2006-01-02"), err)
	}
	return &set, nil
}

func (s *parameterStore) Create(ctx context.Context, set *model.ParameterSet) error {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	for i := range set.RiskWeights {
		set.RiskWeights[i].ID = uuid.New()
		set.RiskWeights[i].ParameterSetRef = set.ID
	}
	for i := range set.Correlations {
		set.Correlations[i].ID = uuid.New()
		set.Correlations[i].ParameterSetRef = set.ID
	}
	for i := range set.BucketMappings {
		set.BucketMappings[i].ID = uuid.New()
		set.BucketMappings[i].ParameterSetRef = set.ID
	}
	if err := s.db.WithContext(ctx).Create(set).Error; err != nil {
		return fmt.Errorf("failed to create parameter set %s: %w", set.VersionName, err)
	}
	return nil
}

func (s *parameterStore) List(ctx context.Context) ([]model.ParameterSet, error) {
	var sets []model.ParameterSet
	if err := s.db.WithContext(ctx).Order("effective_date desc").Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("failed to list parameter sets: %w", err)
	}
	return sets, nil
}

// calibrationFile is the YAML layout of a parameter calibration file.
type calibrationFile struct {
	VersionName   string `yaml:"version_name"`
	EffectiveDate string `yaml:"effective_date"`
	Description   string `yaml:"description"`
	RiskWeights   []struct {
		ProductClass string `yaml:"product_class"`
		RiskClass    string `yaml:"risk_class"`
		Bucket       string `yaml:"bucket"`
		Weight       string `yaml:"weight"`
	} `yaml:"risk_weights"`
	Correlations []struct {
		RiskClass  string `yaml:"risk_class"`
		Type       string `yaml:"type"`
		BucketFrom string `yaml:"bucket_from"`
		BucketTo   string `yaml:"bucket_to"`
		Value      string `yaml:"value"`
	} `yaml:"correlations"`
	BucketMappings []struct {
		RiskClass  string `yaml:"risk_class"`
		RiskFactor string `yaml:"risk_factor"`
		Bucket     string `yaml:"bucket"`
	} `yaml:"bucket_mappings"`
}

// SeedFromFile loads a calibration YAML file and creates it as the active
// parameter set if that version is not already stored. Returns the stored
// set either way.
func SeedFromFile(ctx context.Context, logger *zap.Logger, store ParameterStore, path string) (*model.ParameterSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var file calibrationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	if existing, err := store.GetByVersion(ctx, file.VersionName); err == nil {
		return existing, nil
	}

	effective, err := time.Parse("2006-01-02", file.EffectiveDate)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_date in calibration file: %w", err)
	}

	set := &model.ParameterSet{
		VersionName:   file.VersionName,
		EffectiveDate: effective,
		Description:   file.Description,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	for _, w := range file.RiskWeights {
		weight, err := decimal.NewFromString(w.Weight)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q in calibration file: %w", w.Weight, err)
		}
		set.RiskWeights = append(set.RiskWeights, model.RiskWeight{
			ProductClass: model.ProductClass(w.ProductClass),
			RiskClass:    model.RiskClass(w.RiskClass),
			Bucket:       w.Bucket,
			Weight:       weight,
		})
	}
	for _, c := range file.Correlations {
		value, err := decimal.NewFromString(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid correlation %q in calibration file: %w", c.Value, err)
		}
		set.Correlations = append(set.Correlations, model.Correlation{
			RiskClass:  model.RiskClass(c.RiskClass),
			Type:       model.CorrelationType(c.Type),
			BucketFrom: c.BucketFrom,
			BucketTo:   c.BucketTo,
			Value:      value,
		})
	}
	for _, m := range file.BucketMappings {
		set.BucketMappings = append(set.BucketMappings, model.BucketMapping{
			RiskClass:  model.RiskClass(m.RiskClass),
			RiskFactor: m.RiskFactor,
			Bucket:     m.Bucket,
		})
	}

	if err := store.Create(ctx, set); err != nil {
		return nil, err
	}
	logger.Info("seeded parameter set",
		zap.String("version", set.VersionName),
		zap.Int("risk_weights", len(set.RiskWeights)))
	return set, nil
}
