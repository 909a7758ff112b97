// Package margin owns the calculation lifecycle: it coordinates ingestion,
// parameter resolution, aggregation and persistence of results.
package margin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

// Store provides persistence for uploads, sensitivities and calculations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a gorm-backed margin store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema for every margin entity.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(model.Entities()...)
}

// GetUpload loads an upload by primary key.
func (s *Store) GetUpload(ctx context.Context, id uuid.UUID) (*model.Upload, error) {
	var upload model.Upload
	if err := s.db.WithContext(ctx).First(&upload, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load upload %s: %w", id, err)
	}
	return &upload, nil
}

// GetUploadByUploadID loads an upload by its external identifier.
func (s *Store) GetUploadByUploadID(ctx context.Context, uploadID string) (*model.Upload, error) {
	var upload model.Upload
	if err := s.db.WithContext(ctx).First(&upload, "upload_id = ?", uploadID).Error; err != nil {
		return nil, fmt.Errorf("failed to load upload %s: %w", uploadID, err)
	}
	return &upload, nil
}

// ListUploads returns uploads most recent first.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]model.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	var uploads []model.Upload
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// SensitivitiesByUpload returns every sensitivity record of a batch.
func (s *Store) SensitivitiesByUpload(ctx context.Context, uploadRef uuid.UUID) ([]model.SensitivityRecord, error) {
	var records []model.SensitivityRecord
	if err := s.db.WithContext(ctx).
		Where("upload_ref = ?", uploadRef).
		Order("created_at, id").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load sensitivities for upload %s: %w", uploadRef, err)
	}
	return records, nil
}

// SaveCalculation persists the calculation's current state immediately, so
// external observers can poll intermediate status.
func (s *Store) SaveCalculation(ctx context.Context, calc *model.Calculation) error {
	if err := s.db.WithContext(ctx).Save(calc).Error; err != nil {
		return fmt.Errorf("failed to save calculation %s: %w", calc.CalculationID, err)
	}
	return nil
}

// CompleteCalculation atomically records the terminal COMPLETED state: the
// status flip, totals, result rows and audit trail commit together or not at
// all, so a reader never sees COMPLETED with missing rows.
func (s *Store) CompleteCalculation(ctx context.Context, calc *model.Calculation, rows []model.CalculationResult, audit []model.AuditEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(calc).Error; err != nil {
			return fmt.Errorf("failed to save calculation %s: %w", calc.CalculationID, err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("failed to save calculation results: %w", err)
			}
		}
		if len(audit) > 0 {
			if err := tx.CreateInBatches(audit, 500).Error; err != nil {
				return fmt.Errorf("failed to save audit trail: %w", err)
			}
		}
		return nil
	})
}

// GetCalculation loads a calculation with its breakdown and audit trail.
func (s *Store) GetCalculation(ctx context.Context, calculationID string) (*model.Calculation, error) {
	var calc model.Calculation
	if err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("product_class, risk_class, bucket") }).
		Preload("AuditTrail", func(db *gorm.DB) *gorm.DB { return db.Order("step_order") }).
		First(&calc, "calculation_id = ?", calculationID).Error; err != nil {
		return nil, fmt.Errorf("failed to load calculation %s: %w", calculationID, err)
	}
	return &calc, nil
}

// ListCalculations returns calculations most recent first.
func (s *Store) ListCalculations(ctx context.Context, limit int) ([]model.Calculation, error) {
	if limit <= 0 {
		limit = 50
	}
	var calcs []model.Calculation
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&calcs).Error; err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	return calcs, nil
}
