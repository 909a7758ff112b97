package trades

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store defines trade lookup operations.
type Store interface {
	// ActiveByPortfolio returns the ACTIVE trades whose netting-set id starts
	// with the given portfolio id.
	ActiveByPortfolio(ctx context.Context, portfolioID string) ([]CDSTrade, error)
	Create(ctx context.Context, trade *CDSTrade) error
	GetByID(ctx context.Context, id uuid.UUID) (*CDSTrade, error)
}

type store struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewStore creates a gorm-backed trade store.
func NewStore(logger *zap.Logger, db *gorm.DB) Store {
	return &store{logger: logger, db: db}
}

func (s *store) ActiveByPortfolio(ctx context.Context, portfolioID string) ([]CDSTrade, error) {
	var all []CDSTrade
	if err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to load active trades: %w", err)
	}
	// Prefix matching is done here rather than in SQL so netting-set keys
	// keep their exact byte comparison across collations.
	var out []CDSTrade
	for _, t := range all {
		if strings.HasPrefix(t.NettingSetID, portfolioID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *store) Create(ctx context.Context, trade *CDSTrade) error {
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (s *store) GetByID(ctx context.Context, id uuid.UUID) (*CDSTrade, error) {
	var trade CDSTrade
	if err := s.db.WithContext(ctx).First(&trade, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load trade %s: %w", id, err)
	}
	return &trade, nil
}
