package crif

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/internal/trades"
	"github.com/Aidin1998/marginx_unified/pkg/metrics"
)

var (
	durationFactor = decimal.RequireFromString("0.7")
	onePointBasis  = decimal.RequireFromString("0.0001")
	baseCorrShare  = decimal.RequireFromString("0.10")
	daysPerYear    = decimal.NewFromInt(365)
)

// Generator derives sensitivity records directly from trade positions,
// removing the need for a CRIF upload.
type Generator struct {
	logger *zap.Logger
	db     *gorm.DB
	trades trades.Store
}

// NewGenerator creates a generator reading trades from the given store.
func NewGenerator(logger *zap.Logger, db *gorm.DB, tradeStore trades.Store) *Generator {
	return &Generator{logger: logger, db: db, trades: tradeStore}
}

// GenerateFromPortfolio produces a sensitivity batch for every ACTIVE trade
// whose netting-set id starts with the portfolio id. A portfolio with no
// matching trades is an explicit error, not an empty success.
func (g *Generator) GenerateFromPortfolio(ctx context.Context, portfolioID string, valuationDate time.Time) (*model.Upload, error) {
	g.logger.Info("generating sensitivities from portfolio",
		zap.String("portfolio_id", portfolioID),
		zap.Time("valuation_date", valuationDate))

	positions, err := g.trades.ActiveByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("no active trades found for portfolio: %s", portfolioID)
	}

	dateStr := valuationDate.Format(dateLayout)
	upload := &model.Upload{
		ID:            uuid.New(),
		UploadID:      fmt.Sprintf("AUTO-%s-%s", portfolioID, dateStr),
		Filename:      fmt.Sprintf("auto-generated-%s-%s.csv", portfolioID, dateStr),
		PortfolioID:   portfolioID,
		ValuationDate: valuationDate,
		Currency:      "USD",
		Status:        model.UploadCompleted,
		CreatedAt:     time.Now(),
	}
	if err := g.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	var records []model.SensitivityRecord
	for _, trade := range positions {
		records = append(records, g.tradeSensitivities(trade, valuationDate, upload.ID)...)
	}

	if err := g.db.WithContext(ctx).CreateInBatches(records, 500).Error; err != nil {
		return nil, fmt.Errorf("failed to persist sensitivities: %w", err)
	}
	metrics.SensitivitiesGenerated.Add(float64(len(records)))

	upload.TotalRecords = len(records)
	upload.ValidRecords = len(records)
	upload.UpdatedAt = time.Now()
	if err := g.db.WithContext(ctx).Save(upload).Error; err != nil {
		return nil, fmt.Errorf("failed to update upload counts: %w", err)
	}

	g.logger.Info("generated sensitivities",
		zap.String("upload_id", upload.UploadID),
		zap.Int("records", len(records)),
		zap.Int("trades", len(positions)))
	return upload, nil
}

// tradeSensitivities emits the credit spread sensitivity for one trade plus
// the base correlation record at 10% of it. The base correlation record is
// always emitted; it shares the primary record's tenor, bucket and
// reference entity.
func (g *Generator) tradeSensitivities(trade trades.CDSTrade, valuationDate time.Time, uploadID uuid.UUID) []model.SensitivityRecord {
	tenor := model.TenorLabel(yearsToMaturity(valuationDate, trade.MaturityDate))
	bucket := model.CreditBucket(trade.ReferenceEntity, trade.Spread)
	cs01 := CS01(trade, valuationDate)

	primary := model.SensitivityRecord{
		ID:           uuid.New(),
		UploadRef:    uploadID,
		TradeID:      trade.ID.String(),
		PortfolioID:  trade.NettingSetID,
		ProductClass: model.ProductCredit,
		RiskType:     "Risk_CreditQ",
		RiskClass:    model.RiskClassCRQ,
		Bucket:       bucket,
		Label1:       tenor,
		Label2:       trade.ReferenceEntity,
		Amount:       cs01,
		AmountUSD:    ToUSD(cs01, trade.Currency),
		CreatedAt:    time.Now(),
	}

	baseCorrAmount := cs01.Mul(baseCorrShare)
	baseCorr := model.SensitivityRecord{
		ID:           uuid.New(),
		UploadRef:    uploadID,
		TradeID:      trade.ID.String(),
		PortfolioID:  trade.NettingSetID,
		ProductClass: model.ProductCredit,
		RiskType:     model.RiskTypeBaseCorr,
		RiskClass:    model.RiskClassCRQ,
		Bucket:       bucket,
		Label1:       tenor,
		Label2:       trade.ReferenceEntity,
		Amount:       baseCorrAmount,
		AmountUSD:    ToUSD(baseCorrAmount, trade.Currency),
		CreatedAt:    time.Now(),
	}

	return []model.SensitivityRecord{primary, baseCorr}
}

// CS01 is the sensitivity to a one basis point credit spread move:
// notional x duration x 0.0001, with duration approximated as 0.7 x years
// to maturity. Sell protection flips the sign so a matched buy/sell pair
// nets to zero within its bucket.
func CS01(trade trades.CDSTrade, valuationDate time.Time) decimal.Decimal {
	days := daysBetween(valuationDate, trade.MaturityDate)
	years := decimal.NewFromInt(days).DivRound(daysPerYear, 4)
	duration := years.Mul(durationFactor)

	cs01 := trade.NotionalAmount.Mul(duration).Mul(onePointBasis).Round(2)
	if trade.Direction == trades.SellProtection {
		cs01 = cs01.Neg()
	}
	return cs01
}

func yearsToMaturity(valuationDate, maturityDate time.Time) float64 {
	return float64(daysBetween(valuationDate, maturityDate)) / 365.0
}

func daysBetween(from, to time.Time) int64 {
	return int64(to.Sub(from).Hours() / 24)
}
