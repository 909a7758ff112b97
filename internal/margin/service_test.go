package margin

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/database"
	"github.com/Aidin1998/marginx_unified/internal/margin/crif"
	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/internal/margin/simm"
	"github.com/Aidin1998/marginx_unified/internal/trades"
)

const crifHeader = "TradeId,PortfolioId,ProductClass,RiskType,Qualifier,Bucket,Label1,Label2,Amount,AmountCurrency,CollectRegulations,PostRegulations,EndDate"

type serviceFixture struct {
	db      *gorm.DB
	svc     Service
	params  ParameterStore
	paramID uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "margin_test.db"))
	require.NoError(t, err)
	require.NoError(t, NewStore(db).Migrate())
	require.NoError(t, db.AutoMigrate(&trades.CDSTrade{}))

	logger := zaptest.NewLogger(t)
	params := NewParameterStore(logger, db)
	set := &model.ParameterSet{
		VersionName:   "SIMM_TEST",
		EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
	require.NoError(t, params.Create(context.Background(), set))

	tradeStore := trades.NewStore(logger, db)
	svc, err := NewService(logger, db, params, tradeStore, NopPublisher{})
	require.NoError(t, err)

	return &serviceFixture{db: db, svc: svc, params: params, paramID: set.ID}
}

func (f *serviceFixture) parse(t *testing.T, rows ...string) *model.Upload {
	t.Helper()
	content := crifHeader + "\n" + strings.Join(rows, "\n")
	_, upload, err := f.svc.ParseCRIF(context.Background(), strings.NewReader(content), crif.ParseMeta{
		Filename:      "fixture.csv",
		PortfolioID:   "PORT-1",
		ValuationDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
	})
	require.NoError(t, err)
	return upload
}

func TestExecuteCalculationCompletes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	upload := f.parse(t,
		"T1,PORT-1,Credit,Risk_CreditQ,ORION AIRWAYS,2,5y,,1000000,USD,,,",
		"T2,PORT-1,RatesFX,Risk_IRCurve,USD-OIS,1,10y,,2000000,USD,,,",
	)

	calc, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)

	assert.Equal(t, model.CalcCompleted, calc.Status)
	assert.True(t, calc.IsTerminal())
	// 5,000 + 10,000 with a 7% two-product-class discount.
	assert.Equal(t, "1050", calc.DiversificationBenefit.String())
	assert.Equal(t, "13950", calc.TotalIM.String())
	assert.True(t, calc.TotalIM.Equal(calc.TotalIMUSD))
	assert.GreaterOrEqual(t, calc.CalculationTimeMs, int64(0))

	stored, err := f.svc.GetCalculation(ctx, calc.CalculationID)
	require.NoError(t, err)
	assert.Equal(t, model.CalcCompleted, stored.Status)
	require.Len(t, stored.Results, 2)

	// Audit trail persists in step order, from loading through the benefit.
	require.NotEmpty(t, stored.AuditTrail)
	assert.Equal(t, "load_sensitivities", stored.AuditTrail[0].StepName)
	assert.Equal(t, "diversification_benefit", stored.AuditTrail[len(stored.AuditTrail)-1].StepName)
	for i, e := range stored.AuditTrail {
		assert.Equal(t, i+1, e.StepOrder)
	}
}

func TestExecuteCalculationEmptyBatchFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Header-only file: zero rows, zero errors, batch is empty.
	upload := f.parse(t)

	calc, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.Error(t, err)
	assert.ErrorIs(t, err, simm.ErrNoSensitivities)

	require.NotNil(t, calc)
	assert.Equal(t, model.CalcFailed, calc.Status)
	assert.Contains(t, calc.ErrorMessage, "no sensitivity records")

	// The FAILED run is persisted and leaves no partial result rows behind.
	stored, err := f.svc.GetCalculation(ctx, calc.CalculationID)
	require.NoError(t, err)
	assert.Equal(t, model.CalcFailed, stored.Status)
	assert.Empty(t, stored.Results)
	assert.Empty(t, stored.AuditTrail)
}

func TestExecuteCalculationUnknownUpload(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.ExecuteCalculation(context.Background(), uuid.New(), f.paramID)
	require.Error(t, err)
}

func TestExecuteCalculationNettedPortfolio(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	upload := f.parse(t,
		"T1,PORT-1,Credit,Risk_CreditQ,ORION AIRWAYS,2,5y,,3500,USD,,,",
		"T2,PORT-1,Credit,Risk_CreditQ,ORION AIRWAYS,2,5y,,-3500,USD,,,",
	)

	calc, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)
	assert.True(t, calc.TotalIM.IsZero(), "offsetting exposures net to zero, got %s", calc.TotalIM)
}

func TestExecuteCalculationDeterministic(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	upload := f.parse(t,
		"T1,PORT-1,Credit,Risk_CreditQ,ORION AIRWAYS,2,5y,,1000000,USD,,,",
		"T2,PORT-1,Credit,Risk_CreditQ,VERIZON,5,5y,,2000000,USD,,,",
		"T3,PORT-1,RatesFX,Risk_IRCurve,USD-OIS,1,10y,,500000,USD,,,",
	)

	first, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)
	second, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)

	assert.True(t, first.TotalIM.Equal(second.TotalIM))
	assert.True(t, first.DiversificationBenefit.Equal(second.DiversificationBenefit))

	a, err := f.svc.GetCalculation(ctx, first.CalculationID)
	require.NoError(t, err)
	b, err := f.svc.GetCalculation(ctx, second.CalculationID)
	require.NoError(t, err)
	require.Equal(t, len(a.Results), len(b.Results))
	for i := range a.Results {
		assert.Equal(t, a.Results[i].Bucket, b.Results[i].Bucket)
		assert.True(t, a.Results[i].MarginComponent.Equal(b.Results[i].MarginComponent))
	}
}

func TestGenerateAndCalculateRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	tradeStore := trades.NewStore(logger, f.db)

	valuation := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	buy := trades.CDSTrade{
		NettingSetID:    "PORT-1-A",
		ReferenceEntity: "ORION AIRWAYS",
		NotionalAmount:  decimal.RequireFromString("10000000"),
		Spread:          decimal.RequireFromString("0.0125"),
		Currency:        "USD",
		EffectiveDate:   valuation,
		MaturityDate:    valuation.AddDate(0, 0, 5*365),
		Direction:       trades.BuyProtection,
		Status:          trades.StatusActive,
	}
	require.NoError(t, tradeStore.Create(ctx, &buy))
	sell := buy
	sell.ID = uuid.Nil
	sell.Direction = trades.SellProtection
	require.NoError(t, tradeStore.Create(ctx, &sell))

	upload, err := f.svc.GenerateFromPortfolio(ctx, "PORT-1", valuation)
	require.NoError(t, err)

	calc, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)
	assert.Equal(t, model.CalcCompleted, calc.Status)
	assert.True(t, calc.TotalIM.IsZero(),
		"a matched buy/sell pair on the same entity and tenor nets to zero, got %s", calc.TotalIM)
}

func TestListCalculations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	upload := f.parse(t, "T1,PORT-1,Credit,Risk_CreditQ,ORION AIRWAYS,2,5y,,1000000,USD,,,")
	_, err := f.svc.ExecuteCalculation(ctx, upload.ID, f.paramID)
	require.NoError(t, err)

	calcs, err := f.svc.ListCalculations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, calcs, 1)

	uploads, err := f.svc.ListUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
}
