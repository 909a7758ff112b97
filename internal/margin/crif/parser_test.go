package crif

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/database"
	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/internal/trades"
)

const crifHeader = "TradeId,PortfolioId,ProductClass,RiskType,Qualifier,Bucket,Label1,Label2,Amount,AmountCurrency,CollectRegulations,PostRegulations,EndDate"

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "crif_test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Entities()...))
	require.NoError(t, db.AutoMigrate(&trades.CDSTrade{}))
	return db
}

func testMeta() ParseMeta {
	return ParseMeta{
		Filename:      "test.csv",
		PortfolioID:   "PORT-1",
		ValuationDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
	}
}

func TestParseSingleCreditRow(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME CORP,2,5y,,1000000,USD,,,"

	result, upload, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ValidRecords())
	assert.Equal(t, 0, result.ErrorRecords())
	assert.Equal(t, 100.0, result.SuccessRate())
	assert.Equal(t, model.UploadCompleted, upload.Status)

	rec := result.Valid[0]
	assert.Equal(t, model.ProductCredit, rec.ProductClass)
	assert.Equal(t, model.RiskClassCRQ, rec.RiskClass)
	assert.Equal(t, "2", rec.Bucket)
	assert.Equal(t, "1000000", rec.Amount.String())
}

func TestParseMissingHeader(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	// RiskType column removed entirely.
	content := "TradeId,PortfolioId,ProductClass,Qualifier,Bucket,Label1,Label2,Amount,AmountCurrency,CollectRegulations,PostRegulations,EndDate\n" +
		"T1,PORT-1,Credit,ACME,2,5y,,1000000,USD,,,"

	result, upload, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "RiskType")
	assert.Equal(t, model.UploadFailed, upload.Status)
	assert.Contains(t, upload.ErrorMessage, "RiskType")
}

func TestParseEmptyFile(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))

	result, upload, err := parser.Parse(context.Background(), strings.NewReader(""), testMeta())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "empty")
	assert.Equal(t, model.UploadFailed, upload.Status)
}

func TestParsePartialSuccess(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000000,USD,,,\n" +
		"T2,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,not-a-number,USD,,,\n" +
		"T3,PORT-1,Credit,Risk_Unknown,ACME,2,5y,,1000,USD,,,"

	result, upload, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ValidRecords())
	assert.Equal(t, 2, result.ErrorRecords())
	assert.Equal(t, model.UploadCompleted, upload.Status, "any valid row keeps the batch usable")
	assert.Equal(t, "2 records had errors", upload.ErrorMessage)

	// Row errors carry their line numbers.
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Contains(t, result.Errors[0].Message, "Amount")
	assert.Equal(t, 4, result.Errors[1].Line)
	assert.Contains(t, result.Errors[1].Message, "RiskType")
}

func TestParseAllRowsInvalid(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,bad1,USD,,,\n" +
		"T2,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,bad2,USD,,,\n" +
		"T3,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,bad3,USD,,,\n" +
		"T4,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,bad4,USD,,,"

	result, upload, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ValidRecords())
	assert.Equal(t, 4, result.ErrorRecords())
	assert.Equal(t, model.UploadFailed, upload.Status)
	// Error summary keeps the first three problems only.
	assert.Equal(t, 3, strings.Count(upload.ErrorMessage, "Line"))
}

func TestParseQuotedCommas(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		`T1,PORT-1,Credit,Risk_CreditQ,"ACME, INC",2,5y,,1000000,USD,,,`

	result, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	require.Equal(t, 1, result.ValidRecords())
	assert.Equal(t, "ACME, INC", result.Valid[0].Qualifier)
}

func TestParseColumnOrderIndependent(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	// Shuffled column order plus an extra column the parser must ignore.
	content := "Amount,RiskType,ProductClass,TradeId,PortfolioId,Qualifier,Bucket,Label1,Label2,AmountCurrency,CollectRegulations,PostRegulations,EndDate,ExtraColumn\n" +
		"1000000,Risk_CreditQ,Credit,T1,PORT-1,ACME,2,5y,,USD,,,,ignored"

	result, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	require.Equal(t, 1, result.ValidRecords())
	assert.Equal(t, "T1", result.Valid[0].TradeID)
	assert.Equal(t, "1000000", result.Valid[0].Amount.String())
}

func TestParseCurrencyHandling(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000,GBP,,,\n" +
		"T2,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000,,,,\n" +
		"T3,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000,gbp,,,"

	result, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	require.Equal(t, 2, result.ValidRecords())
	assert.Equal(t, "1250", result.Valid[0].AmountUSD.String())
	// Missing currency falls back to the batch currency.
	assert.Equal(t, "1000", result.Valid[1].AmountUSD.String())
	// Lowercase currency codes are a format error.
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "currency")
}

func TestParseEndDate(t *testing.T) {
	parser := NewParser(zaptest.NewLogger(t), testDB(t))
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000,USD,,,2030-06-20\n" +
		"T2,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000,USD,,,20/06/2030"

	result, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	require.Equal(t, 1, result.ValidRecords())
	require.NotNil(t, result.Valid[0].EndDate)
	assert.Equal(t, 2030, result.Valid[0].EndDate.Year())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "EndDate")
}

func TestParseIdempotent(t *testing.T) {
	db := testDB(t)
	parser := NewParser(zaptest.NewLogger(t), db)
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000000,USD,,,\n" +
		"T2,PORT-1,RatesFX,Risk_IRCurve,USD-LIBOR,1,10y,,500000,USD,,,\n" +
		"T3,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,broken,USD,,,"

	first, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)
	second, _, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	assert.Equal(t, first.ValidRecords(), second.ValidRecords())
	assert.Equal(t, first.ErrorRecords(), second.ErrorRecords())
	for i := range first.Valid {
		assert.Equal(t, first.Valid[i].RiskClass, second.Valid[i].RiskClass)
		assert.Equal(t, first.Valid[i].ProductClass, second.Valid[i].ProductClass)
		assert.True(t, first.Valid[i].Amount.Equal(second.Valid[i].Amount))
	}
}

func TestParsePersistsSensitivities(t *testing.T) {
	db := testDB(t)
	parser := NewParser(zaptest.NewLogger(t), db)
	content := crifHeader + "\n" +
		"T1,PORT-1,Credit,Risk_CreditQ,ACME,2,5y,,1000000,USD,,,"

	_, upload, err := parser.Parse(context.Background(), strings.NewReader(content), testMeta())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.SensitivityRecord{}).
		Where("upload_ref = ?", upload.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var stored model.Upload
	require.NoError(t, db.First(&stored, "id = ?", upload.ID).Error)
	assert.Equal(t, model.UploadCompleted, stored.Status)
	assert.Equal(t, 1, stored.ValidRecords)
}
