// Package crif ingests risk sensitivities, either by parsing CRIF (Common
// Risk Interchange Format) files or by generating them from trade positions.
package crif

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/pkg/metrics"
)

// requiredHeaders is the fixed column set every CRIF file must carry.
// Columns may appear in any order; extra columns are ignored.
var requiredHeaders = []string{
	"TradeId", "PortfolioId", "ProductClass", "RiskType", "Qualifier",
	"Bucket", "Label1", "Label2", "Amount", "AmountCurrency",
	"CollectRegulations", "PostRegulations", "EndDate",
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

const dateLayout = "2006-01-02"

// ParseError is one row-level problem found during parsing.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e ParseError) String() string {
	return fmt.Sprintf("Line %d: %s", e.Line, e.Message)
}

// ParseMeta carries the ingestion metadata for one CRIF file.
type ParseMeta struct {
	Filename      string
	PortfolioID   string
	ValuationDate time.Time
	Currency      string
}

// ParseResult holds the outcome of parsing one file: the valid records and
// the per-row errors. Partial success is a usable batch.
type ParseResult struct {
	UploadID      string                    `json:"upload_id"`
	Filename      string                    `json:"filename"`
	PortfolioID   string                    `json:"portfolio_id"`
	ValuationDate time.Time                 `json:"valuation_date"`
	Currency      string                    `json:"currency"`
	Valid         []model.SensitivityRecord `json:"-"`
	Errors        []ParseError              `json:"errors,omitempty"`
}

func (r *ParseResult) TotalRecords() int { return len(r.Valid) + len(r.Errors) }
func (r *ParseResult) ValidRecords() int { return len(r.Valid) }
func (r *ParseResult) ErrorRecords() int { return len(r.Errors) }

// SuccessRate returns the percentage of rows that parsed cleanly.
func (r *ParseResult) SuccessRate() float64 {
	total := r.TotalRecords()
	if total == 0 {
		return 0
	}
	return float64(r.ValidRecords()) / float64(total) * 100.0
}

func (r *ParseResult) addError(line int, message string) {
	r.Errors = append(r.Errors, ParseError{Line: line, Message: message})
	metrics.CrifRowsParsed.WithLabelValues("error").Inc()
}

// Parser parses CRIF files and persists the resulting batch.
type Parser struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewParser creates a CRIF parser backed by the given database.
func NewParser(logger *zap.Logger, db *gorm.DB) *Parser {
	return &Parser{logger: logger, db: db}
}

// Parse reads a CRIF stream, validates it row by row and persists the valid
// sensitivities attached to a new upload batch. Row-level problems are
// collected in the result, never returned as an error; only a database
// failure aborts. The upload ends FAILED only when no row parsed at all.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta ParseMeta) (*ParseResult, *model.Upload, error) {
	p.logger.Info("parsing CRIF file",
		zap.String("filename", meta.Filename),
		zap.String("portfolio_id", meta.PortfolioID))

	upload := &model.Upload{
		ID:            uuid.New(),
		UploadID:      fmt.Sprintf("CRIF-%d", time.Now().UnixMilli()),
		Filename:      meta.Filename,
		PortfolioID:   meta.PortfolioID,
		ValuationDate: meta.ValuationDate,
		Currency:      meta.Currency,
		Status:        model.UploadProcessing,
		CreatedAt:     time.Now(),
	}
	if err := p.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create upload: %w", err)
	}

	result := &ParseResult{
		UploadID:      upload.UploadID,
		Filename:      meta.Filename,
		PortfolioID:   meta.PortfolioID,
		ValuationDate: meta.ValuationDate,
		Currency:      meta.Currency,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		result.addError(1, "File is empty")
		return result, upload, p.finalize(ctx, upload, result)
	}

	headers := splitLine(scanner.Text())
	if missing := missingHeaders(headers); len(missing) > 0 {
		result.addError(1, "Missing required headers: "+strings.Join(missing, ", "))
		return result, upload, p.finalize(ctx, upload, result)
	}

	lineNumber := 2
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			lineNumber++
			continue
		}

		record, err := p.parseRow(line, headers, meta)
		if err != nil {
			p.logger.Debug("CRIF row rejected",
				zap.Int("line", lineNumber), zap.Error(err))
			result.addError(lineNumber, err.Error())
		} else {
			record.UploadRef = upload.ID
			result.Valid = append(result.Valid, *record)
			metrics.CrifRowsParsed.WithLabelValues("valid").Inc()
		}
		lineNumber++
	}
	if err := scanner.Err(); err != nil {
		result.addError(0, "Failed to read file: "+err.Error())
	}

	if len(result.Valid) > 0 {
		if err := p.db.WithContext(ctx).CreateInBatches(result.Valid, 500).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to persist sensitivities: %w", err)
		}
	}

	return result, upload, p.finalize(ctx, upload, result)
}

// finalize records the batch counts and terminal status on the upload.
func (p *Parser) finalize(ctx context.Context, upload *model.Upload, result *ParseResult) error {
	upload.TotalRecords = result.TotalRecords()
	upload.ValidRecords = result.ValidRecords()
	upload.ErrorRecords = result.ErrorRecords()

	if result.ErrorRecords() > 0 && result.ValidRecords() == 0 {
		upload.Status = model.UploadFailed
		var summary []string
		for i, e := range result.Errors {
			if i == 3 {
				break
			}
			summary = append(summary, e.String())
		}
		upload.ErrorMessage = strings.Join(summary, "; ")
	} else {
		upload.Status = model.UploadCompleted
		if result.ErrorRecords() > 0 {
			upload.ErrorMessage = fmt.Sprintf("%d records had errors", result.ErrorRecords())
		}
	}
	upload.UpdatedAt = time.Now()

	if err := p.db.WithContext(ctx).Save(upload).Error; err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	p.logger.Info("CRIF upload processed",
		zap.String("upload_id", upload.UploadID),
		zap.String("status", string(upload.Status)),
		zap.Int("valid", upload.ValidRecords),
		zap.Int("errors", upload.ErrorRecords))
	return nil
}

// parseRow validates one data line against the header layout.
func (p *Parser) parseRow(line string, headers []string, meta ParseMeta) (*model.SensitivityRecord, error) {
	values := splitLine(line)
	if len(values) != len(headers) {
		return nil, fmt.Errorf("expected %d fields, found %d", len(headers), len(values))
	}

	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		fields[h] = values[i]
	}

	record := &model.SensitivityRecord{
		ID:          uuid.New(),
		TradeID:     fields["TradeId"],
		PortfolioID: fields["PortfolioId"],
		Qualifier:   fields["Qualifier"],
		Bucket:      fields["Bucket"],
		Label1:      fields["Label1"],
		Label2:      fields["Label2"],
		CollectRegulations: fields["CollectRegulations"],
		PostRegulations:    fields["PostRegulations"],
		CreatedAt:   time.Now(),
	}

	productClassStr, err := requiredField(fields, "ProductClass")
	if err != nil {
		return nil, err
	}
	productClass, err := model.ParseProductClass(productClassStr)
	if err != nil {
		return nil, err
	}
	record.ProductClass = productClass

	riskType, err := requiredField(fields, "RiskType")
	if err != nil {
		return nil, err
	}
	riskClass, ok := model.ClassifyRiskType(riskType)
	if !ok {
		return nil, fmt.Errorf("invalid RiskType: %s", riskType)
	}
	record.RiskType = riskType
	record.RiskClass = riskClass

	amountStr, err := requiredField(fields, "Amount")
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Amount: %s", amountStr)
	}
	record.Amount = amount

	currency := fields["AmountCurrency"]
	if currency != "" && !currencyPattern.MatchString(currency) {
		return nil, fmt.Errorf("invalid currency format: %s", currency)
	}
	if currency == "" {
		currency = meta.Currency
	}
	record.AmountUSD = ToUSD(amount, currency)

	if endDateStr := fields["EndDate"]; endDateStr != "" {
		endDate, err := time.Parse(dateLayout, endDateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid EndDate format: %s, expected yyyy-MM-dd", endDateStr)
		}
		record.EndDate = &endDate
	}

	return record, nil
}

// requiredField rejects rows missing a mandatory column value.
func requiredField(fields map[string]string, name string) (string, error) {
	v := fields[name]
	if v == "" {
		return "", fmt.Errorf("required field '%s' is missing or empty", name)
	}
	return v, nil
}

// splitLine splits a CSV line on commas, honoring double-quote enclosed
// fields so a comma inside quotes is not a delimiter. Fields are trimmed.
func splitLine(line string) []string {
	var out []string
	var field strings.Builder
	inQuotes := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			out = append(out, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(c)
		}
	}
	out = append(out, strings.TrimSpace(field.String()))
	return out
}

// missingHeaders reports which required columns are absent, sorted for a
// stable error message.
func missingHeaders(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, h := range requiredHeaders {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	sort.Strings(missing)
	return missing
}
