package simm

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

// ErrNoSensitivities is returned when a batch holds zero sensitivity
// records. An empty batch is not a valid zero-risk answer.
var ErrNoSensitivities = errors.New("no sensitivity records found for upload")

// Cross-bucket correlation factors per product class. These are a scalar
// proxy for a pairwise correlation matrix; the per-pair entries a parameter
// set can carry are intentionally not consulted here.
var (
	corrCredit  = decimal.RequireFromString("0.50")
	corrRates   = decimal.RequireFromString("0.30")
	corrEquity  = decimal.RequireFromString("0.15")
	corrDefault = decimal.RequireFromString("0.25")
)

// Diversification benefit parameters: 5% base, +2% per product class beyond
// the first, capped at 15%.
var (
	benefitBase = decimal.RequireFromString("0.05")
	benefitStep = decimal.RequireFromString("0.02")
	benefitCap  = decimal.RequireFromString("0.15")
)

// Result is the outcome of aggregating one batch of sensitivities.
type Result struct {
	TotalIM                decimal.Decimal
	DiversificationBenefit decimal.Decimal
	IMByProductClass       map[model.ProductClass]decimal.Decimal
	Rows                   []model.CalculationResult
}

// Aggregator rolls weighted sensitivities up the taxonomy: bucket netting,
// risk-class correlation aggregation, product-class sum, total with
// diversification benefit.
type Aggregator struct {
	logger  *zap.Logger
	weights *WeightResolver
}

// NewAggregator creates an aggregator using the given weight resolver.
func NewAggregator(logger *zap.Logger, weights *WeightResolver) *Aggregator {
	return &Aggregator{logger: logger, weights: weights}
}

// Aggregate computes the total margin, diversification benefit and the
// per-(riskClass, bucket) breakdown for a batch, recording one audit step
// per aggregation stage. Group traversal is sorted so identical inputs
// always produce identical rows and audit payloads.
func (a *Aggregator) Aggregate(records []model.SensitivityRecord, audit *AuditRecorder) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoSensitivities
	}

	done := audit.Step("group_sensitivities", map[string]interface{}{"records": len(records)})
	byProduct := groupByProductClass(records)
	productKeys := sortedProductClasses(byProduct)
	done(map[string]interface{}{"product_classes": productKeys})

	res := &Result{
		IMByProductClass: make(map[model.ProductClass]decimal.Decimal, len(byProduct)),
	}
	totalBeforeBenefit := decimal.Zero

	for _, pc := range productKeys {
		group := byProduct[pc]
		a.logger.Debug("aggregating product class",
			zap.String("product_class", string(pc)),
			zap.Int("sensitivities", len(group)))

		stepDone := audit.Step("product_class_margin", map[string]interface{}{
			"product_class": string(pc),
			"sensitivities": len(group),
		})
		productIM, rows := a.productClassMargin(pc, group)
		stepDone(map[string]interface{}{
			"margin":  productIM.String(),
			"buckets": len(rows),
		})

		res.IMByProductClass[pc] = productIM
		res.Rows = append(res.Rows, rows...)
		totalBeforeBenefit = totalBeforeBenefit.Add(productIM)
	}

	benefitDone := audit.Step("diversification_benefit", map[string]interface{}{
		"total_before_benefit": totalBeforeBenefit.String(),
		"product_classes":      len(res.IMByProductClass),
	})
	res.DiversificationBenefit = diversificationBenefit(res.IMByProductClass)
	res.TotalIM = totalBeforeBenefit.Sub(res.DiversificationBenefit).Round(2)
	benefitDone(map[string]interface{}{
		"benefit":  res.DiversificationBenefit.String(),
		"total_im": res.TotalIM.String(),
	})

	return res, nil
}

// productClassMargin sums the risk-class margins under one product class.
// No further correlation adjustment applies at this level.
func (a *Aggregator) productClassMargin(pc model.ProductClass, records []model.SensitivityRecord) (decimal.Decimal, []model.CalculationResult) {
	byRiskClass := groupByRiskClass(records)

	margin := decimal.Zero
	var rows []model.CalculationResult
	for _, rc := range sortedRiskClasses(byRiskClass) {
		rcMargin, rcRows := a.riskClassMargin(pc, rc, byRiskClass[rc])
		margin = margin.Add(rcMargin)
		rows = append(rows, rcRows...)
	}
	return margin.Round(2), rows
}

// riskClassMargin aggregates the bucket margins of one risk class. A single
// bucket passes through unchanged; multiple buckets combine via
// sqrt(sum of squares) scaled by the product-class correlation factor.
func (a *Aggregator) riskClassMargin(pc model.ProductClass, rc model.RiskClass, records []model.SensitivityRecord) (decimal.Decimal, []model.CalculationResult) {
	byBucket := groupByBucket(records)
	buckets := sortedBuckets(byBucket)

	var rows []model.CalculationResult
	bucketMargins := make([]decimal.Decimal, 0, len(buckets))
	for _, bucket := range buckets {
		row := a.bucketMargin(pc, rc, bucket, byBucket[bucket])
		bucketMargins = append(bucketMargins, row.MarginComponent)
		rows = append(rows, row)
	}

	if len(bucketMargins) == 1 {
		return bucketMargins[0], rows
	}

	sumOfSquares := decimal.Zero
	for _, m := range bucketMargins {
		sumOfSquares = sumOfSquares.Add(m.Mul(m))
	}
	margin := Sqrt(sumOfSquares).Mul(correlationFactor(pc)).Round(2)
	return margin, rows
}

// bucketMargin nets the signed weighted sensitivities of one bucket before
// taking the absolute value, so matched long/short exposures cancel.
func (a *Aggregator) bucketMargin(pc model.ProductClass, rc model.RiskClass, bucket string, records []model.SensitivityRecord) model.CalculationResult {
	weighted := decimal.Zero
	weightedUSD := decimal.Zero
	for _, s := range records {
		w := a.weights.Resolve(pc, rc, s.RiskType, bucket)
		weighted = weighted.Add(s.Amount.Mul(w))

		amountUSD := s.AmountUSD
		if amountUSD.IsZero() {
			amountUSD = s.Amount
		}
		weightedUSD = weightedUSD.Add(amountUSD.Mul(w))
	}

	return model.CalculationResult{
		ProductClass:          pc,
		RiskClass:             rc,
		Bucket:                bucket,
		WeightedSensitivity:   weighted,
		CorrelationAdjustment: decimal.Zero,
		MarginComponent:       weighted.Abs(),
		MarginComponentUSD:    weightedUSD.Abs(),
	}
}

func correlationFactor(pc model.ProductClass) decimal.Decimal {
	switch pc {
	case model.ProductCredit:
		return corrCredit
	case model.ProductRatesFX:
		return corrRates
	case model.ProductEquity:
		return corrEquity
	default:
		return corrDefault
	}
}

// diversificationBenefit discounts the cross-product-class total. A single
// product class earns no benefit.
func diversificationBenefit(imByProductClass map[model.ProductClass]decimal.Decimal) decimal.Decimal {
	n := len(imByProductClass)
	if n <= 1 {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, im := range imByProductClass {
		total = total.Add(im)
	}

	rate := benefitBase.Add(benefitStep.Mul(decimal.NewFromInt(int64(n - 1))))
	if rate.GreaterThan(benefitCap) {
		rate = benefitCap
	}
	return total.Mul(rate).Round(2)
}

func groupByProductClass(records []model.SensitivityRecord) map[model.ProductClass][]model.SensitivityRecord {
	out := make(map[model.ProductClass][]model.SensitivityRecord)
	for _, s := range records {
		out[s.ProductClass] = append(out[s.ProductClass], s)
	}
	return out
}

func groupByRiskClass(records []model.SensitivityRecord) map[model.RiskClass][]model.SensitivityRecord {
	out := make(map[model.RiskClass][]model.SensitivityRecord)
	for _, s := range records {
		out[s.RiskClass] = append(out[s.RiskClass], s)
	}
	return out
}

func groupByBucket(records []model.SensitivityRecord) map[string][]model.SensitivityRecord {
	out := make(map[string][]model.SensitivityRecord)
	for _, s := range records {
		out[s.BucketOrDefault()] = append(out[s.BucketOrDefault()], s)
	}
	return out
}

func sortedProductClasses(m map[model.ProductClass][]model.SensitivityRecord) []model.ProductClass {
	keys := make([]model.ProductClass, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedRiskClasses(m map[model.RiskClass][]model.SensitivityRecord) []model.RiskClass {
	keys := make([]model.RiskClass, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedBuckets(m map[string][]model.SensitivityRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
