package simm

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/pkg/metrics"
)

// Default risk weights applied when the parameter set has no entry for a
// sensitivity. Values follow the simplified calibration the engine ships with.
var (
	weightCreditCurve  = decimal.RequireFromString("0.0175")
	weightCreditSpread = decimal.RequireFromString("0.0050")
	weightRates        = decimal.RequireFromString("0.0050")
	weightEquity       = decimal.RequireFromString("0.15")
	weightCommodity    = decimal.RequireFromString("0.18")
	weightDefault      = decimal.RequireFromString("0.01")
)

// WeightResolver resolves the risk weight for a sensitivity from a parameter
// set, falling back to the built-in default table. Resolution never fails: an
// unmapped combination yields the fixed default weight and a warning signal.
type WeightResolver struct {
	logger *zap.Logger
	byKey  map[string]decimal.Decimal
}

// NewWeightResolver indexes the parameter set's weight entries for exact
// (productClass, riskClass, bucket) lookup.
func NewWeightResolver(logger *zap.Logger, params *model.ParameterSet) *WeightResolver {
	r := &WeightResolver{
		logger: logger,
		byKey:  make(map[string]decimal.Decimal),
	}
	if params != nil {
		for _, w := range params.RiskWeights {
			r.byKey[weightKey(w.ProductClass, w.RiskClass, w.Bucket)] = w.Weight
		}
	}
	return r
}

func weightKey(pc model.ProductClass, rc model.RiskClass, bucket string) string {
	return string(pc) + "|" + string(rc) + "|" + bucket
}

// Resolve returns the weight for the given sensitivity coordinates.
func (r *WeightResolver) Resolve(pc model.ProductClass, rc model.RiskClass, riskType, bucket string) decimal.Decimal {
	if w, ok := r.byKey[weightKey(pc, rc, bucket)]; ok {
		return w
	}

	switch {
	case pc == model.ProductCredit && rc == model.RiskClassCRQ:
		// Credit spread curves carry a higher weight than plain spreads.
		if strings.EqualFold(riskType, "Risk_IRCurve") {
			return weightCreditCurve
		}
		return weightCreditSpread
	case pc == model.ProductRatesFX && rc == model.RiskClassIR:
		return weightRates
	case pc == model.ProductEquity && rc == model.RiskClassEQ:
		return weightEquity
	case pc == model.ProductCommodity && rc == model.RiskClassCO:
		return weightCommodity
	}

	r.logger.Warn("using default risk weight",
		zap.String("product_class", string(pc)),
		zap.String("risk_class", string(rc)),
		zap.String("risk_type", riskType),
		zap.String("bucket", bucket))
	metrics.DefaultWeightFallbacks.WithLabelValues(string(pc), string(rc)).Inc()
	return weightDefault
}
