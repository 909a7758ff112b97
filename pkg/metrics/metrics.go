package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CalculationsProcessed counts terminal margin calculations by status
var CalculationsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marginx_calculations_processed_total",
		Help: "Total number of margin calculations reaching a terminal status",
	},
	[]string{"status"},
)

// CalculationLatency records latency distribution for full calculation runs
var CalculationLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "marginx_calculation_latency_seconds",
		Help:    "Latency in seconds to execute a margin calculation end to end",
		Buckets: prometheus.DefBuckets,
	},
)

// CrifRowsParsed counts parsed CRIF rows by outcome (valid/error)
var CrifRowsParsed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marginx_crif_rows_parsed_total",
		Help: "Total number of CRIF rows parsed, by outcome",
	},
	[]string{"outcome"},
)

// DefaultWeightFallbacks counts risk-weight lookups that fell back to the default weight
var DefaultWeightFallbacks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marginx_default_weight_fallbacks_total",
		Help: "Risk weight resolutions that used the fixed default weight",
	},
	[]string{"product_class", "risk_class"},
)

// SensitivitiesGenerated counts synthetically generated sensitivity records
var SensitivitiesGenerated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "marginx_sensitivities_generated_total",
		Help: "Total number of sensitivity records generated from trade positions",
	},
)

func init() {
	prometheus.MustRegister(CalculationsProcessed, CalculationLatency)
	prometheus.MustRegister(CrifRowsParsed, DefaultWeightFallbacks, SensitivitiesGenerated)
}
