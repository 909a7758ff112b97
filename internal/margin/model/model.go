// Package model defines the margin domain entities and the risk taxonomy
// used to classify sensitivities.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessingStatus is the lifecycle of an upload batch
type ProcessingStatus string

const (
	UploadPending    ProcessingStatus = "PENDING"
	UploadProcessing ProcessingStatus = "PROCESSING"
	UploadCompleted  ProcessingStatus = "COMPLETED"
	UploadFailed     ProcessingStatus = "FAILED"
)

// CalculationStatus is the lifecycle of a margin calculation
type CalculationStatus string

const (
	CalcPending    CalculationStatus = "PENDING"
	CalcProcessing CalculationStatus = "PROCESSING"
	CalcCompleted  CalculationStatus = "COMPLETED"
	CalcFailed     CalculationStatus = "FAILED"
)

// Upload groups the sensitivity records produced from one source, either a
// CRIF file or a synthetic generation run over a portfolio.
type Upload struct {
	ID            uuid.UUID        `json:"id" gorm:"primaryKey;type:uuid"`
	UploadID      string           `json:"upload_id" gorm:"uniqueIndex;type:varchar(100)"`
	Filename      string           `json:"filename" gorm:"type:varchar(255)"`
	PortfolioID   string           `json:"portfolio_id" gorm:"index;type:varchar(100)"`
	ValuationDate time.Time        `json:"valuation_date"`
	Currency      string           `json:"currency" gorm:"type:varchar(3)"`
	TotalRecords  int              `json:"total_records"`
	ValidRecords  int              `json:"valid_records"`
	ErrorRecords  int              `json:"error_records"`
	Status        ProcessingStatus `json:"status" gorm:"type:varchar(20);default:PENDING"`
	ErrorMessage  string           `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	Sensitivities []SensitivityRecord `json:"sensitivities,omitempty" gorm:"foreignKey:UploadRef"`
}

func (Upload) TableName() string { return "crif_uploads" }

// SensitivityRecord is a single classified (risk factor, signed amount)
// observation. Records are immutable once created by the parser or generator.
type SensitivityRecord struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UploadRef   uuid.UUID       `json:"upload_ref" gorm:"index;type:uuid"`
	TradeID     string          `json:"trade_id" gorm:"type:varchar(100)"`
	PortfolioID string          `json:"portfolio_id" gorm:"type:varchar(100)"`
	ProductClass ProductClass   `json:"product_class" gorm:"type:varchar(20)"`
	RiskType    string          `json:"risk_type" gorm:"type:varchar(50)"`
	RiskClass   RiskClass       `json:"risk_class" gorm:"type:varchar(10)"`
	Qualifier   string          `json:"qualifier,omitempty" gorm:"type:varchar(255)"`
	Bucket      string          `json:"bucket,omitempty" gorm:"type:varchar(50)"`
	Label1      string          `json:"label1,omitempty" gorm:"type:varchar(100)"`
	Label2      string          `json:"label2,omitempty" gorm:"type:varchar(255)"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(30,8)"`
	AmountUSD   decimal.Decimal `json:"amount_usd" gorm:"type:decimal(30,8)"`
	CollectRegulations string   `json:"collect_regulations,omitempty" gorm:"type:varchar(100)"`
	PostRegulations    string   `json:"post_regulations,omitempty" gorm:"type:varchar(100)"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (SensitivityRecord) TableName() string { return "crif_sensitivities" }

// BucketOrDefault returns the record's bucket, substituting "DEFAULT" when
// none was supplied.
func (s SensitivityRecord) BucketOrDefault() string {
	if s.Bucket == "" {
		return "DEFAULT"
	}
	return s.Bucket
}

// ParameterSet is a versioned, time-bounded bundle of calibration data.
// It must never be mutated once referenced by a completed calculation.
type ParameterSet struct {
	ID            uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	VersionName   string     `json:"version_name" gorm:"uniqueIndex;type:varchar(50)"`
	EffectiveDate time.Time  `json:"effective_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Description   string     `json:"description,omitempty" gorm:"type:text"`
	IsActive      bool       `json:"is_active" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	RiskWeights    []RiskWeight    `json:"risk_weights,omitempty" gorm:"foreignKey:ParameterSetRef"`
	Correlations   []Correlation   `json:"correlations,omitempty" gorm:"foreignKey:ParameterSetRef"`
	BucketMappings []BucketMapping `json:"bucket_mappings,omitempty" gorm:"foreignKey:ParameterSetRef"`
}

func (ParameterSet) TableName() string { return "simm_parameter_sets" }

// RiskWeight maps (productClass, riskClass, bucket) to a calibrated weight.
type RiskWeight struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	ParameterSetRef uuid.UUID       `json:"parameter_set_ref" gorm:"index;type:uuid"`
	ProductClass    ProductClass    `json:"product_class" gorm:"type:varchar(20)"`
	RiskClass       RiskClass       `json:"risk_class" gorm:"type:varchar(10)"`
	Bucket          string          `json:"bucket" gorm:"type:varchar(50)"`
	Weight          decimal.Decimal `json:"weight" gorm:"type:decimal(12,8)"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (RiskWeight) TableName() string { return "simm_risk_weights" }

// CorrelationType distinguishes within-bucket from cross-bucket entries
type CorrelationType string

const (
	CorrelationIntraBucket CorrelationType = "INTRA_BUCKET"
	CorrelationInterBucket CorrelationType = "INTER_BUCKET"
)

// Correlation holds a correlation parameter for a risk class, optionally
// scoped to a specific bucket or risk-factor pair.
type Correlation struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	ParameterSetRef uuid.UUID       `json:"parameter_set_ref" gorm:"index;type:uuid"`
	RiskClass       RiskClass       `json:"risk_class" gorm:"type:varchar(10)"`
	Type            CorrelationType `json:"type" gorm:"type:varchar(20)"`
	BucketFrom      string          `json:"bucket_from,omitempty" gorm:"type:varchar(50)"`
	BucketTo        string          `json:"bucket_to,omitempty" gorm:"type:varchar(50)"`
	RiskFactorFrom  string          `json:"risk_factor_from,omitempty" gorm:"type:varchar(100)"`
	RiskFactorTo    string          `json:"risk_factor_to,omitempty" gorm:"type:varchar(100)"`
	Value           decimal.Decimal `json:"value" gorm:"type:decimal(8,6)"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (Correlation) TableName() string { return "simm_correlations" }

// BucketMapping maps a risk factor within a risk class to its bucket.
type BucketMapping struct {
	ID              uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	ParameterSetRef uuid.UUID `json:"parameter_set_ref" gorm:"index;type:uuid"`
	RiskClass       RiskClass `json:"risk_class" gorm:"type:varchar(10)"`
	RiskFactor      string    `json:"risk_factor" gorm:"type:varchar(100)"`
	Bucket          string    `json:"bucket" gorm:"type:varchar(50)"`
	Description     string    `json:"description,omitempty" gorm:"type:varchar(255)"`
	CreatedAt       time.Time `json:"created_at"`
}

func (BucketMapping) TableName() string { return "simm_bucket_mappings" }

// Calculation references one upload and one parameter set and owns the
// result rows and audit trail produced by a single run.
type Calculation struct {
	ID                uuid.UUID         `json:"id" gorm:"primaryKey;type:uuid"`
	CalculationID     string            `json:"calculation_id" gorm:"uniqueIndex;type:varchar(100)"`
	UploadRef         uuid.UUID         `json:"upload_ref" gorm:"index;type:uuid"`
	ParameterSetRef   uuid.UUID         `json:"parameter_set_ref" gorm:"index;type:uuid"`
	PortfolioID       string            `json:"portfolio_id" gorm:"index;type:varchar(100)"`
	CalculationDate   time.Time         `json:"calculation_date"`
	ReportingCurrency string            `json:"reporting_currency" gorm:"type:varchar(3);default:USD"`
	Status            CalculationStatus `json:"status" gorm:"type:varchar(20);default:PENDING"`
	TotalIM           decimal.Decimal   `json:"total_im" gorm:"type:decimal(30,8)"`
	TotalIMUSD        decimal.Decimal   `json:"total_im_usd" gorm:"type:decimal(30,8)"`
	DiversificationBenefit decimal.Decimal `json:"diversification_benefit" gorm:"type:decimal(30,8)"`
	CalculationTimeMs int64             `json:"calculation_time_ms"`
	ErrorMessage      string            `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Results    []CalculationResult `json:"results,omitempty" gorm:"foreignKey:CalculationRef"`
	AuditTrail []AuditEntry        `json:"audit_trail,omitempty" gorm:"foreignKey:CalculationRef"`
}

func (Calculation) TableName() string { return "simm_calculations" }

// IsTerminal reports whether the calculation reached a final status.
func (c Calculation) IsTerminal() bool {
	return c.Status == CalcCompleted || c.Status == CalcFailed
}

// CalculationResult is one (riskClass, bucket) row of the margin breakdown.
type CalculationResult struct {
	ID                  uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CalculationRef      uuid.UUID       `json:"calculation_ref" gorm:"index;type:uuid"`
	ProductClass        ProductClass    `json:"product_class" gorm:"type:varchar(20)"`
	RiskClass           RiskClass       `json:"risk_class" gorm:"type:varchar(10)"`
	Bucket              string          `json:"bucket" gorm:"type:varchar(50)"`
	WeightedSensitivity decimal.Decimal `json:"weighted_sensitivity" gorm:"type:decimal(30,8)"`
	CorrelationAdjustment decimal.Decimal `json:"correlation_adjustment" gorm:"type:decimal(30,8)"`
	MarginComponent     decimal.Decimal `json:"margin_component" gorm:"type:decimal(30,8)"`
	MarginComponentUSD  decimal.Decimal `json:"margin_component_usd" gorm:"type:decimal(30,8)"`
	CreatedAt           time.Time       `json:"created_at"`
}

func (CalculationResult) TableName() string { return "simm_calculation_results" }

// AuditEntry is one ordered, named step of a calculation's audit trail.
type AuditEntry struct {
	ID               uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	CalculationRef   uuid.UUID `json:"calculation_ref" gorm:"index;type:uuid"`
	StepName         string    `json:"step_name" gorm:"type:varchar(100)"`
	StepOrder        int       `json:"step_order"`
	InputData        string    `json:"input_data,omitempty" gorm:"type:text"`
	OutputData       string    `json:"output_data,omitempty" gorm:"type:text"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

func (AuditEntry) TableName() string { return "simm_calculation_audit" }

// Entities lists every persistent type for schema migration, in dependency
// order.
func Entities() []interface{} {
	return []interface{}{
		&Upload{},
		&SensitivityRecord{},
		&ParameterSet{},
		&RiskWeight{},
		&Correlation{},
		&BucketMapping{},
		&Calculation{},
		&CalculationResult{},
		&AuditEntry{},
	}
}
