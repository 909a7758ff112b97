// Package trades provides the CDS trade positions the synthetic sensitivity
// generator reads from.
package trades

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a trade
type TradeStatus string

const (
	StatusActive     TradeStatus = "ACTIVE"
	StatusTerminated TradeStatus = "TERMINATED"
	StatusMatured    TradeStatus = "MATURED"
)

// ProtectionDirection is the side of a CDS trade
type ProtectionDirection string

const (
	BuyProtection  ProtectionDirection = "BUY"
	SellProtection ProtectionDirection = "SELL"
)

// CDSTrade is a credit default swap position.
type CDSTrade struct {
	ID              uuid.UUID           `json:"id" gorm:"primaryKey;type:uuid"`
	NettingSetID    string              `json:"netting_set_id" gorm:"index;type:varchar(100)"`
	ReferenceEntity string              `json:"reference_entity" gorm:"type:varchar(255)"`
	NotionalAmount  decimal.Decimal     `json:"notional_amount" gorm:"type:decimal(30,8)"`
	Spread          decimal.Decimal     `json:"spread" gorm:"type:decimal(12,8)"`
	Currency        string              `json:"currency" gorm:"type:varchar(3)"`
	EffectiveDate   time.Time           `json:"effective_date"`
	MaturityDate    time.Time           `json:"maturity_date"`
	Direction       ProtectionDirection `json:"direction" gorm:"type:varchar(10)"`
	Status          TradeStatus         `json:"status" gorm:"index;type:varchar(20)"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (CDSTrade) TableName() string { return "cds_trades" }
