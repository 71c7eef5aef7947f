package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Reconciler item states.
const (
	ItemStateUnseen   = "unseen"
	ItemStatePartial  = "partial"
	ItemStateComplete = "complete"
	ItemStateClosed   = "closed"
)

// ReconciledItem is the canonical merged view of one auction item across
// all feeds. Exactly one row exists per item identifier; a closed item is
// superseded (state flips to closed), never deleted.
type ReconciledItem struct {
	ItemID string `gorm:"primaryKey;type:varchar(100)"`
	State  string `gorm:"type:varchar(20);not null;default:'partial';index"`

	StartingPrice  *decimal.Decimal `gorm:"type:numeric(30,10)"`
	CurrentPrice   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	BuyoutPrice    *decimal.Decimal `gorm:"type:numeric(30,10)"`
	ReferencePrice *decimal.Decimal `gorm:"type:numeric(30,10)"`

	BidderCount *int
	BidCount    *int

	CloseTime *time.Time `gorm:"type:timestamptz;index"`

	Category          *string `gorm:"type:varchar(100);index"`
	Brand             *string `gorm:"type:varchar(100)"`
	Condition         *string `gorm:"type:varchar(50)"`
	Location          *string `gorm:"type:varchar(100)"`
	ConditionVerified *bool

	FinalPrice      *decimal.Decimal `gorm:"type:numeric(30,10)"`
	WinnerConfirmed *bool

	// Completeness is the weighted field coverage in [0,100].
	Completeness float64 `gorm:"not null"`

	// Sources is the JSON set of feed names that contributed fields.
	// Provenance maps field name -> {source, observed_at} for the value
	// currently held; earlier contributions are never removed from Sources.
	Sources    datatypes.JSON `gorm:"type:jsonb"`
	Provenance datatypes.JSON `gorm:"type:jsonb"`

	ClosedAt  *time.Time `gorm:"type:timestamptz"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
}

func (ReconciledItem) TableName() string {
	return "reconciled_items"
}

// FieldProvenance records which source supplied the value a merged field
// currently holds, and when that source observed it.
type FieldProvenance struct {
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}
