package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemObservation is one feed's view of one auction item at one point in
// time. Rows are immutable; many may exist per item. Optional fields are
// pointers -- nil means the source did not report the field.
type ItemObservation struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID string `gorm:"type:varchar(100);not null;index:idx_obs_item"`
	Source string `gorm:"type:varchar(50);not null;index"`

	StartingPrice  *decimal.Decimal `gorm:"type:numeric(30,10)"`
	CurrentPrice   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	BuyoutPrice    *decimal.Decimal `gorm:"type:numeric(30,10)"`
	ReferencePrice *decimal.Decimal `gorm:"type:numeric(30,10)"`

	BidderCount *int
	BidCount    *int

	CloseTime *time.Time `gorm:"type:timestamptz"`

	Category          *string `gorm:"type:varchar(100)"`
	Brand             *string `gorm:"type:varchar(100)"`
	Condition         *string `gorm:"type:varchar(50)"`
	Location          *string `gorm:"type:varchar(100)"`
	ConditionVerified *bool

	// Closed is set when the source reports the auction as ended.
	Closed          bool
	FinalPrice      *decimal.Decimal `gorm:"type:numeric(30,10)"`
	WinnerConfirmed *bool

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ItemObservation) TableName() string {
	return "item_observations"
}
