package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio entry lifecycle. ACTIVE and BIDDING are live states; WON,
// LOST, and EXPIRED are terminal and release reserved funds.
const (
	EntryActive  = "ACTIVE"
	EntryBidding = "BIDDING"
	EntryWon     = "WON"
	EntryLost    = "LOST"
	EntryExpired = "EXPIRED"
)

// PortfolioEntry is a candidate admitted into the managed set with funds
// reserved against it. Status transitions happen only through the
// executor and the monitoring loop.
type PortfolioEntry struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID string `gorm:"type:varchar(100);not null;uniqueIndex"`

	Status       string `gorm:"type:varchar(10);not null;default:'ACTIVE';index"`
	PriorityTier int    `gorm:"not null"`

	MaxBidAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	LastBidAmount decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ClearingPrice decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// Last competitor state seen by the monitoring loop, used to detect
	// new activity between checks.
	LastSeenBidCount int             `gorm:"not null;default:0"`
	LastSeenPrice    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	AdmittedAt time.Time  `gorm:"type:timestamptz;not null"`
	ResolvedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

// Terminal reports whether the entry reached a final state.
func (e PortfolioEntry) Terminal() bool {
	switch e.Status {
	case EntryWon, EntryLost, EntryExpired:
		return true
	}
	return false
}

func (PortfolioEntry) TableName() string {
	return "portfolio_entries"
}

// Ledger event kinds.
const (
	LedgerReserve = "reserve"
	LedgerRelease = "release"
	LedgerSpend   = "spend"
)

// LedgerEvent is an append-only record of one budget mutation, with the
// ledger balances after the mutation applied.
type LedgerEvent struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID string `gorm:"type:varchar(100);index"`
	Kind   string `gorm:"type:varchar(10);not null;index"`

	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	ReservedAfter  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	SpentAfter     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AvailableAfter decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (LedgerEvent) TableName() string {
	return "ledger_events"
}
