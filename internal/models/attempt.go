package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid attempt results.
const (
	AttemptPlaced          = "placed"
	AttemptRejected        = "rejected"
	AttemptTransportFailed = "transport_failed"
	AttemptSkipped         = "skipped"
)

// BidAttempt records one transport submission for one entry, whichever
// way it ended. Every non-placed attempt carries a concrete reason.
type BidAttempt struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	ItemID string `gorm:"type:varchar(100);not null;index"`

	Amount    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Transport string          `gorm:"type:varchar(50);not null"`
	Strategy  string          `gorm:"type:varchar(20);not null"`

	Result string `gorm:"type:varchar(20);not null;index"`
	Reason string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (BidAttempt) TableName() string {
	return "bid_attempts"
}

// FeedSource mirrors the health of one registered feed connector.
type FeedSource struct {
	Name         string     `gorm:"primaryKey;type:varchar(50)"`
	Kind         string     `gorm:"type:varchar(20);not null"`
	Endpoint     string     `gorm:"type:text"`
	PollInterval string     `gorm:"type:varchar(20)"`
	HealthStatus string     `gorm:"type:varchar(20);not null;default:'unknown'"`
	LastPollAt   *time.Time `gorm:"type:timestamptz"`
	LastError    *string    `gorm:"type:text"`
	UpdatedAt    time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FeedSource) TableName() string {
	return "feed_sources"
}
