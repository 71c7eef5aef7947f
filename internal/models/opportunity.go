package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Risk levels, monotonically increasing in competition, unverified
// condition, and low prediction confidence.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Recommendation bands, ordered from strongest to weakest.
const (
	RecStrongBuy = "STRONG_BUY"
	RecBuy       = "BUY"
	RecConsider  = "CONSIDER"
	RecWatch     = "WATCH"
	RecAvoid     = "AVOID"
)

// RecommendationTier maps a recommendation to its ordinal rank; higher is
// stronger. Used by tests to assert band monotonicity.
func RecommendationTier(rec string) int {
	switch rec {
	case RecStrongBuy:
		return 4
	case RecBuy:
		return 3
	case RecConsider:
		return 2
	case RecWatch:
		return 1
	default:
		return 0
	}
}

// Prediction is the price predictor output for one reconciled item.
// Stored inline on Opportunity rather than as its own table.
type Prediction struct {
	PredictedPrice decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"predicted_price"`
	PriceLow       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price_low"`
	PriceHigh      decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price_high"`
	RecommendedBid decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"recommended_bid"`

	Confidence     float64 `gorm:"not null" json:"confidence"`
	WinProbability float64 `gorm:"not null" json:"win_probability"`

	// Heuristic is true when no trained models were available and the
	// prediction fell back to the reference-price heuristic.
	Heuristic bool `json:"heuristic"`
}

// Opportunity is the scored, ranked view of one item: prediction plus
// risk classification, bounded score, and a categorical recommendation.
// Recomputed on every prediction refresh; the latest row per item wins.
type Opportunity struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID string `gorm:"type:varchar(100);not null;uniqueIndex"`

	Prediction Prediction `gorm:"embedded;embeddedPrefix:pred_"`

	ROIPct         decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	RiskLevel      string          `gorm:"type:varchar(10);not null;index"`
	Score          float64         `gorm:"not null;index"`
	Recommendation string          `gorm:"type:varchar(20);not null;index"`

	Reasoning string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (Opportunity) TableName() string {
	return "opportunities"
}
