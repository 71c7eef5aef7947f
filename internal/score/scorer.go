package score

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
)

var riskWeight = map[string]float64{
	models.RiskLow:    1.0,
	models.RiskMedium: 0.8,
	models.RiskHigh:   0.5,
}

// Scorer turns a reconciled item plus its prediction into an
// Opportunity. Pure and deterministic: same inputs, same output.
type Scorer struct {
	cfg config.ScorerConfig
}

func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score builds the opportunity record for an item.
func (s *Scorer) Score(item models.ReconciledItem, pred models.Prediction) models.Opportunity {
	roi := ROI(item, pred)
	risk := s.riskLevel(item, pred)
	value := s.compositeScore(roi, pred, risk)
	rec := s.recommend(value, roi)

	return models.Opportunity{
		ItemID:         item.ItemID,
		Prediction:     pred,
		ROIPct:         roi,
		RiskLevel:      risk,
		Score:          value,
		Recommendation: rec,
		Reasoning:      s.reasoning(item, pred, roi, risk, rec),
	}
}

// ROI is the margin between the reference value and what we expect to
// pay, as a percentage of the expected price. With no usable prediction
// the current price stands in; with neither, ROI is zero.
func ROI(item models.ReconciledItem, pred models.Prediction) decimal.Decimal {
	if item.ReferencePrice == nil || !item.ReferencePrice.IsPositive() {
		return decimal.Zero
	}
	basis := pred.PredictedPrice
	if !basis.IsPositive() && item.CurrentPrice != nil {
		basis = *item.CurrentPrice
	}
	if !basis.IsPositive() {
		return decimal.Zero
	}
	return item.ReferencePrice.Sub(basis).Div(basis).Mul(decimal.NewFromInt(100))
}

// riskLevel starts LOW and escalates. Heavy competition or a condition
// a source explicitly reports as unverified each push to MEDIUM; both
// together, or a trained prediction we barely trust, push to HIGH.
// Missing condition data is neutral, and heuristic predictions carry a
// fixed nominal confidence rather than a measured one, so neither
// escalates on its own.
func (s *Scorer) riskLevel(item models.ReconciledItem, pred models.Prediction) string {
	if !pred.Heuristic && pred.Confidence < s.cfg.LowConfidence {
		return models.RiskHigh
	}
	crowded := item.BidderCount != nil && *item.BidderCount > s.cfg.CompetitorThreshold
	unverified := item.ConditionVerified != nil && !*item.ConditionVerified
	switch {
	case crowded && unverified:
		return models.RiskHigh
	case crowded || unverified:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (s *Scorer) compositeScore(roi decimal.Decimal, pred models.Prediction, risk string) float64 {
	roiF, _ := roi.Float64()
	clampedROI := clamp(roiF, 0, 100)

	value := 0.4*clampedROI +
		0.2*pred.Confidence*100 +
		0.2*pred.WinProbability*100 +
		0.2*riskWeight[risk]*100
	return clamp(value, 0, 100)
}

// recommend maps (score, ROI) to a band. Both gates of a band must
// pass; a tie on a boundary resolves downward because the comparisons
// are strict.
func (s *Scorer) recommend(value float64, roi decimal.Decimal) string {
	roiF, _ := roi.Float64()
	switch {
	case value > s.cfg.StrongBuyScore && roiF > s.cfg.StrongBuyROI:
		return models.RecStrongBuy
	case value > s.cfg.BuyScore && roiF > s.cfg.BuyROI:
		return models.RecBuy
	case value > s.cfg.ConsiderScore && roiF > s.cfg.ConsiderROI:
		return models.RecConsider
	case value > s.cfg.WatchScore:
		return models.RecWatch
	default:
		return models.RecAvoid
	}
}

func (s *Scorer) reasoning(item models.ReconciledItem, pred models.Prediction, roi decimal.Decimal, risk, rec string) string {
	parts := []string{
		fmt.Sprintf("roi=%s%%", roi.Round(1)),
		fmt.Sprintf("confidence=%.2f", pred.Confidence),
		fmt.Sprintf("win_probability=%.2f", pred.WinProbability),
		fmt.Sprintf("risk=%s", risk),
	}
	if pred.Heuristic {
		parts = append(parts, "heuristic_prediction")
	}
	if item.BidderCount != nil && *item.BidderCount > s.cfg.CompetitorThreshold {
		parts = append(parts, fmt.Sprintf("competitors=%d", *item.BidderCount))
	}
	if item.ConditionVerified != nil && !*item.ConditionVerified {
		parts = append(parts, "condition_unverified")
	}
	parts = append(parts, strings.ToLower(rec))
	return strings.Join(parts, " ")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
