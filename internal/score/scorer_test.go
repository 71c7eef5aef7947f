package score

import (
	"testing"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
	"auctionbot/internal/predict"
)

func testCfg() config.ScorerConfig {
	return config.ScorerConfig{
		CompetitorThreshold: 5,
		LowConfidence:       0.35,
		StrongBuyScore:      75,
		StrongBuyROI:        30,
		BuyScore:            60,
		BuyROI:              20,
		ConsiderScore:       45,
		ConsiderROI:         10,
		WatchScore:          30,
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func baseItem() models.ReconciledItem {
	return models.ReconciledItem{
		ItemID:            "it-1",
		ReferencePrice:    decPtr("200"),
		CurrentPrice:      decPtr("60"),
		BidderCount:       intPtr(2),
		ConditionVerified: boolPtr(true),
	}
}

func basePred() models.Prediction {
	return models.Prediction{
		PredictedPrice: decimal.RequireFromString("100"),
		Confidence:     0.8,
		WinProbability: 0.6,
	}
}

func TestROIFromPrediction(t *testing.T) {
	roi := ROI(baseItem(), basePred())
	if !roi.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("ROI = %s, want 100", roi)
	}
}

func TestROICurrentPriceFallback(t *testing.T) {
	roi := ROI(baseItem(), models.Prediction{})
	// (200-60)/60*100
	want := decimal.RequireFromString("200").Sub(decimal.RequireFromString("60")).
		Div(decimal.RequireFromString("60")).Mul(decimal.NewFromInt(100))
	if !roi.Equal(want) {
		t.Fatalf("ROI = %s, want %s", roi, want)
	}
	if !ROI(models.ReconciledItem{}, models.Prediction{}).IsZero() {
		t.Fatalf("ROI without reference must be zero")
	}
}

func TestScoreBounds(t *testing.T) {
	s := New(testCfg())
	// Extreme favorable inputs stay within [0,100].
	item := baseItem()
	item.ReferencePrice = decPtr("1000000")
	op := s.Score(item, models.Prediction{
		PredictedPrice: decimal.RequireFromString("1"),
		Confidence:     1, WinProbability: 0.95,
	})
	if op.Score < 0 || op.Score > 100 {
		t.Fatalf("score out of bounds: %v", op.Score)
	}

	// Hopeless inputs too.
	op = s.Score(models.ReconciledItem{ItemID: "x"}, models.Prediction{})
	if op.Score < 0 || op.Score > 100 {
		t.Fatalf("score out of bounds: %v", op.Score)
	}
}

func TestRiskEscalation(t *testing.T) {
	s := New(testCfg())

	if got := s.riskLevel(baseItem(), basePred()); got != models.RiskLow {
		t.Fatalf("clean item risk = %s, want LOW", got)
	}

	crowded := baseItem()
	crowded.BidderCount = intPtr(9)
	if got := s.riskLevel(crowded, basePred()); got != models.RiskMedium {
		t.Fatalf("crowded item risk = %s, want MEDIUM", got)
	}

	noCondition := baseItem()
	noCondition.ConditionVerified = nil
	if got := s.riskLevel(noCondition, basePred()); got != models.RiskLow {
		t.Fatalf("missing condition data risk = %s, want LOW", got)
	}

	unverified := baseItem()
	unverified.ConditionVerified = boolPtr(false)
	if got := s.riskLevel(unverified, basePred()); got != models.RiskMedium {
		t.Fatalf("unverified item risk = %s, want MEDIUM", got)
	}

	both := crowded
	both.ConditionVerified = boolPtr(false)
	if got := s.riskLevel(both, basePred()); got != models.RiskHigh {
		t.Fatalf("crowded+unverified risk = %s, want HIGH", got)
	}

	shaky := basePred()
	shaky.Confidence = 0.1
	if got := s.riskLevel(baseItem(), shaky); got != models.RiskHigh {
		t.Fatalf("low-confidence risk = %s, want HIGH", got)
	}

	fallback := shaky
	fallback.Heuristic = true
	if got := s.riskLevel(baseItem(), fallback); got != models.RiskLow {
		t.Fatalf("heuristic fallback risk = %s, want LOW", got)
	}
}

// Scenario: a fresh listing with a strong reference price, no bids yet,
// no competition, and no condition report, scored before any model has
// been trained. Nothing about it is risky and it must not be discarded.
func TestUntrainedBargainIsNotAvoided(t *testing.T) {
	s := New(testCfg())
	p := predict.New(config.PredictorConfig{
		HeuristicDiscount:   0.85,
		HeuristicConfidence: 0.2,
		BidSafetyFactor:     0.92,
		RangeSpread:         0.15,
	}, nil)

	item := models.ReconciledItem{
		ItemID:         "it-1",
		ReferencePrice: decPtr("1000"),
		CurrentPrice:   decPtr("0"),
		BidderCount:    intPtr(0),
	}
	pred := p.Predict(item, feature.Vector{})
	if !pred.Heuristic {
		t.Fatalf("untrained predictor must flag the fallback")
	}

	op := s.Score(item, pred)
	if op.RiskLevel != models.RiskLow {
		t.Fatalf("risk = %s, want LOW", op.RiskLevel)
	}
	if op.Recommendation == models.RecAvoid {
		t.Fatalf("bargain with no competition must not be AVOID: %+v", op)
	}
}

func TestRecommendationMonotonicInScore(t *testing.T) {
	s := New(testCfg())
	roi := decimal.RequireFromString("50")
	prev := models.RecommendationTier(s.recommend(0, roi))
	for v := 1.0; v <= 100; v++ {
		tier := models.RecommendationTier(s.recommend(v, roi))
		if tier < prev {
			t.Fatalf("recommendation regressed at score %v", v)
		}
		prev = tier
	}
}

func TestRecommendationTiesResolveDown(t *testing.T) {
	s := New(testCfg())
	// Exactly on the STRONG_BUY boundary lands in the band below.
	if got := s.recommend(75, decimal.RequireFromString("30")); got != models.RecBuy {
		t.Fatalf("boundary recommendation = %s, want BUY", got)
	}
	if got := s.recommend(30, decimal.Zero); got != models.RecAvoid {
		t.Fatalf("watch boundary recommendation = %s, want AVOID", got)
	}
}

// Scenario: a bargain with one heavy-competition twin. The clean item
// must outscore the contested one.
func TestContestedItemScoresLower(t *testing.T) {
	s := New(testCfg())

	clean := s.Score(baseItem(), basePred())

	contested := baseItem()
	contested.ItemID = "it-2"
	contested.BidderCount = intPtr(15)
	contestedOp := s.Score(contested, basePred())

	if contestedOp.Score >= clean.Score {
		t.Fatalf("contested item must score lower: %v >= %v", contestedOp.Score, clean.Score)
	}
}
