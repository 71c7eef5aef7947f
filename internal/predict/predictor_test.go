package predict

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
)

func testCfg() config.PredictorConfig {
	return config.PredictorConfig{
		HeuristicDiscount:   0.85,
		HeuristicConfidence: 0.2,
		BidSafetyFactor:     0.92,
		RangeSpread:         0.15,
		EnsembleSize:        5,
		MinTrainingSamples:  25,
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestHeuristicFallbackWithoutModels(t *testing.T) {
	p := New(testCfg(), nil)
	item := models.ReconciledItem{
		ItemID:         "it-1",
		ReferencePrice: decPtr("200"),
		CurrentPrice:   decPtr("40"),
	}

	pred := p.Predict(item, feature.Vector{HasReference: true})

	if !pred.Heuristic {
		t.Fatalf("expected heuristic prediction without trained models")
	}
	want := decimal.RequireFromString("170") // 200 * 0.85
	if !pred.PredictedPrice.Equal(want) {
		t.Fatalf("PredictedPrice = %s, want %s", pred.PredictedPrice, want)
	}
	if pred.Confidence != 0.2 {
		t.Fatalf("Confidence = %v, want heuristic 0.2", pred.Confidence)
	}
	if pred.PriceLow.GreaterThan(pred.PredictedPrice) || pred.PriceHigh.LessThan(pred.PredictedPrice) {
		t.Fatalf("range [%s, %s] must bracket the prediction %s", pred.PriceLow, pred.PriceHigh, pred.PredictedPrice)
	}
}

func TestHeuristicUsesCurrentPriceWithoutReference(t *testing.T) {
	p := New(testCfg(), nil)
	pred := p.Predict(models.ReconciledItem{ItemID: "it-2", CurrentPrice: decPtr("55")}, feature.Vector{HasCurrent: true})

	if !pred.Heuristic {
		t.Fatalf("expected heuristic path")
	}
	if !pred.PredictedPrice.Equal(decimal.RequireFromString("55")) {
		t.Fatalf("PredictedPrice = %s, want 55", pred.PredictedPrice)
	}
}

func TestEnsemblePrediction(t *testing.T) {
	p := New(testCfg(), nil)
	// Two constant models agreeing on a 0.8 ratio.
	p.SetModels([]Model{
		{Bias: 0.8, TrainError: 0.05, TrainedAt: time.Now()},
		{Bias: 0.8, TrainError: 0.10, TrainedAt: time.Now()},
	})

	item := models.ReconciledItem{ItemID: "it-3", ReferencePrice: decPtr("100"), CurrentPrice: decPtr("10")}
	pred := p.Predict(item, feature.Vector{HasReference: true, HasCurrent: true})

	if pred.Heuristic {
		t.Fatalf("trained ensemble must not report heuristic")
	}
	if !pred.PredictedPrice.Equal(decimal.RequireFromString("80")) {
		t.Fatalf("PredictedPrice = %s, want 80", pred.PredictedPrice)
	}
	if pred.Confidence <= 0.2 {
		t.Fatalf("ensemble confidence should exceed the heuristic floor, got %v", pred.Confidence)
	}
}

func TestWinProbabilityClamped(t *testing.T) {
	// Current far above prediction: probability floors at 0.05.
	over := decimal.RequireFromString("500")
	if got := winProbability(&over, decimal.RequireFromString("100"), 1); got != 0.05 {
		t.Fatalf("overpriced item win probability = %v, want 0.05", got)
	}
	// Current at zero with full confidence: ceiling at 0.95.
	zero := decimal.Zero
	if got := winProbability(&zero, decimal.RequireFromString("100"), 1); got != 0.95 {
		t.Fatalf("win probability ceiling = %v, want 0.95", got)
	}
	if got := winProbability(nil, decimal.Zero, 1); got != 0.05 {
		t.Fatalf("non-positive prediction must floor, got %v", got)
	}
}

func TestFitRecoversLinearTarget(t *testing.T) {
	// y = 0.5*x0 + 0.3, exactly learnable.
	samples := make([]sample, 0, 40)
	for i := 0; i < 40; i++ {
		x := float64(i) / 10
		samples = append(samples, sample{x: []float64{x}, y: 0.5*x + 0.3})
	}

	m, ok := fit(samples)
	if !ok {
		t.Fatalf("fit failed on well-conditioned data")
	}
	if m.TrainError > 0.01 {
		t.Fatalf("train error %v too high for exact linear data", m.TrainError)
	}
	got := m.estimate([]float64{2})
	if got < 1.25 || got > 1.35 {
		t.Fatalf("estimate(2) = %v, want ~1.3", got)
	}
}
