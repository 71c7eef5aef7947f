package feature

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testVocab() *Vocabulary {
	return NewVocabulary(config.VocabConfig{
		Categories: []string{"electronics", "tools"},
		Brands:     []string{"acme"},
		Conditions: []string{"new", "used"},
		Locations:  []string{"warehouse-a"},
	})
}

func TestExtractRatios(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	close := now.Add(30 * time.Minute)
	item := models.ReconciledItem{
		ItemID:         "it-1",
		CurrentPrice:   decPtr("50"),
		ReferencePrice: decPtr("100"),
		StartingPrice:  decPtr("10"),
		CloseTime:      &close,
	}

	e := &Extractor{Vocab: testVocab()}
	v := e.Extract(item, now)

	if !v.HasReference || !v.HasCurrent {
		t.Fatalf("expected reference and current flags set: %+v", v)
	}
	if v.PriceToReference != 0.5 {
		t.Fatalf("PriceToReference = %v, want 0.5", v.PriceToReference)
	}
	if v.StartToReference != 0.1 {
		t.Fatalf("StartToReference = %v, want 0.1", v.StartToReference)
	}
	if !v.ClosingSoon {
		t.Fatalf("expected ClosingSoon for 30m remaining")
	}
}

func TestExtractMissingReference(t *testing.T) {
	item := models.ReconciledItem{ItemID: "it-2", CurrentPrice: decPtr("50")}
	e := &Extractor{Vocab: testVocab()}
	v := e.Extract(item, time.Now())

	if v.HasReference {
		t.Fatalf("expected HasReference false")
	}
	if v.PriceToReference != 0 {
		t.Fatalf("ratio should be imputed to 0 without a reference, got %v", v.PriceToReference)
	}
}

func TestVocabularyUnknownBucket(t *testing.T) {
	e := &Extractor{Vocab: testVocab()}

	known := e.Extract(models.ReconciledItem{Category: strPtr("Tools")}, time.Now())
	if known.Category != 2 {
		t.Fatalf("Category index = %d, want 2", known.Category)
	}

	unknown := e.Extract(models.ReconciledItem{Category: strPtr("furniture"), Brand: strPtr("nobody")}, time.Now())
	if unknown.Category != UnknownBucket || unknown.Brand != UnknownBucket {
		t.Fatalf("out-of-vocabulary values must map to the unknown bucket: %+v", unknown)
	}

	missing := e.Extract(models.ReconciledItem{}, time.Now())
	if missing.Category != UnknownBucket {
		t.Fatalf("nil attribute must map to the unknown bucket")
	}
}

func TestLocationReachesNumeric(t *testing.T) {
	e := &Extractor{Vocab: testVocab()}

	located := e.Extract(models.ReconciledItem{Location: strPtr("Warehouse-A")}, time.Now())
	if located.Location != 1 {
		t.Fatalf("Location index = %d, want 1", located.Location)
	}

	with := located.Numeric()
	without := e.Extract(models.ReconciledItem{}, time.Now()).Numeric()
	if with[len(with)-1] == without[len(without)-1] {
		t.Fatalf("location must be part of the numeric layout")
	}
}

func TestNumericShapeStable(t *testing.T) {
	e := &Extractor{Vocab: testVocab()}
	a := e.Extract(models.ReconciledItem{}, time.Now()).Numeric()
	b := e.Extract(models.ReconciledItem{CurrentPrice: decPtr("1"), ReferencePrice: decPtr("2")}, time.Now()).Numeric()
	if len(a) != len(b) {
		t.Fatalf("feature length must be fixed: %d vs %d", len(a), len(b))
	}
}
