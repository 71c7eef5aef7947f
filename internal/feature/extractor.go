package feature

import (
	"strings"
	"time"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
)

// UnknownBucket is the encoding every categorical value outside the
// vocabulary maps to. Index 0 is reserved for it so trained model weights
// stay aligned when the vocabulary grows at the tail.
const UnknownBucket = 0

// Vector is the fixed-shape feature set shared between the extractor and
// the predictor. Ratios are 0 when a denominator is missing; the Has*
// flags let models discount imputed zeros.
type Vector struct {
	PriceToReference  float64
	StartToReference  float64
	BuyoutToReference float64
	HasReference      bool
	HasCurrent        bool

	BidderCount float64
	BidCount    float64

	HoursToClose float64
	ClosingSoon  bool

	Category  int
	Brand     int
	Condition int
	Location  int

	ConditionVerified bool
}

// Vocabulary maps categorical attribute values to stable indices. The
// same vocabulary must be used at training and prediction time.
type Vocabulary struct {
	categories map[string]int
	brands     map[string]int
	conditions map[string]int
	locations  map[string]int
}

func NewVocabulary(cfg config.VocabConfig) *Vocabulary {
	return &Vocabulary{
		categories: indexOf(cfg.Categories),
		brands:     indexOf(cfg.Brands),
		conditions: indexOf(cfg.Conditions),
		locations:  indexOf(cfg.Locations),
	}
}

func indexOf(values []string) map[string]int {
	out := make(map[string]int, len(values))
	for i, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = i + 1 // 0 is the unknown bucket
	}
	return out
}

func lookup(m map[string]int, v *string) int {
	if v == nil {
		return UnknownBucket
	}
	if idx, ok := m[strings.ToLower(strings.TrimSpace(*v))]; ok {
		return idx
	}
	return UnknownBucket
}

// Extractor turns reconciled items into feature vectors. Pure; never
// blocks.
type Extractor struct {
	Vocab *Vocabulary
}

func (e *Extractor) Extract(item models.ReconciledItem, now time.Time) Vector {
	var v Vector

	ref := 0.0
	if item.ReferencePrice != nil && item.ReferencePrice.IsPositive() {
		ref, _ = item.ReferencePrice.Float64()
		v.HasReference = true
	}
	if item.CurrentPrice != nil {
		v.HasCurrent = true
		if v.HasReference {
			cur, _ := item.CurrentPrice.Float64()
			v.PriceToReference = cur / ref
		}
	}
	if v.HasReference && item.StartingPrice != nil {
		start, _ := item.StartingPrice.Float64()
		v.StartToReference = start / ref
	}
	if v.HasReference && item.BuyoutPrice != nil {
		buyout, _ := item.BuyoutPrice.Float64()
		v.BuyoutToReference = buyout / ref
	}

	if item.BidderCount != nil {
		v.BidderCount = float64(*item.BidderCount)
	}
	if item.BidCount != nil {
		v.BidCount = float64(*item.BidCount)
	}

	if item.CloseTime != nil {
		remaining := item.CloseTime.Sub(now)
		if remaining > 0 {
			v.HoursToClose = remaining.Hours()
			v.ClosingSoon = remaining <= time.Hour
		}
	}

	if e != nil && e.Vocab != nil {
		v.Category = lookup(e.Vocab.categories, item.Category)
		v.Brand = lookup(e.Vocab.brands, item.Brand)
		v.Condition = lookup(e.Vocab.conditions, item.Condition)
		v.Location = lookup(e.Vocab.locations, item.Location)
	}
	v.ConditionVerified = item.ConditionVerified != nil && *item.ConditionVerified

	return v
}

// Numeric flattens the vector into the float slice trained models
// consume. Order is part of the model contract; append only.
func (v Vector) Numeric() []float64 {
	return []float64{
		v.PriceToReference,
		v.StartToReference,
		v.BuyoutToReference,
		boolF(v.HasReference),
		boolF(v.HasCurrent),
		v.BidderCount,
		v.BidCount,
		v.HoursToClose,
		boolF(v.ClosingSoon),
		float64(v.Category),
		float64(v.Brand),
		float64(v.Condition),
		boolF(v.ConditionVerified),
		float64(v.Location),
	}
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
