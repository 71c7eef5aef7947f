package predict

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auctionbot/internal/config"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
)

// Model is one linear estimator of the ensemble. It predicts the
// final-price/reference-price ratio from the numeric feature vector.
// TrainError is the mean absolute residual on its bootstrap sample and
// feeds the model's confidence.
type Model struct {
	Weights    []float64
	Bias       float64
	TrainError float64
	TrainedAt  time.Time
}

func (m Model) estimate(x []float64) float64 {
	out := m.Bias
	for i, w := range m.Weights {
		if i >= len(x) {
			break
		}
		out += w * x[i]
	}
	return out
}

// confidence shrinks with training error: a model that was off by 30%
// of reference on average contributes little.
func (m Model) confidence() float64 {
	return clamp(1-m.TrainError*2, 0, 1)
}

// Predictor holds the current ensemble. Predict never returns an
// error: with no usable models it falls back to a reference-price
// heuristic and flags the result.
type Predictor struct {
	cfg    config.PredictorConfig
	logger *zap.Logger

	mu     sync.RWMutex
	models []Model
}

func New(cfg config.PredictorConfig, logger *zap.Logger) *Predictor {
	return &Predictor{cfg: cfg, logger: logger}
}

// SetModels swaps in a freshly trained ensemble.
func (p *Predictor) SetModels(models []Model) {
	p.mu.Lock()
	p.models = models
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Info("predictor ensemble updated", zap.Int("models", len(models)))
	}
}

func (p *Predictor) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.models) > 0
}

// Predict estimates the closing price of an item. The ensemble needs a
// reference price to anchor the ratio target; without one, or without
// trained models, the heuristic path is taken.
func (p *Predictor) Predict(item models.ReconciledItem, vec feature.Vector) models.Prediction {
	p.mu.RLock()
	ensemble := p.models
	p.mu.RUnlock()

	if len(ensemble) == 0 || !vec.HasReference {
		return p.heuristic(item)
	}

	x := vec.Numeric()
	var weighted, confSum float64
	for _, m := range ensemble {
		c := m.confidence()
		if c <= 0 {
			continue
		}
		r := m.estimate(x)
		if r < 0.05 {
			r = 0.05
		}
		weighted += r * c
		confSum += c
	}
	if confSum == 0 {
		return p.heuristic(item)
	}

	ratio := weighted / confSum
	conf := clamp(confSum/float64(len(ensemble)), 0, 1)

	predicted := item.ReferencePrice.Mul(decimal.NewFromFloat(ratio))
	return p.assemble(item, predicted, conf, false)
}

// heuristic anchors on the reference price discounted by a configured
// factor, or on the current price when no reference exists.
func (p *Predictor) heuristic(item models.ReconciledItem) models.Prediction {
	var predicted decimal.Decimal
	switch {
	case item.ReferencePrice != nil && item.ReferencePrice.IsPositive():
		predicted = item.ReferencePrice.Mul(decimal.NewFromFloat(p.cfg.HeuristicDiscount))
	case item.CurrentPrice != nil && item.CurrentPrice.IsPositive():
		predicted = *item.CurrentPrice
	default:
		predicted = decimal.Zero
	}
	return p.assemble(item, predicted, p.cfg.HeuristicConfidence, true)
}

func (p *Predictor) assemble(item models.ReconciledItem, predicted decimal.Decimal, conf float64, heuristic bool) models.Prediction {
	spread := decimal.NewFromFloat(p.cfg.RangeSpread)
	low := predicted.Sub(predicted.Mul(spread))
	if low.IsNegative() {
		low = decimal.Zero
	}
	high := predicted.Add(predicted.Mul(spread))

	bid := predicted.Mul(decimal.NewFromFloat(p.cfg.BidSafetyFactor))

	return models.Prediction{
		PredictedPrice: predicted,
		PriceLow:       low,
		PriceHigh:      high,
		RecommendedBid: bid,
		Confidence:     clamp(conf, 0, 1),
		WinProbability: winProbability(item.CurrentPrice, predicted, conf),
		Heuristic:      heuristic,
	}
}

// winProbability estimates the chance the recommended bid wins. The
// closer the current price already sits to the prediction, the less
// headroom remains. Always clamped to [0.05, 0.95]: nothing is certain
// either way.
func winProbability(current *decimal.Decimal, predicted decimal.Decimal, conf float64) float64 {
	if !predicted.IsPositive() {
		return 0.05
	}
	ratio := 0.0
	if current != nil {
		ratio, _ = current.Div(predicted).Float64()
	}
	headroom := clamp(1-ratio, 0, 1)
	return clamp(headroom*conf+0.05, 0.05, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
