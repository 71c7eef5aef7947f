package predict

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"auctionbot/internal/config"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

var ErrNotEnoughSamples = errors.New("predict: not enough closed items to train")

// sample is one training row: feature vector plus the realized
// final-price/reference-price ratio.
type sample struct {
	x []float64
	y float64
}

// Trainer refits the ensemble from the repository's closed items. Each
// model trains on its own bootstrap resample, which is what makes the
// ensemble members disagree.
type Trainer struct {
	repo      repository.Repository
	extractor *feature.Extractor
	cfg       config.PredictorConfig
	logger    *zap.Logger
}

func NewTrainer(repo repository.Repository, extractor *feature.Extractor, cfg config.PredictorConfig, logger *zap.Logger) *Trainer {
	return &Trainer{repo: repo, extractor: extractor, cfg: cfg, logger: logger}
}

// Train fits a fresh ensemble and installs it on the predictor. Kept
// idempotent so the cron job can call it on an interval.
func (t *Trainer) Train(ctx context.Context, p *Predictor) error {
	if t == nil || t.repo == nil {
		return nil
	}
	closed, err := t.repo.ListClosedItems(ctx, 2000)
	if err != nil {
		return err
	}

	samples := t.collect(closed)
	if len(samples) < t.cfg.MinTrainingSamples {
		if t.logger != nil {
			t.logger.Info("skipping ensemble training",
				zap.Int("samples", len(samples)),
				zap.Int("required", t.cfg.MinTrainingSamples))
		}
		return ErrNotEnoughSamples
	}

	size := t.cfg.EnsembleSize
	if size < 1 {
		size = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ensemble := make([]Model, 0, size)
	for i := 0; i < size; i++ {
		boot := resample(rng, samples)
		m, ok := fit(boot)
		if !ok {
			continue
		}
		m.TrainedAt = time.Now().UTC()
		ensemble = append(ensemble, m)
	}
	if len(ensemble) == 0 {
		return ErrNotEnoughSamples
	}

	p.SetModels(ensemble)
	if t.logger != nil {
		t.logger.Info("ensemble trained",
			zap.Int("samples", len(samples)),
			zap.Int("models", len(ensemble)))
	}
	return nil
}

// collect keeps closed items whose outcome ratio is observable: a
// positive reference price and a recorded final price.
func (t *Trainer) collect(items []models.ReconciledItem) []sample {
	now := time.Now().UTC()
	out := make([]sample, 0, len(items))
	for _, item := range items {
		if item.ReferencePrice == nil || !item.ReferencePrice.IsPositive() {
			continue
		}
		if item.FinalPrice == nil || !item.FinalPrice.IsPositive() {
			continue
		}
		asOf := now
		if item.ClosedAt != nil {
			asOf = *item.ClosedAt
		}
		y, _ := item.FinalPrice.Div(*item.ReferencePrice).Float64()
		out = append(out, sample{x: t.extractor.Extract(item, asOf).Numeric(), y: y})
	}
	return out
}

func resample(rng *rand.Rand, in []sample) []sample {
	out := make([]sample, len(in))
	for i := range out {
		out[i] = in[rng.Intn(len(in))]
	}
	return out
}

// fit solves the ridge-regularized normal equations by Gaussian
// elimination. The small regularization term keeps the system solvable
// when bootstrap columns are collinear.
func fit(samples []sample) (Model, bool) {
	if len(samples) == 0 {
		return Model{}, false
	}
	dim := len(samples[0].x) + 1 // trailing bias column

	// A = XᵀX + λI, b = Xᵀy
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
		a[i][i] = 1e-3
	}
	b := make([]float64, dim)
	for _, s := range samples {
		row := append(append([]float64{}, s.x...), 1)
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				a[i][j] += row[i] * row[j]
			}
			b[i] += row[i] * s.y
		}
	}

	w, ok := solve(a, b)
	if !ok {
		return Model{}, false
	}

	m := Model{Weights: w[:dim-1], Bias: w[dim-1]}

	var absErr float64
	for _, s := range samples {
		diff := m.estimate(s.x) - s.y
		if diff < 0 {
			diff = -diff
		}
		absErr += diff
	}
	m.TrainError = absErr / float64(len(samples))
	return m, true
}

// solve runs Gaussian elimination with partial pivoting in place.
func solve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
