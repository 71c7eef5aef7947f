package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
	"auctionbot/internal/portfolio"
	"auctionbot/internal/predict"
	"auctionbot/internal/repository"
	"auctionbot/internal/score"
)

// Pipeline turns reconciled item updates into scored opportunities and
// feeds the good ones to the allocator. It is the only writer of the
// opportunities table during normal operation; the monitor re-scores
// tracked entries separately.
type Pipeline struct {
	repo      repository.Repository
	extractor *feature.Extractor
	predictor *predict.Predictor
	scorer    *score.Scorer
	alloc     *portfolio.Allocator
	clk       clock.Clock
	logger    *zap.Logger
}

func New(repo repository.Repository, extractor *feature.Extractor, predictor *predict.Predictor, scorer *score.Scorer, alloc *portfolio.Allocator, clk clock.Clock, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		extractor: extractor,
		predictor: predictor,
		scorer:    scorer,
		alloc:     alloc,
		clk:       clock.Or(clk),
		logger:    logger,
	}
}

// Run drains the update stream until the context is canceled.
func (p *Pipeline) Run(ctx context.Context, updates <-chan models.ReconciledItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.Process(ctx, item); err != nil && p.logger != nil {
				p.logger.Warn("processing item update failed",
					zap.String("item_id", item.ItemID),
					zap.Error(err))
			}
		}
	}
}

// Process scores one updated item. Only COMPLETE items become
// opportunities; partial data would score on imputed zeros.
func (p *Pipeline) Process(ctx context.Context, item models.ReconciledItem) error {
	if p == nil || p.repo == nil {
		return nil
	}
	if item.State != models.ItemStateComplete {
		return nil
	}

	vec := p.extractor.Extract(item, p.clk.Now())
	pred := p.predictor.Predict(item, vec)
	op := p.scorer.Score(item, pred)

	if err := p.repo.UpsertOpportunity(ctx, &op); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Debug("opportunity scored",
			zap.String("item_id", item.ItemID),
			zap.Float64("score", op.Score),
			zap.String("recommendation", op.Recommendation))
	}

	if models.RecommendationTier(op.Recommendation) < models.RecommendationTier(models.RecBuy) {
		return nil
	}
	_, err := p.alloc.AddCandidate(ctx, item, op)
	if err != nil && !admissionRejection(err) {
		return err
	}
	return nil
}

// admissionRejection separates a screening "no" from a real failure.
func admissionRejection(err error) bool {
	return errors.Is(err, portfolio.ErrROITooLow) ||
		errors.Is(err, portfolio.ErrRiskTooHigh) ||
		errors.Is(err, portfolio.ErrNotPreferred) ||
		errors.Is(err, portfolio.ErrAvoidRated) ||
		errors.Is(err, portfolio.ErrAlreadyTracked) ||
		errors.Is(err, portfolio.ErrNoBidAmount) ||
		errors.Is(err, portfolio.ErrBudgetExceeded) ||
		errors.Is(err, portfolio.ErrDailyBudget)
}
