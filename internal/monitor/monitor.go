package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/execute"
	"auctionbot/internal/feature"
	"auctionbot/internal/models"
	"auctionbot/internal/portfolio"
	"auctionbot/internal/predict"
	"auctionbot/internal/reconcile"
	"auctionbot/internal/repository"
	"auctionbot/internal/score"
)

// Fetcher pulls fresh observations for one item on demand. The feed
// hub implements it.
type Fetcher interface {
	FetchItem(ctx context.Context, itemID string) ([]models.ItemObservation, error)
}

// Monitor watches tracked entries between executor cycles: it
// refreshes their items, detects competing bids, re-scores, counter-
// bids when outbid, and finalizes entries whose auction closed.
type Monitor struct {
	repo       repository.Repository
	alloc      *portfolio.Allocator
	reconciler *reconcile.Reconciler
	predictor  *predict.Predictor
	scorer     *score.Scorer
	extractor  *feature.Extractor
	executor   *execute.Executor
	fetcher    Fetcher

	cfg    config.MonitorConfig
	bidInc decimal.Decimal
	clk    clock.Clock
	logger *zap.Logger
}

type Deps struct {
	Repo       repository.Repository
	Allocator  *portfolio.Allocator
	Reconciler *reconcile.Reconciler
	Predictor  *predict.Predictor
	Scorer     *score.Scorer
	Extractor  *feature.Extractor
	Executor   *execute.Executor
	Fetcher    Fetcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

func New(deps Deps, cfg config.MonitorConfig, execCfg config.ExecutorConfig) *Monitor {
	return &Monitor{
		repo:       deps.Repo,
		alloc:      deps.Allocator,
		reconciler: deps.Reconciler,
		predictor:  deps.Predictor,
		scorer:     deps.Scorer,
		extractor:  deps.Extractor,
		executor:   deps.Executor,
		fetcher:    deps.Fetcher,
		cfg:        cfg,
		bidInc:     decimal.NewFromFloat(execCfg.BidIncrement),
		clk:        clock.Or(deps.Clock),
		logger:     deps.Logger,
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && m.logger != nil {
				m.logger.Warn("monitor sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass over the tracked entries.
func (m *Monitor) Sweep(ctx context.Context) error {
	if m == nil || m.repo == nil || m.alloc == nil {
		return nil
	}
	entries, err := m.alloc.Active(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := m.check(ctx, entry); err != nil && m.logger != nil {
			m.logger.Warn("entry check failed", zap.String("item_id", entry.ItemID), zap.Error(err))
		}
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, entry models.PortfolioEntry) error {
	m.refresh(ctx, entry.ItemID)

	item, err := m.repo.GetReconciledItem(ctx, entry.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	if item.State == models.ItemStateClosed {
		return m.finalize(ctx, entry, *item)
	}

	contested := m.contested(entry, *item)
	op := m.rescore(ctx, *item)

	if contested && m.outbid(entry, *item) {
		m.counterBid(ctx, &entry, *item, op)
	}

	// Remember what we saw for the next delta check.
	if item.BidCount != nil {
		entry.LastSeenBidCount = *item.BidCount
	}
	if item.CurrentPrice != nil {
		entry.LastSeenPrice = *item.CurrentPrice
	}
	return m.repo.SaveEntry(ctx, &entry)
}

// refresh pulls fresh observations and runs them through the
// reconciler. Best effort: the periodic feed polls cover any miss.
func (m *Monitor) refresh(ctx context.Context, itemID string) {
	if m.fetcher == nil || m.reconciler == nil {
		return
	}
	observations, err := m.fetcher.FetchItem(ctx, itemID)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("refetch failed", zap.String("item_id", itemID), zap.Error(err))
		}
		return
	}
	for _, obs := range observations {
		if _, err := m.reconciler.Apply(ctx, obs); err != nil && m.logger != nil {
			m.logger.Warn("applying refetched observation failed", zap.String("item_id", itemID), zap.Error(err))
		}
	}
}

// contested reports whether competitors moved since the last sweep.
func (m *Monitor) contested(entry models.PortfolioEntry, item models.ReconciledItem) bool {
	if item.BidCount != nil && *item.BidCount > entry.LastSeenBidCount {
		return true
	}
	if item.CurrentPrice != nil && item.CurrentPrice.GreaterThan(entry.LastSeenPrice) {
		return true
	}
	return false
}

// outbid reports whether our standing bid no longer leads.
func (m *Monitor) outbid(entry models.PortfolioEntry, item models.ReconciledItem) bool {
	if !entry.LastBidAmount.IsPositive() {
		return false
	}
	return item.CurrentPrice != nil && item.CurrentPrice.GreaterThanOrEqual(entry.LastBidAmount)
}

// rescore refreshes the stored opportunity from the latest item state.
func (m *Monitor) rescore(ctx context.Context, item models.ReconciledItem) *models.Opportunity {
	if m.predictor == nil || m.scorer == nil {
		op, _ := m.repo.GetOpportunityByItemID(ctx, item.ItemID)
		return op
	}
	vec := m.extractor.Extract(item, m.clk.Now())
	pred := m.predictor.Predict(item, vec)
	op := m.scorer.Score(item, pred)
	if err := m.repo.UpsertOpportunity(ctx, &op); err != nil && m.logger != nil {
		m.logger.Warn("re-score upsert failed", zap.String("item_id", item.ItemID), zap.Error(err))
	}
	return &op
}

// counterBid escalates once per sweep, capped by the escalation factor
// and never past the reservation.
func (m *Monitor) counterBid(ctx context.Context, entry *models.PortfolioEntry, item models.ReconciledItem, op *models.Opportunity) {
	if m.executor == nil {
		return
	}
	if op != nil && op.Recommendation == models.RecAvoid {
		// The opportunity degraded below tracking quality; let the
		// close resolve it instead of chasing.
		return
	}

	ceiling := entry.MaxBidAmount.Mul(decimal.NewFromFloat(m.cfg.EscalationFactor))
	if ceiling.GreaterThan(entry.MaxBidAmount) {
		// Reservation is the hard ceiling regardless of escalation.
		ceiling = entry.MaxBidAmount
	}

	amount := ceiling
	if item.CurrentPrice != nil {
		step := item.CurrentPrice.Add(m.bidInc)
		if step.LessThan(amount) {
			amount = step
		}
	}
	if !amount.IsPositive() || amount.LessThanOrEqual(entry.LastBidAmount) {
		return
	}

	accepted, err := m.executor.CounterBid(ctx, entry, amount)
	if m.logger != nil {
		if err != nil {
			m.logger.Warn("counter-bid failed", zap.String("item_id", entry.ItemID), zap.Error(err))
		} else if accepted {
			m.logger.Info("counter-bid placed",
				zap.String("item_id", entry.ItemID),
				zap.String("amount", amount.String()))
		}
	}
}

// finalize settles a closed auction: WON only when our bid covered the
// clearing price and a source confirmed ownership.
func (m *Monitor) finalize(ctx context.Context, entry models.PortfolioEntry, item models.ReconciledItem) error {
	clearing := entry.LastBidAmount
	if item.FinalPrice != nil {
		clearing = *item.FinalPrice
	}

	won := entry.LastBidAmount.IsPositive() &&
		item.FinalPrice != nil &&
		entry.LastBidAmount.GreaterThanOrEqual(*item.FinalPrice) &&
		item.WinnerConfirmed != nil && *item.WinnerConfirmed

	if won {
		return m.alloc.ResolveWon(ctx, &entry, clearing)
	}
	// No bid before the close counts as a loss too; EXPIRED is reserved
	// for entries withdrawn before their auction resolved.
	return m.alloc.ResolveLost(ctx, &entry)
}
