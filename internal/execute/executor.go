package execute

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/portfolio"
	"auctionbot/internal/repository"
)

// Timing strategies. SNIPE holds the bid for the last seconds,
// LAST_MINUTE for the closing stretch, IMMEDIATE fires on sight.
const (
	StrategySnipe      = "SNIPE"
	StrategyLastMinute = "LAST_MINUTE"
	StrategyImmediate  = "IMMEDIATE"
	StrategyCounter    = "COUNTER"
)

var riskPenalty = map[string]float64{
	models.RiskLow:    0,
	models.RiskMedium: 5,
	models.RiskHigh:   15,
}

// candidate is one portfolio entry joined with its item and
// opportunity, scheduled for this cycle.
type candidate struct {
	entry    models.PortfolioEntry
	item     models.ReconciledItem
	op       models.Opportunity
	strategy string
	priority float64
}

// Executor scans active entries on an interval, picks the ones whose
// bid is due, and places bids through a bounded worker pool. The
// primary transport is tried first, the fallback once per entry per
// cycle.
type Executor struct {
	repo     repository.Repository
	alloc    *portfolio.Allocator
	primary  Transport
	fallback Transport
	cfg      config.ExecutorConfig
	clk      clock.Clock
	logger   *zap.Logger
}

func New(repo repository.Repository, alloc *portfolio.Allocator, primary, fallback Transport, cfg config.ExecutorConfig, clk clock.Clock, logger *zap.Logger) *Executor {
	return &Executor{
		repo:     repo,
		alloc:    alloc,
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		clk:      clock.Or(clk),
		logger:   logger,
	}
}

// Run loops until the context is canceled. Each cycle's failures are
// logged and retried next cycle rather than stopping the loop.
func (e *Executor) Run(ctx context.Context) error {
	interval := e.cfg.ScanInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil && e.logger != nil {
				e.logger.Warn("executor cycle failed", zap.Error(err))
			}
		}
	}
}

// Cycle runs one scan-schedule-place pass.
func (e *Executor) Cycle(ctx context.Context) error {
	if e == nil || e.repo == nil || e.alloc == nil {
		return nil
	}
	entries, err := e.alloc.Active(ctx)
	if err != nil {
		return err
	}
	now := e.clk.Now()

	var due []candidate
	for _, entry := range entries {
		item, err := e.repo.GetReconciledItem(ctx, entry.ItemID)
		if err != nil || item == nil {
			continue
		}
		if item.State == models.ItemStateClosed {
			if err := e.settleClosed(ctx, entry, *item); err != nil && e.logger != nil {
				e.logger.Warn("settling closed item failed", zap.String("item_id", entry.ItemID), zap.Error(err))
			}
			continue
		}
		if entry.Status != models.EntryActive {
			continue
		}
		op, err := e.repo.GetOpportunityByItemID(ctx, entry.ItemID)
		if err != nil || op == nil {
			continue
		}

		c := candidate{entry: entry, item: *item, op: *op}
		c.strategy = e.timingStrategy(*item, now)
		if !e.bidDue(c, now) {
			continue
		}
		c.priority = e.Priority(*op, *item, now)
		due = append(due, c)
	}

	// Highest priority first; ties keep scan order.
	sort.SliceStable(due, func(i, j int) bool { return due[i].priority > due[j].priority })

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, c := range due {
		c := c
		g.Go(func() error {
			e.place(gctx, c)
			return nil
		})
	}
	return g.Wait()
}

// Priority orders this cycle's due bids. Urgency rewards auctions about
// to close; risk subtracts.
func (e *Executor) Priority(op models.Opportunity, item models.ReconciledItem, now time.Time) float64 {
	roi := op.ROIPct.InexactFloat64()
	if roi > 100 {
		roi = 100
	}
	if roi < 0 {
		roi = 0
	}

	urgency := 0.0
	if item.CloseTime != nil {
		remaining := item.CloseTime.Sub(now)
		switch {
		case remaining <= e.cfg.SnipeWindow:
			urgency = 100
		case remaining <= e.cfg.LastMinuteWindow:
			urgency = 60
		}
	}

	return 0.4*op.Score +
		0.3*roi +
		0.2*op.Prediction.Confidence*100 +
		0.1*urgency -
		riskPenalty[op.RiskLevel]
}

// timingStrategy picks how long to hold the bid based on time to close.
func (e *Executor) timingStrategy(item models.ReconciledItem, now time.Time) string {
	if item.CloseTime == nil {
		return StrategyImmediate
	}
	remaining := item.CloseTime.Sub(now)
	switch {
	case remaining <= e.cfg.SnipeWindow:
		return StrategySnipe
	case remaining <= e.cfg.LastMinuteWindow:
		return StrategyLastMinute
	default:
		return StrategyImmediate
	}
}

// bidDue reports whether the candidate's hold period is over.
func (e *Executor) bidDue(c candidate, now time.Time) bool {
	if c.item.CloseTime == nil {
		return c.strategy == StrategyImmediate
	}
	remaining := c.item.CloseTime.Sub(now)
	switch c.strategy {
	case StrategySnipe:
		return remaining <= e.cfg.SnipeLead
	case StrategyLastMinute:
		return remaining <= e.cfg.LastMinuteLead
	default:
		return true
	}
}

// BidAmount is the least of: one increment over the current price, the
// prediction scaled by the safety factor, and the entry's reservation.
func (e *Executor) BidAmount(c candidate) decimal.Decimal {
	amount := c.entry.MaxBidAmount

	if c.item.CurrentPrice != nil {
		step := c.item.CurrentPrice.Add(decimal.NewFromFloat(e.cfg.BidIncrement))
		if step.LessThan(amount) {
			amount = step
		}
	}
	if c.op.Prediction.PredictedPrice.IsPositive() {
		safe := c.op.Prediction.PredictedPrice.Mul(decimal.NewFromFloat(safetyFromPrediction(c.op.Prediction)))
		if safe.LessThan(amount) {
			amount = safe
		}
	}
	return amount
}

// The prediction already carries the safety-scaled recommended bid;
// derive the factor from it so executor and predictor cannot drift.
func safetyFromPrediction(p models.Prediction) float64 {
	if !p.PredictedPrice.IsPositive() || !p.RecommendedBid.IsPositive() {
		return 1
	}
	f, _ := p.RecommendedBid.Div(p.PredictedPrice).Float64()
	if f <= 0 || f > 1 {
		return 1
	}
	return f
}

// place submits one bid, trying the fallback transport once if the
// primary fails in transit. Every outcome is recorded as a BidAttempt.
func (e *Executor) place(ctx context.Context, c candidate) {
	entry := c.entry
	now := e.clk.Now()

	// A snipe whose transport timeout cannot fit before the close is
	// hopeless; skip rather than bid into a closed auction.
	if c.strategy == StrategySnipe && c.item.CloseTime != nil {
		if remaining := c.item.CloseTime.Sub(now); remaining < e.cfg.TransportTimeout {
			e.recordAttempt(ctx, entry.ItemID, decimal.Zero, "", c.strategy, models.AttemptSkipped, ErrDeadlineMissed.Error())
			return
		}
	}

	amount := e.BidAmount(c)
	if !amount.IsPositive() {
		e.recordAttempt(ctx, entry.ItemID, amount, "", c.strategy, models.AttemptSkipped, "no positive bid amount")
		return
	}

	entry.Status = models.EntryBidding
	if err := e.repo.SaveEntry(ctx, &entry); err != nil {
		if e.logger != nil {
			e.logger.Warn("marking entry BIDDING failed", zap.String("item_id", entry.ItemID), zap.Error(err))
		}
		return
	}

	outcome, transport, err := e.submit(ctx, entry.ItemID, amount)
	switch {
	case err != nil:
		e.recordAttempt(ctx, entry.ItemID, amount, transport, c.strategy, models.AttemptTransportFailed, err.Error())
		e.requeue(ctx, entry)
	case !outcome.Accepted:
		reason := outcome.Reason
		if reason == "" {
			reason = "rejected by venue"
		}
		e.recordAttempt(ctx, entry.ItemID, amount, transport, c.strategy, models.AttemptRejected, reason)
		e.requeue(ctx, entry)
	default:
		e.recordAttempt(ctx, entry.ItemID, amount, transport, c.strategy, models.AttemptPlaced, "")
		entry.LastBidAmount = amount
		if err := e.repo.SaveEntry(ctx, &entry); err != nil && e.logger != nil {
			e.logger.Warn("persisting placed bid failed", zap.String("item_id", entry.ItemID), zap.Error(err))
		}
	}
}

// submit tries the primary and then, on transport error only, the
// fallback. Venue rejections are final for the cycle.
func (e *Executor) submit(ctx context.Context, itemID string, amount decimal.Decimal) (BidOutcome, string, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.TransportTimeout)
	defer cancel()

	outcome, err := e.primary.SubmitBid(tctx, itemID, amount)
	if err == nil {
		return outcome, e.primary.Name(), nil
	}
	if e.logger != nil {
		e.logger.Warn("primary transport failed",
			zap.String("item_id", itemID),
			zap.String("transport", e.primary.Name()),
			zap.Error(err))
	}
	if e.fallback == nil {
		return BidOutcome{}, e.primary.Name(), err
	}

	fctx, fcancel := context.WithTimeout(ctx, e.cfg.TransportTimeout)
	defer fcancel()
	outcome, ferr := e.fallback.SubmitBid(fctx, itemID, amount)
	if ferr != nil {
		return BidOutcome{}, e.fallback.Name(), ferr
	}
	return outcome, e.fallback.Name(), nil
}

// requeue puts a failed entry back to ACTIVE so the next cycle retries.
func (e *Executor) requeue(ctx context.Context, entry models.PortfolioEntry) {
	entry.Status = models.EntryActive
	if err := e.repo.SaveEntry(ctx, &entry); err != nil && e.logger != nil {
		e.logger.Warn("requeueing entry failed", zap.String("item_id", entry.ItemID), zap.Error(err))
	}
}

// settleClosed resolves an entry whose item closed. WON needs the last
// bid to cover the clearing price and the feed to confirm ownership.
func (e *Executor) settleClosed(ctx context.Context, entry models.PortfolioEntry, item models.ReconciledItem) error {
	won := false
	clearing := entry.LastBidAmount
	if item.FinalPrice != nil {
		clearing = *item.FinalPrice
	}
	if entry.LastBidAmount.IsPositive() &&
		item.FinalPrice != nil &&
		entry.LastBidAmount.GreaterThanOrEqual(*item.FinalPrice) &&
		item.WinnerConfirmed != nil && *item.WinnerConfirmed {
		won = true
	}

	if won {
		return e.alloc.ResolveWon(ctx, &entry, clearing)
	}
	// A close with no bid placed, deadline-skipped snipes included, is
	// still a loss. EXPIRED is reserved for entries withdrawn before
	// their auction resolved.
	return e.alloc.ResolveLost(ctx, &entry)
}

// CounterBid submits an escalated bid for an entry the monitor found
// outbid, bypassing timing strategy. Returns whether the venue
// accepted it.
func (e *Executor) CounterBid(ctx context.Context, entry *models.PortfolioEntry, amount decimal.Decimal) (bool, error) {
	if e == nil || e.repo == nil || !amount.IsPositive() {
		return false, nil
	}
	outcome, transport, err := e.submit(ctx, entry.ItemID, amount)
	switch {
	case err != nil:
		e.recordAttempt(ctx, entry.ItemID, amount, transport, StrategyCounter, models.AttemptTransportFailed, err.Error())
		return false, err
	case !outcome.Accepted:
		reason := outcome.Reason
		if reason == "" {
			reason = "rejected by venue"
		}
		e.recordAttempt(ctx, entry.ItemID, amount, transport, StrategyCounter, models.AttemptRejected, reason)
		return false, nil
	}

	e.recordAttempt(ctx, entry.ItemID, amount, transport, StrategyCounter, models.AttemptPlaced, "")
	entry.Status = models.EntryBidding
	entry.LastBidAmount = amount
	if err := e.repo.SaveEntry(ctx, entry); err != nil {
		return true, err
	}
	return true, nil
}

func (e *Executor) recordAttempt(ctx context.Context, itemID string, amount decimal.Decimal, transport, strategy, result, reason string) {
	attempt := &models.BidAttempt{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Amount:    amount,
		Transport: transport,
		Strategy:  strategy,
		Result:    result,
		Reason:    reason,
	}
	if err := e.repo.InsertBidAttempt(ctx, attempt); err != nil && e.logger != nil {
		e.logger.Warn("recording bid attempt failed", zap.String("item_id", itemID), zap.Error(err))
	}
}
