package portfolio

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

var (
	ErrROITooLow      = errors.New("portfolio: roi below minimum")
	ErrRiskTooHigh    = errors.New("portfolio: risk above ceiling")
	ErrNotPreferred   = errors.New("portfolio: outside preferred categories and brands")
	ErrAvoidRated     = errors.New("portfolio: opportunity rated avoid")
	ErrAlreadyTracked = errors.New("portfolio: item already has an entry")
	ErrNoBidAmount    = errors.New("portfolio: no usable bid amount")
)

var riskTier = map[string]int{
	models.RiskLow:    0,
	models.RiskMedium: 1,
	models.RiskHigh:   2,
}

// Allocator admits opportunities into the portfolio and settles them.
// Admission and resolution both go through the ledger so the budget
// invariant holds across the whole lifecycle.
type Allocator struct {
	repo   repository.Repository
	ledger *Ledger
	cfg    config.StrategyConfig
	clk    clock.Clock
	logger *zap.Logger
}

func NewAllocator(repo repository.Repository, ledger *Ledger, cfg config.StrategyConfig, clk clock.Clock, logger *zap.Logger) *Allocator {
	return &Allocator{repo: repo, ledger: ledger, cfg: cfg, clk: clock.Or(clk), logger: logger}
}

// AddCandidate screens an opportunity and, if it passes, reserves its
// recommended bid and creates an ACTIVE entry. The screening order is
// cheapest-first; the ledger reservation is last so rejections never
// touch the budget.
func (a *Allocator) AddCandidate(ctx context.Context, item models.ReconciledItem, op models.Opportunity) (*models.PortfolioEntry, error) {
	if a == nil || a.repo == nil || a.ledger == nil {
		return nil, nil
	}

	if op.Recommendation == models.RecAvoid {
		return nil, ErrAvoidRated
	}
	minROI := decimal.NewFromFloat(a.cfg.MinROIPct)
	if op.ROIPct.LessThan(minROI) {
		return nil, ErrROITooLow
	}
	if riskTier[op.RiskLevel] > riskTier[strings.ToUpper(a.cfg.MaxRiskLevel)] {
		return nil, ErrRiskTooHigh
	}
	if !a.preferred(item) && op.ROIPct.LessThan(decimal.NewFromFloat(a.cfg.OverrideROIPct)) {
		return nil, ErrNotPreferred
	}

	maxBid := op.Prediction.RecommendedBid
	if !maxBid.IsPositive() {
		return nil, ErrNoBidAmount
	}

	existing, err := a.repo.GetEntryByItemID(ctx, item.ItemID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Terminal() {
		return nil, ErrAlreadyTracked
	}

	if err := a.ledger.Reserve(ctx, item.ItemID, maxBid); err != nil {
		return nil, err
	}

	entry := &models.PortfolioEntry{
		ItemID:       item.ItemID,
		Status:       models.EntryActive,
		PriorityTier: models.RecommendationTier(op.Recommendation),
		MaxBidAmount: maxBid,
		AdmittedAt:   a.clk.Now().UTC(),
	}
	if item.BidCount != nil {
		entry.LastSeenBidCount = *item.BidCount
	}
	if item.CurrentPrice != nil {
		entry.LastSeenPrice = *item.CurrentPrice
	}
	if err := a.repo.SaveEntry(ctx, entry); err != nil {
		// Roll the reservation back rather than stranding budget.
		_ = a.ledger.Release(ctx, item.ItemID, maxBid)
		return nil, err
	}

	if a.logger != nil {
		a.logger.Info("candidate admitted",
			zap.String("item_id", item.ItemID),
			zap.String("max_bid", maxBid.String()),
			zap.String("recommendation", op.Recommendation))
	}
	return entry, nil
}

func (a *Allocator) preferred(item models.ReconciledItem) bool {
	if len(a.cfg.PreferredCategories) == 0 && len(a.cfg.PreferredBrands) == 0 {
		return true
	}
	if item.Category != nil && containsFold(a.cfg.PreferredCategories, *item.Category) {
		return true
	}
	if item.Brand != nil && containsFold(a.cfg.PreferredBrands, *item.Brand) {
		return true
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// ResolveWon settles a win: reservation becomes spend at the clearing
// price and the entry goes terminal.
func (a *Allocator) ResolveWon(ctx context.Context, entry *models.PortfolioEntry, clearing decimal.Decimal) error {
	if entry == nil || entry.Terminal() {
		return nil
	}
	if err := a.ledger.Spend(ctx, entry.ItemID, entry.MaxBidAmount, clearing); err != nil {
		return err
	}
	entry.Status = models.EntryWon
	entry.ClearingPrice = clearing
	return a.finish(ctx, entry)
}

// ResolveLost releases the full reservation.
func (a *Allocator) ResolveLost(ctx context.Context, entry *models.PortfolioEntry) error {
	return a.resolveReleased(ctx, entry, models.EntryLost)
}

// ResolveExpired releases the full reservation for entries withdrawn
// from tracking before their auction resolved.
func (a *Allocator) ResolveExpired(ctx context.Context, entry *models.PortfolioEntry) error {
	return a.resolveReleased(ctx, entry, models.EntryExpired)
}

func (a *Allocator) resolveReleased(ctx context.Context, entry *models.PortfolioEntry, status string) error {
	if entry == nil || entry.Terminal() {
		// Settling twice must not release budget twice.
		return nil
	}
	if err := a.ledger.Release(ctx, entry.ItemID, entry.MaxBidAmount); err != nil {
		return err
	}
	entry.Status = status
	return a.finish(ctx, entry)
}

func (a *Allocator) finish(ctx context.Context, entry *models.PortfolioEntry) error {
	now := a.clk.Now().UTC()
	entry.ResolvedAt = &now
	if err := a.repo.SaveEntry(ctx, entry); err != nil {
		return err
	}
	if a.logger != nil {
		a.logger.Info("entry resolved",
			zap.String("item_id", entry.ItemID),
			zap.String("status", entry.Status))
	}
	return nil
}

// Active loads the non-terminal entries the executor and monitor work
// from.
func (a *Allocator) Active(ctx context.Context) ([]models.PortfolioEntry, error) {
	if a == nil || a.repo == nil {
		return nil, nil
	}
	return a.repo.LoadActiveEntries(ctx)
}
