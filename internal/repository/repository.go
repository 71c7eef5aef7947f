package repository

import (
	"context"
	"time"

	"auctionbot/internal/models"
)

type ListItemsParams struct {
	State    *string
	Category *string
	Limit    int
	Offset   int
}

type ListOpportunitiesParams struct {
	Recommendation *string
	RiskLevel      *string
	MinScore       *float64
	Limit          int
	Offset         int
}

type ListEntriesParams struct {
	Status []string
	Limit  int
	Offset int
}

type ListAttemptsParams struct {
	ItemID *string
	Result *string
	Limit  int
	Offset int
}

// Repository is the persistence surface the engine depends on. The core
// treats storage as a durable record store; the gorm implementation is
// the only engine-specific code.
type Repository interface {
	// Raw observations.
	InsertObservation(ctx context.Context, item *models.ItemObservation) error
	ListObservationsByItem(ctx context.Context, itemID string, limit int) ([]models.ItemObservation, error)
	DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Reconciled items.
	UpsertReconciledItem(ctx context.Context, item *models.ReconciledItem) error
	GetReconciledItem(ctx context.Context, itemID string) (*models.ReconciledItem, error)
	ListReconciledItems(ctx context.Context, params ListItemsParams) ([]models.ReconciledItem, error)
	ListClosedItems(ctx context.Context, limit int) ([]models.ReconciledItem, error)

	// Opportunities.
	UpsertOpportunity(ctx context.Context, item *models.Opportunity) error
	GetOpportunityByItemID(ctx context.Context, itemID string) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, params ListOpportunitiesParams) ([]models.Opportunity, error)

	// Portfolio entries.
	SaveEntry(ctx context.Context, entry *models.PortfolioEntry) error
	GetEntryByItemID(ctx context.Context, itemID string) (*models.PortfolioEntry, error)
	LoadActiveEntries(ctx context.Context) ([]models.PortfolioEntry, error)
	ListEntries(ctx context.Context, params ListEntriesParams) ([]models.PortfolioEntry, error)

	// Budget ledger audit trail.
	AppendLedgerEvent(ctx context.Context, event *models.LedgerEvent) error
	ListLedgerEvents(ctx context.Context, limit int) ([]models.LedgerEvent, error)

	// Bid attempts.
	InsertBidAttempt(ctx context.Context, attempt *models.BidAttempt) error
	ListBidAttempts(ctx context.Context, params ListAttemptsParams) ([]models.BidAttempt, error)

	// Feed connector health.
	UpsertFeedSource(ctx context.Context, source *models.FeedSource) error
	ListFeedSources(ctx context.Context) ([]models.FeedSource, error)
}
