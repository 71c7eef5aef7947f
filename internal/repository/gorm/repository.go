package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- observations -----------------------------------------------------------

func (s *Store) InsertObservation(ctx context.Context, item *models.ItemObservation) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListObservationsByItem(ctx context.Context, itemID string, limit int) ([]models.ItemObservation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ItemObservation
	err := s.db.WithContext(ctx).
		Model(&models.ItemObservation{}).
		Where("item_id = ?", strings.TrimSpace(itemID)).
		Order("observed_at desc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil || cutoff.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("observed_at < ?", cutoff).
		Delete(&models.ItemObservation{})
	return res.RowsAffected, res.Error
}

// --- reconciled items -------------------------------------------------------

func (s *Store) UpsertReconciledItem(ctx context.Context, item *models.ReconciledItem) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ItemID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) GetReconciledItem(ctx context.Context, itemID string) (*models.ReconciledItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ReconciledItem
	err := s.db.WithContext(ctx).
		Where("item_id = ?", strings.TrimSpace(itemID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListReconciledItems(ctx context.Context, params repository.ListItemsParams) ([]models.ReconciledItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ReconciledItem{})
	if params.State != nil && strings.TrimSpace(*params.State) != "" {
		query = query.Where("state = ?", strings.TrimSpace(*params.State))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	var items []models.ReconciledItem
	err := query.
		Order("updated_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListClosedItems(ctx context.Context, limit int) ([]models.ReconciledItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ReconciledItem
	err := s.db.WithContext(ctx).
		Model(&models.ReconciledItem{}).
		Where("state = ?", models.ItemStateClosed).
		Where("final_price IS NOT NULL").
		Order("closed_at desc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- opportunities ----------------------------------------------------------

func (s *Store) UpsertOpportunity(ctx context.Context, item *models.Opportunity) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ItemID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pred_predicted_price",
			"pred_price_low",
			"pred_price_high",
			"pred_recommended_bid",
			"pred_confidence",
			"pred_win_probability",
			"pred_heuristic",
			"roi_pct",
			"risk_level",
			"score",
			"recommendation",
			"reasoning",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetOpportunityByItemID(ctx context.Context, itemID string) (*models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Opportunity
	err := s.db.WithContext(ctx).
		Where("item_id = ?", strings.TrimSpace(itemID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Opportunity{})
	if params.Recommendation != nil && strings.TrimSpace(*params.Recommendation) != "" {
		query = query.Where("recommendation = ?", strings.TrimSpace(*params.Recommendation))
	}
	if params.RiskLevel != nil && strings.TrimSpace(*params.RiskLevel) != "" {
		query = query.Where("risk_level = ?", strings.TrimSpace(*params.RiskLevel))
	}
	if params.MinScore != nil {
		query = query.Where("score >= ?", *params.MinScore)
	}
	var items []models.Opportunity
	err := query.
		Order("score desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- portfolio entries ------------------------------------------------------

func (s *Store) SaveEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	if s == nil || s.db == nil || entry == nil {
		return nil
	}
	if entry.ID == 0 {
		return s.db.WithContext(ctx).Create(entry).Error
	}
	return s.db.WithContext(ctx).Save(entry).Error
}

func (s *Store) GetEntryByItemID(ctx context.Context, itemID string) (*models.PortfolioEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var entry models.PortfolioEntry
	err := s.db.WithContext(ctx).
		Where("item_id = ?", strings.TrimSpace(itemID)).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) LoadActiveEntries(ctx context.Context) ([]models.PortfolioEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var entries []models.PortfolioEntry
	err := s.db.WithContext(ctx).
		Model(&models.PortfolioEntry{}).
		Where("status IN ?", []string{models.EntryActive, models.EntryBidding}).
		Order("admitted_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListEntries(ctx context.Context, params repository.ListEntriesParams) ([]models.PortfolioEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PortfolioEntry{})
	if len(params.Status) > 0 {
		query = query.Where("status IN ?", params.Status)
	}
	var entries []models.PortfolioEntry
	err := query.
		Order("updated_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// --- ledger -----------------------------------------------------------------

func (s *Store) AppendLedgerEvent(ctx context.Context, event *models.LedgerEvent) error {
	if s == nil || s.db == nil || event == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *Store) ListLedgerEvents(ctx context.Context, limit int) ([]models.LedgerEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var events []models.LedgerEvent
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Order("created_at desc").
		Limit(normalizeLimit(limit, 200)).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// --- bid attempts -----------------------------------------------------------

func (s *Store) InsertBidAttempt(ctx context.Context, attempt *models.BidAttempt) error {
	if s == nil || s.db == nil || attempt == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(attempt).Error
}

func (s *Store) ListBidAttempts(ctx context.Context, params repository.ListAttemptsParams) ([]models.BidAttempt, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.BidAttempt{})
	if params.ItemID != nil && strings.TrimSpace(*params.ItemID) != "" {
		query = query.Where("item_id = ?", strings.TrimSpace(*params.ItemID))
	}
	if params.Result != nil && strings.TrimSpace(*params.Result) != "" {
		query = query.Where("result = ?", strings.TrimSpace(*params.Result))
	}
	var attempts []models.BidAttempt
	err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// --- feed sources -----------------------------------------------------------

func (s *Store) UpsertFeedSource(ctx context.Context, source *models.FeedSource) error {
	if s == nil || s.db == nil || source == nil {
		return nil
	}
	if strings.TrimSpace(source.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind",
			"endpoint",
			"poll_interval",
			"health_status",
			"last_poll_at",
			"last_error",
			"updated_at",
		}),
	}).Create(source).Error
}

func (s *Store) ListFeedSources(ctx context.Context) ([]models.FeedSource, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var sources []models.FeedSource
	err := s.db.WithContext(ctx).
		Model(&models.FeedSource{}).
		Order("name asc").
		Find(&sources).Error
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
