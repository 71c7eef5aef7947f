package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

// Field weights for completeness. Critical fields gate any trading
// decision, important ones sharpen it, optional ones only refine.
var (
	criticalFields  = []string{"current_price", "close_time", "reference_price"}
	importantFields = []string{"starting_price", "bid_count", "bidder_count", "category", "condition"}
	optionalFields  = []string{"buyout_price", "brand", "location"}

	totalWeight = 3*len(criticalFields) + 2*len(importantFields) + 1*len(optionalFields)
)

// Reconciler merges per-source observations into one canonical record
// per item and walks it through UNSEEN → PARTIAL → COMPLETE → CLOSED.
// Merges for the same item are serialized on a per-item lock; different
// items merge in parallel.
type Reconciler struct {
	repo   repository.Repository
	cfg    config.ReconcileConfig
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	updates chan models.ReconciledItem
}

func New(repo repository.Repository, cfg config.ReconcileConfig, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
		updates: make(chan models.ReconciledItem, 256),
	}
}

// Updates is the stream of items whose canonical record changed. The
// pipeline consumes it; slow consumers drop notifications rather than
// block a merge.
func (r *Reconciler) Updates() <-chan models.ReconciledItem {
	return r.updates
}

func (r *Reconciler) itemLock(itemID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[itemID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[itemID] = l
	}
	return l
}

// Apply merges one observation. Reapplying the same observation is a
// no-op: every field carries provenance with the observation time, and
// equal-or-older data never wins.
func (r *Reconciler) Apply(ctx context.Context, obs models.ItemObservation) (*models.ReconciledItem, error) {
	if r == nil || r.repo == nil {
		return nil, nil
	}
	lock := r.itemLock(obs.ItemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := r.repo.GetReconciledItem(ctx, obs.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		item = &models.ReconciledItem{ItemID: obs.ItemID, State: models.ItemStateUnseen}
	}

	changed := merge(item, obs)
	if !changed {
		return item, nil
	}

	item.Completeness = Completeness(item)
	item.State = nextState(item, r.cfg)
	if item.State == models.ItemStateClosed && item.ClosedAt == nil {
		at := obs.ObservedAt
		item.ClosedAt = &at
	}

	if err := r.repo.UpsertReconciledItem(ctx, item); err != nil {
		return nil, err
	}

	select {
	case r.updates <- *item:
	default:
		if r.logger != nil {
			r.logger.Warn("update channel full, dropping notification", zap.String("item_id", obs.ItemID))
		}
	}
	return item, nil
}

// merge applies the field rule: newer non-nil overwrites, nil never
// overwrites non-nil. Returns whether anything changed.
func merge(item *models.ReconciledItem, obs models.ItemObservation) bool {
	prov := loadProvenance(item)
	changed := false

	newer := func(field string) bool {
		p, ok := prov[field]
		return !ok || obs.ObservedAt.After(p.ObservedAt)
	}
	touch := func(field string) {
		prov[field] = models.FieldProvenance{Source: obs.Source, ObservedAt: obs.ObservedAt}
		changed = true
	}

	mergeDec := func(field string, src *decimal.Decimal, dst **decimal.Decimal) {
		if src != nil && newer(field) && (*dst == nil || !(*dst).Equal(*src)) {
			v := *src
			*dst = &v
			touch(field)
		}
	}
	mergeInt := func(field string, src *int, dst **int) {
		if src != nil && newer(field) && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			touch(field)
		}
	}
	mergeStr := func(field string, src *string, dst **string) {
		if src != nil && newer(field) && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			touch(field)
		}
	}

	mergeDec("starting_price", obs.StartingPrice, &item.StartingPrice)
	mergeDec("current_price", obs.CurrentPrice, &item.CurrentPrice)
	mergeDec("buyout_price", obs.BuyoutPrice, &item.BuyoutPrice)
	mergeDec("reference_price", obs.ReferencePrice, &item.ReferencePrice)
	mergeInt("bidder_count", obs.BidderCount, &item.BidderCount)
	mergeInt("bid_count", obs.BidCount, &item.BidCount)
	mergeStr("category", obs.Category, &item.Category)
	mergeStr("brand", obs.Brand, &item.Brand)
	mergeStr("condition", obs.Condition, &item.Condition)
	mergeStr("location", obs.Location, &item.Location)

	if obs.CloseTime != nil && newer("close_time") && (item.CloseTime == nil || !item.CloseTime.Equal(*obs.CloseTime)) {
		v := *obs.CloseTime
		item.CloseTime = &v
		touch("close_time")
	}
	if obs.ConditionVerified != nil && newer("condition_verified") && (item.ConditionVerified == nil || *item.ConditionVerified != *obs.ConditionVerified) {
		v := *obs.ConditionVerified
		item.ConditionVerified = &v
		touch("condition_verified")
	}
	if obs.Closed {
		if item.State != models.ItemStateClosed {
			item.State = models.ItemStateClosed
			changed = true
		}
		if obs.FinalPrice != nil && newer("final_price") {
			v := *obs.FinalPrice
			item.FinalPrice = &v
			touch("final_price")
		}
		if obs.WinnerConfirmed != nil && newer("winner_confirmed") {
			v := *obs.WinnerConfirmed
			item.WinnerConfirmed = &v
			touch("winner_confirmed")
		}
	}

	if addSource(item, obs.Source) {
		changed = true
	}
	if changed {
		storeProvenance(item, prov)
	}
	return changed
}

// Completeness scores field coverage on a 0..100 scale with critical
// fields weighted 3x and important fields 2x.
func Completeness(item *models.ReconciledItem) float64 {
	have := presentFields(item)
	score := 0
	for _, f := range criticalFields {
		if have[f] {
			score += 3
		}
	}
	for _, f := range importantFields {
		if have[f] {
			score += 2
		}
	}
	for _, f := range optionalFields {
		if have[f] {
			score++
		}
	}
	return float64(score) / float64(totalWeight) * 100
}

func presentFields(item *models.ReconciledItem) map[string]bool {
	return map[string]bool{
		"current_price":   item.CurrentPrice != nil,
		"close_time":      item.CloseTime != nil,
		"reference_price": item.ReferencePrice != nil,
		"starting_price":  item.StartingPrice != nil,
		"bid_count":       item.BidCount != nil,
		"bidder_count":    item.BidderCount != nil,
		"category":        item.Category != nil,
		"condition":       item.Condition != nil,
		"buyout_price":    item.BuyoutPrice != nil,
		"brand":           item.Brand != nil,
		"location":        item.Location != nil,
	}
}

// nextState computes the lifecycle state. CLOSED is terminal; COMPLETE
// additionally requires corroboration from a minimum number of sources.
func nextState(item *models.ReconciledItem, cfg config.ReconcileConfig) string {
	if item.State == models.ItemStateClosed {
		return models.ItemStateClosed
	}
	if item.Completeness >= cfg.CompleteThreshold && sourceCount(item) >= cfg.MinSources {
		return models.ItemStateComplete
	}
	return models.ItemStatePartial
}

func loadProvenance(item *models.ReconciledItem) map[string]models.FieldProvenance {
	prov := make(map[string]models.FieldProvenance)
	if len(item.Provenance) > 0 {
		_ = json.Unmarshal(item.Provenance, &prov)
	}
	return prov
}

func storeProvenance(item *models.ReconciledItem, prov map[string]models.FieldProvenance) {
	raw, err := json.Marshal(prov)
	if err != nil {
		return
	}
	item.Provenance = datatypes.JSON(raw)
}

func sources(item *models.ReconciledItem) []string {
	var out []string
	if len(item.Sources) > 0 {
		_ = json.Unmarshal(item.Sources, &out)
	}
	return out
}

func sourceCount(item *models.ReconciledItem) int {
	return len(sources(item))
}

func addSource(item *models.ReconciledItem, source string) bool {
	if source == "" {
		return false
	}
	list := sources(item)
	for _, s := range list {
		if s == source {
			return false
		}
	}
	list = append(list, source)
	sort.Strings(list)
	raw, err := json.Marshal(list)
	if err != nil {
		return false
	}
	item.Sources = datatypes.JSON(raw)
	return true
}

// CloseSweep marks items whose close time passed but from which no
// terminal observation ever arrived. Run from cron; read side stays
// eventually consistent with the feeds.
func (r *Reconciler) CloseSweep(ctx context.Context, now time.Time) (int, error) {
	if r == nil || r.repo == nil {
		return 0, nil
	}
	items, err := r.repo.ListReconciledItems(ctx, repository.ListItemsParams{Limit: 1000})
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, item := range items {
		if item.State == models.ItemStateClosed || item.CloseTime == nil || item.CloseTime.After(now) {
			continue
		}
		lock := r.itemLock(item.ItemID)
		lock.Lock()
		fresh, err := r.repo.GetReconciledItem(ctx, item.ItemID)
		if err != nil || fresh == nil || fresh.State == models.ItemStateClosed {
			lock.Unlock()
			continue
		}
		fresh.State = models.ItemStateClosed
		at := now
		fresh.ClosedAt = &at
		if err := r.repo.UpsertReconciledItem(ctx, fresh); err != nil {
			lock.Unlock()
			return swept, err
		}
		select {
		case r.updates <- *fresh:
		default:
		}
		lock.Unlock()
		swept++
	}
	return swept, nil
}
