package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

// stubRepo keeps reconciled items in memory; only the methods the
// reconciler touches are real.
type stubRepo struct {
	repository.Repository

	mu    sync.Mutex
	items map[string]models.ReconciledItem
}

func newStubRepo() *stubRepo {
	return &stubRepo{items: make(map[string]models.ReconciledItem)}
}

func (s *stubRepo) GetReconciledItem(_ context.Context, itemID string) (*models.ReconciledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	cp := item
	return &cp, nil
}

func (s *stubRepo) UpsertReconciledItem(_ context.Context, item *models.ReconciledItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ItemID] = *item
	return nil
}

func (s *stubRepo) ListReconciledItems(_ context.Context, _ repository.ListItemsParams) ([]models.ReconciledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReconciledItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out, nil
}

func testReconciler() (*Reconciler, *stubRepo) {
	repo := newStubRepo()
	cfg := config.ReconcileConfig{CompleteThreshold: 70, MinSources: 2}
	return New(repo, cfg, nil), repo
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func richObs(itemID, source string, at time.Time) models.ItemObservation {
	close := at.Add(24 * time.Hour)
	return models.ItemObservation{
		ItemID:         itemID,
		Source:         source,
		ObservedAt:     at,
		CurrentPrice:   decPtr("45"),
		ReferencePrice: decPtr("120"),
		StartingPrice:  decPtr("10"),
		CloseTime:      &close,
		BidCount:       intPtr(3),
		BidderCount:    intPtr(2),
		Category:       strPtr("electronics"),
		Condition:      strPtr("used"),
	}
}

func TestMergeNewerWinsNilNeverOverwrites(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	item, err := r.Apply(ctx, models.ItemObservation{
		ItemID: "it-1", Source: "alpha", ObservedAt: t0,
		CurrentPrice: decPtr("40"), Category: strPtr("tools"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if item.State != models.ItemStatePartial {
		t.Fatalf("state = %s, want PARTIAL", item.State)
	}

	// Newer observation without a category must not erase it.
	item, err = r.Apply(ctx, models.ItemObservation{
		ItemID: "it-1", Source: "beta", ObservedAt: t0.Add(time.Minute),
		CurrentPrice: decPtr("42"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if item.Category == nil || *item.Category != "tools" {
		t.Fatalf("nil overwrote category: %+v", item.Category)
	}
	if !item.CurrentPrice.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("newer price did not win: %s", item.CurrentPrice)
	}

	// Stale observation must not roll the price back.
	item, _ = r.Apply(ctx, models.ItemObservation{
		ItemID: "it-1", Source: "gamma", ObservedAt: t0.Add(-time.Hour),
		CurrentPrice: decPtr("5"),
	})
	if !item.CurrentPrice.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("stale observation overwrote price: %s", item.CurrentPrice)
	}
}

func TestCompletenessMonotonicAndCompleteNeedsTwoSources(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	item, err := r.Apply(ctx, richObs("it-2", "alpha", t0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	first := item.Completeness
	if first < 70 {
		t.Fatalf("rich observation should clear the threshold, got %v", first)
	}
	if item.State != models.ItemStatePartial {
		t.Fatalf("single source must stay PARTIAL, got %s", item.State)
	}

	item, _ = r.Apply(ctx, richObs("it-2", "beta", t0.Add(time.Minute)))
	if item.Completeness < first {
		t.Fatalf("completeness regressed: %v -> %v", first, item.Completeness)
	}
	if item.State != models.ItemStateComplete {
		t.Fatalf("two corroborating sources should be COMPLETE, got %s", item.State)
	}
}

// Scenario: one feed only carries prices, another only carries timing.
// The merged record holds the union and credits both sources.
func TestDisjointSourcesUnion(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	close := t0.Add(6 * time.Hour)

	if _, err := r.Apply(ctx, models.ItemObservation{
		ItemID: "it-6", Source: "alpha", ObservedAt: t0,
		CurrentPrice:   decPtr("45"),
		ReferencePrice: decPtr("120"),
		StartingPrice:  decPtr("10"),
	}); err != nil {
		t.Fatalf("apply price feed: %v", err)
	}

	item, err := r.Apply(ctx, models.ItemObservation{
		ItemID: "it-6", Source: "beta", ObservedAt: t0.Add(time.Minute),
		CloseTime: &close,
		BidCount:  intPtr(3),
	})
	if err != nil {
		t.Fatalf("apply timing feed: %v", err)
	}

	if item.CurrentPrice == nil || !item.CurrentPrice.Equal(decimal.RequireFromString("45")) {
		t.Fatalf("price fields lost in merge: %+v", item)
	}
	if item.ReferencePrice == nil || item.StartingPrice == nil {
		t.Fatalf("price fields lost in merge: %+v", item)
	}
	if item.CloseTime == nil || !item.CloseTime.Equal(close) {
		t.Fatalf("timing fields lost in merge: %+v", item)
	}
	if item.BidCount == nil || *item.BidCount != 3 {
		t.Fatalf("bid count lost in merge: %+v", item)
	}

	got := sources(item)
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("sources = %v, want [alpha beta]", got)
	}
}

func TestIdempotentMerge(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()
	obs := richObs("it-3", "alpha", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	a, err := r.Apply(ctx, obs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	b, err := r.Apply(ctx, obs)
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if a.Completeness != b.Completeness || a.State != b.State {
		t.Fatalf("reapplying the same observation changed the record: %+v vs %+v", a, b)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	confirmed := true
	item, err := r.Apply(ctx, models.ItemObservation{
		ItemID: "it-4", Source: "alpha", ObservedAt: t0,
		Closed: true, FinalPrice: decPtr("77"), WinnerConfirmed: &confirmed,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if item.State != models.ItemStateClosed {
		t.Fatalf("state = %s, want CLOSED", item.State)
	}
	if item.ClosedAt == nil {
		t.Fatalf("ClosedAt not stamped")
	}

	// Later non-terminal data keeps the record CLOSED.
	item, _ = r.Apply(ctx, models.ItemObservation{
		ItemID: "it-4", Source: "beta", ObservedAt: t0.Add(time.Hour),
		CurrentPrice: decPtr("80"),
	})
	if item.State != models.ItemStateClosed {
		t.Fatalf("CLOSED must be terminal, got %s", item.State)
	}
	if item.FinalPrice == nil || !item.FinalPrice.Equal(decimal.RequireFromString("77")) {
		t.Fatalf("final price lost on post-close merge")
	}
}

func TestCloseSweepExpiresPastDeadline(t *testing.T) {
	r, repo := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := r.Apply(ctx, richObs("it-5", "alpha", t0)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	swept, err := r.CloseSweep(ctx, t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	item, _ := repo.GetReconciledItem(ctx, "it-5")
	if item.State != models.ItemStateClosed {
		t.Fatalf("sweep did not close expired item: %s", item.State)
	}
}

func TestConcurrentMergesDistinctItems(t *testing.T) {
	r, repo := testReconciler()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 20; j++ {
				_, _ = r.Apply(ctx, richObs(id, "alpha", t0.Add(time.Duration(j)*time.Second)))
			}
		}(i)
	}
	wg.Wait()

	items, _ := repo.ListReconciledItems(ctx, repository.ListItemsParams{})
	if len(items) != 8 {
		t.Fatalf("expected 8 items, got %d", len(items))
	}
}
