package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/execute"
	"auctionbot/internal/models"
	"auctionbot/internal/portfolio"
	"auctionbot/internal/repository"
)

type stubRepo struct {
	repository.Repository

	mu      sync.Mutex
	items   map[string]models.ReconciledItem
	ops     map[string]models.Opportunity
	entries map[string]models.PortfolioEntry
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		items:   make(map[string]models.ReconciledItem),
		ops:     make(map[string]models.Opportunity),
		entries: make(map[string]models.PortfolioEntry),
	}
}

func (s *stubRepo) GetReconciledItem(_ context.Context, id string) (*models.ReconciledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		cp := item
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) GetOpportunityByItemID(_ context.Context, id string) (*models.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[id]; ok {
		cp := op
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertOpportunity(_ context.Context, op *models.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ItemID] = *op
	return nil
}

func (s *stubRepo) GetEntryByItemID(_ context.Context, id string) (*models.PortfolioEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveEntry(_ context.Context, e *models.PortfolioEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ItemID] = *e
	return nil
}

func (s *stubRepo) LoadActiveEntries(_ context.Context) ([]models.PortfolioEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PortfolioEntry
	for _, e := range s.entries {
		if !e.Terminal() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRepo) AppendLedgerEvent(_ context.Context, _ *models.LedgerEvent) error { return nil }

func (s *stubRepo) InsertBidAttempt(_ context.Context, _ *models.BidAttempt) error { return nil }

type acceptAllTransport struct {
	mu   sync.Mutex
	bids []decimal.Decimal
}

func (t *acceptAllTransport) Name() string { return "primary" }

func (t *acceptAllTransport) SubmitBid(_ context.Context, _ string, amount decimal.Decimal) (execute.BidOutcome, error) {
	t.mu.Lock()
	t.bids = append(t.bids, amount)
	t.mu.Unlock()
	return execute.BidOutcome{Accepted: true}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

type fixture struct {
	mon       *Monitor
	repo      *stubRepo
	ledger    *portfolio.Ledger
	transport *acceptAllTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newStubRepo()
	clk := clock.Real{}
	ledger := portfolio.NewLedger(config.BudgetConfig{Total: 100000, Daily: 100000}, repo, clk, nil)
	alloc := portfolio.NewAllocator(repo, ledger, config.StrategyConfig{
		MinROIPct: 15, MaxRiskLevel: "MEDIUM", OverrideROIPct: 40,
	}, clk, nil)
	transport := &acceptAllTransport{}
	exec := execute.New(repo, alloc, transport, nil, config.ExecutorConfig{
		BidIncrement:     10,
		TransportTimeout: 5 * time.Second,
	}, clk, nil)

	mon := New(Deps{
		Repo:      repo,
		Allocator: alloc,
		Executor:  exec,
		Clock:     clk,
	}, config.MonitorConfig{Interval: 30 * time.Second, EscalationFactor: 1.0}, config.ExecutorConfig{BidIncrement: 10})

	return &fixture{mon: mon, repo: repo, ledger: ledger, transport: transport}
}

// seed installs an item, opportunity and entry with a live reservation.
func (f *fixture) seed(t *testing.T, id string, lastBid string) {
	t.Helper()
	ctx := context.Background()
	item := models.ReconciledItem{
		ItemID:            id,
		State:             models.ItemStateComplete,
		CurrentPrice:      decPtr("50"),
		ReferencePrice:    decPtr("300"),
		ConditionVerified: boolPtr(true),
		BidCount:          intPtr(3),
		Category:          strP("electronics"),
	}
	op := models.Opportunity{
		ItemID:         id,
		ROIPct:         dec("60"),
		RiskLevel:      models.RiskLow,
		Score:          80,
		Recommendation: models.RecBuy,
		Prediction: models.Prediction{
			PredictedPrice: dec("180"),
			RecommendedBid: dec("165"),
			Confidence:     0.8,
			WinProbability: 0.6,
		},
	}
	f.repo.mu.Lock()
	f.repo.items[id] = item
	f.repo.ops[id] = op
	f.repo.mu.Unlock()

	alloc := f.mon.alloc
	entry, err := alloc.AddCandidate(ctx, item, op)
	if err != nil {
		t.Fatalf("seed admit: %v", err)
	}
	if lastBid != "" {
		entry.Status = models.EntryBidding
		entry.LastBidAmount = dec(lastBid)
		entry.LastSeenBidCount = 3
		entry.LastSeenPrice = dec("50")
		if err := f.repo.SaveEntry(ctx, entry); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
}

func strP(s string) *string { return &s }

func TestCounterBidWhenOutbid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "it-1", "60")

	// A competitor pushed the price past our standing bid.
	f.repo.mu.Lock()
	item := f.repo.items["it-1"]
	item.CurrentPrice = decPtr("70")
	item.BidCount = intPtr(5)
	f.repo.items["it-1"] = item
	f.repo.mu.Unlock()

	if err := f.mon.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(f.transport.bids) != 1 {
		t.Fatalf("expected one counter-bid, got %d", len(f.transport.bids))
	}
	// min(70+10, maxBid 165) = 80
	if !f.transport.bids[0].Equal(dec("80")) {
		t.Fatalf("counter-bid = %s, want 80", f.transport.bids[0])
	}
	entry, _ := f.repo.GetEntryByItemID(ctx, "it-1")
	if !entry.LastBidAmount.Equal(dec("80")) {
		t.Fatalf("entry last bid = %s, want 80", entry.LastBidAmount)
	}
	if entry.LastSeenBidCount != 5 {
		t.Fatalf("LastSeenBidCount = %d, want 5", entry.LastSeenBidCount)
	}
}

func TestCounterBidNeverExceedsReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "it-1", "160")

	// Price blows past what a capped counter could beat.
	f.repo.mu.Lock()
	item := f.repo.items["it-1"]
	item.CurrentPrice = decPtr("200")
	f.repo.items["it-1"] = item
	f.repo.mu.Unlock()

	if err := f.mon.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Cap is maxBid 165, not current+increment 210; 165 beats the last
	// bid 160 so it still fires, at the cap.
	if len(f.transport.bids) != 1 || !f.transport.bids[0].Equal(dec("165")) {
		t.Fatalf("bids = %v, want [165]", f.transport.bids)
	}
}

func TestNoCounterBidWithoutContest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "it-1", "60")

	if err := f.mon.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.transport.bids) != 0 {
		t.Fatalf("unexpected counter-bid without competitor movement: %v", f.transport.bids)
	}
}

func TestFinalizeWonAndLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "won", "100")
	f.seed(t, "lost", "60")

	confirmed := true
	f.repo.mu.Lock()
	w := f.repo.items["won"]
	w.State = models.ItemStateClosed
	w.FinalPrice = decPtr("90")
	w.WinnerConfirmed = &confirmed
	f.repo.items["won"] = w

	l := f.repo.items["lost"]
	l.State = models.ItemStateClosed
	l.FinalPrice = decPtr("250")
	f.repo.items["lost"] = l
	f.repo.mu.Unlock()

	if err := f.mon.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	won, _ := f.repo.GetEntryByItemID(ctx, "won")
	if won.Status != models.EntryWon || !won.ClearingPrice.Equal(dec("90")) {
		t.Fatalf("won entry: %+v", won)
	}
	lost, _ := f.repo.GetEntryByItemID(ctx, "lost")
	if lost.Status != models.EntryLost {
		t.Fatalf("lost entry: %+v", lost)
	}

	snap := f.ledger.Snapshot()
	if !snap.Reserved.IsZero() {
		t.Fatalf("reserved = %s after finalization, want 0", snap.Reserved)
	}
	if !snap.Spent.Equal(dec("90")) {
		t.Fatalf("spent = %s, want 90", snap.Spent)
	}
}

// An auction that closes before any bid went out is a missed deadline,
// and a missed deadline settles as a loss.
func TestClosedWithoutBidResolvesLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "it-1", "")

	f.repo.mu.Lock()
	item := f.repo.items["it-1"]
	item.State = models.ItemStateClosed
	item.FinalPrice = decPtr("120")
	f.repo.items["it-1"] = item
	f.repo.mu.Unlock()

	if err := f.mon.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	entry, _ := f.repo.GetEntryByItemID(ctx, "it-1")
	if entry.Status != models.EntryLost {
		t.Fatalf("status = %s, want LOST", entry.Status)
	}
	if !f.ledger.Snapshot().Reserved.IsZero() {
		t.Fatalf("reservation must be released on a missed deadline")
	}
}
