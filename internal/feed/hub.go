package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

// Sink receives reconciled-ready observations. The reconciler
// implements it.
type Sink interface {
	Apply(ctx context.Context, obs models.ItemObservation) (*models.ReconciledItem, error)
}

// pollSpec pairs a connector with its poll interval.
type pollSpec struct {
	connector Connector
	interval  time.Duration
}

// Hub owns the feeds: it polls the HTTP connectors, drains the stream
// connectors, drops duplicate observations inside the dedup window,
// persists every surviving observation, and hands it to the sink.
type Hub struct {
	repo   repository.Repository
	sink   Sink
	clk    clock.Clock
	logger *zap.Logger

	polls   []pollSpec
	streams []*StreamConnector

	dedupWindow time.Duration
	mu          sync.Mutex
	seen        map[string]time.Time
}

func NewHub(repo repository.Repository, sink Sink, cfg config.FeedsConfig, clk clock.Clock, logger *zap.Logger) *Hub {
	h := &Hub{
		repo:        repo,
		sink:        sink,
		clk:         clock.Or(clk),
		logger:      logger,
		dedupWindow: cfg.DedupWindow,
		seen:        make(map[string]time.Time),
	}
	for _, fc := range cfg.HTTP {
		interval := fc.PollInterval
		if interval <= 0 {
			interval = time.Minute
		}
		h.polls = append(h.polls, pollSpec{connector: NewHTTPConnector(fc), interval: interval})
	}
	for _, sc := range cfg.Stream {
		h.streams = append(h.streams, NewStreamConnector(sc, logger))
	}
	return h
}

// AddConnector registers an extra polling connector. Tests and custom
// wiring use it.
func (h *Hub) AddConnector(c Connector, interval time.Duration) {
	h.polls = append(h.polls, pollSpec{connector: c, interval: interval})
}

// Run starts every poll and stream loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, p := range h.polls {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.pollLoop(ctx, p)
		}()
	}
	for _, s := range h.streams {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(ctx)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.drainStream(ctx, s)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (h *Hub) pollLoop(ctx context.Context, p pollSpec) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// One eager poll so startup does not wait a full interval.
	h.pollOnce(ctx, p.connector)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollOnce(ctx, p.connector)
		}
	}
}

func (h *Hub) pollOnce(ctx context.Context, c Connector) {
	observations, err := c.Fetch(ctx)
	h.recordHealth(ctx, c.Name(), "http", err)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("feed poll failed", zap.String("feed", c.Name()), zap.Error(err))
		}
		return
	}
	for _, obs := range observations {
		h.Ingest(ctx, obs)
	}
}

func (h *Hub) drainStream(ctx context.Context, s *StreamConnector) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-s.Observations():
			h.Ingest(ctx, obs)
			h.recordHealth(ctx, s.Name(), "stream", nil)
		}
	}
}

// Ingest runs one observation through dedup, persistence and the sink.
func (h *Hub) Ingest(ctx context.Context, obs models.ItemObservation) {
	if obs.ItemID == "" {
		return
	}
	if h.duplicate(obs) {
		return
	}

	if h.repo != nil {
		if err := h.repo.InsertObservation(ctx, &obs); err != nil && h.logger != nil {
			h.logger.Warn("persisting observation failed",
				zap.String("feed", obs.Source),
				zap.String("item_id", obs.ItemID),
				zap.Error(err))
		}
	}
	if h.sink != nil {
		if _, err := h.sink.Apply(ctx, obs); err != nil && h.logger != nil {
			h.logger.Warn("reconciling observation failed",
				zap.String("item_id", obs.ItemID),
				zap.Error(err))
		}
	}
}

// duplicate fingerprints the observation's payload and drops repeats
// seen inside the window. The fingerprint ignores the observation
// time, so a feed re-sending unchanged data is suppressed.
func (h *Hub) duplicate(obs models.ItemObservation) bool {
	if h.dedupWindow <= 0 {
		return false
	}
	key := fingerprint(obs)
	now := h.clk.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.seen[key]; ok && now.Sub(last) < h.dedupWindow {
		return true
	}
	h.seen[key] = now

	// Drop expired fingerprints so the map stays bounded.
	if len(h.seen) > 4096 {
		for k, at := range h.seen {
			if now.Sub(at) >= h.dedupWindow {
				delete(h.seen, k)
			}
		}
	}
	return false
}

func fingerprint(obs models.ItemObservation) string {
	obs.ID = 0
	obs.ObservedAt = time.Time{}
	obs.CreatedAt = time.Time{}
	raw, err := json.Marshal(obs)
	if err != nil {
		return obs.Source + "|" + obs.ItemID
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

// FetchItem refreshes one item across every polling connector. The
// monitor uses it before deciding on a counter-bid.
func (h *Hub) FetchItem(ctx context.Context, itemID string) ([]models.ItemObservation, error) {
	var out []models.ItemObservation
	var lastErr error
	for _, p := range h.polls {
		observations, err := p.connector.FetchItem(ctx, itemID)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, observations...)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (h *Hub) recordHealth(ctx context.Context, name, kind string, pollErr error) {
	if h.repo == nil {
		return
	}
	now := h.clk.Now().UTC()
	src := &models.FeedSource{
		Name:         name,
		Kind:         kind,
		HealthStatus: "healthy",
		LastPollAt:   &now,
	}
	if pollErr != nil {
		src.HealthStatus = "unhealthy"
		msg := pollErr.Error()
		src.LastError = &msg
	}
	if err := h.repo.UpsertFeedSource(ctx, src); err != nil && h.logger != nil {
		h.logger.Warn("updating feed health failed", zap.String("feed", name), zap.Error(err))
	}
}
