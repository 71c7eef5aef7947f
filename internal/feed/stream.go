package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
)

// StreamConnector receives pushed observations over a websocket. It is
// not a polling Connector: the hub consumes its channel directly.
// FetchItem is unsupported; the HTTP feeds cover on-demand refreshes.
type StreamConnector struct {
	name   string
	url    string
	logger *zap.Logger
	out    chan models.ItemObservation
}

func NewStreamConnector(cfg config.StreamFeedConfig, logger *zap.Logger) *StreamConnector {
	return &StreamConnector{
		name:   cfg.Name,
		url:    cfg.URL,
		logger: logger,
		out:    make(chan models.ItemObservation, 128),
	}
}

func (s *StreamConnector) Name() string { return s.name }

func (s *StreamConnector) Observations() <-chan models.ItemObservation { return s.out }

// Run keeps the websocket alive, reconnecting with backoff, until the
// context is canceled.
func (s *StreamConnector) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := s.consume(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			if s.logger != nil {
				s.logger.Warn("stream disconnected",
					zap.String("feed", s.name),
					zap.Duration("retry_in", backoff),
					zap.Error(err))
			}
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *StreamConnector) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")
	if s.logger != nil {
		s.logger.Info("stream connected", zap.String("feed", s.name))
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var w wireObservation
		if err := json.Unmarshal(data, &w); err != nil {
			if s.logger != nil {
				s.logger.Warn("discarding malformed stream message",
					zap.String("feed", s.name), zap.Error(err))
			}
			continue
		}
		if w.ItemID == "" {
			continue
		}

		obs := w.toModel(s.name, time.Now().UTC())
		select {
		case s.out <- obs:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
