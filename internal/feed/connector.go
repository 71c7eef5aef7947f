package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"auctionbot/internal/config"
	"auctionbot/internal/models"
)

// Connector is one upstream auction feed. Fetch scans the venue's
// current listings; FetchItem refreshes a single item on demand.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) ([]models.ItemObservation, error)
	FetchItem(ctx context.Context, itemID string) ([]models.ItemObservation, error)
	Health(ctx context.Context) error
}

// wireObservation is the JSON shape feeds deliver. All attribute
// fields are optional; absent means the feed does not know.
type wireObservation struct {
	ItemID            string           `json:"item_id"`
	StartingPrice     *decimal.Decimal `json:"starting_price,omitempty"`
	CurrentPrice      *decimal.Decimal `json:"current_price,omitempty"`
	BuyoutPrice       *decimal.Decimal `json:"buyout_price,omitempty"`
	ReferencePrice    *decimal.Decimal `json:"reference_price,omitempty"`
	BidderCount       *int             `json:"bidder_count,omitempty"`
	BidCount          *int             `json:"bid_count,omitempty"`
	CloseTime         *time.Time       `json:"close_time,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Brand             *string          `json:"brand,omitempty"`
	Condition         *string          `json:"condition,omitempty"`
	ConditionVerified *bool            `json:"condition_verified,omitempty"`
	Location          *string          `json:"location,omitempty"`
	Closed            bool             `json:"closed,omitempty"`
	FinalPrice        *decimal.Decimal `json:"final_price,omitempty"`
	WinnerConfirmed   *bool            `json:"winner_confirmed,omitempty"`
	ObservedAt        time.Time        `json:"observed_at"`
}

func (w wireObservation) toModel(source string, fallback time.Time) models.ItemObservation {
	at := w.ObservedAt
	if at.IsZero() {
		at = fallback
	}
	return models.ItemObservation{
		ItemID:            w.ItemID,
		Source:            source,
		StartingPrice:     w.StartingPrice,
		CurrentPrice:      w.CurrentPrice,
		BuyoutPrice:       w.BuyoutPrice,
		ReferencePrice:    w.ReferencePrice,
		BidderCount:       w.BidderCount,
		BidCount:          w.BidCount,
		CloseTime:         w.CloseTime,
		Category:          w.Category,
		Brand:             w.Brand,
		Condition:         w.Condition,
		ConditionVerified: w.ConditionVerified,
		Location:          w.Location,
		Closed:            w.Closed,
		FinalPrice:        w.FinalPrice,
		WinnerConfirmed:   w.WinnerConfirmed,
		ObservedAt:        at,
	}
}

// HTTPConnector polls a venue's JSON listing endpoint.
type HTTPConnector struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPConnector(cfg config.HTTPFeedConfig) *HTTPConnector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPConnector{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPConnector) Name() string { return c.name }

func (c *HTTPConnector) Fetch(ctx context.Context) ([]models.ItemObservation, error) {
	return c.get(ctx, c.endpoint)
}

func (c *HTTPConnector) FetchItem(ctx context.Context, itemID string) ([]models.ItemObservation, error) {
	return c.get(ctx, c.endpoint+"/"+itemID)
}

func (c *HTTPConnector) get(ctx context.Context, url string) ([]models.ItemObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", c.name, resp.StatusCode)
	}

	var wire []wireObservation
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("feed %s: decoding listings: %w", c.name, err)
	}

	now := time.Now().UTC()
	out := make([]models.ItemObservation, 0, len(wire))
	for _, w := range wire {
		if w.ItemID == "" {
			continue
		}
		out = append(out, w.toModel(c.name, now))
	}
	return out, nil
}

func (c *HTTPConnector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("feed %s: status %d", c.name, resp.StatusCode)
	}
	return nil
}
