package execute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDeadlineMissed = errors.New("execute: transport timeout exceeds time to close")

// BidOutcome is what a transport reports back for a submitted bid.
type BidOutcome struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// Transport submits a bid to an auction venue. Implementations must
// honor ctx cancellation; the executor wraps every call in a timeout.
type Transport interface {
	Name() string
	SubmitBid(ctx context.Context, itemID string, amount decimal.Decimal) (BidOutcome, error)
}

// HTTPTransport posts bids as JSON to a venue endpoint. Used as both
// the primary and the fallback transport, pointed at different
// endpoints.
type HTTPTransport struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPTransport(name, endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Name() string { return t.name }

type bidRequest struct {
	ItemID string          `json:"item_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (t *HTTPTransport) SubmitBid(ctx context.Context, itemID string, amount decimal.Decimal) (BidOutcome, error) {
	body, err := json.Marshal(bidRequest{ItemID: itemID, Amount: amount})
	if err != nil {
		return BidOutcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return BidOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return BidOutcome{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return BidOutcome{}, fmt.Errorf("venue %s returned %d", t.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		// The venue understood us and said no. Not a transport failure.
		var out BidOutcome
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("rejected with status %d", resp.StatusCode)
		}
		return out, nil
	}

	var out BidOutcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return BidOutcome{}, fmt.Errorf("venue %s: decoding response: %w", t.name, err)
	}
	return out, nil
}
