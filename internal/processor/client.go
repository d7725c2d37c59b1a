// Package processor is the receiver's HTTP client for the payment processor.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/domain"
)

const maxResponseBytes int64 = 1 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	BaseURL string
	HTTP    HTTPDoer
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CreatePayout submits a payout. Replays of the same idempotency key are
// answered with the processor's stored copy.
func (c *Client) CreatePayout(ctx context.Context, req domain.CreatePayoutRequest, correlationID string) (domain.Payout, error) {
	var out domain.Payout
	status, err := c.post(ctx, "/payouts", req, correlationID, &out)
	if err != nil {
		return domain.Payout{}, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return domain.Payout{}, domain.Upstream(nil, fmt.Sprintf("processor rejected payout with status %d", status),
			map[string]any{"status_code": status, "idempotency_key": req.IdempotencyKey})
	}
	return out, nil
}

// RequestResend asks the processor to deliver the notification for payoutID again.
func (c *Client) RequestResend(ctx context.Context, payoutID int64, correlationID string) error {
	body := domain.ResendRequest{PayoutID: payoutID, RequestID: correlationID}
	status, err := c.post(ctx, "/resend", body, correlationID, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return domain.Upstream(nil, fmt.Sprintf("processor refused resend with status %d", status),
			map[string]any{"status_code": status, "payout_id": payoutID})
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in any, correlationID string, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, domain.Internal(err, "encode processor request", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, domain.Internal(err, "build processor request", map[string]any{"path": path})
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set(delivery.CorrelationHeader, correlationID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, domain.Upstream(err, "processor unreachable", map[string]any{"path": path})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, domain.Upstream(err, "read processor response", map[string]any{"path": path})
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, domain.Upstream(err, "decode processor response", map[string]any{"path": path})
		}
	}
	return resp.StatusCode, nil
}
