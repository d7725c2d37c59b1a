package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest payout accepted by either service.
var MaxAmount = decimal.NewFromInt(1_000_000)

// Payout is a single outbound money movement.
type Payout struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// MarshalJSON renders the amount with exactly two fraction digits.
func (p Payout) MarshalJSON() ([]byte, error) {
	type alias Payout
	return json.Marshal(struct {
		alias
		Amount string `json:"amount"`
	}{
		alias:  alias(p),
		Amount: p.Amount.StringFixed(2),
	})
}

// CreatePayoutRequest is the body accepted by both payout creation endpoints.
// PayoutID is only set when the caller already owns a reference id for the payout.
type CreatePayoutRequest struct {
	PayoutID       int64           `json:"payout_id,omitempty"`
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Validate checks the request shape against the configured currency set.
func (r *CreatePayoutRequest) Validate(currencies Currencies) error {
	r.Currency = strings.TrimSpace(r.Currency)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	if r.UserID <= 0 {
		return BadInput("user_id must be a positive integer", map[string]any{"user_id": r.UserID})
	}
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if !currencies.Contains(r.Currency) {
		return BadInput("invalid currency: "+r.Currency, map[string]any{"currency": r.Currency})
	}
	if r.IdempotencyKey == "" {
		return BadInput("idempotency_key is required", nil)
	}
	if r.PayoutID < 0 {
		return BadInput("payout_id must be positive when set", map[string]any{"payout_id": r.PayoutID})
	}
	return nil
}

// SamePayload reports whether a replayed request carries the payload stored
// under its idempotency key.
func (r CreatePayoutRequest) SamePayload(p Payout) bool {
	return r.UserID == p.UserID && r.Amount.Equal(p.Amount) && r.Currency == p.Currency
}

// ValidateAmount enforces 0 < amount <= MaxAmount with at most two fraction digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return BadInput("amount must be a positive number", map[string]any{"amount": amount.String()})
	}
	if amount.GreaterThan(MaxAmount) {
		return BadInput("amount must be <= 1,000,000", map[string]any{"amount": amount.String()})
	}
	if !amount.Equal(amount.Round(2)) {
		return BadInput("amount must have at most two fraction digits", map[string]any{"amount": amount.String()})
	}
	return nil
}

// Notification describes a status change of a payout. It is only meaningful
// together with a signature over its canonical form.
type Notification struct {
	PayoutID  int64  `json:"payout_id"`
	NewStatus string `json:"new_status"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

// Fields returns the signed representation of the notification.
func (n Notification) Fields() map[string]any {
	return map[string]any{
		"payout_id":  n.PayoutID,
		"new_status": n.NewStatus,
		"request_id": n.RequestID,
		"timestamp":  n.Timestamp,
	}
}

// ResendRequest asks the processor to deliver a payout notification again.
type ResendRequest struct {
	PayoutID  int64  `json:"payout_id"`
	RequestID string `json:"request_id"`
}

// Pagination is the page metadata returned by payout listings.
type Pagination struct {
	Total         int  `json:"total"`
	CurrentOffset int  `json:"current_offset"`
	HasMore       bool `json:"has_more"`
}

// PayoutPage is one page of a user's payouts, newest first.
type PayoutPage struct {
	Payouts    []Payout   `json:"payouts"`
	Pagination Pagination `json:"pagination"`
}
