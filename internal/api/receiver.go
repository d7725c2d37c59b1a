package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/service"
	"github.com/punchamoorthee/payoutops/internal/signature"
	"github.com/punchamoorthee/payoutops/internal/webhook"
)

// WebhookHandler processes one signed notification body.
type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, sig string) (webhook.Result, error)
}

// ReceiverHandler serves the receiver's payout API and webhook endpoint.
type ReceiverHandler struct {
	payouts *service.PayoutService
	webhook WebhookHandler
	logger  *slog.Logger
}

func NewReceiverHandler(payouts *service.PayoutService, wh WebhookHandler, logger *slog.Logger) *ReceiverHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiverHandler{payouts: payouts, webhook: wh, logger: logger}
}

func (h *ReceiverHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.payouts.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ReceiverHandler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, r, h.logger, domain.BadInput("Unreadable request body", nil))
		return
	}

	res, err := h.webhook.Handle(r.Context(), body, r.Header.Get(signature.Header))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	if res.Outcome == webhook.OutcomeResendRequested {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"message":          "Webhook too old, requested resend",
			"resend_requested": res.ResendRequested,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Payout status updated successfully"})
}

func (h *ReceiverHandler) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	// Ids are allocated here; only the processor accepts a caller reference.
	req.PayoutID = 0

	p, created, err := h.payouts.CreatePayout(r.Context(), req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	if !created {
		respondWithJSON(w, http.StatusOK, p)
		return
	}
	w.Header().Set("Location", "/api/v1/payouts/"+strconv.FormatInt(p.ID, 10))
	respondWithJSON(w, http.StatusCreated, p)
}

func (h *ReceiverHandler) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, err := queryInt(q.Get("user_id"), 0)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), service.DefaultPageLimit)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	page, err := h.payouts.ListPayouts(r.Context(), userID, int(offset), int(limit))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *ReceiverHandler) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	p, err := h.payouts.GetPayout(r.Context(), id)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *ReceiverHandler) CurrenciesHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string][]string{"currencies": h.payouts.Currencies()})
}

func queryInt(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.BadInput("query parameters must be integers", map[string]any{"value": raw})
	}
	return v, nil
}
