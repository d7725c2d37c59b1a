package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/simulator"
)

// ProcessorHandler exposes the payout simulator over HTTP.
type ProcessorHandler struct {
	sim    *simulator.Simulator
	logger *slog.Logger
}

func NewProcessorHandler(sim *simulator.Simulator, logger *slog.Logger) *ProcessorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessorHandler{sim: sim, logger: logger}
}

func (h *ProcessorHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ProcessorHandler) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	rec, created, err := h.sim.CreatePayout(r.Context(), req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	if !created {
		respondWithJSON(w, http.StatusOK, rec.Payout)
		return
	}
	w.Header().Set("Location", "/payouts/"+strconv.FormatInt(rec.ID, 10))
	respondWithJSON(w, http.StatusCreated, rec.Payout)
}

func (h *ProcessorHandler) ResendHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	if req.PayoutID <= 0 {
		respondWithError(w, r, h.logger, domain.BadInput("payout_id must be a positive integer", map[string]any{"payout_id": req.PayoutID}))
		return
	}

	correlationID := req.RequestID
	if correlationID == "" {
		correlationID = CorrelationID(r.Context())
	}
	if err := h.sim.Resend(r.Context(), req.PayoutID, correlationID); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Resend scheduled",
		"payout_id": req.PayoutID,
	})
}

func (h *ProcessorHandler) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	rec, ok := h.sim.Payout(id)
	if !ok {
		respondWithError(w, r, h.logger, domain.NotFound("Payout not found", map[string]any{"payout_id": id}))
		return
	}
	respondWithJSON(w, http.StatusOK, rec.Payout)
}
