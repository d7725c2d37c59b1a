package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/domain"
)

const maxBodyBytes = 1 << 20

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"service", "method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method", "endpoint"})
)

type ctxKey struct{}

// CorrelationID returns the id assigned to the request by the router middleware.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags every request with a correlation id and records request
// metrics under the route template.
func instrument(service string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(delivery.CorrelationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(delivery.CorrelationHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tmpl
				}
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			httpRequestDuration.WithLabelValues(service, r.Method, endpoint).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(service, r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.BadInput("Malformed JSON body", map[string]any{"reason": err.Error()})
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.BadInput("id must be a positive integer", map[string]any{"id": raw})
	}
	return id, nil
}

func respondWithError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	rich, ok := domain.AsError(err)
	if !ok || rich.Code == 0 {
		logger.Error("unhandled request error",
			"correlation_id", CorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Internal Server Error",
			"code":  domain.ErrorInternal,
		})
		return
	}

	if rich.Code >= http.StatusInternalServerError {
		logger.Error("request failed",
			"correlation_id", CorrelationID(r.Context()),
			"path", r.URL.Path,
			"code", rich.TextCode,
			"error", err,
		)
	}
	respondWithJSON(w, rich.Code, map[string]string{
		"error": rich.Message,
		"code":  rich.TextCode,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
