package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewReceiverRouter(h *ReceiverHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument("receiver"))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/payments", h.PaymentWebhookHandler).Methods(http.MethodPost)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/payouts", h.CreatePayoutHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/payouts", h.ListPayoutsHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/payouts/{id}", h.GetPayoutHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/currencies", h.CurrenciesHandler).Methods(http.MethodGet)
	return r
}

func NewProcessorRouter(h *ProcessorHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument("processor"))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/payouts", h.CreatePayoutHandler).Methods(http.MethodPost)
	r.HandleFunc("/payouts/{id}", h.GetPayoutHandler).Methods(http.MethodGet)
	r.HandleFunc("/resend", h.ResendHandler).Methods(http.MethodPost)
	return r
}
