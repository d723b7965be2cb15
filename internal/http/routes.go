package httpx

import (
	"context"
	"log/slog"
	"net/http"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Analyses   AnalysisService
	Retry      RetryService
	Webhooks   WebhookService
	Deliveries DeliveryService
	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
	// MaxBodyBytes caps request bodies; zero keeps the 1 MiB default.
	MaxBodyBytes int64
	Logger       *slog.Logger // optional
}

// NewRouter creates the JSON API handler. Everything except /healthz and /readyz requires
// the gateway identity headers.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Ready, logger))

	api := http.NewServeMux()
	registerAnalysisRoutes(api, &AnalysisHandlers{Svc: services.Analyses, Retry: services.Retry, Logger: logger})
	registerWebhookRoutes(api, &WebhookHandlers{Svc: services.Webhooks, Deliveries: services.Deliveries, Logger: logger})
	api.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Message: "route not found"})
	})
	mux.Handle("/api/", LimitBody(services.MaxBodyBytes)(RequireIdentity()(api)))

	return Recover(logger)(Logging(logger)(mux))
}

func registerAnalysisRoutes(mux *http.ServeMux, h *AnalysisHandlers) {
	mux.HandleFunc("POST /api/analyses", h.Submit)
	mux.HandleFunc("POST /api/analyses/bulk-retry", h.BulkRetry)
	mux.HandleFunc("GET /api/analyses/{id}", h.GetStatus)
	mux.HandleFunc("POST /api/analyses/{id}", h.Action)
	mux.HandleFunc("GET /api/analyses/{id}/position", h.GetPosition)
	mux.HandleFunc("GET /api/analyses/{id}/retry", h.GetRetry)
}

func registerWebhookRoutes(mux *http.ServeMux, h *WebhookHandlers) {
	mux.HandleFunc("POST /api/webhooks", h.Create)
	mux.HandleFunc("GET /api/webhooks", h.List)
	mux.HandleFunc("GET /api/webhooks/{id}", h.Get)
	mux.HandleFunc("PATCH /api/webhooks/{id}", h.Update)
	mux.HandleFunc("DELETE /api/webhooks/{id}", h.Delete)
	mux.HandleFunc("POST /api/webhooks/{id}/test", h.Test)
	mux.HandleFunc("GET /api/webhooks/{id}/deliveries", h.ListDeliveries)
	mux.HandleFunc("GET /api/webhook-deliveries/{id}", h.GetDelivery)
}
