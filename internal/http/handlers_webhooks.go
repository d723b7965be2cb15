package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/mmk-analysis-api/internal/domain/model"
)

// WebhookService is the registry surface used by the webhook handlers.
type WebhookService interface {
	Create(ctx context.Context, orgID string, req model.CreateWebhookRequest) (*model.Webhook, error)
	Get(ctx context.Context, orgID, id string) (*model.Webhook, error)
	List(ctx context.Context, orgID string, limit, offset int) ([]*model.Webhook, error)
	Update(ctx context.Context, orgID, id string, req model.UpdateWebhookRequest) (*model.Webhook, error)
	Delete(ctx context.Context, orgID, id string) error
}

// DeliveryService is the dispatcher surface used by the webhook handlers.
type DeliveryService interface {
	TestWebhook(ctx context.Context, orgID, webhookID string) (*model.WebhookDelivery, error)
	ListDeliveries(ctx context.Context, orgID, webhookID string, limit, offset int) ([]*model.WebhookDelivery, error)
	GetDelivery(ctx context.Context, orgID, id string) (*model.WebhookDelivery, error)
}

// WebhookHandlers serves /api/webhooks and /api/webhook-deliveries.
type WebhookHandlers struct {
	Svc        WebhookService
	Deliveries DeliveryService
	Logger     *slog.Logger
}

type pageResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newPage[T any](items []T, limit, offset int) pageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// webhookViews never exposes secrets, only whether one is set.
func webhookViews(hooks []*model.Webhook) []model.WebhookView {
	out := make([]model.WebhookView, 0, len(hooks))
	for _, hook := range hooks {
		out = append(out, model.NewWebhookView(*hook))
	}
	return out
}

func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	var req model.CreateWebhookRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	hook, err := h.Svc.Create(r.Context(), id.OrganizationID, req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, model.NewWebhookView(*hook))
}

func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	limit, offset := ParseLimitOffset(r, defaultPageLimit, maxPageLimit)
	hooks, err := h.Svc.List(r.Context(), id.OrganizationID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, newPage(webhookViews(hooks), limit, offset))
}

func (h *WebhookHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	hook, err := h.Svc.Get(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, model.NewWebhookView(*hook))
}

func (h *WebhookHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	var req model.UpdateWebhookRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	hook, err := h.Svc.Update(r.Context(), id.OrganizationID, r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, model.NewWebhookView(*hook))
}

func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if err := h.Svc.Delete(r.Context(), id.OrganizationID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test sends a synthetic event to the webhook and returns the delivery record.
func (h *WebhookHandlers) Test(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	dl, err := h.Deliveries.TestWebhook(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, dl)
}

func (h *WebhookHandlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	limit, offset := ParseLimitOffset(r, defaultPageLimit, maxPageLimit)
	list, err := h.Deliveries.ListDeliveries(r.Context(), id.OrganizationID, r.PathValue("id"), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, newPage(list, limit, offset))
}

func (h *WebhookHandlers) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	dl, err := h.Deliveries.GetDelivery(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, dl)
}
