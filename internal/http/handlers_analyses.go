// Package httpx provides the JSON API for the analysis queue and webhook delivery service.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/service"
)

// AnalysisService is the queue surface used by the analysis handlers.
type AnalysisService interface {
	Submit(ctx context.Context, in service.SubmitAnalysisInput) (*model.SubmitAnalysisResult, error)
	GetStatus(ctx context.Context, orgID, jobID string) (*model.AnalysisStatusView, error)
	GetQueuePosition(ctx context.Context, orgID, jobID string) (*model.QueuePosition, error)
	Cancel(ctx context.Context, orgID, jobID string) (*model.AnalysisStatusView, error)
}

// RetryService is the retry surface used by the analysis handlers.
type RetryService interface {
	GetRetryMetadataByID(ctx context.Context, orgID, jobID string) (*model.RetryMetadata, error)
	BulkRetryAnalyses(ctx context.Context, ids []string, actingUserID, orgID string) (*model.BulkRetryResult, error)
}

// AnalysisHandlers serves /api/analyses.
type AnalysisHandlers struct {
	Svc    AnalysisService
	Retry  RetryService
	Logger *slog.Logger
}

const actionCancel = "cancel"

type analysisActionRequest struct {
	Action string `json:"action"`
}

// Submit enqueues a new analysis and answers 202.
func (h *AnalysisHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	var req model.SubmitAnalysisRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Submit(r.Context(), service.SubmitAnalysisInput{
		Request:        req,
		UserID:         id.UserID,
		OrganizationID: id.OrganizationID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, res)
}

// GetStatus returns the caller-facing status view.
func (h *AnalysisHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	view, err := h.Svc.GetStatus(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetPosition returns the job's queue position.
func (h *AnalysisHandlers) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	pos, err := h.Svc.GetQueuePosition(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// Action applies {action} to a job. Only "cancel" is supported.
func (h *AnalysisHandlers) Action(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	var req analysisActionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case actionCancel:
		view, err := h.Svc.Cancel(r.Context(), id.OrganizationID, r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, h.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	default:
		writeServiceError(w, r, h.Logger,
			apperrors.ValidationField("action", "unsupported action "+`"`+req.Action+`"`))
	}
}

// GetRetry returns retry metadata for a job.
func (h *AnalysisHandlers) GetRetry(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	meta, err := h.Retry.GetRetryMetadataByID(r.Context(), id.OrganizationID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, meta)
}

// BulkRetry requeues a set of failed jobs. An explicit organizationId must
// match the caller's organization.
func (h *AnalysisHandlers) BulkRetry(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	var req model.BulkRetryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	orgID := id.OrganizationID
	if req.OrganizationID != nil {
		if requested := strings.TrimSpace(*req.OrganizationID); requested != "" && requested != orgID {
			writeServiceError(w, r, h.Logger, apperrors.Forbidden("cannot retry analyses of another organization"))
			return
		}
	}

	res, err := h.Retry.BulkRetryAnalyses(r.Context(), req.AnalysisIDs, id.UserID, orgID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
