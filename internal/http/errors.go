package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/service"
)

// writeServiceError maps a service error onto a status code and {error, code} body.
// Internal failures are logged and never echoed to the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrAnalysisNotFound),
		errors.Is(err, model.ErrWebhookNotFound),
		errors.Is(err, model.ErrDeliveryNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: string(apperrors.ErrCodeNotFound), Message: rootMessage(err)})
		return
	case errors.Is(err, model.ErrNotInQueue),
		errors.Is(err, model.ErrJobNotRequeueable),
		errors.Is(err, service.ErrInvalidTransition):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: string(apperrors.ErrCodeConflict), Message: err.Error()})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if status, ok := appErrorStatus[appErr.Code]; ok {
			WriteError(w, ErrorParams{
				Code:    status,
				ErrCode: string(appErr.Code),
				Message: appErr.Error(),
				Field:   apperrors.GetField(err),
			})
			return
		}
	}

	if apperrors.IsCanceled(err) || errors.Is(err, context.Canceled) {
		logger.DebugContext(r.Context(), "request canceled", "method", r.Method, "path", r.URL.Path)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: string(apperrors.ErrCodeCanceled), Message: "request canceled"})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, ErrorParams{Code: http.StatusGatewayTimeout, ErrCode: string(apperrors.ErrCodeTimeout), Message: "request timed out"})
		return
	}

	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: string(apperrors.ErrCodeInternal), Message: "internal server error"})
}

var appErrorStatus = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:   http.StatusBadRequest,
	apperrors.ErrCodeUnauthorized: http.StatusUnauthorized,
	apperrors.ErrCodeForbidden:    http.StatusForbidden,
	apperrors.ErrCodeNotFound:     http.StatusNotFound,
	apperrors.ErrCodeConflict:     http.StatusConflict,
	apperrors.ErrCodeForeignKey:   http.StatusConflict,
}

// rootMessage strips wrapping context such as "get webhook: ".
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
