package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Repo      core.WebhookRepository // Required
	Evaluator JMESPathEvaluator      // Optional: defaults to go-jmespath
	Logger    *slog.Logger           // Optional
}

// WebhookService manages an organization's webhook registrations.
type WebhookService struct {
	repo   core.WebhookRepository
	jems   JMESPathEvaluator
	logger *slog.Logger
}

// NewWebhookService constructs a new WebhookService.
func NewWebhookService(opts WebhookServiceOptions) *WebhookService {
	if opts.Repo == nil {
		panic("WebhookRepository is required")
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		repo:   opts.Repo,
		jems:   jems,
		logger: logger.With("component", "webhook_service"),
	}
}

// Create registers a webhook for orgID.
func (s *WebhookService) Create(ctx context.Context, orgID string, req model.CreateWebhookRequest) (*model.Webhook, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid webhook")
	}
	if err := s.validateFilter(req.Filter); err != nil {
		return nil, err
	}

	hook, err := s.repo.Create(ctx, orgID, req)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	s.logger.InfoContext(ctx, "webhook created", "webhook_id", hook.ID, "organization_id", orgID, "events", hook.Events)
	return hook, nil
}

// Get returns a webhook owned by orgID.
func (s *WebhookService) Get(ctx context.Context, orgID, id string) (*model.Webhook, error) {
	if !validID(id) {
		return nil, model.ErrWebhookNotFound
	}
	hook, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return hook, nil
}

// List returns a page of webhooks owned by orgID.
func (s *WebhookService) List(ctx context.Context, orgID string, limit, offset int) ([]*model.Webhook, error) {
	limit, offset = normalizePage(limit, offset)
	hooks, err := s.repo.List(ctx, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return hooks, nil
}

// Update patches a webhook owned by orgID.
func (s *WebhookService) Update(
	ctx context.Context,
	orgID, id string,
	req model.UpdateWebhookRequest,
) (*model.Webhook, error) {
	if !validID(id) {
		return nil, model.ErrWebhookNotFound
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid webhook")
	}
	if err := s.validateFilter(req.Filter); err != nil {
		return nil, err
	}

	hook, err := s.repo.Update(ctx, orgID, id, req)
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return hook, nil
}

// Delete removes a webhook owned by orgID. Its deliveries are deleted with it.
func (s *WebhookService) Delete(ctx context.Context, orgID, id string) error {
	if !validID(id) {
		return model.ErrWebhookNotFound
	}
	deleted, err := s.repo.Delete(ctx, orgID, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if !deleted {
		return model.ErrWebhookNotFound
	}
	s.logger.InfoContext(ctx, "webhook deleted", "webhook_id", id, "organization_id", orgID)
	return nil
}

func (s *WebhookService) validateFilter(filter *string) error {
	if filter == nil {
		return nil
	}
	if err := s.jems.Validate(*filter); err != nil {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: "filter is not a valid JMESPath expression",
			Cause:   err,
			Field:   "filter",
		}
	}
	return nil
}

// matchFilter reports whether payload satisfies the webhook's filter. An empty
// filter always matches; otherwise the result must be JMESPath-truthy.
func matchFilter(jems JMESPathEvaluator, hook *model.Webhook, payload []byte) (bool, error) {
	if hook.Filter == nil || strings.TrimSpace(*hook.Filter) == "" {
		return true, nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, fmt.Errorf("decode payload: %w", err)
	}
	out, err := jems.Evaluate(*hook.Filter, doc)
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}
	return truthy(out), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// validID reports whether id can name a row. Anything else cannot exist, and
// passing it to a uuid column would surface as a database error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// errIsNotFound reports whether err is any of the lookup sentinels.
func errIsNotFound(err error) bool {
	return errors.Is(err, model.ErrAnalysisNotFound) ||
		errors.Is(err, model.ErrWebhookNotFound) ||
		errors.Is(err, model.ErrDeliveryNotFound) ||
		apperrors.IsNotFound(err)
}
