package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/observability/metrics"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
)

const internalRetryReason = "internal error"

// RetryPolicy bounds manual retries of failed analyses.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryServiceOptions groups dependencies for RetryService.
type RetryServiceOptions struct {
	Repo    core.AnalysisJobRepository // Required
	Config  RetryPolicy
	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// RetryService classifies analysis failures and requeues retryable ones.
type RetryService struct {
	repo    core.AnalysisJobRepository
	policy  RetryPolicy
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewRetryService constructs a new RetryService.
func NewRetryService(opts RetryServiceOptions) (*RetryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AnalysisJobRepository is required")
	}

	policy := opts.Config
	// Zero disables manual retry.
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Minute
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = max(time.Hour, policy.BaseDelay)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &RetryService{
		repo:    opts.Repo,
		policy:  policy,
		logger:  logger.With("component", "retry_service"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// MustNewRetryService constructs a RetryService and panics on error.
func MustNewRetryService(opts RetryServiceOptions) *RetryService {
	svc, err := NewRetryService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// Classify interprets err. Tagged processing errors keep the retryability
// chosen where they were raised; anything else is an unknown, permanent failure.
func Classify(err error) model.Classification {
	if pe, ok := apperrors.AsProcessingError(err); ok {
		kind := pe.Kind
		if !kind.Valid() {
			kind = apperrors.KindUnknown
		}
		return model.Classification{
			Code:        string(kind),
			Retryable:   pe.Retryable,
			UserMessage: kind.UserMessage(),
		}
	}
	return ClassifyKind(apperrors.KindUnknown)
}

// ClassifyKind returns the default classification for a kind.
func ClassifyKind(kind apperrors.ProcessingKind) model.Classification {
	return model.Classification{
		Code:        string(kind),
		Retryable:   kind.Retryable(),
		UserMessage: kind.UserMessage(),
	}
}

// failureFromError converts a processing error into the failure stored on the job.
func failureFromError(err error) model.JobFailure {
	c := Classify(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return model.JobFailure{Message: msg, Code: c.Code, Retryable: c.Retryable}
}

// GetRetryMetadata describes whether and when job may be retried.
func (s *RetryService) GetRetryMetadata(job *model.AnalysisJob) *model.RetryMetadata {
	meta := &model.RetryMetadata{
		LastError:  job.Error,
		ErrorCode:  job.ErrorCode,
		RetryCount: job.RetryCount,
		MaxRetries: s.policy.MaxRetries,
		Status:     job.Status,
	}
	if job.Status != model.AnalysisStatusFailed {
		return meta
	}

	if job.ErrorCode != nil {
		meta.UserMessage = apperrors.ParseProcessingKind(*job.ErrorCode).UserMessage()
	}
	meta.IsRetryable = job.Retryable && job.RetryCount < s.policy.MaxRetries
	if meta.IsRetryable {
		next := job.UpdatedAt.Add(s.delay(job.RetryCount))
		meta.NextRetryAt = &next
	}
	return meta
}

// GetRetryMetadataByID loads a job owned by orgID and describes its retry state.
func (s *RetryService) GetRetryMetadataByID(ctx context.Context, orgID, jobID string) (*model.RetryMetadata, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, model.ErrAnalysisNotFound
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if job.OrganizationID != orgID {
		return nil, apperrors.Forbidden("analysis belongs to another organization")
	}
	return s.GetRetryMetadata(job), nil
}

// delay is min(base·2^n, max).
func (s *RetryService) delay(retryCount int) time.Duration {
	d := s.policy.BaseDelay
	for range retryCount {
		d *= 2
		if d >= s.policy.MaxDelay {
			return s.policy.MaxDelay
		}
	}
	return d
}

// BulkRetryAnalyses requeues each retryable failed analysis in ids. Per-id
// problems, storage failures included, are reported in the result; only a
// malformed request is an error.
func (s *RetryService) BulkRetryAnalyses(
	ctx context.Context,
	ids []string,
	actingUserID, orgID string,
) (*model.BulkRetryResult, error) {
	if actingUserID == "" || orgID == "" {
		return nil, apperrors.Unauthorized("caller identity is required")
	}
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil, apperrors.ValidationField("analysisIds", "at least one analysis id is required")
	}
	if len(unique) > model.MaxBulkRetryIDs {
		return nil, apperrors.ValidationField("analysisIds",
			fmt.Sprintf("at most %d analysis ids may be retried at once", model.MaxBulkRetryIDs))
	}

	res := &model.BulkRetryResult{Successful: []string{}, Failed: []model.BulkRetryFailure{}}
	for _, id := range unique {
		reason, err := s.retryOne(ctx, id, orgID)
		if err != nil {
			s.logger.ErrorContext(ctx, "bulk retry item failed",
				"analysis_id", id,
				"organization_id", orgID,
				"error", err,
			)
			reason = internalRetryReason
		}
		if reason != "" {
			res.Failed = append(res.Failed, model.BulkRetryFailure{ID: id, Error: reason})
			continue
		}
		res.Successful = append(res.Successful, id)
	}

	s.logger.InfoContext(ctx, "bulk retry processed",
		"user_id", actingUserID,
		"organization_id", orgID,
		"requested", len(unique),
		"successful", len(res.Successful),
		"failed", len(res.Failed),
	)
	return res, nil
}

// retryOne returns a non-empty reason when id was not requeued. Only
// unexpected storage errors are returned as err.
func (s *RetryService) retryOne(ctx context.Context, id, orgID string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "invalid analysis id", nil
	}

	job, err := s.repo.GetByID(ctx, id)
	if errIsNotFound(err) {
		return "analysis not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("get analysis %s: %w", id, err)
	}

	switch {
	case job.OrganizationID != orgID:
		return "analysis belongs to another organization", nil
	case job.Status != model.AnalysisStatusFailed:
		return fmt.Sprintf("analysis is not in failed state (status: %s)", job.Status), nil
	case !job.Retryable:
		code := string(apperrors.KindUnknown)
		if job.ErrorCode != nil {
			code = *job.ErrorCode
		}
		return "error is not retryable: " + code, nil
	case job.RetryCount >= s.policy.MaxRetries:
		return "retry limit reached", nil
	}

	if _, err := s.repo.Requeue(ctx, id); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotRequeueable):
			return "analysis is no longer in failed state", nil
		case errIsNotFound(err):
			return "analysis not found", nil
		default:
			return "", fmt.Errorf("requeue analysis %s: %w", id, err)
		}
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "requeued", Result: metrics.ResultSuccess})
	return "", nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
