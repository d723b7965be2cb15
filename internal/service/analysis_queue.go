package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/observability/metrics"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
)

// ErrInvalidTransition is returned when a job cannot move to the requested state.
var ErrInvalidTransition = errors.New("invalid status transition")

const (
	cancelledMessage   = "analysis cancelled by user"
	maxBranchLength    = 255
	maxCancelAttempts  = 3
	eventPublishBudget = 10 * time.Second
)

// AnalysisQueueConfig holds the tunables of the analysis queue.
type AnalysisQueueConfig struct {
	EstimatedCredits     int
	EstimatedJobDuration time.Duration
	IdempotencyTTL       time.Duration
	// JobTimeout bounds validator plus analyzer time for one job.
	JobTimeout time.Duration
}

// AnalysisQueueServiceOptions groups dependencies for AnalysisQueueService.
type AnalysisQueueServiceOptions struct {
	Repo   core.AnalysisJobRepository // Required
	Config AnalysisQueueConfig

	// Processing collaborators; required only by ProcessNext.
	Validator core.RepositoryValidator
	Analyzer  core.Analyzer

	Events      core.EventPublisher   // Optional: lifecycle webhooks
	Idempotency core.IdempotencyStore // Optional: Idempotency-Key dedupe
	Notifier    queue.Notifier        // Optional: wake-ups for Subscribe

	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// AnalysisQueueService accepts analysis jobs, reports their position and
// state, and drives them through processing.
type AnalysisQueueService struct {
	repo        core.AnalysisJobRepository
	cfg         AnalysisQueueConfig
	validator   core.RepositoryValidator
	analyzer    core.Analyzer
	events      core.EventPublisher
	idempotency core.IdempotencyStore
	notifier    queue.Notifier
	logger      *slog.Logger
	metrics     statsd.Sink
	now         func() time.Time
}

// NewAnalysisQueueService constructs a new AnalysisQueueService.
func NewAnalysisQueueService(opts AnalysisQueueServiceOptions) (*AnalysisQueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AnalysisJobRepository is required")
	}

	cfg := opts.Config
	if cfg.EstimatedJobDuration <= 0 {
		cfg.EstimatedJobDuration = 2 * time.Minute
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &AnalysisQueueService{
		repo:        opts.Repo,
		cfg:         cfg,
		validator:   opts.Validator,
		analyzer:    opts.Analyzer,
		events:      opts.Events,
		idempotency: opts.Idempotency,
		notifier:    opts.Notifier,
		logger:      logger.With("component", "analysis_queue"),
		metrics:     opts.Metrics,
		now:         now,
	}, nil
}

// MustNewAnalysisQueueService constructs an AnalysisQueueService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewAnalysisQueueService(opts AnalysisQueueServiceOptions) *AnalysisQueueService {
	svc, err := NewAnalysisQueueService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// SubmitAnalysisInput is a submission together with the caller's identity.
type SubmitAnalysisInput struct {
	Request        model.SubmitAnalysisRequest
	UserID         string
	OrganizationID string
	IdempotencyKey string
}

// Submit validates the repository URL and enqueues a pending job. With an
// idempotency store configured a repeated key returns the original job.
func (s *AnalysisQueueService) Submit(ctx context.Context, in SubmitAnalysisInput) (*model.SubmitAnalysisResult, error) {
	if in.UserID == "" || in.OrganizationID == "" {
		return nil, apperrors.Unauthorized("caller identity is required")
	}

	ref, err := model.ParseRepositoryURL(in.Request.RepositoryURL)
	if err != nil {
		return nil, apperrors.ValidationField("repositoryUrl", err.Error())
	}
	branch, err := normalizeBranch(in.Request.Branch)
	if err != nil {
		return nil, err
	}

	var scopedKey string
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.idempotency != nil {
		scopedKey = in.OrganizationID + ":" + key
		existing, claimed, claimErr := s.idempotency.Claim(ctx, scopedKey, s.cfg.IdempotencyTTL)
		switch {
		case claimErr != nil:
			s.logger.WarnContext(ctx, "idempotency store unavailable; submitting without dedupe", "error", claimErr)
			scopedKey = ""
		case !claimed:
			return s.replaySubmission(ctx, existing)
		}
	}

	job, err := s.repo.Create(ctx, model.CreateAnalysisJobParams{
		OwnerID:        in.UserID,
		OrganizationID: in.OrganizationID,
		RepositoryURL:  ref.URL,
		Branch:         branch,
	})
	if err != nil {
		s.releaseIdempotencyKey(ctx, scopedKey)
		return nil, fmt.Errorf("create analysis job: %w", err)
	}
	if scopedKey != "" {
		if completeErr := s.idempotency.Complete(ctx, scopedKey, job.ID, s.cfg.IdempotencyTTL); completeErr != nil {
			s.logger.WarnContext(ctx, "record idempotency key", "job_id", job.ID, "error", completeErr)
		}
	}

	s.logger.InfoContext(ctx, "analysis submitted",
		"job_id", job.ID, "organization_id", job.OrganizationID, "repository", ref.FullPath())
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "submitted", Result: metrics.ResultSuccess})

	return &model.SubmitAnalysisResult{
		JobID:            job.ID,
		Status:           job.Status,
		EstimatedCredits: s.cfg.EstimatedCredits,
	}, nil
}

func (s *AnalysisQueueService) replaySubmission(ctx context.Context, jobID string) (*model.SubmitAnalysisResult, error) {
	if jobID == "" {
		return nil, apperrors.Conflict("a request with this Idempotency-Key is still being processed")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load idempotent submission: %w", err)
	}
	return &model.SubmitAnalysisResult{
		JobID:            job.ID,
		Status:           job.Status,
		EstimatedCredits: s.cfg.EstimatedCredits,
	}, nil
}

func (s *AnalysisQueueService) releaseIdempotencyKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "release idempotency key", "error", err)
	}
}

// GetStatus returns the caller-facing view of a job owned by orgID.
func (s *AnalysisQueueService) GetStatus(ctx context.Context, orgID, jobID string) (*model.AnalysisStatusView, error) {
	job, err := s.getOwned(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}

	view := s.statusView(job)
	if !job.Status.IsTerminal() {
		pos, _, posErr := s.repo.QueuePosition(ctx, job.ID)
		switch {
		case posErr == nil:
			eta := s.estimateWait(pos)
			view.QueuePosition = &pos
			view.EstimatedTimeRemainingSeconds = &eta
		case errors.Is(posErr, model.ErrNotInQueue):
			// Finished between the two reads; report without a position.
		default:
			return nil, fmt.Errorf("queue position: %w", posErr)
		}
	}
	return view, nil
}

// GetQueuePosition reports where a non-terminal job sits. Terminal jobs yield model.ErrNotInQueue.
func (s *AnalysisQueueService) GetQueuePosition(ctx context.Context, orgID, jobID string) (*model.QueuePosition, error) {
	job, err := s.getOwned(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, model.ErrNotInQueue
	}

	pos, total, err := s.repo.QueuePosition(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("queue position: %w", err)
	}
	return &model.QueuePosition{
		Position:             pos,
		TotalInQueue:         total,
		EstimatedWaitSeconds: s.estimateWait(pos),
	}, nil
}

// Cancel fails a pending or processing job with the CANCELLED kind. Any other
// state yields ErrInvalidTransition. A worker still running the job will have
// its late result discarded by the guarded writes in ProcessNext.
func (s *AnalysisQueueService) Cancel(ctx context.Context, orgID, jobID string) (*model.AnalysisStatusView, error) {
	job, err := s.getOwned(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}

	failure := model.JobFailure{
		Message:   cancelledMessage,
		Code:      string(apperrors.KindCancelled),
		Retryable: apperrors.KindCancelled.Retryable(),
	}

	for range maxCancelAttempts {
		if job.Status != model.AnalysisStatusPending && job.Status != model.AnalysisStatusProcessing {
			return nil, fmt.Errorf("%w: cannot cancel analysis in status %s", ErrInvalidTransition, job.Status)
		}

		ok, failErr := s.repo.Fail(ctx, job.ID, job.Status, failure)
		if failErr != nil {
			return nil, fmt.Errorf("cancel analysis: %w", failErr)
		}
		if ok {
			applyFailure(job, failure, s.now())
			s.logger.InfoContext(ctx, "analysis cancelled", "job_id", job.ID, "organization_id", orgID)
			metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "cancelled", Result: metrics.ResultSuccess})
			s.publish(ctx, model.AnalysisEventFor(job.Status, true), job)
			return s.statusView(job), nil
		}

		// Lost the race (e.g. pending became processing); reload and retry.
		if job, err = s.repo.GetByID(ctx, job.ID); err != nil {
			return nil, fmt.Errorf("reload analysis: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: analysis changed concurrently", ErrInvalidTransition)
}

// List returns jobs matching opts. Used by operator tooling.
func (s *AnalysisQueueService) List(ctx context.Context, opts model.AnalysisJobListOptions) ([]*model.AnalysisJob, error) {
	opts.Limit, opts.Offset = normalizePage(opts.Limit, opts.Offset)
	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status for orgID, or for every organization when orgID is empty.
func (s *AnalysisQueueService) Stats(ctx context.Context, orgID string) (*model.AnalysisJobStats, error) {
	stats, err := s.repo.Stats(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("analysis job stats: %w", err)
	}
	return stats, nil
}

// Subscribe returns a channel that receives a value when new jobs may be
// available. Without a notifier the channel is nil and callers rely on polling.
func (s *AnalysisQueueService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		return func() {}, nil
	}
	return s.notifier.Subscribe(queue.ChannelAnalysisJobs)
}

// ProcessNext reserves the oldest pending job and runs it to a terminal state.
// It reports false when the queue was empty. Failures of the job itself are
// recorded on the job and never returned.
func (s *AnalysisQueueService) ProcessNext(ctx context.Context) (bool, error) {
	if s.validator == nil || s.analyzer == nil {
		return false, errors.New("validator and analyzer are required to process jobs")
	}

	job, err := s.repo.ReserveNext(ctx)
	if errors.Is(err, model.ErrNoJobsAvailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reserve next analysis: %w", err)
	}

	s.process(ctx, job)
	return true, nil
}

func (s *AnalysisQueueService) process(ctx context.Context, job *model.AnalysisJob) {
	start := s.now()
	logger := s.logger.With("job_id", job.ID, "organization_id", job.OrganizationID)
	logger.InfoContext(ctx, "analysis started", "repository_url", job.RepositoryURL)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "started", Result: metrics.ResultSuccess})
	s.publish(ctx, model.AnalysisEventFor(job.Status, false), job)

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	result, err := s.run(jobCtx, job)
	if err != nil {
		err = s.tagInterruption(ctx, jobCtx, err)
		s.recordFailure(ctx, job, err, start)
		return
	}

	// Writes below must land even if shutdown began after the analysis returned.
	writeCtx := context.WithoutCancel(ctx)
	ok, err := s.repo.Complete(writeCtx, job.ID, result)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "complete analysis", "error", err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: "completed", Result: metrics.ResultError, Duration: s.now().Sub(start), Err: err,
		})
	case !ok:
		logger.WarnContext(ctx, "analysis finished after it was cancelled; result discarded")
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "completed", Result: metrics.ResultNoop})
	default:
		now := s.now()
		job.Status = model.AnalysisStatusCompleted
		job.Result = result
		job.CompletedAt = &now
		logger.InfoContext(ctx, "analysis completed", "duration", now.Sub(start))
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: "completed", Result: metrics.ResultSuccess, Duration: now.Sub(start),
		})
		s.publish(writeCtx, model.AnalysisEventFor(job.Status, false), job)
	}
}

// run validates the repository, records its metadata and calls the analyzer.
func (s *AnalysisQueueService) run(ctx context.Context, job *model.AnalysisJob) (json.RawMessage, error) {
	ref, err := model.ParseRepositoryURL(job.RepositoryURL)
	if err != nil {
		return nil, apperrors.Permanent(apperrors.KindInvalidRepositoryURL, err, "invalid repository url")
	}

	meta, err := s.validator.Validate(ctx, ref, job.Branch)
	if err != nil {
		return nil, err
	}

	branch := meta.DefaultBranch
	if job.Branch != nil {
		branch = *job.Branch
	}
	var commit *string
	if meta.CommitSHA != "" {
		commit = &meta.CommitSHA
	}
	ok, err := s.repo.SetRepositoryMetadata(ctx, job.ID, &branch, commit)
	if err != nil {
		return nil, fmt.Errorf("record repository metadata: %w", err)
	}
	if !ok {
		return nil, errJobSuperseded
	}
	job.Branch = &branch
	job.CommitSHA = commit

	return s.analyzer.Analyze(ctx, core.AnalyzeRequest{
		JobID:         job.ID,
		RepositoryURL: ref.URL,
		Branch:        branch,
		CommitSHA:     meta.CommitSHA,
	})
}

// errJobSuperseded means the job left processing (cancelled or reaped) while we held it.
var errJobSuperseded = errors.New("analysis is no longer processing")

// tagInterruption turns untagged deadline and shutdown errors into kinds the retry service understands.
func (s *AnalysisQueueService) tagInterruption(parent, jobCtx context.Context, err error) error {
	if _, tagged := apperrors.AsProcessingError(err); tagged || errors.Is(err, errJobSuperseded) {
		return err
	}
	switch {
	case parent.Err() != nil:
		return apperrors.Transient(apperrors.KindWorkerLost, err, "worker shut down during analysis")
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return apperrors.Transient(apperrors.KindProcessingTimeout, err, "analysis exceeded %s", s.cfg.JobTimeout)
	default:
		return err
	}
}

func (s *AnalysisQueueService) recordFailure(ctx context.Context, job *model.AnalysisJob, cause error, start time.Time) {
	logger := s.logger.With("job_id", job.ID, "organization_id", job.OrganizationID)
	if errors.Is(cause, errJobSuperseded) {
		logger.WarnContext(ctx, "analysis left processing while running; outcome discarded")
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "failed", Result: metrics.ResultNoop})
		return
	}

	failure := failureFromError(cause)
	writeCtx := context.WithoutCancel(ctx)
	ok, err := s.repo.Fail(writeCtx, job.ID, model.AnalysisStatusProcessing, failure)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "fail analysis", "error", err, "original_error", cause)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "failed", Result: metrics.ResultError, Err: err})
	case !ok:
		logger.WarnContext(ctx, "analysis failed after it was cancelled; failure discarded", "error", cause)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "failed", Result: metrics.ResultNoop})
	default:
		now := s.now()
		applyFailure(job, failure, now)
		logger.WarnContext(ctx, "analysis failed",
			"error", cause, "error_code", failure.Code, "retryable", failure.Retryable)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: "failed", Result: metrics.ResultError, Duration: now.Sub(start), Err: cause,
		})
		s.publish(writeCtx, model.AnalysisEventFor(job.Status, false), job)
	}
}

// publish hands a lifecycle event to the dispatcher. Failures never affect the job.
func (s *AnalysisQueueService) publish(ctx context.Context, event model.WebhookEvent, job *model.AnalysisJob) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishBudget)
	defer cancel()

	payload := model.NewAnalysisPayload(event, *job, s.now())
	if _, err := s.events.TriggerEvent(ctx, job.OrganizationID, payload); err != nil {
		s.logger.ErrorContext(ctx, "publish analysis event", "job_id", job.ID, "event", event, "error", err)
	}
}

func (s *AnalysisQueueService) getOwned(ctx context.Context, orgID, jobID string) (*model.AnalysisJob, error) {
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
	return job, nil
}

func (s *AnalysisQueueService) statusView(job *model.AnalysisJob) *model.AnalysisStatusView {
	view := &model.AnalysisStatusView{
		ID:            job.ID,
		Status:        job.Status,
		Progress:      job.Status.Progress(),
		RepositoryURL: job.RepositoryURL,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	switch job.Status {
	case model.AnalysisStatusCompleted:
		view.Result = job.Result
	case model.AnalysisStatusFailed:
		retryable := job.Retryable
		view.Error = job.Error
		view.ErrorCode = job.ErrorCode
		view.Retryable = &retryable
	case model.AnalysisStatusPending, model.AnalysisStatusProcessing:
	}
	return view
}

func (s *AnalysisQueueService) estimateWait(position int) int64 {
	return int64(position) * int64(s.cfg.EstimatedJobDuration/time.Second)
}

func applyFailure(job *model.AnalysisJob, failure model.JobFailure, now time.Time) {
	msg, code := failure.Message, failure.Code
	job.Status = model.AnalysisStatusFailed
	job.Error = &msg
	job.ErrorCode = &code
	job.Retryable = failure.Retryable
	job.Result = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
}

func normalizeBranch(branch *string) (*string, error) {
	if branch == nil {
		return nil, nil
	}
	b := strings.TrimSpace(*branch)
	if b == "" {
		return nil, nil
	}
	if len(b) > maxBranchLength || strings.ContainsAny(b, " \t\n~^:?*[\\") {
		return nil, apperrors.ValidationField("branch", "branch is not a valid git ref name")
	}
	return &b, nil
}
