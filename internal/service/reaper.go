package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	obserrors "github.com/target/mmk-analysis-api/internal/observability/errors"
	"github.com/target/mmk-analysis-api/internal/observability/metrics"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
)

const workerLostMessage = "analysis worker stopped responding"

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.RetentionRepository // Required: retention repository
	Config  config.ReaperConfig      // Required: reaper configuration
	Events  core.EventPublisher      // Optional: announces jobs failed as WORKER_LOST
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time
}

// ReaperService applies the retention policy.
//
// This service manages:
// - Failing processing jobs whose worker is presumed lost.
// - Deleting old completed and failed jobs.
// - Deleting old successful and failed webhook deliveries.
type ReaperService struct {
	repo    core.RetentionRepository
	config  config.ReaperConfig
	events  core.EventPublisher
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RetentionRepository is required")
	}
	if opts.Config.Interval <= 0 || opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper interval and batch size must be positive")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"processing_timeout", opts.Config.ProcessingTimeout,
		"completed_job_ttl", opts.Config.CompletedJobTTL,
		"failed_job_ttl", opts.Config.FailedJobTTL,
		"delivered_ttl", opts.Config.DeliveredTTL,
		"failed_delivery_ttl", opts.Config.FailedDeliveryTTL,
	)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		events:  opts.Events,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// CleanupReport counts the rows touched by one retention pass.
type CleanupReport struct {
	StaleProcessing   int64
	CompletedJobs     int64
	FailedJobs        int64
	DeliveredDelivery int64
	FailedDeliveries  int64
	Elapsed           time.Duration
}

// Total sums every count in the report.
func (r CleanupReport) Total() int64 {
	return r.StaleProcessing + r.CompletedJobs + r.FailedJobs + r.DeliveredDelivery + r.FailedDeliveries
}

type cleanupStep struct {
	operation string
	label     string
	fn        func(context.Context) (int64, error)
	count     *int64
}

// RunOnce performs a single retention pass. Every step runs even when an
// earlier one fails; the returned error joins the failures.
func (s *ReaperService) RunOnce(ctx context.Context) (CleanupReport, error) {
	start := s.now()
	var (
		report             CleanupReport
		errs               []error
		allContextCanceled = true
		stepErrs           = make(map[string]error)
	)

	steps := []cleanupStep{
		{"fail_processing", "fail stale processing jobs", s.failStaleProcessing, &report.StaleProcessing},
		{"delete_completed", "delete old completed jobs",
			s.deleteJobs(model.AnalysisStatusCompleted, s.config.CompletedJobTTL), &report.CompletedJobs},
		{"delete_failed", "delete old failed jobs",
			s.deleteJobs(model.AnalysisStatusFailed, s.config.FailedJobTTL), &report.FailedJobs},
		{"delete_delivered", "delete old delivered webhooks",
			s.deleteDeliveries(model.DeliveryStatusSuccess, s.config.DeliveredTTL), &report.DeliveredDelivery},
		{"delete_failed_deliveries", "delete old failed webhooks",
			s.deleteDeliveries(model.DeliveryStatusFailed, s.config.FailedDeliveryTTL), &report.FailedDeliveries},
	}

	for _, step := range steps {
		count, err := step.fn(ctx)
		*step.count = count
		stepErrs[step.operation] = suppressContextCancellation(err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	report.Elapsed = s.now().Sub(start)
	s.emitCleanupMetrics(report, steps, stepErrs)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return report, context.Canceled
		}
		return report, fmt.Errorf("cleanup failed: %w", joined)
	}
	return report, nil
}

// failStaleProcessing fails processing jobs whose worker is presumed lost and
// announces each as analysis.failed.
func (s *ReaperService) failStaleProcessing(ctx context.Context) (int64, error) {
	kind := apperrors.KindWorkerLost
	failure := model.JobFailure{Message: workerLostMessage, Code: string(kind), Retryable: kind.Retryable()}

	var total int64
	for {
		jobs, err := s.repo.FailStaleProcessing(ctx, core.FailStaleProcessingParams{
			MaxAge:    s.config.ProcessingTimeout,
			Failure:   failure,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return total, err
		}
		total += int64(len(jobs))
		for _, job := range jobs {
			s.announceFailure(ctx, job)
		}
		if len(jobs) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.WarnContext(ctx, "failed stale processing jobs",
			"count", total,
			"processing_timeout", s.config.ProcessingTimeout,
		)
	}
	return total, nil
}

func (s *ReaperService) announceFailure(ctx context.Context, job *model.AnalysisJob) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishBudget)
	defer cancel()

	payload := model.NewAnalysisPayload(model.EventAnalysisFailed, *job, s.now())
	if _, err := s.events.TriggerEvent(ctx, job.OrganizationID, payload); err != nil {
		s.logger.ErrorContext(ctx, "publish analysis event", "job_id", job.ID, "error", err)
	}
}

func (s *ReaperService) deleteJobs(status model.AnalysisStatus, ttl time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return s.deleteInBatches(ctx, "analysis jobs", string(status), ttl, s.repo.DeleteJobsOlderThan)
	}
}

func (s *ReaperService) deleteDeliveries(status model.DeliveryStatus, ttl time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return s.deleteInBatches(ctx, "webhook deliveries", string(status), ttl, s.repo.DeleteDeliveriesOlderThan)
	}
}

// deleteInBatches loops until a batch comes back short.
func (s *ReaperService) deleteInBatches(
	ctx context.Context,
	what, status string,
	ttl time.Duration,
	del func(context.Context, core.DeleteOlderThanParams) (int64, error),
) (int64, error) {
	var total int64
	for {
		count, err := del(ctx, core.DeleteOlderThanParams{
			Status:    status,
			MaxAge:    ttl,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return total, err
		}
		total += count
		if count < int64(s.config.BatchSize) {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old "+what, "status", status, "count", total, "max_age", ttl)
	}
	return total, nil
}

func (s *ReaperService) emitCleanupMetrics(report CleanupReport, steps []cleanupStep, stepErrs map[string]error) {
	if s.metrics == nil {
		return
	}

	var firstErr error
	for _, step := range steps {
		if err := stepErrs[step.operation]; err != nil {
			firstErr = err
			break
		}
	}

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if report.Total() == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if report.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", report.Elapsed, metrics.CloneTags(tags))
	}

	for _, step := range steps {
		s.emitCleanupOperationMetric(step.operation, *step.count, stepErrs[step.operation])
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
