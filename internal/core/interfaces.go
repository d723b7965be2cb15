package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces, not on concrete data or adapter types.

// AnalysisJobRepository persists analysis jobs. Every status write is a
// compare-and-swap on the expected prior status and reports whether it applied.
type AnalysisJobRepository interface {
	Create(ctx context.Context, params model.CreateAnalysisJobParams) (*model.AnalysisJob, error)
	GetByID(ctx context.Context, id string) (*model.AnalysisJob, error)
	List(ctx context.Context, opts model.AnalysisJobListOptions) ([]*model.AnalysisJob, error)
	Stats(ctx context.Context, orgID string) (*model.AnalysisJobStats, error)

	// QueuePosition returns the 1-based position of a non-terminal job and the
	// number of non-terminal jobs. Terminal jobs yield an error.
	QueuePosition(ctx context.Context, id string) (position, total int, err error)

	// ReserveNext moves the lowest-sequence pending job to processing.
	// Returns model.ErrNoJobsAvailable when the queue is empty.
	ReserveNext(ctx context.Context) (*model.AnalysisJob, error)
	SetRepositoryMetadata(ctx context.Context, id string, branch, commitSHA *string) (bool, error)
	Complete(ctx context.Context, id string, result json.RawMessage) (bool, error)
	Fail(ctx context.Context, id string, expected model.AnalysisStatus, failure model.JobFailure) (bool, error)
	// Requeue moves a failed job back to pending with a fresh sequence number.
	Requeue(ctx context.Context, id string) (*model.AnalysisJob, error)
}

// WebhookRepository persists organization webhooks. Lookups are org-scoped.
type WebhookRepository interface {
	Create(ctx context.Context, orgID string, req model.CreateWebhookRequest) (*model.Webhook, error)
	GetByID(ctx context.Context, orgID, id string) (*model.Webhook, error)
	List(ctx context.Context, orgID string, limit, offset int) ([]*model.Webhook, error)
	ListActiveForEvent(ctx context.Context, orgID string, event model.WebhookEvent) ([]*model.Webhook, error)
	Update(ctx context.Context, orgID, id string, req model.UpdateWebhookRequest) (*model.Webhook, error)
	Delete(ctx context.Context, orgID, id string) (bool, error)
}

// DeliveryRepository persists webhook deliveries.
type DeliveryRepository interface {
	Create(ctx context.Context, params model.CreateDeliveryParams) (*model.WebhookDelivery, error)
	GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error)
	List(ctx context.Context, opts model.DeliveryListOptions) ([]*model.WebhookDelivery, error)
	// ClaimDue leases up to limit due deliveries so other pollers skip them.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.WebhookDelivery, error)
	// RecordAttempt applies outcome only if the stored status and attempts
	// still equal outcome.ExpectedStatus and outcome.ExpectedAttempts.
	RecordAttempt(ctx context.Context, id string, outcome model.DeliveryOutcome) (bool, error)
}

// RetentionRepository implements the TTL sweeps run by the reaper.
type RetentionRepository interface {
	FailStaleProcessing(ctx context.Context, params FailStaleProcessingParams) ([]*model.AnalysisJob, error)
	DeleteJobsOlderThan(ctx context.Context, params DeleteOlderThanParams) (int64, error)
	DeleteDeliveriesOlderThan(ctx context.Context, params DeleteOlderThanParams) (int64, error)
}

// FailStaleProcessingParams selects processing jobs whose worker is presumed lost.
type FailStaleProcessingParams struct {
	MaxAge    time.Duration
	Failure   model.JobFailure
	BatchSize int
}

// DeleteOlderThanParams selects terminal rows by status and age.
type DeleteOlderThanParams struct {
	Status    string
	MaxAge    time.Duration
	BatchSize int
}

// RepositoryValidator confirms a repository exists and is publicly reachable.
// Failures are returned as *errors.ProcessingError.
type RepositoryValidator interface {
	Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error)
}

// AnalyzeRequest is the input to the opaque analysis call.
type AnalyzeRequest struct {
	JobID         string
	RepositoryURL string
	Branch        string
	CommitSHA     string
}

// Analyzer runs the analysis computation. Failures are returned as *errors.ProcessingError.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (json.RawMessage, error)
}

// EventPublisher fans a lifecycle event out to subscribed webhooks.
type EventPublisher interface {
	TriggerEvent(ctx context.Context, orgID string, payload model.WebhookPayload) ([]*model.WebhookDelivery, error)
}

// IdempotencyStore deduplicates submissions carrying an Idempotency-Key.
type IdempotencyStore interface {
	// Claim reserves key. When the key is already held, claimed is false and
	// existing is the stored job id (empty while the first request is in flight).
	Claim(ctx context.Context, key string, ttl time.Duration) (existing string, claimed bool, err error)
	Complete(ctx context.Context, key, jobID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// NotificationWaiter is implemented by repositories backed by LISTEN/NOTIFY.
type NotificationWaiter = queue.Waiter
