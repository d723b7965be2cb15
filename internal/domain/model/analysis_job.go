// Package model defines the core data types used throughout the analysis queue and webhook system.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// AnalysisStatus represents the lifecycle state of an analysis job.
type AnalysisStatus string

const (
	// AnalysisStatusPending indicates the job is queued.
	AnalysisStatusPending AnalysisStatus = "pending"
	// AnalysisStatusProcessing indicates a worker owns the job.
	AnalysisStatusProcessing AnalysisStatus = "processing"
	// AnalysisStatusCompleted indicates the analysis finished with a result.
	AnalysisStatusCompleted AnalysisStatus = "completed"
	// AnalysisStatusFailed indicates the analysis failed or was cancelled.
	AnalysisStatusFailed AnalysisStatus = "failed"
)

// ErrNoJobsAvailable is returned when no pending jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the status is a known value.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisStatusPending, AnalysisStatusProcessing, AnalysisStatusCompleted, AnalysisStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition happens from s.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

// Progress is a coarse completion percentage derived from the status.
func (s AnalysisStatus) Progress() int {
	switch s {
	case AnalysisStatusPending:
		return 10
	case AnalysisStatusProcessing:
		return 50
	case AnalysisStatusCompleted:
		return 100
	default:
		return 0
	}
}

// AnalysisJob is a repository analysis request tracked through the queue.
type AnalysisJob struct {
	ID             string          `json:"id"                    db:"id"`
	Seq            int64           `json:"-"                     db:"seq"`
	OwnerID        string          `json:"ownerId"               db:"owner_id"`
	OrganizationID string          `json:"organizationId"        db:"organization_id"`
	RepositoryURL  string          `json:"repositoryUrl"         db:"repository_url"`
	Branch         *string         `json:"branch,omitempty"      db:"branch"`
	CommitSHA      *string         `json:"commitSha,omitempty"   db:"commit_sha"`
	Status         AnalysisStatus  `json:"status"                db:"status"`
	Error          *string         `json:"error,omitempty"       db:"error"`
	ErrorCode      *string         `json:"errorCode,omitempty"   db:"error_code"`
	Retryable      bool            `json:"retryable"             db:"retryable"`
	Result         json.RawMessage `json:"result,omitempty"      db:"result"`
	RetryCount     int             `json:"retryCount"            db:"retry_count"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"   db:"started_at"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt      time.Time       `json:"createdAt"             db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt"             db:"updated_at"`
}

// CreateAnalysisJobParams carries the fields needed to insert a pending job.
type CreateAnalysisJobParams struct {
	OwnerID        string
	OrganizationID string
	RepositoryURL  string
	Branch         *string
}

// JobFailure is the terminal failure written to a job.
type JobFailure struct {
	Message   string
	Code      string
	Retryable bool
}

// SubmitAnalysisRequest is the body accepted by the submit endpoint.
type SubmitAnalysisRequest struct {
	RepositoryURL string  `json:"repositoryUrl"`
	Branch        *string `json:"branch,omitempty"`
}

// SubmitAnalysisResult is returned after a successful submission.
type SubmitAnalysisResult struct {
	JobID            string         `json:"jobId"`
	Status           AnalysisStatus `json:"status"`
	EstimatedCredits int            `json:"estimatedCredits"`
}

// QueuePosition reports where a non-terminal job sits in the queue.
type QueuePosition struct {
	Position             int   `json:"position"`
	TotalInQueue         int   `json:"totalInQueue"`
	EstimatedWaitSeconds int64 `json:"estimatedWaitSeconds"`
}

// AnalysisStatusView is the status representation exposed to API callers.
type AnalysisStatusView struct {
	ID                            string          `json:"id"`
	Status                        AnalysisStatus  `json:"status"`
	Progress                      int             `json:"progress"`
	RepositoryURL                 string          `json:"repositoryUrl"`
	Error                         *string         `json:"error,omitempty"`
	ErrorCode                     *string         `json:"errorCode,omitempty"`
	Retryable                     *bool           `json:"retryable,omitempty"`
	Result                        json.RawMessage `json:"result,omitempty"`
	QueuePosition                 *int            `json:"queuePosition,omitempty"`
	EstimatedTimeRemainingSeconds *int64          `json:"estimatedTimeRemainingSeconds,omitempty"`
	CreatedAt                     time.Time       `json:"createdAt"`
	UpdatedAt                     time.Time       `json:"updatedAt"`
}

// AnalysisJobListOptions filters job listings.
type AnalysisJobListOptions struct {
	OrganizationID string
	Status         *AnalysisStatus
	Limit          int
	Offset         int
}

// AnalysisJobStats counts jobs per status.
type AnalysisJobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
