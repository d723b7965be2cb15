package model

import (
	"encoding/json"
	"time"
)

// WebhookPayload is the JSON body POSTed to webhook endpoints.
type WebhookPayload struct {
	Event          WebhookEvent    `json:"event"`
	Timestamp      time.Time       `json:"timestamp"`
	OrganizationID string          `json:"organizationId"`
	Analysis       AnalysisPayload `json:"analysis"`
}

// AnalysisPayload describes the analysis an event refers to.
type AnalysisPayload struct {
	ID            string          `json:"id"`
	RepositoryURL string          `json:"repositoryUrl"`
	Branch        *string         `json:"branch,omitempty"`
	CommitSHA     *string         `json:"commitSha,omitempty"`
	Status        AnalysisStatus  `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *string         `json:"error,omitempty"`
}

// NewAnalysisPayload builds the payload for a lifecycle event of job.
// Result is only included for completed jobs and Error only for failed ones.
func NewAnalysisPayload(event WebhookEvent, job AnalysisJob, now time.Time) WebhookPayload {
	a := AnalysisPayload{
		ID:            job.ID,
		RepositoryURL: job.RepositoryURL,
		Branch:        job.Branch,
		CommitSHA:     job.CommitSHA,
		Status:        job.Status,
	}
	switch job.Status {
	case AnalysisStatusCompleted:
		a.Result = job.Result
	case AnalysisStatusFailed:
		a.Error = job.Error
	case AnalysisStatusPending, AnalysisStatusProcessing:
	}
	return WebhookPayload{
		Event:          event,
		Timestamp:      now.UTC(),
		OrganizationID: job.OrganizationID,
		Analysis:       a,
	}
}

// TestWebhookPayload is the canonical payload sent by a webhook test.
func TestWebhookPayload(orgID string, now time.Time) WebhookPayload {
	branch := "main"
	sha := "0000000000000000000000000000000000000000"
	return WebhookPayload{
		Event:          EventWebhookTest,
		Timestamp:      now.UTC(),
		OrganizationID: orgID,
		Analysis: AnalysisPayload{
			ID:            "00000000-0000-0000-0000-000000000000",
			RepositoryURL: "https://github.com/example/repository",
			Branch:        &branch,
			CommitSHA:     &sha,
			Status:        AnalysisStatusCompleted,
			Result:        json.RawMessage(`{"summary":"This is a test delivery."}`),
		},
	}
}

// AnalysisEventFor maps a job's status to the event announcing it.
func AnalysisEventFor(status AnalysisStatus, cancelled bool) WebhookEvent {
	switch {
	case cancelled:
		return EventAnalysisCancelled
	case status == AnalysisStatusProcessing:
		return EventAnalysisStarted
	case status == AnalysisStatusCompleted:
		return EventAnalysisCompleted
	default:
		return EventAnalysisFailed
	}
}
