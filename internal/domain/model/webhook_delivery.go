package model

import (
	"encoding/json"
	"time"
)

// MaxDeliveryAttempts bounds the attempts made for a single delivery.
const MaxDeliveryAttempts = 5

// DeliveryStatus is the state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
)

// IsTerminal reports whether the delivery will never be attempted again.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

// Valid returns true for known statuses.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusRetrying, DeliveryStatusSuccess, DeliveryStatusFailed:
		return true
	default:
		return false
	}
}

// WebhookDelivery is one event payload being POSTed to one webhook.
type WebhookDelivery struct {
	ID             string            `json:"id"                      db:"id"`
	WebhookID      string            `json:"webhookId"               db:"webhook_id"`
	OrganizationID string            `json:"organizationId"          db:"organization_id"`
	AnalysisID     *string           `json:"analysisId,omitempty"    db:"analysis_id"`
	Event          WebhookEvent      `json:"event"                   db:"event"`
	Payload        json.RawMessage   `json:"payload"                 db:"payload"`
	Status         DeliveryStatus    `json:"status"                  db:"status"`
	Attempts       int               `json:"attempts"                db:"attempts"`
	LastAttemptAt  *time.Time        `json:"lastAttemptAt,omitempty" db:"last_attempt_at"`
	NextAttemptAt  *time.Time        `json:"nextAttemptAt"           db:"next_attempt_at"`
	Response       *DeliveryResponse `json:"response,omitempty"      db:"response"`
	CreatedAt      time.Time         `json:"createdAt"               db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt"               db:"updated_at"`
}

// DeliveryResponse is the snapshot captured from the most recent attempt.
type DeliveryResponse struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

// CreateDeliveryParams inserts a pending delivery due immediately.
type CreateDeliveryParams struct {
	WebhookID      string
	OrganizationID string
	AnalysisID     *string
	Event          WebhookEvent
	Payload        json.RawMessage
	// Lease, when positive, creates the delivery already claimed so pollers
	// skip it while the caller attempts it inline.
	Lease time.Duration
}

// DeliveryOutcome is the guarded state write recorded after an attempt.
type DeliveryOutcome struct {
	// ExpectedStatus and ExpectedAttempts must match the stored row for the write to apply.
	ExpectedStatus   DeliveryStatus
	ExpectedAttempts int

	Status        DeliveryStatus
	Attempts      int
	AttemptedAt   time.Time
	NextAttemptAt *time.Time
	Response      *DeliveryResponse
}

// DeliveryListOptions filters delivery listings.
type DeliveryListOptions struct {
	OrganizationID string
	WebhookID      string
	Status         *DeliveryStatus
	Limit          int
	Offset         int
}
