package model

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	maxWebhookURLLen    = 2048
	maxWebhookSecretLen = 256
	maxWebhookFilterLen = 1024
)

// WebhookEvent names a lifecycle event a webhook can subscribe to.
type WebhookEvent string

const (
	EventAnalysisStarted   WebhookEvent = "analysis.started"
	EventAnalysisCompleted WebhookEvent = "analysis.completed"
	EventAnalysisFailed    WebhookEvent = "analysis.failed"
	EventAnalysisCancelled WebhookEvent = "analysis.cancelled"
	EventWebhookTest       WebhookEvent = "webhook.test"
)

// AllWebhookEvents lists every event a webhook may subscribe to.
func AllWebhookEvents() []WebhookEvent {
	return []WebhookEvent{
		EventAnalysisStarted,
		EventAnalysisCompleted,
		EventAnalysisFailed,
		EventAnalysisCancelled,
		EventWebhookTest,
	}
}

// DefaultWebhookEvents is used when a webhook is created without events.
func DefaultWebhookEvents() []WebhookEvent {
	return []WebhookEvent{EventAnalysisCompleted, EventAnalysisFailed}
}

// Valid returns true if e is in the enumerated event set.
func (e WebhookEvent) Valid() bool {
	return slices.Contains(AllWebhookEvents(), e)
}

// Webhook is an organization's registered HTTP endpoint.
type Webhook struct {
	ID             string         `json:"id"             db:"id"`
	OrganizationID string         `json:"organizationId" db:"organization_id"`
	URL            string         `json:"url"            db:"url"`
	Events         []WebhookEvent `json:"events"         db:"events"`
	Secret         *string        `json:"-"              db:"secret"`
	Filter         *string        `json:"filter,omitempty" db:"filter"`
	IsActive       bool           `json:"isActive"       db:"is_active"`
	CreatedAt      time.Time      `json:"createdAt"      db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt"      db:"updated_at"`
}

// HasSecret reports whether deliveries are signed.
func (w Webhook) HasSecret() bool {
	return w.Secret != nil && *w.Secret != ""
}

// Subscribes reports whether w wants e.
func (w Webhook) Subscribes(e WebhookEvent) bool {
	return slices.Contains(w.Events, e)
}

// WebhookView is the API representation; the secret itself is never returned.
type WebhookView struct {
	Webhook
	HasSecret bool `json:"hasSecret"`
}

// NewWebhookView builds the API view of w.
func NewWebhookView(w Webhook) WebhookView {
	return WebhookView{Webhook: w, HasSecret: w.HasSecret()}
}

// CreateWebhookRequest registers a webhook.
type CreateWebhookRequest struct {
	URL      string         `json:"url"`
	Events   []WebhookEvent `json:"events,omitempty"`
	Secret   *string        `json:"secret,omitempty"`
	Filter   *string        `json:"filter,omitempty"`
	IsActive *bool          `json:"isActive,omitempty"`
}

// Normalize trims inputs and applies the default event set. The secret is
// signing key material and is never altered; an empty one means unsigned.
func (r *CreateWebhookRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	if len(r.Events) == 0 {
		r.Events = DefaultWebhookEvents()
	}
	r.Events = normalizeEvents(r.Events)
	if r.Secret != nil && *r.Secret == "" {
		r.Secret = nil
	}
	r.Filter = trimOptional(r.Filter)
}

// Validate checks url and events. Filter syntax is checked by the service.
func (r *CreateWebhookRequest) Validate() error {
	if err := ValidateWebhookURL(r.URL); err != nil {
		return err
	}
	if err := validateEvents(r.Events); err != nil {
		return err
	}
	return validateSecretAndFilter(r.Secret, r.Filter)
}

// UpdateWebhookRequest patches a webhook. Nil fields are left unchanged.
// An empty Secret or Filter string clears the value.
type UpdateWebhookRequest struct {
	URL      *string        `json:"url,omitempty"`
	Events   []WebhookEvent `json:"events,omitempty"`
	Secret   *string        `json:"secret,omitempty"`
	Filter   *string        `json:"filter,omitempty"`
	IsActive *bool          `json:"isActive,omitempty"`
}

// Normalize trims inputs other than the secret.
func (r *UpdateWebhookRequest) Normalize() {
	if r.URL != nil {
		v := strings.TrimSpace(*r.URL)
		r.URL = &v
	}
	if r.Events != nil {
		r.Events = normalizeEvents(r.Events)
	}
	if r.Filter != nil {
		v := strings.TrimSpace(*r.Filter)
		r.Filter = &v
	}
}

// Validate applies the same rules as creation to the fields being changed.
func (r *UpdateWebhookRequest) Validate() error {
	if r.URL == nil && r.Events == nil && r.Secret == nil && r.Filter == nil && r.IsActive == nil {
		return errors.New("at least one field must be updated")
	}
	if r.URL != nil {
		if err := ValidateWebhookURL(*r.URL); err != nil {
			return err
		}
	}
	if r.Events != nil {
		if len(r.Events) == 0 {
			return errors.New("events must not be empty")
		}
		if err := validateEvents(r.Events); err != nil {
			return err
		}
	}
	return validateSecretAndFilter(r.Secret, r.Filter)
}

// ValidateWebhookURL requires an absolute http(s) URL with a host.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	if len(raw) > maxWebhookURLLen {
		return fmt.Errorf("url must be at most %d characters", maxWebhookURLLen)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("url is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}

func validateEvents(events []WebhookEvent) error {
	for _, e := range events {
		if !e.Valid() {
			return fmt.Errorf("unsupported event %q", e)
		}
	}
	return nil
}

func validateSecretAndFilter(secret, filter *string) error {
	if secret != nil {
		if len(*secret) > maxWebhookSecretLen {
			return fmt.Errorf("secret must be at most %d characters", maxWebhookSecretLen)
		}
		if strings.TrimSpace(*secret) != *secret {
			return errors.New("secret must not begin or end with whitespace")
		}
	}
	if filter != nil && len(*filter) > maxWebhookFilterLen {
		return fmt.Errorf("filter must be at most %d characters", maxWebhookFilterLen)
	}
	return nil
}

// normalizeEvents lower-cases and de-duplicates events, preserving order.
func normalizeEvents(events []WebhookEvent) []WebhookEvent {
	out := make([]WebhookEvent, 0, len(events))
	for _, e := range events {
		e = WebhookEvent(strings.ToLower(strings.TrimSpace(string(e))))
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
