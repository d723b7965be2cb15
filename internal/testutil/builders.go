// Package testutil provides testing utilities and helpers for the analysis queue and webhook system.
package testutil

import (
	"github.com/target/mmk-analysis-api/internal/domain/model"
)

// Test identities shared across packages.
const (
	TestOrgID   = "org-test"
	TestUserID  = "user-test"
	OtherOrgID  = "org-other"
	OtherUserID = "user-other"
)

// AnalysisJobBuilder provides a fluent interface for building CreateAnalysisJobParams.
type AnalysisJobBuilder struct {
	params model.CreateAnalysisJobParams
}

// NewAnalysisJob creates a builder with sensible defaults.
func NewAnalysisJob() *AnalysisJobBuilder {
	return &AnalysisJobBuilder{
		params: model.CreateAnalysisJobParams{
			OwnerID:        TestUserID,
			OrganizationID: TestOrgID,
			RepositoryURL:  "https://github.com/example/repository",
		},
	}
}

// WithOrg sets the owning organization.
func (b *AnalysisJobBuilder) WithOrg(orgID string) *AnalysisJobBuilder {
	b.params.OrganizationID = orgID
	return b
}

// WithOwner sets the submitting user.
func (b *AnalysisJobBuilder) WithOwner(userID string) *AnalysisJobBuilder {
	b.params.OwnerID = userID
	return b
}

// WithRepository sets the repository URL.
func (b *AnalysisJobBuilder) WithRepository(url string) *AnalysisJobBuilder {
	b.params.RepositoryURL = url
	return b
}

// WithBranch sets the requested branch.
func (b *AnalysisJobBuilder) WithBranch(branch string) *AnalysisJobBuilder {
	b.params.Branch = &branch
	return b
}

// Build returns the constructed params.
func (b *AnalysisJobBuilder) Build() model.CreateAnalysisJobParams {
	return b.params
}

// WebhookRequestBuilder builds CreateWebhookRequest values.
type WebhookRequestBuilder struct {
	req model.CreateWebhookRequest
}

// NewWebhookRequest creates a builder for an active webhook with default events.
func NewWebhookRequest(url string) *WebhookRequestBuilder {
	return &WebhookRequestBuilder{req: model.CreateWebhookRequest{URL: url}}
}

// WithEvents sets the subscribed events.
func (b *WebhookRequestBuilder) WithEvents(events ...model.WebhookEvent) *WebhookRequestBuilder {
	b.req.Events = events
	return b
}

// WithSecret sets the signing secret.
func (b *WebhookRequestBuilder) WithSecret(secret string) *WebhookRequestBuilder {
	b.req.Secret = &secret
	return b
}

// WithFilter sets the JMESPath filter.
func (b *WebhookRequestBuilder) WithFilter(expr string) *WebhookRequestBuilder {
	b.req.Filter = &expr
	return b
}

// Inactive marks the webhook inactive.
func (b *WebhookRequestBuilder) Inactive() *WebhookRequestBuilder {
	active := false
	b.req.IsActive = &active
	return b
}

// Build normalizes and returns the request.
func (b *WebhookRequestBuilder) Build() model.CreateWebhookRequest {
	req := b.req
	req.Normalize()
	return req
}
