package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-analysis-api/internal/domain/model"
)

func TestAnalysisJobBuilder(t *testing.T) {
	params := NewAnalysisJob().
		WithOrg(OtherOrgID).
		WithOwner(OtherUserID).
		WithRepository("https://gitlab.com/group/project").
		WithBranch("main").
		Build()

	assert.Equal(t, OtherOrgID, params.OrganizationID)
	assert.Equal(t, OtherUserID, params.OwnerID)
	assert.Equal(t, "https://gitlab.com/group/project", params.RepositoryURL)
	require.NotNil(t, params.Branch)
	assert.Equal(t, "main", *params.Branch)
}

func TestWebhookRequestBuilder(t *testing.T) {
	req := NewWebhookRequest(" https://hooks.example.com/in ").
		WithSecret("s3cr3t").
		WithFilter(" analysis.status == 'failed' ").
		Inactive().
		Build()

	assert.Equal(t, "https://hooks.example.com/in", req.URL)
	assert.Equal(t, model.DefaultWebhookEvents(), req.Events)
	require.NotNil(t, req.Filter)
	assert.Equal(t, "analysis.status == 'failed'", *req.Filter)
	require.NotNil(t, req.IsActive)
	assert.False(t, *req.IsActive)
}
