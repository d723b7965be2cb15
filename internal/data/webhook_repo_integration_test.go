package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

func TestWebhookRepo_CRUDIsOrgScoped(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, testutil.TestOrgID,
			testutil.NewWebhookRequest("https://hooks.example.com/a").WithSecret("s3cr3t").Build())
		require.NoError(t, err)
		assert.Equal(t, model.DefaultWebhookEvents(), created.Events)
		assert.True(t, created.IsActive)
		assert.True(t, created.HasSecret())

		_, err = repo.GetByID(ctx, testutil.OtherOrgID, created.ID)
		assert.ErrorIs(t, err, ErrWebhookNotFound)

		list, err := repo.List(ctx, testutil.TestOrgID, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)

		list, err = repo.List(ctx, testutil.OtherOrgID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = repo.Update(ctx, testutil.OtherOrgID, created.ID, model.UpdateWebhookRequest{IsActive: testutil.BoolPtr(false)})
		assert.ErrorIs(t, err, ErrWebhookNotFound)

		updated, err := repo.Update(ctx, testutil.TestOrgID, created.ID, model.UpdateWebhookRequest{
			Events: []model.WebhookEvent{model.EventAnalysisStarted},
			Secret: testutil.StringPtr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, []model.WebhookEvent{model.EventAnalysisStarted}, updated.Events)
		assert.False(t, updated.HasSecret())
		assert.Equal(t, "https://hooks.example.com/a", updated.URL)

		ok, err := repo.Delete(ctx, testutil.OtherOrgID, created.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Delete(ctx, testutil.TestOrgID, created.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestWebhookRepo_ListActiveForEvent(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db, RepoConfig{})
		ctx := context.Background()

		subscribed, err := repo.Create(ctx, testutil.TestOrgID,
			testutil.NewWebhookRequest("https://hooks.example.com/completed").Build())
		require.NoError(t, err)
		_, err = repo.Create(ctx, testutil.TestOrgID,
			testutil.NewWebhookRequest("https://hooks.example.com/started").WithEvents(model.EventAnalysisStarted).Build())
		require.NoError(t, err)
		_, err = repo.Create(ctx, testutil.TestOrgID,
			testutil.NewWebhookRequest("https://hooks.example.com/inactive").Inactive().Build())
		require.NoError(t, err)
		_, err = repo.Create(ctx, testutil.OtherOrgID,
			testutil.NewWebhookRequest("https://hooks.example.com/other").Build())
		require.NoError(t, err)

		hooks, err := repo.ListActiveForEvent(ctx, testutil.TestOrgID, model.EventAnalysisCompleted)
		require.NoError(t, err)
		require.Len(t, hooks, 1)
		assert.Equal(t, subscribed.ID, hooks[0].ID)
	})
}

func TestWebhookRepo_RejectsUnknownEventAtDB(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db, RepoConfig{})
		_, err := repo.Create(context.Background(), testutil.TestOrgID, model.CreateWebhookRequest{
			URL:    "https://hooks.example.com",
			Events: []model.WebhookEvent{"analysis.exploded"},
		})
		assert.Error(t, err)
	})
}
