package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

func createTestDelivery(t *testing.T, db *sql.DB, lease time.Duration) (*model.Webhook, *model.WebhookDelivery) {
	t.Helper()
	ctx := context.Background()

	hook, err := NewWebhookRepo(db, RepoConfig{}).Create(ctx, testutil.TestOrgID,
		testutil.NewWebhookRequest("https://hooks.example.com").Build())
	require.NoError(t, err)

	d, err := NewDeliveryRepo(db, RepoConfig{}).Create(ctx, model.CreateDeliveryParams{
		WebhookID:      hook.ID,
		OrganizationID: testutil.TestOrgID,
		Event:          model.EventAnalysisCompleted,
		Payload:        json.RawMessage(`{"event":"analysis.completed"}`),
		Lease:          lease,
	})
	require.NoError(t, err)
	return hook, d
}

func TestDeliveryRepo_CreateAndClaim(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewDeliveryRepo(db, RepoConfig{})
		ctx := context.Background()

		_, d := createTestDelivery(t, db, 0)
		assert.Equal(t, model.DeliveryStatusPending, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.NotNil(t, d.NextAttemptAt)

		claimed, err := repo.ClaimDue(ctx, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, d.ID, claimed[0].ID)

		// Leased rows are skipped by other pollers.
		claimed, err = repo.ClaimDue(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestDeliveryRepo_LeasedOnCreateIsNotClaimed(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		_, _ = createTestDelivery(t, db, time.Minute)

		claimed, err := NewDeliveryRepo(db, RepoConfig{}).ClaimDue(context.Background(), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestDeliveryRepo_RecordAttemptIsGuarded(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewDeliveryRepo(db, RepoConfig{})
		ctx := context.Background()
		_, d := createTestDelivery(t, db, 0)

		now := time.Now().UTC()
		next := now.Add(time.Second)
		ok, err := repo.RecordAttempt(ctx, d.ID, model.DeliveryOutcome{
			ExpectedStatus:   model.DeliveryStatusPending,
			ExpectedAttempts: 0,
			Status:           model.DeliveryStatusRetrying,
			Attempts:         1,
			AttemptedAt:      now,
			NextAttemptAt:    &next,
			Response:         &model.DeliveryResponse{StatusCode: 500, DurationMs: 3},
		})
		require.NoError(t, err)
		assert.True(t, ok)

		// A second writer with the stale expectation loses.
		ok, err = repo.RecordAttempt(ctx, d.ID, model.DeliveryOutcome{
			ExpectedStatus:   model.DeliveryStatusPending,
			ExpectedAttempts: 0,
			Status:           model.DeliveryStatusSuccess,
			Attempts:         1,
			AttemptedAt:      now,
		})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.RecordAttempt(ctx, d.ID, model.DeliveryOutcome{
			ExpectedStatus:   model.DeliveryStatusRetrying,
			ExpectedAttempts: 1,
			Status:           model.DeliveryStatusSuccess,
			Attempts:         2,
			AttemptedAt:      now,
			Response:         &model.DeliveryResponse{StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)},
		})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusSuccess, got.Status)
		assert.Equal(t, 2, got.Attempts)
		assert.Nil(t, got.NextAttemptAt)
		require.NotNil(t, got.Response)
		assert.Equal(t, 200, got.Response.StatusCode)
		assert.JSONEq(t, `{"ok":true}`, string(got.Response.Body))

		// Terminal rows never change again.
		ok, err = repo.RecordAttempt(ctx, d.ID, model.DeliveryOutcome{
			ExpectedStatus:   model.DeliveryStatusSuccess,
			ExpectedAttempts: 2,
			Status:           model.DeliveryStatusFailed,
			Attempts:         3,
			AttemptedAt:      now,
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeliveryRepo_ListByWebhookAndCascade(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewDeliveryRepo(db, RepoConfig{})
		ctx := context.Background()
		hook, d := createTestDelivery(t, db, 0)

		list, err := repo.List(ctx, model.DeliveryListOptions{OrganizationID: testutil.TestOrgID, WebhookID: hook.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, d.ID, list[0].ID)

		list, err = repo.List(ctx, model.DeliveryListOptions{OrganizationID: testutil.OtherOrgID, WebhookID: hook.ID})
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = NewWebhookRepo(db, RepoConfig{}).Delete(ctx, testutil.TestOrgID, hook.ID)
		require.NoError(t, err)
		_, err = repo.GetByID(ctx, d.ID)
		assert.ErrorIs(t, err, ErrDeliveryNotFound)
	})
}

func TestDeliveryRepo_CreateForDeletedWebhookIsForeignKey(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		hooks := NewWebhookRepo(db, RepoConfig{})
		hook, err := hooks.Create(ctx, testutil.TestOrgID, testutil.NewWebhookRequest("https://hooks.example.com").Build())
		require.NoError(t, err)
		deleted, err := hooks.Delete(ctx, testutil.TestOrgID, hook.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		_, err = NewDeliveryRepo(db, RepoConfig{}).Create(ctx, model.CreateDeliveryParams{
			WebhookID:      hook.ID,
			OrganizationID: testutil.TestOrgID,
			Event:          model.EventAnalysisCompleted,
			Payload:        json.RawMessage(`{}`),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsForeignKey(err), err)
	})
}
