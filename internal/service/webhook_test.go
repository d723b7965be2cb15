package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/mocks"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

func newWebhookService(t *testing.T) (*WebhookService, *mocks.MockWebhookRepository) {
	t.Helper()
	repo := mocks.NewMockWebhookRepository(gomock.NewController(t))
	return NewWebhookService(WebhookServiceOptions{Repo: repo}), repo
}

func TestNewWebhookService_PanicsWithoutRepo(t *testing.T) {
	assert.Panics(t, func() { NewWebhookService(WebhookServiceOptions{}) })
}

func TestWebhookService_Create(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		svc, repo := newWebhookService(t)
		repo.EXPECT().
			Create(gomock.Any(), testutil.TestOrgID, gomock.Any()).
			DoAndReturn(func(_ context.Context, orgID string, req model.CreateWebhookRequest) (*model.Webhook, error) {
				assert.Equal(t, model.DefaultWebhookEvents(), req.Events)
				assert.Equal(t, "https://hooks.example.com", req.URL)
				assert.Nil(t, req.Secret)
				return &model.Webhook{ID: "w1", OrganizationID: orgID, URL: req.URL, Events: req.Events, IsActive: true}, nil
			})

		hook, err := svc.Create(context.Background(), testutil.TestOrgID, model.CreateWebhookRequest{
			URL:    "  https://hooks.example.com ",
			Secret: testutil.StringPtr("   "),
		})
		require.NoError(t, err)
		assert.Equal(t, "w1", hook.ID)
	})

	tests := []struct {
		name  string
		req   model.CreateWebhookRequest
		field string
	}{
		{name: "missing url", req: model.CreateWebhookRequest{}},
		{name: "non http url", req: model.CreateWebhookRequest{URL: "ftp://hooks.example.com"}},
		{name: "unknown event", req: model.CreateWebhookRequest{
			URL: "https://hooks.example.com", Events: []model.WebhookEvent{"analysis.exploded"},
		}},
		{name: "padded secret", req: model.CreateWebhookRequest{
			URL: "https://hooks.example.com", Secret: testutil.StringPtr(" s3cr3t "),
		}},
		{name: "invalid filter", field: "filter", req: model.CreateWebhookRequest{
			URL: "https://hooks.example.com", Filter: testutil.StringPtr("analysis.["),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newWebhookService(t)
			_, err := svc.Create(context.Background(), testutil.TestOrgID, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			if tt.field != "" {
				assert.Equal(t, tt.field, apperrors.GetField(err))
			}
		})
	}

	t.Run("valid filter accepted", func(t *testing.T) {
		svc, repo := newWebhookService(t)
		repo.EXPECT().Create(gomock.Any(), testutil.TestOrgID, gomock.Any()).Return(&model.Webhook{ID: "w2"}, nil)
		_, err := svc.Create(context.Background(), testutil.TestOrgID, model.CreateWebhookRequest{
			URL: "https://hooks.example.com", Filter: testutil.StringPtr("analysis.status == 'failed'"),
		})
		require.NoError(t, err)
	})
}

const webhookID = "0b7f4a5e-4d2b-4c1e-9a57-3f5b8f0a1c2d"

func TestWebhookService_Update(t *testing.T) {
	svc, repo := newWebhookService(t)

	_, err := svc.Update(context.Background(), testutil.TestOrgID, webhookID, model.UpdateWebhookRequest{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Update(context.Background(), testutil.TestOrgID, webhookID, model.UpdateWebhookRequest{Events: []model.WebhookEvent{}})
	assert.True(t, apperrors.IsValidation(err))

	repo.EXPECT().
		Update(gomock.Any(), testutil.OtherOrgID, webhookID, gomock.Any()).
		Return(nil, model.ErrWebhookNotFound)
	_, err = svc.Update(context.Background(), testutil.OtherOrgID, webhookID, model.UpdateWebhookRequest{IsActive: testutil.BoolPtr(false)})
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
}

func TestWebhookService_MalformedIDIsNotFound(t *testing.T) {
	// No repo expectations: a malformed id must not reach the uuid column.
	svc, _ := newWebhookService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, testutil.TestOrgID, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
	_, err = svc.Update(ctx, testutil.TestOrgID, "not-a-uuid", model.UpdateWebhookRequest{IsActive: testutil.BoolPtr(true)})
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, testutil.TestOrgID, "not-a-uuid"), model.ErrWebhookNotFound)
}

func TestWebhookService_ListClampsPage(t *testing.T) {
	svc, repo := newWebhookService(t)
	repo.EXPECT().List(gomock.Any(), testutil.TestOrgID, maxListLimit, 0).Return(nil, nil)
	repo.EXPECT().List(gomock.Any(), testutil.TestOrgID, defaultListLimit, 5).Return(nil, nil)

	_, err := svc.List(context.Background(), testutil.TestOrgID, 10_000, -3)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), testutil.TestOrgID, 0, 5)
	require.NoError(t, err)
}

func TestWebhookService_Delete(t *testing.T) {
	svc, repo := newWebhookService(t)
	repo.EXPECT().Delete(gomock.Any(), testutil.TestOrgID, webhookID).Return(true, nil)
	repo.EXPECT().Delete(gomock.Any(), testutil.OtherOrgID, webhookID).Return(false, nil)

	require.NoError(t, svc.Delete(context.Background(), testutil.TestOrgID, webhookID))
	assert.ErrorIs(t, svc.Delete(context.Background(), testutil.OtherOrgID, webhookID), model.ErrWebhookNotFound)
}

func TestMatchFilter(t *testing.T) {
	payload := []byte(`{"event":"analysis.failed","analysis":{"status":"failed","error":"boom","branch":"main"}}`)
	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"analysis.status == 'failed'", true},
		{"analysis.status == 'completed'", false},
		{"analysis.branch", true},
		{"analysis.result", false},
		{"contains(['analysis.failed'], event)", true},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			hook := &model.Webhook{Filter: testutil.StringPtr(tt.filter)}
			got, err := matchFilter(jmespathLibEvaluator{}, hook, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
