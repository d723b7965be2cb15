package service

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/mocks"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

// memDeliveryRepo is an in-memory DeliveryRepository enforcing the guarded write.
type memDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]*model.WebhookDelivery
	order      []string
	claims     []int
}

var _ core.DeliveryRepository = (*memDeliveryRepo)(nil)

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{deliveries: make(map[string]*model.WebhookDelivery)}
}

func (r *memDeliveryRepo) Create(_ context.Context, p model.CreateDeliveryParams) (*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	d := &model.WebhookDelivery{
		ID: uuid.NewString(), WebhookID: p.WebhookID, OrganizationID: p.OrganizationID,
		AnalysisID: p.AnalysisID, Event: p.Event, Payload: p.Payload,
		Status: model.DeliveryStatusPending, NextAttemptAt: &now, CreatedAt: now, UpdatedAt: now,
	}
	r.deliveries[d.ID] = d
	r.order = append(r.order, d.ID)
	cp := *d
	return &cp, nil
}

func (r *memDeliveryRepo) GetByID(_ context.Context, id string) (*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, model.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDeliveryRepo) List(_ context.Context, opts model.DeliveryListOptions) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookDelivery
	for _, id := range r.order {
		d := r.deliveries[id]
		if d.OrganizationID == opts.OrganizationID && d.WebhookID == opts.WebhookID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDeliveryRepo) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = append(r.claims, limit)
	now := time.Now()
	var out []*model.WebhookDelivery
	for _, id := range r.order {
		d := r.deliveries[id]
		if d.Status.IsTerminal() || len(out) >= limit {
			continue
		}
		if d.NextAttemptAt != nil && d.NextAttemptAt.After(now) {
			continue
		}
		until := now.Add(lease)
		d.NextAttemptAt = &until
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memDeliveryRepo) claimLimits() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.claims)
}

func (r *memDeliveryRepo) RecordAttempt(_ context.Context, id string, o model.DeliveryOutcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status.IsTerminal() || d.Status != o.ExpectedStatus || d.Attempts != o.ExpectedAttempts {
		return false, nil
	}
	at := o.AttemptedAt
	d.Status, d.Attempts, d.LastAttemptAt, d.NextAttemptAt, d.Response = o.Status, o.Attempts, &at, o.NextAttemptAt, o.Response
	return true, nil
}

type dispatcherFixture struct {
	dispatcher *DeliveryDispatcher
	webhooks   *mocks.MockWebhookRepository
	deliveries *memDeliveryRepo
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		webhooks:   mocks.NewMockWebhookRepository(gomock.NewController(t)),
		deliveries: newMemDeliveryRepo(),
	}
	f.dispatcher = MustNewDeliveryDispatcher(DeliveryDispatcherOptions{
		Webhooks:   f.webhooks,
		Deliveries: f.deliveries,
		Config:     DeliveryDispatcherConfig{Timeout: 2 * time.Second, Concurrency: 2},
	})
	return f
}

func hookFor(url string, secret *string) *model.Webhook {
	return &model.Webhook{
		ID:             uuid.NewString(),
		OrganizationID: testutil.TestOrgID,
		URL:            url,
		Events:         model.DefaultWebhookEvents(),
		Secret:         secret,
		IsActive:       true,
	}
}

func completedPayload() model.WebhookPayload {
	job := pendingJob(testutil.TestOrgID)
	job.Status = model.AnalysisStatusCompleted
	job.Result = json.RawMessage(`{"score":1}`)
	return model.NewAnalysisPayload(model.EventAnalysisCompleted, *job, testutil.TestTime())
}

func TestSign_KnownVector(t *testing.T) {
	body := []byte(`{"event":"analysis.completed","analysis":{"id":"a1"}}`)
	want := "sha256=a07b63385797247de79b4508fb994771bdcf8c7ce4ee91b46664fe830cb0dd2b"
	assert.Equal(t, want, Sign("s3cr3t", body))
	assert.Equal(t, Sign("s3cr3t", body), Sign("s3cr3t", body))
	assert.NotEqual(t, want, Sign("other", body))
}

func TestDeliveryDispatcher_TriggerEvent(t *testing.T) {
	f := newDispatcherFixture(t)
	plain := hookFor("https://hooks.example.com/a", nil)
	filtered := hookFor("https://hooks.example.com/b", nil)
	filtered.Filter = testutil.StringPtr("analysis.status == 'failed'")
	broken := hookFor("https://hooks.example.com/c", nil)
	broken.Filter = testutil.StringPtr("analysis.[")

	payload := completedPayload()
	f.webhooks.EXPECT().
		ListActiveForEvent(gomock.Any(), testutil.TestOrgID, model.EventAnalysisCompleted).
		Return([]*model.Webhook{plain, filtered, broken}, nil)

	created, err := f.dispatcher.TriggerEvent(context.Background(), testutil.TestOrgID, payload)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, plain.ID, created[0].WebhookID)
	assert.Equal(t, model.DeliveryStatusPending, created[0].Status)
	require.NotNil(t, created[0].AnalysisID)
	assert.Equal(t, payload.Analysis.ID, *created[0].AnalysisID)

	var wire model.WebhookPayload
	require.NoError(t, json.Unmarshal(created[0].Payload, &wire))
	assert.Equal(t, model.EventAnalysisCompleted, wire.Event)
	assert.JSONEq(t, `{"score":1}`, string(wire.Analysis.Result))
	assert.Nil(t, wire.Analysis.Error)
}

func TestDeliveryDispatcher_TriggerEventNoSubscribers(t *testing.T) {
	f := newDispatcherFixture(t)
	f.webhooks.EXPECT().ListActiveForEvent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	created, err := f.dispatcher.TriggerEvent(context.Background(), testutil.TestOrgID, completedPayload())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestDeliveryDispatcher_SucceedsOnFourthAttempt(t *testing.T) {
	var hits atomic.Int32
	secret := "s3cr3t"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(model.EventAnalysisCompleted), r.Header.Get(HeaderWebhookEvent))
		assert.NotEmpty(t, r.Header.Get(HeaderWebhookDelivery))
		assert.True(t, hmac.Equal([]byte(Sign(secret, body)), []byte(r.Header.Get(HeaderWebhookSignature))))

		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newDispatcherFixture(t)
	hook := hookFor(srv.URL, &secret)
	f.webhooks.EXPECT().ListActiveForEvent(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*model.Webhook{hook}, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, hook.ID).Return(hook, nil).AnyTimes()

	ctx := context.Background()
	created, err := f.dispatcher.TriggerEvent(ctx, testutil.TestOrgID, completedPayload())
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := created[0].ID

	for i := 1; i <= 3; i++ {
		dl, attemptErr := f.dispatcher.AttemptDelivery(ctx, id)
		require.NoError(t, attemptErr)
		assert.Equal(t, model.DeliveryStatusRetrying, dl.Status)
		assert.Equal(t, i, dl.Attempts)
		require.NotNil(t, dl.NextAttemptAt)
		assert.Equal(t, 500, dl.Response.StatusCode)
		assert.JSONEq(t, `"upstream exploded"`, string(dl.Response.Body))
	}

	dl, err := f.dispatcher.AttemptDelivery(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusSuccess, dl.Status)
	assert.Equal(t, 4, dl.Attempts)
	assert.Nil(t, dl.NextAttemptAt)
	require.NotNil(t, dl.Response)
	assert.Equal(t, 200, dl.Response.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(dl.Response.Body))
	assert.Equal(t, "application/json", dl.Response.Headers["Content-Type"])

	stored, err := f.deliveries.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusSuccess, stored.Status)
	assert.Equal(t, 4, stored.Attempts)

	// Terminal deliveries are never attempted again.
	_, err = f.dispatcher.AttemptDelivery(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int32(4), hits.Load())
}

func TestDeliveryDispatcher_FailsAfterFiveAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newDispatcherFixture(t)
	hook := hookFor(srv.URL, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, hook.ID).Return(hook, nil).AnyTimes()

	ctx := context.Background()
	created, err := f.deliveries.Create(ctx, model.CreateDeliveryParams{
		WebhookID: hook.ID, OrganizationID: testutil.TestOrgID,
		Event: model.EventAnalysisFailed, Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	var last *model.WebhookDelivery
	for range model.MaxDeliveryAttempts {
		last, err = f.dispatcher.AttemptDelivery(ctx, created.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, model.DeliveryStatusFailed, last.Status)
	assert.Equal(t, model.MaxDeliveryAttempts, last.Attempts)
	assert.Nil(t, last.NextAttemptAt)

	again, err := f.dispatcher.AttemptDelivery(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusFailed, again.Status)
	assert.Equal(t, int32(model.MaxDeliveryAttempts), hits.Load())

	n, err := f.dispatcher.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeliveryDispatcher_TransportErrorIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newDispatcherFixture(t)
	hook := hookFor(url, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, hook.ID).Return(hook, nil)

	dl, err := f.dispatcher.TestWebhook(context.Background(), testutil.TestOrgID, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusRetrying, dl.Status)
	assert.Equal(t, 1, dl.Attempts)
	assert.Zero(t, dl.Response.StatusCode)
	assert.NotEmpty(t, dl.Response.Error)
}

func TestDeliveryDispatcher_TestWebhook(t *testing.T) {
	var received model.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, string(model.EventWebhookTest), r.Header.Get(HeaderWebhookEvent))
		assert.Empty(t, r.Header.Get(HeaderWebhookSignature))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := newDispatcherFixture(t)
	hook := hookFor(srv.URL, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, hook.ID).Return(hook, nil)

	dl, err := f.dispatcher.TestWebhook(context.Background(), testutil.TestOrgID, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusSuccess, dl.Status)
	assert.Equal(t, model.EventWebhookTest, dl.Event)
	assert.Nil(t, dl.AnalysisID)
	assert.Equal(t, testutil.TestOrgID, received.OrganizationID)
	assert.Equal(t, model.AnalysisStatusCompleted, received.Analysis.Status)
}

func TestDeliveryDispatcher_TestWebhookUnknownHook(t *testing.T) {
	f := newDispatcherFixture(t)
	missing := uuid.NewString()
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, missing).Return(nil, model.ErrWebhookNotFound)

	_, err := f.dispatcher.TestWebhook(context.Background(), testutil.TestOrgID, missing)
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
}

func TestDeliveryDispatcher_MalformedIDsAreNotFound(t *testing.T) {
	// The mock has no expectations: malformed ids never reach storage.
	f := newDispatcherFixture(t)
	ctx := context.Background()

	_, err := f.dispatcher.TestWebhook(ctx, testutil.TestOrgID, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
	_, err = f.dispatcher.ListDeliveries(ctx, testutil.TestOrgID, "not-a-uuid", 10, 0)
	assert.ErrorIs(t, err, model.ErrWebhookNotFound)
	_, err = f.dispatcher.GetDelivery(ctx, testutil.TestOrgID, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrDeliveryNotFound)
}

func TestDeliveryDispatcher_TriggerEventSkipsUnsubscribedHooks(t *testing.T) {
	f := newDispatcherFixture(t)
	subscribed := hookFor("https://hooks.example.com/a", nil)
	startedOnly := hookFor("https://hooks.example.com/b", nil)
	startedOnly.Events = []model.WebhookEvent{model.EventAnalysisStarted}
	f.webhooks.EXPECT().ListActiveForEvent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*model.Webhook{subscribed, startedOnly}, nil)

	created, err := f.dispatcher.TriggerEvent(context.Background(), testutil.TestOrgID, completedPayload())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, subscribed.ID, created[0].WebhookID)
}

func TestDeliveryDispatcher_ProcessDueClaimsAtMostConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newDispatcherFixture(t)
	hook := hookFor(srv.URL, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, hook.ID).Return(hook, nil).Times(5)

	ctx := context.Background()
	for range 5 {
		_, err := f.deliveries.Create(ctx, model.CreateDeliveryParams{
			WebhookID: hook.ID, OrganizationID: testutil.TestOrgID,
			Event: model.EventAnalysisCompleted, Payload: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	n, err := f.dispatcher.ProcessDue(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	// Concurrency is 2 in the fixture: every claimed delivery starts at once.
	assert.Equal(t, []int{2, 2, 2}, f.deliveries.claimLimits())
}

func TestNewDeliveryDispatcher_LeaseOutlivesAttempt(t *testing.T) {
	d := MustNewDeliveryDispatcher(DeliveryDispatcherOptions{
		Webhooks:   mocks.NewMockWebhookRepository(gomock.NewController(t)),
		Deliveries: newMemDeliveryRepo(),
		Config:     DeliveryDispatcherConfig{Timeout: 20 * time.Second, Lease: time.Second},
	})
	assert.Equal(t, 25*time.Second, d.cfg.Lease)
}

func TestDeliveryDispatcher_ProcessDueIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newDispatcherFixture(t)
	good := hookFor(srv.URL, nil)
	gone := hookFor(srv.URL, nil)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, good.ID).Return(good, nil).Times(2)
	f.webhooks.EXPECT().GetByID(gomock.Any(), testutil.TestOrgID, gone.ID).Return(nil, errors.New("db timeout"))

	ctx := context.Background()
	for _, h := range []*model.Webhook{good, gone, good} {
		_, err := f.deliveries.Create(ctx, model.CreateDeliveryParams{
			WebhookID: h.ID, OrganizationID: testutil.TestOrgID,
			Event: model.EventAnalysisCompleted, Payload: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	n, err := f.dispatcher.ProcessDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := f.deliveries.List(ctx, model.DeliveryListOptions{OrganizationID: testutil.TestOrgID, WebhookID: good.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, d := range list {
		assert.Equal(t, model.DeliveryStatusSuccess, d.Status)
	}
}

func TestDeliveryDispatcher_GetDeliveryIsOrgScoped(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	dl, err := f.deliveries.Create(ctx, model.CreateDeliveryParams{
		WebhookID: uuid.NewString(), OrganizationID: testutil.OtherOrgID,
		Event: model.EventAnalysisCompleted, Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	_, err = f.dispatcher.GetDelivery(ctx, testutil.TestOrgID, dl.ID)
	assert.ErrorIs(t, err, model.ErrDeliveryNotFound)

	got, err := f.dispatcher.GetDelivery(ctx, testutil.OtherOrgID, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, dl.ID, got.ID)
}

func TestSnapshotBody(t *testing.T) {
	assert.Nil(t, snapshotBody(nil, false))
	assert.JSONEq(t, `{"a":1}`, string(snapshotBody([]byte(`{"a":1}`), false)))
	assert.JSONEq(t, `"plain text"`, string(snapshotBody([]byte("plain text"), false)))
	assert.JSONEq(t, `"{\"a\":"`, string(snapshotBody([]byte(`{"a":`), true)))

	data, truncated, err := readResponseBody(strings.NewReader(strings.Repeat("x", maxResponseBodyBytes+10)))
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, data, maxResponseBodyBytes)

	// An oversized body is only drained up to a bound.
	huge := strings.NewReader(strings.Repeat("y", maxResponseBodyBytes+maxResponseDrainBytes*4))
	_, truncated, err = readResponseBody(huge)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Positive(t, huge.Len())
}
