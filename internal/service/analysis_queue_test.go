package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/mocks"
	"github.com/target/mmk-analysis-api/internal/mocks/fakes"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

type queueFixture struct {
	svc       *AnalysisQueueService
	repo      *mocks.MockAnalysisJobRepository
	validator *fakes.Validator
	analyzer  *fakes.Analyzer
	events    *fakes.Publisher
	store     *fakes.MemoryIdempotencyStore
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &queueFixture{
		repo:      mocks.NewMockAnalysisJobRepository(ctrl),
		validator: &fakes.Validator{},
		analyzer:  &fakes.Analyzer{},
		events:    &fakes.Publisher{},
		store:     fakes.NewMemoryIdempotencyStore(),
	}
	f.svc = MustNewAnalysisQueueService(AnalysisQueueServiceOptions{
		Repo: f.repo,
		Config: AnalysisQueueConfig{
			EstimatedCredits:     10,
			EstimatedJobDuration: 2 * time.Minute,
			JobTimeout:           time.Second,
		},
		Validator:   f.validator,
		Analyzer:    f.analyzer,
		Events:      f.events,
		Idempotency: f.store,
		Now:         testutil.FixedTimeFunc(testutil.TestTime()),
	})
	return f
}

func pendingJob(orgID string) *model.AnalysisJob {
	now := testutil.TestTime()
	return &model.AnalysisJob{
		ID:             uuid.NewString(),
		OwnerID:        testutil.TestUserID,
		OrganizationID: orgID,
		RepositoryURL:  "https://github.com/acme/widgets",
		Status:         model.AnalysisStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func submitInput(url string) SubmitAnalysisInput {
	return SubmitAnalysisInput{
		Request:        model.SubmitAnalysisRequest{RepositoryURL: url},
		UserID:         testutil.TestUserID,
		OrganizationID: testutil.TestOrgID,
	}
}

func TestNewAnalysisQueueService_RequiresRepo(t *testing.T) {
	_, err := NewAnalysisQueueService(AnalysisQueueServiceOptions{})
	require.Error(t, err)
}

func TestAnalysisQueueService_Submit(t *testing.T) {
	t.Run("creates pending job", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		f.repo.EXPECT().
			Create(gomock.Any(), model.CreateAnalysisJobParams{
				OwnerID:        testutil.TestUserID,
				OrganizationID: testutil.TestOrgID,
				RepositoryURL:  "https://github.com/acme/widgets",
			}).
			Return(job, nil)

		res, err := f.svc.Submit(context.Background(), submitInput("https://github.com/acme/widgets.git"))
		require.NoError(t, err)
		assert.Equal(t, job.ID, res.JobID)
		assert.Equal(t, model.AnalysisStatusPending, res.Status)
		assert.Equal(t, 10, res.EstimatedCredits)
	})

	t.Run("rejects malformed urls without touching storage", func(t *testing.T) {
		f := newQueueFixture(t)
		for _, raw := range []string{"", "ftp://github.com/a/b", "https://github.com/only-owner", "https://10.0.0.1/a/b"} {
			_, err := f.svc.Submit(context.Background(), submitInput(raw))
			require.Error(t, err, raw)
			assert.True(t, apperrors.IsValidation(err), raw)
			assert.Equal(t, "repositoryUrl", apperrors.GetField(err), raw)
		}
	})

	t.Run("rejects invalid branch", func(t *testing.T) {
		f := newQueueFixture(t)
		in := submitInput("https://github.com/acme/widgets")
		in.Request.Branch = testutil.StringPtr(strings.Repeat("b", maxBranchLength+1))
		_, err := f.svc.Submit(context.Background(), in)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("requires identity", func(t *testing.T) {
		f := newQueueFixture(t)
		in := submitInput("https://github.com/acme/widgets")
		in.OrganizationID = ""
		_, err := f.svc.Submit(context.Background(), in)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("repeated idempotency key returns original job", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil).Times(1)
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)

		in := submitInput("https://github.com/acme/widgets")
		in.IdempotencyKey = "abc"
		first, err := f.svc.Submit(context.Background(), in)
		require.NoError(t, err)
		second, err := f.svc.Submit(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, first.JobID, second.JobID)
	})

	t.Run("failed create releases idempotency key", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		gomock.InOrder(
			f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down")),
			f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil),
		)

		in := submitInput("https://github.com/acme/widgets")
		in.IdempotencyKey = "abc"
		_, err := f.svc.Submit(context.Background(), in)
		require.Error(t, err)
		res, err := f.svc.Submit(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, job.ID, res.JobID)
	})
}

func TestAnalysisQueueService_GetStatus(t *testing.T) {
	t.Run("pending job reports position and eta", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
		f.repo.EXPECT().QueuePosition(gomock.Any(), job.ID).Return(3, 7, nil)

		view, err := f.svc.GetStatus(context.Background(), testutil.TestOrgID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, view.Progress)
		require.NotNil(t, view.QueuePosition)
		assert.Equal(t, 3, *view.QueuePosition)
		assert.Equal(t, int64(360), *view.EstimatedTimeRemainingSeconds)
		assert.Nil(t, view.Retryable)
	})

	t.Run("failed job reports error details", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		applyFailure(job, model.JobFailure{Message: "timeout", Code: "NETWORK_ERROR", Retryable: true}, testutil.TestTime())
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)

		view, err := f.svc.GetStatus(context.Background(), testutil.TestOrgID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, view.Progress)
		assert.Equal(t, "NETWORK_ERROR", *view.ErrorCode)
		assert.True(t, *view.Retryable)
		assert.Nil(t, view.QueuePosition)
	})

	t.Run("job finishing between reads omits position", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
		f.repo.EXPECT().QueuePosition(gomock.Any(), job.ID).Return(0, 0, model.ErrNotInQueue)

		view, err := f.svc.GetStatus(context.Background(), testutil.TestOrgID, job.ID)
		require.NoError(t, err)
		assert.Nil(t, view.QueuePosition)
	})

	t.Run("other organization is forbidden", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.OtherOrgID)
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)

		_, err := f.svc.GetStatus(context.Background(), testutil.TestOrgID, job.ID)
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		f := newQueueFixture(t)
		_, err := f.svc.GetStatus(context.Background(), testutil.TestOrgID, "not-a-uuid")
		assert.ErrorIs(t, err, model.ErrAnalysisNotFound)
	})
}

func TestAnalysisQueueService_GetQueuePosition(t *testing.T) {
	f := newQueueFixture(t)
	job := pendingJob(testutil.TestOrgID)
	f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
	f.repo.EXPECT().QueuePosition(gomock.Any(), job.ID).Return(2, 5, nil)

	pos, err := f.svc.GetQueuePosition(context.Background(), testutil.TestOrgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueuePosition{Position: 2, TotalInQueue: 5, EstimatedWaitSeconds: 240}, *pos)

	done := pendingJob(testutil.TestOrgID)
	done.Status = model.AnalysisStatusCompleted
	f.repo.EXPECT().GetByID(gomock.Any(), done.ID).Return(done, nil)
	_, err = f.svc.GetQueuePosition(context.Background(), testutil.TestOrgID, done.ID)
	assert.ErrorIs(t, err, model.ErrNotInQueue)
}

func reserved(job *model.AnalysisJob) *model.AnalysisJob {
	job.Status = model.AnalysisStatusProcessing
	started := testutil.TestTime()
	job.StartedAt = &started
	return job
}

func TestAnalysisQueueService_ProcessNext(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		f := newQueueFixture(t)
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(nil, model.ErrNoJobsAvailable)

		ok, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("completes job and publishes lifecycle", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.analyzer.Result = json.RawMessage(`{"score":42}`)

		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().
			SetRepositoryMetadata(gomock.Any(), job.ID, testutil.StringPtr("main"), testutil.StringPtr(fakes.DefaultCommitSHA)).
			Return(true, nil)
		f.repo.EXPECT().Complete(gomock.Any(), job.ID, json.RawMessage(`{"score":42}`)).Return(true, nil)

		ok, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []model.WebhookEvent{model.EventAnalysisStarted, model.EventAnalysisCompleted}, f.events.Events())

		completed := f.events.Payloads()[1]
		assert.Equal(t, model.AnalysisStatusCompleted, completed.Analysis.Status)
		assert.JSONEq(t, `{"score":42}`, string(completed.Analysis.Result))
		assert.Equal(t, "main", *completed.Analysis.Branch)
	})

	t.Run("late result after cancel is discarded", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().SetRepositoryMetadata(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).Return(true, nil)
		f.repo.EXPECT().Complete(gomock.Any(), job.ID, gomock.Any()).Return(false, nil)

		ok, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []model.WebhookEvent{model.EventAnalysisStarted}, f.events.Events())
	})

	t.Run("job cancelled before metadata write stops early", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.analyzer.AnalyzeFunc = func(context.Context, core.AnalyzeRequest) (json.RawMessage, error) {
			t.Fatal("analyzer must not run for a superseded job")
			return nil, nil
		}
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().SetRepositoryMetadata(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).Return(false, nil)

		ok, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("permanent validator failure", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.validator.ValidateFunc = func(context.Context, model.RepositoryRef, *string) (*model.RepositoryMetadata, error) {
			return nil, apperrors.Permanent(apperrors.KindRepoNotFound, nil, "repository acme/widgets not found")
		}
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().
			Fail(gomock.Any(), job.ID, model.AnalysisStatusProcessing, model.JobFailure{
				Message: "repository acme/widgets not found", Code: "REPO_NOT_FOUND", Retryable: false,
			}).
			Return(true, nil)

		_, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.WebhookEvent{model.EventAnalysisStarted, model.EventAnalysisFailed}, f.events.Events())
	})

	t.Run("analyzer deadline becomes processing timeout", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.analyzer.AnalyzeFunc = func(ctx context.Context, _ core.AnalyzeRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().SetRepositoryMetadata(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).Return(true, nil)
		f.repo.EXPECT().
			Fail(gomock.Any(), job.ID, model.AnalysisStatusProcessing, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ model.AnalysisStatus, failure model.JobFailure) (bool, error) {
				assert.Equal(t, string(apperrors.KindProcessingTimeout), failure.Code)
				assert.True(t, failure.Retryable)
				return true, nil
			})

		_, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
	})

	t.Run("untagged analyzer error is unknown and permanent", func(t *testing.T) {
		f := newQueueFixture(t)
		job := reserved(pendingJob(testutil.TestOrgID))
		f.analyzer.AnalyzeFunc = func(context.Context, core.AnalyzeRequest) (json.RawMessage, error) {
			return nil, errors.New("boom")
		}
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().SetRepositoryMetadata(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).Return(true, nil)
		f.repo.EXPECT().
			Fail(gomock.Any(), job.ID, model.AnalysisStatusProcessing,
				model.JobFailure{Message: "boom", Code: "UNKNOWN_ERROR", Retryable: false}).
			Return(true, nil)

		_, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
	})

	t.Run("publisher errors never affect the job", func(t *testing.T) {
		f := newQueueFixture(t)
		f.events.Err = errors.New("dispatcher down")
		job := reserved(pendingJob(testutil.TestOrgID))
		f.repo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
		f.repo.EXPECT().SetRepositoryMetadata(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).Return(true, nil)
		f.repo.EXPECT().Complete(gomock.Any(), job.ID, gomock.Any()).Return(true, nil)

		ok, err := f.svc.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestAnalysisQueueService_Cancel(t *testing.T) {
	cancelled := model.JobFailure{Message: cancelledMessage, Code: "CANCELLED", Retryable: true}

	t.Run("pending job", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
		f.repo.EXPECT().Fail(gomock.Any(), job.ID, model.AnalysisStatusPending, cancelled).Return(true, nil)

		view, err := f.svc.Cancel(context.Background(), testutil.TestOrgID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AnalysisStatusFailed, view.Status)
		assert.Equal(t, "CANCELLED", *view.ErrorCode)
		assert.Equal(t, cancelledMessage, *view.Error)
		assert.Equal(t, []model.WebhookEvent{model.EventAnalysisCancelled}, f.events.Events())
	})

	t.Run("retries after losing the race to a worker", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		picked := *job
		picked.Status = model.AnalysisStatusProcessing

		gomock.InOrder(
			f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil),
			f.repo.EXPECT().Fail(gomock.Any(), job.ID, model.AnalysisStatusPending, cancelled).Return(false, nil),
			f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(&picked, nil),
			f.repo.EXPECT().Fail(gomock.Any(), job.ID, model.AnalysisStatusProcessing, cancelled).Return(true, nil),
		)

		view, err := f.svc.Cancel(context.Background(), testutil.TestOrgID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AnalysisStatusFailed, view.Status)
	})

	t.Run("terminal job is an invalid transition", func(t *testing.T) {
		f := newQueueFixture(t)
		job := pendingJob(testutil.TestOrgID)
		job.Status = model.AnalysisStatusCompleted
		f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)

		_, err := f.svc.Cancel(context.Background(), testutil.TestOrgID, job.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Empty(t, f.events.Events())
	})
}

func TestAnalysisQueueService_SubscribeWithoutNotifier(t *testing.T) {
	f := newQueueFixture(t)
	unsubscribe, ch := f.svc.Subscribe()
	assert.Nil(t, ch)
	unsubscribe()
}
