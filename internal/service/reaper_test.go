package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/mocks"
	"github.com/target/mmk-analysis-api/internal/mocks/fakes"
	"github.com/target/mmk-analysis-api/internal/testutil"
)

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:          time.Minute,
		ProcessingTimeout: 15 * time.Minute,
		CompletedJobTTL:   720 * time.Hour,
		FailedJobTTL:      720 * time.Hour,
		DeliveredTTL:      168 * time.Hour,
		FailedDeliveryTTL: 720 * time.Hour,
		BatchSize:         2,
	}
}

// recordingSink captures metric names for assertions.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (r *recordingSink) Count(name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
}

func (r *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func TestNewReaperService_Validation(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: reaperConfig()})
	require.Error(t, err)

	repo := mocks.NewMockRetentionRepository(gomock.NewController(t))
	_, err = NewReaperService(ReaperServiceOptions{Repo: repo})
	require.Error(t, err)
}

func TestReaperService_RunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRetentionRepository(ctrl)
	events := &fakes.Publisher{}
	sink := newRecordingSink()
	cfg := reaperConfig()

	stale := []*model.AnalysisJob{failedJob(testutil.TestOrgID, "WORKER_LOST", true, 0), failedJob(testutil.TestOrgID, "WORKER_LOST", true, 0)}
	gomock.InOrder(
		repo.EXPECT().
			FailStaleProcessing(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p core.FailStaleProcessingParams) ([]*model.AnalysisJob, error) {
				assert.Equal(t, cfg.ProcessingTimeout, p.MaxAge)
				assert.Equal(t, "WORKER_LOST", p.Failure.Code)
				assert.True(t, p.Failure.Retryable)
				return stale, nil
			}),
		repo.EXPECT().FailStaleProcessing(gomock.Any(), gomock.Any()).Return(nil, nil),
	)

	// A full batch triggers another sweep; a short one ends the step.
	completed := core.DeleteOlderThanParams{Status: "completed", MaxAge: cfg.CompletedJobTTL, BatchSize: 2}
	failed := core.DeleteOlderThanParams{Status: "failed", MaxAge: cfg.FailedJobTTL, BatchSize: 2}
	gomock.InOrder(
		repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), completed).Return(int64(2), nil),
		repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), completed).Return(int64(1), nil),
	)
	repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), failed).Return(int64(0), nil)
	repo.EXPECT().
		DeleteDeliveriesOlderThan(gomock.Any(), core.DeleteOlderThanParams{Status: "success", MaxAge: cfg.DeliveredTTL, BatchSize: 2}).
		Return(int64(1), nil)
	repo.EXPECT().
		DeleteDeliveriesOlderThan(gomock.Any(), core.DeleteOlderThanParams{Status: "failed", MaxAge: cfg.FailedDeliveryTTL, BatchSize: 2}).
		Return(int64(0), nil)

	svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg, Events: events, Metrics: sink})
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.StaleProcessing)
	assert.Equal(t, int64(3), report.CompletedJobs)
	assert.Equal(t, int64(0), report.FailedJobs)
	assert.Equal(t, int64(1), report.DeliveredDelivery)
	assert.Equal(t, int64(6), report.Total())

	assert.Equal(t, []model.WebhookEvent{model.EventAnalysisFailed, model.EventAnalysisFailed}, events.Events())
	assert.Equal(t, int64(1), sink.counts["reaper.cleanup"])
	assert.Equal(t, int64(5), sink.counts["reaper.cleanup_operation"])
	assert.Contains(t, sink.gauges, "reaper.last_success_epoch")
}

func TestReaperService_RunOnceContinuesAfterStepError(t *testing.T) {
	repo := mocks.NewMockRetentionRepository(gomock.NewController(t))
	sink := newRecordingSink()

	repo.EXPECT().FailStaleProcessing(gomock.Any(), gomock.Any()).Return(nil, errors.New("lock timeout"))
	repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)
	repo.EXPECT().DeleteDeliveriesOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)

	svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Metrics: sink})
	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail stale processing jobs")
	assert.NotContains(t, sink.gauges, "reaper.last_success_epoch")
}

func TestReaperService_RunOnceCancelled(t *testing.T) {
	repo := mocks.NewMockRetentionRepository(gomock.NewController(t))
	repo.EXPECT().FailStaleProcessing(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)
	repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled).Times(2)
	repo.EXPECT().DeleteDeliveriesOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled).Times(2)

	svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})
	_, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	repo := mocks.NewMockRetentionRepository(gomock.NewController(t))
	repo.EXPECT().FailStaleProcessing(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	repo.EXPECT().DeleteJobsOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteDeliveriesOlderThan(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
