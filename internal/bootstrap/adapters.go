package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/adapters/analysisworker"
	"github.com/target/mmk-analysis-api/internal/adapters/deliveryrunner"
	"github.com/target/mmk-analysis-api/internal/adapters/reaper"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
)

// AnalysisWorkerConfig contains configuration for the analysis worker.
type AnalysisWorkerConfig struct {
	Queue        analysisworker.Queue
	Logger       *slog.Logger
	Concurrency  int
	PollInterval time.Duration
}

// RunAnalysisWorker drains the analysis queue until ctx ends.
func RunAnalysisWorker(ctx context.Context, cfg AnalysisWorkerConfig) error {
	w, err := analysisworker.New(analysisworker.Options{
		Queue:        cfg.Queue,
		Logger:       cfg.Logger,
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("create analysis worker: %w", err)
	}
	return w.Run(ctx)
}

// DeliveryRunnerConfig contains configuration for the webhook delivery runner.
type DeliveryRunnerConfig struct {
	Dispatcher   deliveryrunner.Dispatcher
	Notifier     queue.Notifier
	Logger       *slog.Logger
	PollInterval time.Duration
	BatchSize    int
}

// RunDeliveryRunner attempts due webhook deliveries until ctx ends.
func RunDeliveryRunner(ctx context.Context, cfg DeliveryRunnerConfig) error {
	r, err := deliveryrunner.New(deliveryrunner.Options{
		Dispatcher:   cfg.Dispatcher,
		Notifier:     cfg.Notifier,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create delivery runner: %w", err)
	}
	return r.Run(ctx)
}

// ReaperConfig contains configuration for the retention reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Repo    core.RetentionRepository
	Events  core.EventPublisher
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// NewReaperRunner builds the reaper used by the service loop and the admin CLI.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Repo:    cfg.Repo,
		Events:  cfg.Events,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
