// Package reaper provides adapters for running the retention reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/data"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
	"github.com/target/mmk-analysis-api/internal/service"
)

// Runner wires the retention repository into a ReaperService and runs its loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Events announces jobs the reaper fails. Optional.
	Events core.EventPublisher

	// Optional dependency injection for testing/decoupling
	Repo    core.RetentionRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewRetentionRepo(opts.DB, data.RepoConfig{})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Events:  opts.Events,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: svc, logger: opts.Logger}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single retention pass, used by the admin CLI.
func (r *Runner) RunOnce(ctx context.Context) (service.CleanupReport, error) {
	return r.reaper.RunOnce(ctx)
}
