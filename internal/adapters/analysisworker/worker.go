// Package analysisworker runs the long-lived loop that drains the analysis queue.
package analysisworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Queue is the subset of the analysis queue service the worker drives.
type Queue interface {
	ProcessNext(ctx context.Context) (bool, error)
	Subscribe() (func(), <-chan struct{})
}

// Options configures a Worker.
type Options struct {
	Queue  Queue
	Logger *slog.Logger
	// Concurrency is the number of jobs processed in parallel; defaults to 1.
	Concurrency int
	// PollInterval bounds how long an idle worker waits without a notification; defaults to 5s.
	PollInterval time.Duration
}

// Worker reserves and processes analysis jobs until its context ends.
type Worker struct {
	queue        Queue
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration
}

// New builds a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Queue == nil {
		return nil, errors.New("analysis queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Worker{
		queue:        opts.Queue,
		logger:       logger.With("component", "analysis_worker"),
		workers:      workers,
		pollInterval: poll,
	}, nil
}

// Run starts the worker goroutines. It returns nil on cancellation and the
// first storage error otherwise, which stops every goroutine.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "starting analysis worker", "workers", w.workers, "poll_interval", w.pollInterval)

	unsub, notify := w.queue.Subscribe()
	defer unsub()

	g, gctx := errgroup.WithContext(ctx)
	for range w.workers {
		g.Go(func() error { return w.loop(gctx, notify) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		w.logger.InfoContext(context.WithoutCancel(ctx), "analysis worker stopped")
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		processed, err := w.queue.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("process next analysis: %w", err)
		}
		if processed {
			continue
		}
		if !w.wait(ctx, notify) {
			return nil
		}
	}
	return nil
}

// wait blocks until a notification, the poll interval, or cancellation.
// A nil notify channel never fires, so polling alone drives the loop.
func (w *Worker) wait(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}
