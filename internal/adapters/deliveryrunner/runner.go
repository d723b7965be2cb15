// Package deliveryrunner polls for due webhook deliveries and attempts them.
package deliveryrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-analysis-api/internal/domain/queue"
)

// Dispatcher is the subset of the delivery dispatcher the runner drives.
type Dispatcher interface {
	ProcessDue(ctx context.Context, batch int) (int, error)
}

// Options configures a Runner.
type Options struct {
	Dispatcher   Dispatcher
	PollInterval time.Duration
	BatchSize    int
	Logger       *slog.Logger

	// Notifier wakes the runner when a delivery is created. Optional.
	Notifier queue.Notifier
}

// Runner polls ProcessDue on a fixed interval or on a notifier wake-up. A
// full batch is followed immediately by another poll so backlogs drain
// without waiting.
type Runner struct {
	dispatcher Dispatcher
	notifier   queue.Notifier
	interval   time.Duration
	batch      int
	logger     *slog.Logger
}

// New builds a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("delivery dispatcher is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 32
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		interval:   interval,
		batch:      batch,
		logger:     logger.With("component", "delivery_runner"),
	}, nil
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting delivery runner", "interval", r.interval, "batch_size", r.batch)

	var wake <-chan struct{}
	if r.notifier != nil {
		unsub, ch := r.notifier.Subscribe(queue.ChannelWebhookDeliveries)
		defer unsub()
		wake = ch
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.WithoutCancel(ctx), "delivery runner stopped")
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.dispatcher.ProcessDue(ctx, r.batch)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "process due deliveries", "error", err)
			}
			return
		}
		if n < r.batch {
			return
		}
	}
}
