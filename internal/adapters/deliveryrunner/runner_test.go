package deliveryrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-analysis-api/internal/domain/queue"
)

type stubDispatcher struct {
	mu      sync.Mutex
	results []int
	errs    []error
	batches []int
}

func (d *stubDispatcher) ProcessDue(_ context.Context, batch int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, batch)
	i := len(d.batches) - 1
	if i < len(d.errs) && d.errs[i] != nil {
		return 0, d.errs[i]
	}
	if i < len(d.results) {
		return d.results[i], nil
	}
	return 0, nil
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func TestNew_RequiresDispatcher(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRunner_DrainsFullBatchesImmediately(t *testing.T) {
	d := &stubDispatcher{results: []int{4, 4, 1}}
	r, err := New(Options{Dispatcher: d, BatchSize: 4, PollInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Two full batches then a short one, all before the first tick.
	assert.Eventually(t, func() bool { return d.callCount() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []int{4, 4, 4}, d.batches)
}

func TestRunner_ErrorWaitsForNextTick(t *testing.T) {
	d := &stubDispatcher{errs: []error{errors.New("db down")}, results: []int{0, 0}}
	r, err := New(Options{Dispatcher: d, BatchSize: 2, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return d.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

type stubNotifier struct {
	ch       chan struct{}
	channels []queue.Channel
	unsubbed bool
}

func (n *stubNotifier) Subscribe(channel queue.Channel) (func(), <-chan struct{}) {
	n.channels = append(n.channels, channel)
	return func() { n.unsubbed = true }, n.ch
}

func (n *stubNotifier) StopAll() {}

func TestRunner_WakesOnNotification(t *testing.T) {
	d := &stubDispatcher{}
	n := &stubNotifier{ch: make(chan struct{}, 1)}
	r, err := New(Options{Dispatcher: d, BatchSize: 4, PollInterval: time.Hour, Notifier: n})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return d.callCount() == 1 }, time.Second, 5*time.Millisecond)
	n.ch <- struct{}{}
	assert.Eventually(t, func() bool { return d.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []queue.Channel{queue.ChannelWebhookDeliveries}, n.channels)
	assert.True(t, n.unsubbed)
}
