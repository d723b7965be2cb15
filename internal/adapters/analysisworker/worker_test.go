package analysisworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct {
	mu      sync.Mutex
	pending int
	err     error
	calls   atomic.Int32
	notify  chan struct{}
	unsubs  atomic.Int32
}

func (q *stubQueue) ProcessNext(context.Context) (bool, error) {
	q.calls.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false, q.err
	}
	if q.pending == 0 {
		return false, nil
	}
	q.pending--
	return true, nil
}

func (q *stubQueue) Subscribe() (func(), <-chan struct{}) {
	return func() { q.unsubs.Add(1) }, q.notify
}

func (q *stubQueue) add(n int) {
	q.mu.Lock()
	q.pending += n
	q.mu.Unlock()
}

func (q *stubQueue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func TestNew_RequiresQueue(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestWorker_DrainsQueueAndStops(t *testing.T) {
	q := &stubQueue{pending: 5}
	w, err := New(Options{Queue: q, Concurrency: 2, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	cancel, done := runWorker(t, w)
	assert.Eventually(t, func() bool { return q.remaining() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Polling picks up work submitted while idle.
	q.add(2)
	assert.Eventually(t, func() bool { return q.remaining() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(1), q.unsubs.Load())
}

func TestWorker_WakesOnNotification(t *testing.T) {
	q := &stubQueue{notify: make(chan struct{}, 1)}
	w, err := New(Options{Queue: q, PollInterval: time.Hour})
	require.NoError(t, err)

	cancel, done := runWorker(t, w)
	defer func() {
		cancel()
		<-done
	}()

	assert.Eventually(t, func() bool { return q.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	q.add(1)
	q.notify <- struct{}{}
	assert.Eventually(t, func() bool { return q.remaining() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWorker_StorageErrorStopsRun(t *testing.T) {
	q := &stubQueue{err: errors.New("connection refused")}
	w, err := New(Options{Queue: q, Concurrency: 3})
	require.NoError(t, err)

	_, done := runWorker(t, w)
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return the storage error")
	}
}
