// Package queue holds the wake-up plumbing shared by the analysis worker and the delivery runner.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Channel names a Postgres NOTIFY channel.
type Channel string

const (
	// ChannelAnalysisJobs is notified when a job becomes pending.
	ChannelAnalysisJobs Channel = "analysis_jobs"
	// ChannelWebhookDeliveries is notified when a delivery becomes due.
	ChannelWebhookDeliveries Channel = "webhook_deliveries"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a notification arrives on channel or ctx ends.
type Waiter interface {
	WaitForNotification(ctx context.Context, channel Channel) error
}

// Notifier fans notifications out to in-process subscribers.
type Notifier interface {
	Subscribe(channel Channel) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// DefaultNotifier runs one listener goroutine per channel with subscribers.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[Channel]map[chan struct{}]struct{}
	listeners map[Channel]context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[Channel]map[chan struct{}]struct{}),
		listeners:  make(map[Channel]context.CancelFunc),
	}, nil
}

// Subscribe returns an unsubscribe func and a channel that receives a value
// (coalesced) whenever the listener wakes up.
func (n *DefaultNotifier) Subscribe(channel Channel) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[channel]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		n.listeners[channel] = cancel
		go n.listenLoop(ctx, channel)
	}

	ch := make(chan struct{}, 1)
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[chan struct{}]struct{})
	}
	n.subs[channel][ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[channel]
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			if cancel, ok := n.listeners[channel]; ok {
				cancel()
				delete(n.listeners, channel)
			}
			delete(n.subs, channel)
		}
	}

	return unsub, ch
}

// StopAll cancels every listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for channel, cancel := range n.listeners {
		cancel()
		delete(n.listeners, channel)
	}
	for channel, subscribers := range n.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(n.subs, channel)
	}
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, channel Channel) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, channel)
		cancel()

		// Broadcast on timeout too so subscribers fall back to polling.
		n.broadcast(channel)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(channel Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[channel] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notification before closing so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
