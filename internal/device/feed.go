package device

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Feed.Stop waits for the producer to exit.
const DefaultStopTimeout = 2 * time.Second

// Feed is the Subscription used by Scanner implementations. The producer
// goroutine hands every event to Deliver and calls Finish when the scan ends.
//
// Deliver and Stop serialize on the same lock, so once Stop has returned no
// handler invocation is in flight and none will start.
type Feed struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool

	done     chan struct{}
	finish   sync.Once
	err      error
	stopWait time.Duration
}

// NewFeed creates a Feed whose Stop cancels the producer through cancel.
func NewFeed(cancel context.CancelFunc) *Feed {
	if cancel == nil {
		cancel = func() {}
	}
	return &Feed{
		cancel:   cancel,
		done:     make(chan struct{}),
		stopWait: DefaultStopTimeout,
	}
}

// Deliver invokes handler with ev unless the feed has been stopped.
// It reports whether the handler ran.
func (f *Feed) Deliver(handler func(Event), ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	handler(ev)
	return true
}

// Finish records the terminal scan error and closes Done.
// Cancellation is a clean stop and is recorded as nil. Only the first call has effect.
func (f *Feed) Finish(err error) {
	f.finish.Do(func() {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		f.mu.Lock()
		f.err = err
		f.stopped = true
		f.mu.Unlock()
		close(f.done)
	})
}

// Stop implements Subscription.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.cancel()

	timer := time.NewTimer(f.stopWait)
	defer timer.Stop()
	select {
	case <-f.done:
	case <-timer.C:
		f.Finish(nil)
	}
}

// Done implements Subscription.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err implements Subscription.
func (f *Feed) Err() error {
	select {
	case <-f.done:
	default:
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
