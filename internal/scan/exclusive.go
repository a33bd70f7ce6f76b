package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/groutine"
)

// Exclusive wraps scanner so that at most one subscription is live at a time.
// Starting a scan preempts the current holder, whose subscription ends with
// device.ErrPreempted. Sessions sharing one radio should share one Exclusive.
//
// When StartScan returns, the previous subscription is already stopped and
// its Done channel closed. A Session owning it moves out of Scanning once its
// watcher observes Done, which happens asynchronously, so its State may still
// read Scanning for a short time. Its table no longer changes in that window.
func Exclusive(scanner device.Scanner) device.Scanner {
	return &exclusive{inner: scanner}
}

type exclusive struct {
	inner device.Scanner

	startMu sync.Mutex // serializes StartScan
	mu      sync.Mutex
	holder  *heldSubscription
}

func (e *exclusive) StartScan(ctx context.Context, opts device.ScanOptions, handler func(device.Event)) (device.Subscription, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	prev := e.holder
	e.holder = nil
	e.mu.Unlock()
	if prev != nil {
		prev.preempt()
	}

	sub, err := e.inner.StartScan(ctx, opts, handler)
	if err != nil {
		return nil, err
	}

	held := &heldSubscription{inner: sub, owner: e, done: make(chan struct{})}
	groutine.Go(context.Background(), "exclusive-follow", func(context.Context) { held.follow() })

	e.mu.Lock()
	e.holder = held
	e.mu.Unlock()
	return held, nil
}

func (e *exclusive) release(h *heldSubscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == h {
		e.holder = nil
	}
}

type heldSubscription struct {
	inner     device.Subscription
	owner     *exclusive
	preempted atomic.Bool

	once sync.Once
	done chan struct{}
	err  error
}

func (h *heldSubscription) follow() {
	<-h.inner.Done()
	err := h.inner.Err()
	if h.preempted.Load() {
		err = device.ErrPreempted
	}
	h.finish(err)
	h.owner.release(h)
}

func (h *heldSubscription) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *heldSubscription) preempt() {
	h.preempted.Store(true)
	h.inner.Stop()
	h.finish(device.ErrPreempted)
}

func (h *heldSubscription) Stop() {
	h.inner.Stop()
	h.finish(nil)
	h.owner.release(h)
}

func (h *heldSubscription) Done() <-chan struct{} {
	return h.done
}

func (h *heldSubscription) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
