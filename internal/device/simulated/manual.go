package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/device"
)

// Manual is a device.Scanner driven entirely by the caller.
type Manual struct {
	mu       sync.Mutex
	startErr error
	subs     []*manualSub
	starts   int
}

type manualSub struct {
	feed    *device.Feed
	handler func(device.Event)
}

// NewManual creates a Manual scanner.
func NewManual() *Manual {
	return &Manual{}
}

// FailNextStarts makes StartScan return err until cleared with nil.
func (m *Manual) FailNextStarts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// StartScan implements device.Scanner.
func (m *Manual) StartScan(_ context.Context, _ device.ScanOptions, handler func(device.Event)) (device.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if m.startErr != nil {
		return nil, device.NormalizeError(m.startErr)
	}
	feed := device.NewFeed(nil)
	m.subs = append(m.subs, &manualSub{feed: feed, handler: handler})
	return &manualSubscription{Feed: feed}, nil
}

// Starts returns how many times StartScan was called.
func (m *Manual) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Live returns the number of subscriptions that have not ended.
func (m *Manual) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		select {
		case <-s.feed.Done():
		default:
			n++
		}
	}
	return n
}

// Emit delivers ev through the newest subscription. It reports whether a handler ran.
func (m *Manual) Emit(ev device.Event) bool {
	sub := m.latest()
	if sub == nil {
		return false
	}
	return sub.feed.Deliver(sub.handler, ev)
}

// EmitBeacon emits a well-formed beacon advertisement for id seen at the given time.
func (m *Manual) EmitBeacon(id beacon.Identity, at time.Time) bool {
	return m.Emit(BeaconEvent(id, at))
}

// EmitLate calls the handler of subscription i directly, bypassing the stop
// check, the way a host that already queued the event would.
func (m *Manual) EmitLate(i int, ev device.Event) {
	m.mu.Lock()
	sub := m.subs[i]
	m.mu.Unlock()
	sub.handler(ev)
}

// Fail ends the newest subscription with err, as a radio dropping out would.
func (m *Manual) Fail(err error) {
	if sub := m.latest(); sub != nil {
		sub.feed.Finish(device.NormalizeError(err))
	}
}

func (m *Manual) latest() *manualSub {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return nil
	}
	return m.subs[len(m.subs)-1]
}

// manualSubscription finishes the feed on Stop since no producer goroutine does.
type manualSubscription struct {
	*device.Feed
}

func (s *manualSubscription) Stop() {
	s.Feed.Finish(nil)
	s.Feed.Stop()
}

// BeaconEvent builds the event a radio reports for a beacon advertising id.
// It panics if id.UUID is malformed.
func BeaconEvent(id beacon.Identity, at time.Time) device.Event {
	payload, err := beacon.Encode(id, -59)
	if err != nil {
		panic(err)
	}
	return device.Event{
		Address:    "manual:" + string(id.Key()),
		RSSI:       -60,
		VendorData: map[uint16][]byte{beacon.CompanyID: payload},
		ReceivedAt: at,
	}
}
