// Package scan owns the lifecycle of a beacon scanning session.
//
// A Session acquires the scanning capability, decodes every advertisement it
// receives and folds repeats of the same beacon into one freshness-tracked
// entry of its discovery table.
//
//	Idle --Start--> Scanning --Stop--> Stopped
//	                   |  ^               |
//	        start err  |  +-----Start-----+
//	                   v  |
//	                 Failed
//
// Every Start bumps a generation counter that is captured by the event
// handler of the subscription it creates. Stop bumps it again under the same
// lock the handler takes, so events of an earlier subscription that the host
// already queued are discarded instead of mutating the table.
package scan

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/groutine"
	"github.com/srg/beaconpair/internal/ringchan"
)

// DefaultUpdateBuffer is the capacity of the update channel.
const DefaultUpdateBuffer = 256

// Session is one scan session. The zero value is not usable; use NewSession.
type Session struct {
	scanner device.Scanner
	opts    device.ScanOptions
	logger  *logrus.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	err    error
	gen    uint64
	sub    device.Subscription
	closed bool
	table  *hashmap.Map[string, DiscoveredBeacon]

	updates *ringchan.RingChannel[Update]
	stats   counters
}

type counters struct {
	events, ignored, rejected, decoded, stale atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithScanOptions sets the options passed to the scanner on every Start.
func WithScanOptions(opts device.ScanOptions) Option {
	return func(s *Session) { s.opts = opts }
}

// WithUpdateBuffer sets the capacity of the Updates channel.
func WithUpdateBuffer(n int) Option {
	return func(s *Session) { s.updates = ringchan.New[Update](n) }
}

// WithClock sets the time source used for events that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates an Idle session scanning through scanner.
func NewSession(scanner device.Scanner, opts ...Option) *Session {
	s := &Session{
		scanner: scanner,
		opts:    device.ScanOptions{AllowDuplicates: true, StartGrace: 250 * time.Millisecond},
		now:     time.Now,
		state:   Idle,
		table:   hashmap.New[string, DiscoveredBeacon](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.updates == nil {
		s.updates = ringchan.New[Update](DefaultUpdateBuffer)
	}
	return s
}

// Start begins a new scan. A scan already running is terminated first. The
// discovery table and error are reset. If the scanner cannot be acquired the
// session moves to Failed and the error is returned; there is no retry.
//
// ctx bounds the scan: when it is done the scan ends and the session moves to Stopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.sub
	s.sub = nil
	s.gen++
	gen := s.gen
	s.table = hashmap.New[string, DiscoveredBeacon]()
	s.err = nil
	s.state = Scanning
	s.mu.Unlock()

	if prev != nil {
		s.logger.Debug("Terminating previous scan subscription")
		prev.Stop()
	}

	s.logger.WithField("generation", gen).Info("Starting beacon scan...")

	sub, err := s.scanner.StartScan(ctx, s.opts, func(ev device.Event) {
		s.handle(gen, ev)
	})

	s.mu.Lock()
	if gen != s.gen {
		// Stopped, closed or restarted while the radio was being acquired.
		s.mu.Unlock()
		if sub != nil {
			sub.Stop()
		}
		if err != nil {
			return err
		}
		return ErrInterrupted
	}
	if err != nil {
		s.state = Failed
		s.err = err
		s.gen++
		s.mu.Unlock()
		s.logger.WithError(err).Warn("Beacon scan failed to start")
		return err
	}
	s.sub = sub
	s.mu.Unlock()

	groutine.Go(context.Background(), "scan-session-watch", func(context.Context) {
		s.watch(gen, sub)
	})
	return nil
}

// watch moves the session out of Scanning when the subscription ends on its own.
func (s *Session) watch(gen uint64, sub device.Subscription) {
	<-sub.Done()
	err := sub.Err()

	s.mu.Lock()
	if gen != s.gen || s.state != Scanning {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.sub = nil
	switch {
	case err == nil:
		s.state = Stopped
	case errors.Is(err, device.ErrPreempted):
		s.state = Stopped
		s.err = err
	default:
		s.state = Failed
		s.err = err
	}
	state := s.state
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"state": state.String(),
		"error": err,
	}).Info("Beacon scan ended")
}

// handle applies one advertisement of subscription gen to the discovery table.
func (s *Session) handle(gen uint64, ev device.Event) {
	s.stats.events.Add(1)

	payload, ok := ev.VendorData[beacon.CompanyID]
	if !ok {
		s.stats.ignored.Add(1)
		return
	}
	id, ok := beacon.Decode(beacon.CompanyID, payload)
	if !ok {
		s.stats.rejected.Add(1)
		s.logger.WithField("address", ev.Address).Debug("Ignoring non-beacon vendor data")
		return
	}

	at := ev.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	key := id.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != Scanning {
		s.stats.stale.Add(1)
		return
	}
	s.stats.decoded.Add(1)

	entry, found := s.table.Get(string(key))
	update := Update{Type: UpdateSeen}
	if !found {
		entry = DiscoveredBeacon{
			Identity:    id,
			Key:         key,
			FirstSeenAt: at,
			LastSeenAt:  at,
		}
		update.Type = UpdateNew
		s.logger.WithFields(logrus.Fields{
			"key":     key,
			"address": ev.Address,
			"rssi":    ev.RSSI,
		}).Info("Discovered new beacon")
	} else if at.After(entry.LastSeenAt) {
		entry.LastSeenAt = at
	}
	entry.Address = ev.Address
	entry.RSSI = ev.RSSI
	entry.Count++
	s.table.Set(string(key), entry)

	update.Beacon = entry
	s.updates.Send(update)
}

// Stop ends the running scan and releases the scanner. Once Stop returns no
// further table changes happen. Calling Stop when not Scanning is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = Stopped
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	s.logger.Info("Beacon scan stopped")
}

// Close stops the session for good and closes the Updates channel.
// Owners call it when they discard the session.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.updates.Close()
}

// Observe returns a snapshot of the discovery table.
func (s *Session) Observe() map[beacon.Key]DiscoveredBeacon {
	s.mu.Lock()
	table := s.table
	s.mu.Unlock()

	out := make(map[beacon.Key]DiscoveredBeacon, table.Len())
	table.Range(func(key string, value DiscoveredBeacon) bool {
		out[beacon.Key(key)] = value
		return true
	})
	return out
}

// Beacons returns the snapshot of Observe sorted by key.
func (s *Session) Beacons() []DiscoveredBeacon {
	snapshot := s.Observe()
	out := make([]DiscoveredBeacon, 0, len(snapshot))
	for _, b := range snapshot {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup returns the discovered entry for key, if present.
func (s *Session) Lookup(key beacon.Key) (DiscoveredBeacon, bool) {
	s.mu.Lock()
	table := s.table
	s.mu.Unlock()
	return table.Get(string(key))
}

// Updates returns the channel of table changes. Slow readers lose the oldest
// updates rather than stalling the scan. The channel is closed by Close.
func (s *Session) Updates() <-chan Update {
	return s.updates.C()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns why the session last failed or was preempted, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Events:         s.stats.events.Load(),
		Ignored:        s.stats.ignored.Load(),
		Rejected:       s.stats.rejected.Load(),
		Decoded:        s.stats.decoded.Load(),
		Stale:          s.stats.stale.Load(),
		UpdatesDropped: s.updates.GetMetrics().Overwritten,
	}
}
