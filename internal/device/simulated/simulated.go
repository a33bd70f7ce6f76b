// Package simulated provides in-process implementations of device.Scanner.
//
// Simulator emits a fixed set of beacons on a ticker, mixed with the kind of
// unrelated advertisements a real radio picks up. Manual hands control of
// every event to the caller and is meant for tests.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/groutine"
)

// Beacon describes one simulated transmitter.
type Beacon struct {
	Identity      beacon.Identity
	Address       string
	RSSI          int
	MeasuredPower int8
}

// DefaultBeacons is the set used by `beaconpair scan --simulate`.
var DefaultBeacons = []Beacon{
	{Identity: beacon.Identity{UUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Major: 1, Minor: 1}, Address: "sim:00:01", RSSI: -52, MeasuredPower: -59},
	{Identity: beacon.Identity{UUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Major: 1, Minor: 2}, Address: "sim:00:02", RSSI: -67, MeasuredPower: -59},
	{Identity: beacon.Identity{UUID: "f7826da6-4fa2-4e98-8024-bc5b71e0893e", Major: 100, Minor: 7}, Address: "sim:00:03", RSSI: -80, MeasuredPower: -65},
}

// Simulator is a device.Scanner that periodically advertises its beacons.
type Simulator struct {
	beacons  []Beacon
	interval time.Duration
	noise    bool
	startErr error
	now      func() time.Time
	logger   *logrus.Logger

	mu     sync.Mutex
	active int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithBeacons replaces the simulated transmitters.
func WithBeacons(beacons ...Beacon) Option {
	return func(s *Simulator) { s.beacons = beacons }
}

// WithInterval sets the advertising interval.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) { s.interval = d }
}

// WithNoise mixes non-beacon advertisements into every round.
func WithNoise(enabled bool) Option {
	return func(s *Simulator) { s.noise = enabled }
}

// WithStartError makes every StartScan fail with err.
func WithStartError(err error) Option {
	return func(s *Simulator) { s.startErr = err }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// New creates a Simulator advertising DefaultBeacons every 200ms.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		beacons:  DefaultBeacons,
		interval: 200 * time.Millisecond,
		noise:    true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	return s
}

// Active returns the number of running subscriptions.
func (s *Simulator) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StartScan implements device.Scanner.
func (s *Simulator) StartScan(ctx context.Context, _ device.ScanOptions, handler func(device.Event)) (device.Subscription, error) {
	if s.startErr != nil {
		return nil, device.NormalizeError(s.startErr)
	}

	frames := make([][]byte, len(s.beacons))
	for i, b := range s.beacons {
		raw, err := beacon.ManufacturerData(b.Identity, b.MeasuredPower)
		if err != nil {
			return nil, fmt.Errorf("simulated beacon %d: %w", i, err)
		}
		frames[i] = raw
	}

	scanCtx, cancel := context.WithCancel(ctx)
	feed := device.NewFeed(cancel)

	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	groutine.Go(scanCtx, "simulated-scan", func(ctx context.Context) {
		defer func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			s.advertise(feed, handler, frames)
			select {
			case <-ctx.Done():
				feed.Finish(ctx.Err())
				return
			case <-ticker.C:
			}
		}
	})

	s.logger.WithField("beacons", len(s.beacons)).Debug("Simulated scan started")
	return feed, nil
}

func (s *Simulator) advertise(feed *device.Feed, handler func(device.Event), frames [][]byte) {
	for i, b := range s.beacons {
		feed.Deliver(handler, device.NewEvent(&advertisement{
			addr:  b.Address,
			rssi:  b.RSSI,
			manuf: frames[i],
		}, s.now()))
	}
	if !s.noise {
		return
	}
	for _, adv := range noise {
		feed.Deliver(handler, device.NewEvent(adv, s.now()))
	}
}

// noise is what a busy room looks like besides beacons: other vendors,
// truncated records and advertisements without manufacturer data.
var noise = []*advertisement{
	{name: "headphones", addr: "sim:ff:01", rssi: -70, manuf: []byte{0x06, 0x00, 0x01, 0x09, 0x20, 0x02}},
	{name: "watch", addr: "sim:ff:02", rssi: -75, manuf: []byte{0x4C, 0x00, 0x10, 0x05, 0x01, 0x18}},
	{name: "sensor", addr: "sim:ff:03", rssi: -90},
}

type advertisement struct {
	name  string
	addr  string
	rssi  int
	manuf []byte
}

func (a *advertisement) LocalName() string        { return a.name }
func (a *advertisement) ManufacturerData() []byte { return a.manuf }
func (a *advertisement) RSSI() int                { return a.rssi }
func (a *advertisement) Addr() string             { return a.addr }
