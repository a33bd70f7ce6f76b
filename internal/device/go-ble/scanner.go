package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/groutine"
)

// DeviceFactory opens the host BLE adapter. This is a variable so that it can be overridden in tests.
var DeviceFactory = newPlatformDevice

// Scanner implements device.Scanner on top of a go-ble device.
// The adapter is opened lazily on the first StartScan and reused afterwards.
type Scanner struct {
	logger *logrus.Logger
	now    func() time.Time

	mu  sync.Mutex
	dev ble.Device
}

// NewScanner creates a go-ble backed device.Scanner.
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger, now: time.Now}
}

func (s *Scanner) device() (ble.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return s.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, acquireError(err)
	}
	s.dev = dev
	return dev, nil
}

// StartScan implements device.Scanner.
func (s *Scanner) StartScan(ctx context.Context, opts device.ScanOptions, handler func(device.Event)) (device.Subscription, error) {
	dev, err := s.device()
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	feed := device.NewFeed(cancel)

	bleHandler := func(adv ble.Advertisement) {
		feed.Deliver(handler, device.NewEvent(NewBLEAdvertisement(adv), s.now()))
	}

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, opts.AllowDuplicates, bleHandler)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = device.NormalizeError(err)
			s.logger.WithError(err).Warn("BLE scan ended with error")
		}
		feed.Finish(err)
	})

	s.logger.WithField("allow_duplicates", opts.AllowDuplicates).Debug("BLE scan started")

	grace := time.NewTimer(opts.StartGrace)
	defer grace.Stop()

	select {
	case <-feed.Done():
		// The radio refused the scan right away.
		if err := feed.Err(); err != nil {
			return nil, acquireError(err)
		}
		return feed, nil
	case <-grace.C:
		return feed, nil
	case <-ctx.Done():
		feed.Stop()
		return nil, ctx.Err()
	}
}

// acquireError makes sure a failure to obtain the radio is reported as a ScanError.
func acquireError(err error) error {
	err = device.NormalizeError(err)
	var serr *device.ScanError
	if errors.As(err, &serr) {
		return err
	}
	return fmt.Errorf("%w: %w", device.ErrUnavailable, err)
}
