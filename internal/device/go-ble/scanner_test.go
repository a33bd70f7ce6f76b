package goble_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/device"
	goble "github.com/srg/beaconpair/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

// fakeAdvertisement overrides the methods the adapter reads; the rest of ble.Advertisement stays nil.
type fakeAdvertisement struct {
	ble.Advertisement
	addr  string
	rssi  int
	manuf []byte
}

func (a *fakeAdvertisement) Addr() ble.Addr           { return fakeAddr(a.addr) }
func (a *fakeAdvertisement) RSSI() int                { return a.rssi }
func (a *fakeAdvertisement) ManufacturerData() []byte { return a.manuf }
func (a *fakeAdvertisement) LocalName() string        { return "" }

// fakeDevice implements only Scan of ble.Device.
type fakeDevice struct {
	ble.Device
	scan func(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

func (d *fakeDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return d.scan(ctx, allowDup, h)
}

type ScannerTestSuite struct {
	suite.Suite
	originalFactory func() (ble.Device, error)
	logger          *logrus.Logger
	opts            device.ScanOptions
}

func (s *ScannerTestSuite) SetupSuite() {
	s.originalFactory = goble.DeviceFactory
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.opts = device.ScanOptions{AllowDuplicates: true, StartGrace: 50 * time.Millisecond}
}

func (s *ScannerTestSuite) TearDownTest() {
	goble.DeviceFactory = s.originalFactory
}

func (s *ScannerTestSuite) useDevice(dev ble.Device, err error) {
	goble.DeviceFactory = func() (ble.Device, error) { return dev, err }
}

func (s *ScannerTestSuite) TestStartScan_FactoryFailureIsUnavailable() {
	s.useDevice(nil, fmt.Errorf("can't init hci: no such device"))

	sub, err := goble.NewScanner(s.logger).StartScan(context.Background(), s.opts, func(device.Event) {})

	s.Nil(sub)
	s.ErrorIs(err, device.ErrUnavailable, "factory failure MUST be reported as unavailable")
}

func (s *ScannerTestSuite) TestStartScan_UnknownFactoryFailureIsUnavailable() {
	s.useDevice(nil, errors.New("weird"))

	_, err := goble.NewScanner(s.logger).StartScan(context.Background(), s.opts, func(device.Event) {})

	s.ErrorIs(err, device.ErrUnavailable)
	s.Contains(err.Error(), "weird")
}

func (s *ScannerTestSuite) TestStartScan_ImmediateScanErrorIsNormalized() {
	testsWithSentinelError := []struct {
		name          string
		mockErr       error
		expectIsError error
	}{
		{
			name:          "bluetooth off",
			mockErr:       fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			expectIsError: device.ErrBluetoothOff,
		},
		{
			name:          "permission denied",
			mockErr:       fmt.Errorf("central manager has invalid state: have=3 want=5: is Bluetooth turned on?"),
			expectIsError: device.ErrPermissionDenied,
		},
		{
			name:          "unknown scan error",
			mockErr:       fmt.Errorf("some other error"),
			expectIsError: device.ErrUnavailable,
		},
	}

	for _, tt := range testsWithSentinelError {
		s.Run(tt.name, func() {
			s.useDevice(&fakeDevice{scan: func(context.Context, bool, ble.AdvHandler) error {
				return tt.mockErr
			}}, nil)

			sub, err := goble.NewScanner(s.logger).StartScan(context.Background(), s.opts, func(device.Event) {})

			s.Nil(sub)
			s.ErrorIs(err, tt.expectIsError, "error chain MUST contain expected sentinel error")
		})
	}
}

func (s *ScannerTestSuite) TestStartScan_DeliversEventsUntilStopped() {
	advCh := make(chan ble.Advertisement)
	var allowDup bool
	s.useDevice(&fakeDevice{scan: func(ctx context.Context, dup bool, h ble.AdvHandler) error {
		allowDup = dup
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case adv := <-advCh:
				h(adv)
			}
		}
	}}, nil)

	var mu sync.Mutex
	var events []device.Event
	sub, err := goble.NewScanner(s.logger).StartScan(context.Background(), s.opts, func(ev device.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	s.Require().NoError(err)
	s.Require().NotNil(sub)

	advCh <- &fakeAdvertisement{addr: "aa:bb", rssi: -40, manuf: []byte{0x4C, 0x00, 0x02, 0x15}}
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)
	sub.Stop()

	<-sub.Done()
	s.NoError(sub.Err(), "stop MUST end the scan cleanly")
	s.True(allowDup)

	mu.Lock()
	defer mu.Unlock()
	s.Require().Len(events, 1)
	s.Equal("aa:bb", events[0].Address)
	s.Equal(-40, events[0].RSSI)
	s.Equal([]byte{0x02, 0x15}, events[0].VendorData[0x004C])
	s.False(events[0].ReceivedAt.IsZero())
}

func (s *ScannerTestSuite) TestStartScan_LateErrorSurfacesThroughErr() {
	fail := make(chan struct{})
	s.useDevice(&fakeDevice{scan: func(ctx context.Context, _ bool, _ ble.AdvHandler) error {
		<-fail
		return fmt.Errorf("bluetooth is turned off")
	}}, nil)

	sub, err := goble.NewScanner(s.logger).StartScan(context.Background(), s.opts, func(device.Event) {})
	s.Require().NoError(err)

	close(fail)
	<-sub.Done()
	s.ErrorIs(sub.Err(), device.ErrBluetoothOff)
}

func (s *ScannerTestSuite) TestStartScan_ContextCanceledDuringGrace() {
	s.useDevice(&fakeDevice{scan: func(ctx context.Context, _ bool, _ ble.AdvHandler) error {
		<-ctx.Done()
		return ctx.Err()
	}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := s.opts
	opts.StartGrace = time.Second
	sub, err := goble.NewScanner(s.logger).StartScan(ctx, opts, func(device.Event) {})

	// Either the producer noticed first (clean stop) or the caller's context did.
	if err != nil {
		s.ErrorIs(err, context.Canceled)
		s.Nil(sub)
		return
	}
	<-sub.Done()
	s.NoError(sub.Err())
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
