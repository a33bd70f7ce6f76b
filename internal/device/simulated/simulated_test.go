package simulated_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/device/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_EmitsBeaconsAndNoise(t *testing.T) {
	sim := simulated.New(simulated.WithInterval(10 * time.Millisecond))

	var mu sync.Mutex
	decoded := map[beacon.Key]bool{}
	var other int
	sub, err := sim.StartScan(context.Background(), device.ScanOptions{}, func(ev device.Event) {
		mu.Lock()
		defer mu.Unlock()
		if id, ok := beacon.Decode(beacon.CompanyID, ev.VendorData[beacon.CompanyID]); ok {
			decoded[id.Key()] = true
			return
		}
		other++
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(decoded) == len(simulated.DefaultBeacons) && other > 0
	}, time.Second, 5*time.Millisecond)

	sub.Stop()
	<-sub.Done()
	assert.NoError(t, sub.Err())
	assert.Eventually(t, func() bool { return sim.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSimulator_StartError(t *testing.T) {
	sim := simulated.New(simulated.WithStartError(errors.New("bluetooth is turned off")))

	sub, err := sim.StartScan(context.Background(), device.ScanOptions{}, func(device.Event) {})

	assert.Nil(t, sub)
	assert.ErrorIs(t, err, device.ErrBluetoothOff)
}

func TestSimulator_InvalidBeacon(t *testing.T) {
	sim := simulated.New(simulated.WithBeacons(simulated.Beacon{Identity: beacon.Identity{UUID: "bogus"}}))

	_, err := sim.StartScan(context.Background(), device.ScanOptions{}, func(device.Event) {})

	assert.Error(t, err)
	assert.Zero(t, sim.Active())
}

func TestManual(t *testing.T) {
	m := simulated.NewManual()
	id := beacon.Identity{UUID: "e2c56db5-fffb-48d2-b060-d0f5a71096e1", Major: 1, Minor: 1}

	assert.False(t, m.EmitBeacon(id, time.Now()), "no subscription yet")

	var got []device.Event
	sub, err := m.StartScan(context.Background(), device.ScanOptions{}, func(ev device.Event) { got = append(got, ev) })
	require.NoError(t, err)
	assert.Equal(t, 1, m.Live())

	assert.True(t, m.EmitBeacon(id, time.Now()))
	sub.Stop()
	assert.False(t, m.EmitBeacon(id, time.Now()), "stopped subscription MUST not deliver")
	assert.Equal(t, 0, m.Live())
	require.Len(t, got, 1)

	m.EmitLate(0, simulated.BeaconEvent(id, time.Now()))
	assert.Len(t, got, 2, "EmitLate bypasses the stop check")

	m.FailNextStarts(errors.New("permission denied"))
	_, err = m.StartScan(context.Background(), device.ScanOptions{}, func(device.Event) {})
	assert.ErrorIs(t, err, device.ErrPermissionDenied)
	assert.Equal(t, 2, m.Starts())
}
