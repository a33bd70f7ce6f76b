package memory_test

import (
	"context"
	"testing"

	"github.com/srg/beaconpair/internal/pairing"
	"github.com/srg/beaconpair/internal/pairing/pairingtest"
	"github.com/srg/beaconpair/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &pairingtest.StoreSuite{
		NewStore: func() pairing.Store { return memory.New() },
	})
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := memory.New().List(ctx, "alice")

	assert.ErrorIs(t, err, context.Canceled)
}
