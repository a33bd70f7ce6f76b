// Package pairingtest holds the behavior every pairing.Store must satisfy.
package pairingtest

import (
	"context"
	"sync"
	"time"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/pairing"
	"github.com/stretchr/testify/suite"
)

// StoreSuite runs the pairing.Store contract against the store returned by NewStore.
type StoreSuite struct {
	suite.Suite

	// NewStore returns an empty store for each test.
	NewStore func() pairing.Store

	store pairing.Store
	ctx   context.Context
}

var (
	identityA = beacon.Identity{UUID: "e2c56db5-fffb-48d2-b060-d0f5a71096e1", Major: 1, Minor: 1}
	identityB = beacon.Identity{UUID: "e2c56db5-fffb-48d2-b060-d0f5a71096e1", Major: 1, Minor: 2}
	identityC = beacon.Identity{UUID: "f7826da6-4fa2-4e98-8024-bc5b71e0893e", Major: 65535, Minor: 0}
	pairedAt  = time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
)

func (s *StoreSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore MUST be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *StoreSuite) record(id, owner string, identity beacon.Identity) pairing.PairedBeacon {
	return pairing.PairedBeacon{ID: id, OwnerID: owner, Identity: identity, Label: "desk", PairedAt: pairedAt}
}

func (s *StoreSuite) TestCreateAndList() {
	want := s.record("p1", "alice", identityA)
	s.Require().NoError(s.store.Create(s.ctx, want))

	got, err := s.store.List(s.ctx, "alice")

	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(want.ID, got[0].ID)
	s.Equal(want.OwnerID, got[0].OwnerID)
	s.Equal(want.Identity, got[0].Identity)
	s.Equal(want.Label, got[0].Label)
	s.True(want.PairedAt.Equal(got[0].PairedAt), "paired_at MUST round-trip")
}

func (s *StoreSuite) TestListEmptyOwner() {
	got, err := s.store.List(s.ctx, "nobody")

	s.NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *StoreSuite) TestListPreservesInsertionOrder() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("z", "alice", identityC)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("a", "alice", identityA)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("m", "alice", identityB)))

	got, err := s.store.List(s.ctx, "alice")

	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal([]string{"z", "a", "m"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func (s *StoreSuite) TestCreateConflict() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("p1", "alice", identityA)))

	err := s.store.Create(s.ctx, s.record("p2", "bob", identityA))

	s.ErrorIs(err, pairing.ErrConflict, "identity paired to any account MUST conflict")
	bobs, _ := s.store.List(s.ctx, "bob")
	s.Empty(bobs)
}

func (s *StoreSuite) TestCreateConflictIsRaceFree() {
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.store.Create(s.ctx, s.record(string(rune('a'+i)), string(rune('A'+i)), identityA))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, pairing.ErrConflict)
	}
	s.Equal(1, ok, "exactly one concurrent pairing MUST win")
}

func (s *StoreSuite) TestListIsOwnerScoped() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("a1", "alice", identityA)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("b1", "bob", identityB)))

	alice, err := s.store.List(s.ctx, "alice")
	s.Require().NoError(err)
	bob, err := s.store.List(s.ctx, "bob")
	s.Require().NoError(err)

	s.Require().Len(alice, 1)
	s.Equal("a1", alice[0].ID)
	s.Require().Len(bob, 1)
	s.Equal("b1", bob[0].ID)
}

func (s *StoreSuite) TestUpdateLabel() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("p1", "alice", identityA)))

	got, err := s.store.UpdateLabel(s.ctx, "alice", "p1", "kitchen")

	s.Require().NoError(err)
	s.Equal("kitchen", got.Label)
	s.Equal(identityA, got.Identity, "rename MUST only touch the label")
	list, _ := s.store.List(s.ctx, "alice")
	s.Equal("kitchen", list[0].Label)
}

func (s *StoreSuite) TestUpdateLabelForeignOrMissing() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("p1", "alice", identityA)))

	_, err := s.store.UpdateLabel(s.ctx, "bob", "p1", "mine now")
	s.ErrorIs(err, pairing.ErrNotFound, "foreign id MUST look missing")

	_, err = s.store.UpdateLabel(s.ctx, "alice", "nope", "x")
	s.ErrorIs(err, pairing.ErrNotFound)

	list, _ := s.store.List(s.ctx, "alice")
	s.Equal("desk", list[0].Label)
}

func (s *StoreSuite) TestDelete() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("p1", "alice", identityA)))

	s.Require().NoError(s.store.Delete(s.ctx, "alice", "p1"))
	s.ErrorIs(s.store.Delete(s.ctx, "alice", "p1"), pairing.ErrNotFound, "delete MUST NOT be idempotent")

	list, _ := s.store.List(s.ctx, "alice")
	s.Empty(list)
	s.NoError(s.store.Create(s.ctx, s.record("p2", "bob", identityA)), "identity MUST be pairable again after delete")
}

func (s *StoreSuite) TestDeleteForeign() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("p1", "alice", identityA)))

	s.ErrorIs(s.store.Delete(s.ctx, "bob", "p1"), pairing.ErrNotFound)

	list, _ := s.store.List(s.ctx, "alice")
	s.Len(list, 1)
}
