// Package memory is an in-process pairing.Store.
package memory

import (
	"context"
	"sync"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/pairing"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store keeps paired beacons in insertion order.
type Store struct {
	mu         sync.RWMutex
	byID       *orderedmap.OrderedMap[string, pairing.PairedBeacon]
	byIdentity map[beacon.Key]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:       orderedmap.New[string, pairing.PairedBeacon](),
		byIdentity: make(map[beacon.Key]string),
	}
}

// Create implements pairing.Store.
func (s *Store) Create(ctx context.Context, p pairing.PairedBeacon) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Identity.Key()
	if _, taken := s.byIdentity[key]; taken {
		return pairing.ErrConflict
	}
	if _, taken := s.byID.Get(p.ID); taken {
		return pairing.ErrConflict
	}
	s.byID.Set(p.ID, p)
	s.byIdentity[key] = p.ID
	return nil
}

// List implements pairing.Store.
func (s *Store) List(ctx context.Context, ownerID string) ([]pairing.PairedBeacon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pairing.PairedBeacon, 0)
	for pair := s.byID.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.OwnerID == ownerID {
			out = append(out, pair.Value)
		}
	}
	return out, nil
}

// UpdateLabel implements pairing.Store.
func (s *Store) UpdateLabel(ctx context.Context, ownerID, id, label string) (pairing.PairedBeacon, error) {
	if err := ctx.Err(); err != nil {
		return pairing.PairedBeacon{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID.Get(id)
	if !ok || p.OwnerID != ownerID {
		return pairing.PairedBeacon{}, pairing.ErrNotFound
	}
	p.Label = label
	s.byID.Set(id, p)
	return p, nil
}

// Delete implements pairing.Store.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID.Get(id)
	if !ok || p.OwnerID != ownerID {
		return pairing.ErrNotFound
	}
	s.byID.Delete(id)
	delete(s.byIdentity, p.Identity.Key())
	return nil
}
