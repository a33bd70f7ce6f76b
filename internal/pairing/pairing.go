// Package pairing associates discovered beacon identities with accounts.
//
// The Coordinator is a thin layer over a Store: every operation is a single
// store round-trip and nothing is cached. Uniqueness of an identity across
// accounts and owner scoping are the store's responsibility, since only the
// store can resolve concurrent pairing attempts.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/beacon"
)

// MaxLabelLen is the maximum label length in runes.
const MaxLabelLen = 64

// Pairing errors
var (
	ErrConflict     = errors.New("beacon already paired")
	ErrNotFound     = errors.New("paired beacon not found")
	ErrInvalidOwner = errors.New("owner id required")
	ErrInvalidLabel = errors.New("invalid label")
)

// PairedBeacon is a beacon identity bound to an owning account.
type PairedBeacon struct {
	ID       string          `json:"id"`
	OwnerID  string          `json:"owner_id"`
	Identity beacon.Identity `json:"identity"`
	Label    string          `json:"label,omitempty"`
	PairedAt time.Time       `json:"paired_at"`
}

// Key returns the dedup key of the paired identity.
func (p PairedBeacon) Key() beacon.Key {
	return p.Identity.Key()
}

// Store persists paired beacons.
//
// Create fails with ErrConflict when the identity is paired to any account.
// UpdateLabel and Delete fail with ErrNotFound when id does not exist or
// belongs to another owner. List returns only records of owner.
type Store interface {
	Create(ctx context.Context, p PairedBeacon) error
	List(ctx context.Context, ownerID string) ([]PairedBeacon, error)
	UpdateLabel(ctx context.Context, ownerID, id, label string) (PairedBeacon, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// Coordinator exposes the pair/rename/unpair/list lifecycle.
type Coordinator struct {
	store  Store
	logger *logrus.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock sets the time source for PairedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator sets the generator for pairing ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// NewCoordinator creates a Coordinator backed by store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.New()
	}
	return c
}

// Pair binds identity to ownerID.
func (c *Coordinator) Pair(ctx context.Context, ownerID string, identity beacon.Identity, label string) (PairedBeacon, error) {
	if err := checkOwner(ownerID); err != nil {
		return PairedBeacon{}, err
	}
	label, err := normalizeLabel(label)
	if err != nil {
		return PairedBeacon{}, err
	}
	u, err := uuid.Parse(identity.UUID)
	if err != nil {
		return PairedBeacon{}, fmt.Errorf("pair %s: %w: %v", identity.Key(), beacon.ErrInvalidKey, err)
	}
	// Uniqueness holds on the canonical form that Decode and ParseKey produce.
	identity.UUID = u.String()

	p := PairedBeacon{
		ID:       c.newID(),
		OwnerID:  ownerID,
		Identity: identity,
		Label:    label,
		PairedAt: c.now(),
	}
	if err := c.store.Create(ctx, p); err != nil {
		return PairedBeacon{}, fmt.Errorf("pair %s: %w", identity.Key(), err)
	}

	c.logger.WithFields(logrus.Fields{
		"id":    p.ID,
		"owner": ownerID,
		"key":   identity.Key(),
	}).Info("Paired beacon")
	return p, nil
}

// Rename changes the label of a paired beacon owned by ownerID.
func (c *Coordinator) Rename(ctx context.Context, ownerID, id, label string) (PairedBeacon, error) {
	if err := checkOwner(ownerID); err != nil {
		return PairedBeacon{}, err
	}
	label, err := normalizeLabel(label)
	if err != nil {
		return PairedBeacon{}, err
	}

	p, err := c.store.UpdateLabel(ctx, ownerID, id, label)
	if err != nil {
		return PairedBeacon{}, fmt.Errorf("rename %s: %w", id, err)
	}

	c.logger.WithFields(logrus.Fields{"id": id, "label": label}).Info("Renamed paired beacon")
	return p, nil
}

// Unpair removes a paired beacon owned by ownerID. Unpairing an id that is
// not paired fails with ErrNotFound.
func (c *Coordinator) Unpair(ctx context.Context, ownerID, id string) error {
	if err := checkOwner(ownerID); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("unpair %s: %w", id, err)
	}

	c.logger.WithField("id", id).Info("Unpaired beacon")
	return nil
}

// List returns the beacons paired to ownerID.
func (c *Coordinator) List(ctx context.Context, ownerID string) ([]PairedBeacon, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	list, err := c.store.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list paired beacons: %w", err)
	}
	return list, nil
}

func checkOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrInvalidOwner
	}
	return nil
}

func normalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if !utf8.ValidString(label) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidLabel)
	}
	if n := utf8.RuneCountInString(label); n > MaxLabelLen {
		return "", fmt.Errorf("%w: %d characters, max %d", ErrInvalidLabel, n, MaxLabelLen)
	}
	return label, nil
}
