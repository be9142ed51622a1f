// Package election implements the election lifecycle, the ballot admission
// protocols and the results publication on top of the storage registry.
//
// Every operation runs as one storage transaction: all guards are evaluated
// against the same snapshot and nothing is written unless all of them pass.
package election

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/crypto/hash"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/merkle"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

// Controller gates every state change of the registry.
type Controller struct {
	store     *storage.Storage
	organizer common.Address
	clock     Clock
	hash      hash.Func
	verifier  *merkle.Verifier
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source, SystemClock by default.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithHash sets the hash used for Merkle leaves, nodes and nullifier keys,
// keccak256 by default.
func WithHash(h hash.Func) Option {
	return func(c *Controller) {
		c.hash = h
	}
}

// New returns a controller for the elections of organizer. The organizer is
// stored on first use, opening a registry created for another organizer
// fails.
func New(store *storage.Storage, organizer common.Address, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("nil storage")
	}
	if organizer == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty organizer address", ErrInvalidInput)
	}
	c := &Controller{
		store:     store,
		organizer: organizer,
		clock:     SystemClock{},
		hash:      hash.Keccak256,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.verifier = merkle.NewVerifier(c.hash)

	if err := store.Update(func(tx *storage.Tx) error {
		stored, err := tx.Organizer()
		if errors.Is(err, storage.ErrNotFound) {
			return tx.SetOrganizer(organizer)
		}
		if err != nil {
			return err
		}
		if stored != organizer {
			return fmt.Errorf("%w: registry belongs to organizer %s", ErrUnauthorized, stored.Hex())
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize controller: %w", err)
	}
	log.Infow("election controller ready", "organizer", organizer.Hex())
	return c, nil
}

// Organizer returns the address allowed to manage elections.
func (c *Controller) Organizer() common.Address {
	return c.organizer
}

// IsOrganizer reports whether addr is the organizer.
func (c *Controller) IsOrganizer(addr common.Address) bool {
	return addr == c.organizer
}

// Now returns the current time of the controller clock.
func (c *Controller) Now() uint64 {
	return c.clock.Now()
}

func (c *Controller) checkOrganizer(caller common.Address) error {
	if !c.IsOrganizer(caller) {
		return fmt.Errorf("%w: %s is not the organizer", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// update runs fn in a storage transaction and logs rejected operations.
func (c *Controller) update(op string, id uint64, fn func(tx *storage.Tx) error) error {
	err := c.store.Update(fn)
	if err != nil {
		log.Debugw("operation rejected", "op", op, "electionId", id, "error", err.Error())
	}
	return err
}

// loadElection fetches an election translating storage errors.
func loadElection(tx *storage.Tx, id uint64) (*types.Election, error) {
	e, err := tx.Election(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load election %d: %w", id, err)
	}
	return e, nil
}

// loadPending fetches an election that is not finalized yet.
func loadPending(tx *storage.Tx, id uint64) (*types.Election, error) {
	e, err := loadElection(tx, id)
	if err != nil {
		return nil, err
	}
	if e.Finalized {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyFinalized, id)
	}
	return e, nil
}

func (c *Controller) nullifierKey(nullifier []byte) []byte {
	return c.hash(nullifier)
}

func nonceKey(nonce uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, nonce)
}
