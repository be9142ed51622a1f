/*
Package storage persists elections and their keyed collections.

# Storage Organization

Every key starts with a namespace prefix. Per election collections append the
big-endian election ID and then the member key.

## Global
- m/organizer : address of the organizer the registry was created for
- m/lastid    : last allocated election ID (big-endian u64)

## Elections
- e/  : electionID → types.Election
- c/  : electionID + label → candidate set
- v/  : electionID + address → eligible voters (allow-list)
- hv/ : electionID + address → voters that already cast a ballot
- n/  : electionID + keccak256(nullifier) → used nullifiers
- nc/ : electionID + nonce → used relayer nonces
- b/  : electionID + sequence → encrypted ballot bag
- bs/ : electionID → ballot bag size
- vc/ : electionID + label → plaintext counters
- t/  : electionID → final tally

All reads and writes of a controller operation go through a single Tx, so an
operation is either fully applied or not at all.
*/
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/types"
)

var (
	ErrNotFound = errors.New("not found")

	// Prefixes
	metaPrefix        = []byte("m/")
	electionPrefix    = []byte("e/")
	candidatePrefix   = []byte("c/")
	eligiblePrefix    = []byte("v/")
	hasVotedPrefix    = []byte("hv/")
	nullifierPrefix   = []byte("n/")
	noncePrefix       = []byte("nc/")
	ballotPrefix      = []byte("b/")
	ballotCountPrefix = []byte("bs/")
	counterPrefix     = []byte("vc/")
	tallyPrefix       = []byte("t/")

	organizerKey = []byte("organizer")
	lastIDKey    = []byte("lastid")

	electionCacheSize = 256
)

// Storage is the election registry.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex                          // serializes write transactions
	cache      *lru.Cache[uint64, *types.Election] // decoded election records
}

// New creates a new Storage instance over database.
func New(database db.Database) *Storage {
	cache, err := lru.New[uint64, *types.Election](electionCacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    database,
		cache: cache,
	}
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// Update runs fn inside a write transaction. The transaction is committed if
// fn returns nil and discarded otherwise. Updates are serialized.
func (s *Storage) Update(fn func(tx *Tx) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	tx := s.begin()
	tx.writable = true
	defer tx.discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn inside a transaction that is always discarded.
func (s *Storage) View(fn func(tx *Tx) error) error {
	tx := s.begin()
	defer tx.discard()
	return fn(tx)
}

// Organizer returns the organizer address stored in the registry, or
// ErrNotFound if none was set yet.
func (s *Storage) Organizer() (common.Address, error) {
	var addr common.Address
	err := s.View(func(tx *Tx) error {
		var err error
		addr, err = tx.Organizer()
		return err
	})
	return addr, err
}

// Elections returns every stored election ordered by ID.
func (s *Storage) Elections() ([]*types.Election, error) {
	var elections []*types.Election
	err := s.View(func(tx *Tx) error {
		var err error
		elections, err = tx.Elections()
		return err
	})
	return elections, err
}

// Election returns the election with the given ID or ErrNotFound.
func (s *Storage) Election(id uint64) (*types.Election, error) {
	var e *types.Election
	err := s.View(func(tx *Tx) error {
		var err error
		e, err = tx.Election(id)
		return err
	})
	return e, err
}

// Compact compacts the underlying database.
func (s *Storage) Compact() error {
	return s.db.Compact()
}

// electionKey encodes an election ID so that keys sort by ID.
func electionKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func collectionPrefix(prefix []byte, id uint64) []byte {
	return append(append([]byte{}, prefix...), electionKey(id)...)
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid uint64 value of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
