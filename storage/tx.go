package storage

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/db/prefixeddb"
	"github.com/vocdoni/ballotbox/types"
)

// Tx groups the reads and writes of one registry operation over a single
// db.WriteTx. It is created by Storage.Update and Storage.View and must not
// be used after they return.
type Tx struct {
	s        *Storage
	wTx      db.WriteTx
	writable bool
	dirty    map[uint64]*types.Election
}

func (s *Storage) begin() *Tx {
	return &Tx{
		s:     s,
		wTx:   s.db.WriteTx(),
		dirty: make(map[uint64]*types.Election),
	}
}

func (tx *Tx) commit() error {
	if err := tx.wTx.Commit(); err != nil {
		for id := range tx.dirty {
			tx.s.cache.Remove(id)
		}
		return fmt.Errorf("commit: %w", err)
	}
	for id, e := range tx.dirty {
		tx.s.cache.Add(id, e)
	}
	return nil
}

func (tx *Tx) discard() {
	tx.wTx.Discard()
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	v, err := tx.wTx.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (tx *Tx) getArtifact(key []byte, out any) error {
	data, err := tx.get(key)
	if err != nil {
		return err
	}
	return DecodeArtifact(data, out)
}

func (tx *Tx) setArtifact(key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return tx.wTx.Set(key, data)
}

func metaKey(k []byte) []byte {
	return append(append([]byte{}, metaPrefix...), k...)
}

// Organizer returns the stored organizer or ErrNotFound.
func (tx *Tx) Organizer() (common.Address, error) {
	v, err := tx.get(metaKey(organizerKey))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

// SetOrganizer stores the organizer address.
func (tx *Tx) SetOrganizer(addr common.Address) error {
	return tx.wTx.Set(metaKey(organizerKey), addr.Bytes())
}

// LastElectionID returns the last allocated election ID, 0 if none.
func (tx *Tx) LastElectionID() (uint64, error) {
	v, err := tx.get(metaKey(lastIDKey))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(v)
}

// NextElectionID allocates and returns a new election ID. IDs start at 1 and
// are never reused.
func (tx *Tx) NextElectionID() (uint64, error) {
	last, err := tx.LastElectionID()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := tx.wTx.Set(metaKey(lastIDKey), electionKey(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// Election returns a copy of the election record, or ErrNotFound.
func (tx *Tx) Election(id uint64) (*types.Election, error) {
	if e, ok := tx.dirty[id]; ok {
		return cloneElection(e), nil
	}
	if e, ok := tx.s.cache.Get(id); ok {
		return cloneElection(e), nil
	}
	e := &types.Election{}
	if err := tx.getArtifact(collectionPrefix(electionPrefix, id), e); err != nil {
		return nil, err
	}
	// only writers fill the cache, a reader could race with a commit
	if tx.writable {
		tx.s.cache.Add(id, cloneElection(e))
	}
	return e, nil
}

// SetElection stores an election record, creating or replacing it.
func (tx *Tx) SetElection(e *types.Election) error {
	if e == nil || e.ID == 0 {
		return fmt.Errorf("invalid election record")
	}
	if err := tx.setArtifact(collectionPrefix(electionPrefix, e.ID), e); err != nil {
		return fmt.Errorf("failed to store election %d: %w", e.ID, err)
	}
	tx.dirty[e.ID] = cloneElection(e)
	return nil
}

// UpdateElection performs a read-modify-write of an election record. The
// record is stored only if every update function succeeds.
func (tx *Tx) UpdateElection(id uint64, updateFunc ...func(*types.Election) error) (*types.Election, error) {
	e, err := tx.Election(id)
	if err != nil {
		return nil, err
	}
	for _, f := range updateFunc {
		if err := f(e); err != nil {
			return nil, err
		}
	}
	if err := tx.SetElection(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Elections returns every election ordered by ID.
func (tx *Tx) Elections() ([]*types.Election, error) {
	var elections []*types.Election
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(tx.wTx, electionPrefix).Iterate(nil, func(_, v []byte) bool {
		e := &types.Election{}
		if decodeErr = DecodeArtifact(v, e); decodeErr != nil {
			return false
		}
		elections = append(elections, e)
		return true
	}); err != nil {
		return nil, err
	}
	return elections, decodeErr
}

// Tally returns the final tally of an election, or ErrNotFound.
func (tx *Tx) Tally(id uint64) ([]types.CandidateCount, error) {
	var tally []types.CandidateCount
	if err := tx.getArtifact(collectionPrefix(tallyPrefix, id), &tally); err != nil {
		return nil, err
	}
	return tally, nil
}

// SetTally stores the final tally of an election.
func (tx *Tx) SetTally(id uint64, tally []types.CandidateCount) error {
	if tally == nil {
		tally = []types.CandidateCount{}
	}
	return tx.setArtifact(collectionPrefix(tallyPrefix, id), tally)
}

// Candidates returns the candidate set of an election, keyed by label.
func (tx *Tx) Candidates(id uint64) *Set {
	return tx.set(candidatePrefix, id)
}

// EligibleVoters returns the allow-list of an election, keyed by address.
func (tx *Tx) EligibleVoters(id uint64) *Set {
	return tx.set(eligiblePrefix, id)
}

// HasVoted returns the set of addresses that voted, keyed by address.
func (tx *Tx) HasVoted(id uint64) *Set {
	return tx.set(hasVotedPrefix, id)
}

// Nullifiers returns the set of used nullifiers. Keys are nullifier digests.
func (tx *Tx) Nullifiers(id uint64) *Set {
	return tx.set(nullifierPrefix, id)
}

// Nonces returns the set of used relayer nonces.
func (tx *Tx) Nonces(id uint64) *Set {
	return tx.set(noncePrefix, id)
}

// Ballots returns the encrypted ballot bag of an election.
func (tx *Tx) Ballots(id uint64) *Bag {
	return &Bag{
		items:   prefixeddb.NewPrefixedWriteTx(tx.wTx, collectionPrefix(ballotPrefix, id)),
		root:    tx.wTx,
		sizeKey: collectionPrefix(ballotCountPrefix, id),
	}
}

// Counters returns the plaintext vote counters of an election.
func (tx *Tx) Counters(id uint64) *Counter {
	return &Counter{tx: prefixeddb.NewPrefixedWriteTx(tx.wTx, collectionPrefix(counterPrefix, id))}
}

func (tx *Tx) set(prefix []byte, id uint64) *Set {
	return &Set{tx: prefixeddb.NewPrefixedWriteTx(tx.wTx, collectionPrefix(prefix, id))}
}

func cloneElection(e *types.Election) *types.Election {
	c := *e
	c.Candidates = slices.Clone(e.Candidates)
	c.MerkleRoot = bytes.Clone(e.MerkleRoot)
	c.EncryptionPublicKey = bytes.Clone(e.EncryptionPublicKey)
	return &c
}
