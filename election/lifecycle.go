package election

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/crypto/hash"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

// CreateElectionParams describes a new election.
type CreateElectionParams struct {
	Name       string
	StartTime  uint64
	EndTime    uint64
	Candidates []string
	// EncryptionPublicKey makes the election confidential. It can also be
	// set later with SetEncryptionPublicKey.
	EncryptionPublicKey []byte
	// MerkleRoot enables anonymous admission, it must be 32 bytes.
	MerkleRoot []byte
	// RelayerVoting enables VoteEncrypted, it requires an encryption key.
	RelayerVoting bool
}

func (p *CreateElectionParams) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty election name", ErrInvalidInput)
	}
	if len(p.MerkleRoot) > 0 && len(p.MerkleRoot) != hash.Size {
		return fmt.Errorf("%w: merkle root must be %d bytes, got %d", ErrInvalidInput, hash.Size, len(p.MerkleRoot))
	}
	seen := make(map[string]bool, len(p.Candidates))
	for _, label := range p.Candidates {
		if label == "" {
			return fmt.Errorf("%w: empty candidate label", ErrInvalidInput)
		}
		if seen[label] {
			return fmt.Errorf("%w: duplicated candidate %q", ErrInvalidInput, label)
		}
		seen[label] = true
	}
	if p.RelayerVoting && len(p.EncryptionPublicKey) == 0 {
		return fmt.Errorf("%w: relayer voting requires an encryption key", ErrInvalidInput)
	}
	return nil
}

// CreateElection registers a new election and returns its ID.
func (c *Controller) CreateElection(caller common.Address, params *CreateElectionParams) (uint64, error) {
	if err := c.checkOrganizer(caller); err != nil {
		return 0, err
	}
	if params == nil {
		return 0, fmt.Errorf("%w: nil parameters", ErrInvalidInput)
	}
	if err := params.validate(); err != nil {
		return 0, err
	}
	now := c.clock.Now()
	if params.StartTime >= params.EndTime {
		return 0, fmt.Errorf("%w: start %d must be before end %d", ErrInvalidTiming, params.StartTime, params.EndTime)
	}
	if params.StartTime < now {
		return 0, fmt.Errorf("%w: start %d is in the past (now %d)", ErrInvalidTiming, params.StartTime, now)
	}

	var id uint64
	err := c.update("create", 0, func(tx *storage.Tx) error {
		var err error
		if id, err = tx.NextElectionID(); err != nil {
			return err
		}
		e := &types.Election{
			ID:                  id,
			Name:                params.Name,
			StartTime:           params.StartTime,
			EndTime:             params.EndTime,
			Candidates:          append([]string{}, params.Candidates...),
			MerkleRoot:          bytes.Clone(params.MerkleRoot),
			EncryptionPublicKey: bytes.Clone(params.EncryptionPublicKey),
			RelayerVoting:       params.RelayerVoting,
			CreatedAt:           now,
		}
		candidates := tx.Candidates(id)
		for _, label := range e.Candidates {
			if _, err := candidates.Add([]byte(label)); err != nil {
				return err
			}
		}
		return tx.SetElection(e)
	})
	if err != nil {
		return 0, err
	}
	log.Infow("election created",
		"electionId", id,
		"name", params.Name,
		"start", params.StartTime,
		"end", params.EndTime,
		"candidates", len(params.Candidates),
		"merkle", len(params.MerkleRoot) > 0,
		"confidential", len(params.EncryptionPublicKey) > 0)
	return id, nil
}

// AddVoters adds addresses to the allow-list of an election. Addresses
// already present are ignored. It returns how many were added.
func (c *Controller) AddVoters(caller common.Address, id uint64, voters []common.Address) (int, error) {
	if err := c.checkOrganizer(caller); err != nil {
		return 0, err
	}
	added := 0
	err := c.update("addVoters", id, func(tx *storage.Tx) error {
		if _, err := loadPending(tx, id); err != nil {
			return err
		}
		eligible := tx.EligibleVoters(id)
		for _, voter := range voters {
			ok, err := eligible.Add(voter.Bytes())
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Infow("voters added", "electionId", id, "added", added, "requested", len(voters))
	return added, nil
}

// SetEncryptionPublicKey sets or rotates the encryption key of an election.
// Rotating the key after ciphertexts were stored is the organizer's
// responsibility, but an election that already counted plaintext votes
// can't become confidential.
func (c *Controller) SetEncryptionPublicKey(caller common.Address, id uint64, key []byte) error {
	if err := c.checkOrganizer(caller); err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: empty encryption key", ErrInvalidInput)
	}
	err := c.update("setKey", id, func(tx *storage.Tx) error {
		if _, err := loadPending(tx, id); err != nil {
			return err
		}
		_, err := tx.UpdateElection(id, func(e *types.Election) error {
			if e.PlaintextVotes > 0 {
				return fmt.Errorf("%w: %d plaintext votes already counted", ErrMisconfiguredElection, e.PlaintextVotes)
			}
			e.EncryptionPublicKey = bytes.Clone(key)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	log.Infow("encryption key set", "electionId", id, "keySize", len(key))
	return nil
}

// EndElection closes an election once its window has passed. A plaintext
// election is finalized with a snapshot of its counters. A confidential one
// is left for PublishResults.
func (c *Controller) EndElection(caller common.Address, id uint64) error {
	if err := c.checkOrganizer(caller); err != nil {
		return err
	}
	now := c.clock.Now()
	finalized := false
	err := c.update("end", id, func(tx *storage.Tx) error {
		e, err := loadPending(tx, id)
		if err != nil {
			return err
		}
		if now <= e.EndTime {
			return fmt.Errorf("%w: election %d ends at %d (now %d)", ErrInvalidTiming, id, e.EndTime, now)
		}
		if e.Confidential() {
			return nil
		}
		counters := tx.Counters(id)
		tally := make([]types.CandidateCount, 0, len(e.Candidates))
		for _, label := range e.Candidates {
			n, err := counters.Get(label)
			if err != nil {
				return err
			}
			tally = append(tally, types.CandidateCount{Candidate: label, Count: n})
		}
		if err := tx.SetTally(id, tally); err != nil {
			return err
		}
		e.Finalized = true
		finalized = true
		return tx.SetElection(e)
	})
	if err != nil {
		return err
	}
	log.Infow("election ended", "electionId", id, "finalized", finalized)
	return nil
}

// ForceEndElection closes an election before its scheduled end by moving the
// end to the previous second. It fails once the window is already over.
func (c *Controller) ForceEndElection(caller common.Address, id uint64) error {
	if err := c.checkOrganizer(caller); err != nil {
		return err
	}
	now := c.clock.Now()
	err := c.update("forceEnd", id, func(tx *storage.Tx) error {
		e, err := loadPending(tx, id)
		if err != nil {
			return err
		}
		if now > e.EndTime {
			return fmt.Errorf("%w: election %d already ended at %d", ErrInvalidTiming, id, e.EndTime)
		}
		if now > 0 {
			e.EndTime = now - 1
		} else {
			e.EndTime = 0
		}
		return tx.SetElection(e)
	})
	if err != nil {
		return err
	}
	log.Infow("election force ended", "electionId", id, "at", now)
	return nil
}
