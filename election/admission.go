package election

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

// VoteMode identifies the admission protocol that accepted a ballot.
type VoteMode string

const (
	VoteModeAllowList VoteMode = "allowlist"
	VoteModePlaintext VoteMode = "plaintext"
	VoteModeMerkle    VoteMode = "merkle"
	VoteModeRelayer   VoteMode = "relayer"
)

// openElection loads an election accepting ballots at time now.
func openElection(tx *storage.Tx, id, now uint64) (*types.Election, error) {
	e, err := loadPending(tx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsOpen(now) {
		return nil, fmt.Errorf("%w: election %d is open from %d to %d (now %d)",
			ErrInvalidTiming, id, e.StartTime, e.EndTime, now)
	}
	return e, nil
}

// Vote casts an allow-listed ballot. In a confidential election the ballot is
// an opaque ciphertext stored as is. Otherwise it is the label of a
// candidate and the candidate counter is incremented.
func (c *Controller) Vote(caller common.Address, id uint64, ballot []byte) error {
	now := c.clock.Now()
	mode := VoteModeAllowList
	err := c.update("vote", id, func(tx *storage.Tx) error {
		e, err := openElection(tx, id, now)
		if err != nil {
			return err
		}
		if e.HasMerkleRoot() {
			return fmt.Errorf("%w: election %d requires a merkle proof", ErrMisconfiguredElection, id)
		}
		if len(ballot) == 0 {
			return fmt.Errorf("%w: empty ballot", ErrInvalidInput)
		}
		eligible, err := tx.EligibleVoters(id).Has(caller.Bytes())
		if err != nil {
			return err
		}
		if !eligible {
			return fmt.Errorf("%w: %s", ErrNotEligible, caller.Hex())
		}
		hasVoted := tx.HasVoted(id)
		if voted, err := hasVoted.Has(caller.Bytes()); err != nil {
			return err
		} else if voted {
			return fmt.Errorf("%w: %s", ErrAlreadyVoted, caller.Hex())
		}

		if e.Confidential() {
			if _, err := tx.Ballots(id).Append(ballot); err != nil {
				return err
			}
		} else {
			mode = VoteModePlaintext
			label := string(ballot)
			valid, err := tx.Candidates(id).Has(ballot)
			if err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("%w: unknown candidate %q", ErrInvalidInput, label)
			}
			if _, err := tx.Counters(id).Incr(label); err != nil {
				return err
			}
			e.PlaintextVotes++
			if err := tx.SetElection(e); err != nil {
				return err
			}
		}
		_, err = hasVoted.Add(caller.Bytes())
		return err
	})
	if err != nil {
		return err
	}
	log.Infow("vote accepted", "electionId", id, "mode", mode, "voter", caller.Hex())
	return nil
}

// VoteWithMerkle casts an anonymous ballot. The caller proves membership in
// the election tree and spends a nullifier, which can be used only once.
func (c *Controller) VoteWithMerkle(caller common.Address, id uint64, nullifier, ballot []byte, proof [][]byte) error {
	now := c.clock.Now()
	err := c.update("voteWithMerkle", id, func(tx *storage.Tx) error {
		e, err := openElection(tx, id, now)
		if err != nil {
			return err
		}
		if !e.HasMerkleRoot() {
			return fmt.Errorf("%w: election %d has no merkle root", ErrMisconfiguredElection, id)
		}
		if !e.Confidential() {
			return fmt.Errorf("%w: election %d has no encryption key", ErrMisconfiguredElection, id)
		}
		if len(nullifier) == 0 {
			return fmt.Errorf("%w: empty nullifier", ErrInvalidInput)
		}
		if len(ballot) == 0 {
			return fmt.Errorf("%w: empty ballot", ErrInvalidInput)
		}
		nullifiers := tx.Nullifiers(id)
		key := c.nullifierKey(nullifier)
		if used, err := nullifiers.Has(key); err != nil {
			return err
		} else if used {
			return fmt.Errorf("%w: nullifier %x already used", ErrAlreadyVoted, nullifier)
		}
		if !c.verifier.VerifyIdentity(caller, e.MerkleRoot, proof) {
			return fmt.Errorf("%w: election %d", ErrInvalidProof, id)
		}
		if _, err := nullifiers.Add(key); err != nil {
			return err
		}
		_, err = tx.Ballots(id).Append(ballot)
		return err
	})
	if err != nil {
		return err
	}
	log.Infow("vote accepted", "electionId", id, "mode", VoteModeMerkle, "nullifier", fmt.Sprintf("%x", nullifier))
	return nil
}

// VoteEncrypted stores a ballot submitted by a relayer. Eligibility is
// checked by the relayer, the election only guarantees each nonce is used
// once.
func (c *Controller) VoteEncrypted(caller common.Address, id uint64, ballot []byte, nonce uint64) error {
	now := c.clock.Now()
	err := c.update("voteEncrypted", id, func(tx *storage.Tx) error {
		e, err := openElection(tx, id, now)
		if err != nil {
			return err
		}
		if !e.Confidential() || !e.RelayerVoting {
			return fmt.Errorf("%w: election %d does not accept relayed ballots", ErrMisconfiguredElection, id)
		}
		if len(ballot) == 0 {
			return fmt.Errorf("%w: empty ballot", ErrInvalidInput)
		}
		added, err := tx.Nonces(id).Add(nonceKey(nonce))
		if err != nil {
			return err
		}
		if !added {
			return fmt.Errorf("%w: nonce %d", ErrReplayDetected, nonce)
		}
		_, err = tx.Ballots(id).Append(ballot)
		return err
	})
	if err != nil {
		return err
	}
	log.Infow("vote accepted", "electionId", id, "mode", VoteModeRelayer, "relayer", caller.Hex(), "nonce", nonce)
	return nil
}
