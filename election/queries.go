package election

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

// Elections returns every election ordered by ID.
func (c *Controller) Elections() ([]*types.Election, error) {
	return c.store.Elections()
}

// Election returns an election record.
func (c *Controller) Election(id uint64) (*types.Election, error) {
	var e *types.Election
	err := c.store.View(func(tx *storage.Tx) error {
		var err error
		e, err = loadElection(tx, id)
		return err
	})
	return e, err
}

// ElectionInfo returns an election record with its current status.
func (c *Controller) ElectionInfo(id uint64) (*types.ElectionInfo, error) {
	e, err := c.Election(id)
	if err != nil {
		return nil, err
	}
	return &types.ElectionInfo{Election: e, Status: e.Status(c.clock.Now())}, nil
}

// ElectionInfos returns every election with its current status.
func (c *Controller) ElectionInfos() ([]*types.ElectionInfo, error) {
	elections, err := c.Elections()
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	infos := make([]*types.ElectionInfo, 0, len(elections))
	for _, e := range elections {
		infos = append(infos, &types.ElectionInfo{Election: e, Status: e.Status(now)})
	}
	return infos, nil
}

// EncryptionPublicKey returns the encryption key of an election, empty if
// none is set.
func (c *Controller) EncryptionPublicKey(id uint64) ([]byte, error) {
	e, err := c.Election(id)
	if err != nil {
		return nil, err
	}
	return e.EncryptionPublicKey, nil
}

// EligibleVoters returns the allow-list of an election.
func (c *Controller) EligibleVoters(id uint64) ([]common.Address, error) {
	voters := []common.Address{}
	err := c.store.View(func(tx *storage.Tx) error {
		if _, err := loadElection(tx, id); err != nil {
			return err
		}
		members, err := tx.EligibleVoters(id).Members()
		if err != nil {
			return err
		}
		for _, m := range members {
			voters = append(voters, common.BytesToAddress(m))
		}
		return nil
	})
	return voters, err
}

// EncryptedVotes returns the stored ballots of an election in arrival order.
func (c *Controller) EncryptedVotes(id uint64) ([][]byte, error) {
	var ballots [][]byte
	err := c.store.View(func(tx *storage.Tx) error {
		if _, err := loadElection(tx, id); err != nil {
			return err
		}
		var err error
		ballots, err = tx.Ballots(id).All()
		return err
	})
	if ballots == nil && err == nil {
		ballots = [][]byte{}
	}
	return ballots, err
}

// BallotCount returns the number of stored ballots of an election.
func (c *Controller) BallotCount(id uint64) (uint64, error) {
	var n uint64
	err := c.store.View(func(tx *storage.Tx) error {
		if _, err := loadElection(tx, id); err != nil {
			return err
		}
		var err error
		n, err = tx.Ballots(id).Len()
		return err
	})
	return n, err
}

// HasVoted reports whether voter cast an allow-listed ballot.
func (c *Controller) HasVoted(id uint64, voter common.Address) (bool, error) {
	var voted bool
	err := c.store.View(func(tx *storage.Tx) error {
		if _, err := loadElection(tx, id); err != nil {
			return err
		}
		var err error
		voted, err = tx.HasVoted(id).Has(voter.Bytes())
		return err
	})
	return voted, err
}

// NullifierUsed reports whether a nullifier was spent in an election.
func (c *Controller) NullifierUsed(id uint64, nullifier []byte) (bool, error) {
	var used bool
	err := c.store.View(func(tx *storage.Tx) error {
		if _, err := loadElection(tx, id); err != nil {
			return err
		}
		var err error
		used, err = tx.Nullifiers(id).Has(c.nullifierKey(nullifier))
		return err
	})
	return used, err
}

// VerifyMerkleProof reports whether voter belongs to the tree of root. It
// does not depend on any election.
func (c *Controller) VerifyMerkleProof(voter common.Address, root []byte, proof [][]byte) bool {
	return c.verifier.VerifyIdentity(voter, root, proof)
}
