package election

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

// PublishResults stores the decrypted tally of a closed election and
// finalizes it. Pairs are stored as given, they are not checked against the
// candidate set.
func (c *Controller) PublishResults(caller common.Address, id uint64, results []types.CandidateCount) error {
	if err := c.checkOrganizer(caller); err != nil {
		return err
	}
	now := c.clock.Now()
	err := c.update("publishResults", id, func(tx *storage.Tx) error {
		e, err := loadPending(tx, id)
		if err != nil {
			return err
		}
		if now <= e.EndTime {
			return fmt.Errorf("%w: election %d ends at %d (now %d)", ErrInvalidTiming, id, e.EndTime, now)
		}
		for i, r := range results {
			if r.Candidate == "" {
				return fmt.Errorf("%w: empty candidate label at position %d", ErrInvalidInput, i)
			}
		}
		if err := tx.SetTally(id, results); err != nil {
			return err
		}
		e.Finalized = true
		return tx.SetElection(e)
	})
	if err != nil {
		return err
	}
	log.Infow("results published", "electionId", id, "entries", len(results))
	return nil
}

// ElectionResults returns the final tally of an election. Before
// finalization every candidate is reported with a zero count.
func (c *Controller) ElectionResults(id uint64) ([]types.CandidateCount, error) {
	var results []types.CandidateCount
	err := c.store.View(func(tx *storage.Tx) error {
		e, err := loadElection(tx, id)
		if err != nil {
			return err
		}
		if e.Finalized {
			results, err = finalTally(tx, id)
			return err
		}
		results = make([]types.CandidateCount, 0, len(e.Candidates))
		for _, label := range e.Candidates {
			results = append(results, types.CandidateCount{Candidate: label})
		}
		return nil
	})
	return results, err
}

// ElectionCandidates returns the candidate labels of an election, taken from
// the final tally once it is published.
func (c *Controller) ElectionCandidates(id uint64) ([]string, error) {
	var candidates []string
	err := c.store.View(func(tx *storage.Tx) error {
		e, err := loadElection(tx, id)
		if err != nil {
			return err
		}
		if !e.Finalized {
			candidates = e.Candidates
			return nil
		}
		tally, err := finalTally(tx, id)
		if err != nil {
			return err
		}
		candidates = make([]string, 0, len(tally))
		for _, r := range tally {
			candidates = append(candidates, r.Candidate)
		}
		return nil
	})
	if candidates == nil && err == nil {
		candidates = []string{}
	}
	return candidates, err
}

func finalTally(tx *storage.Tx, id uint64) ([]types.CandidateCount, error) {
	tally, err := tx.Tally(id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warnw("finalized election without tally", "electionId", id)
		return []types.CandidateCount{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tally of election %d: %w", id, err)
	}
	return tally, nil
}
