package election

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/db/metadb"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

func TestPlaintextElection(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A", "B"}})
	_, err := ctrl.AddVoters(organizer, id, []common.Address{voter1})
	c.Assert(err, qt.IsNil)

	clock.Set(150)
	c.Assert(ctrl.Vote(voter1, id, []byte("A")), qt.IsNil)
	clock.Set(160)
	c.Assert(ctrl.Vote(voter1, id, []byte("A")), qt.ErrorIs, ErrAlreadyVoted)

	results, err := ctrl.ElectionResults(id)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []types.CandidateCount{{Candidate: "A"}, {Candidate: "B"}})

	clock.Set(250)
	c.Assert(ctrl.EndElection(organizer, id), qt.IsNil)
	results, err = ctrl.ElectionResults(id)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []types.CandidateCount{
		{Candidate: "A", Count: 1},
		{Candidate: "B", Count: 0},
	})
	e, err := ctrl.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Finalized, qt.IsTrue)
	c.Assert(e.PlaintextVotes, qt.Equals, uint64(1))

	// finalized is set once
	c.Assert(ctrl.EndElection(organizer, id), qt.ErrorIs, ErrAlreadyFinalized)
	c.Assert(ctrl.PublishResults(organizer, id, nil), qt.ErrorIs, ErrAlreadyFinalized)
}

func TestVoteGuards(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A", "B"}})
	_, err := ctrl.AddVoters(organizer, id, []common.Address{voter1})
	c.Assert(err, qt.IsNil)

	c.Assert(ctrl.Vote(voter1, 99, []byte("A")), qt.ErrorIs, ErrNotFound)

	// outside the window nothing is recorded
	for _, now := range []uint64{0, 99, 201} {
		clock.Set(now)
		c.Assert(ctrl.Vote(voter1, id, []byte("A")), qt.ErrorIs, ErrInvalidTiming)
	}
	voted, err := ctrl.HasVoted(id, voter1)
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)

	// both bounds are inclusive
	clock.Set(100)
	c.Assert(ctrl.Vote(outsider, id, []byte("A")), qt.ErrorIs, ErrNotEligible)
	c.Assert(ctrl.Vote(voter1, id, nil), qt.ErrorIs, ErrInvalidInput)
	c.Assert(ctrl.Vote(voter1, id, []byte("C")), qt.ErrorIs, ErrInvalidInput)

	// a rejected ballot does not consume the right to vote
	voted, err = ctrl.HasVoted(id, voter1)
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)

	clock.Set(200)
	c.Assert(ctrl.Vote(voter1, id, []byte("B")), qt.IsNil)
	voted, err = ctrl.HasVoted(id, voter1)
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsTrue)
	_, err = ctrl.HasVoted(99, voter1)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// plaintext ballots are counted, not stored
	n, err := ctrl.BallotCount(id)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, uint64(0))
}

func TestConfidentialAllowList(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{
		Candidates:          []string{"A", "B"},
		EncryptionPublicKey: []byte("pubkey"),
	})
	_, err := ctrl.AddVoters(organizer, id, []common.Address{voter1, voter2})
	c.Assert(err, qt.IsNil)

	clock.Set(150)
	c.Assert(ctrl.Vote(voter1, id, []byte{0xc1}), qt.IsNil)
	c.Assert(ctrl.Vote(voter2, id, []byte{0xc2}), qt.IsNil)
	c.Assert(ctrl.Vote(voter2, id, []byte{0xc3}), qt.ErrorIs, ErrAlreadyVoted)

	ballots, err := ctrl.EncryptedVotes(id)
	c.Assert(err, qt.IsNil)
	c.Assert(ballots, qt.DeepEquals, [][]byte{{0xc1}, {0xc2}})

	clock.Set(250)
	c.Assert(ctrl.EndElection(organizer, id), qt.IsNil)
	c.Assert(ctrl.PublishResults(outsider, id, nil), qt.ErrorIs, ErrUnauthorized)
	c.Assert(ctrl.PublishResults(organizer, id, []types.CandidateCount{{Candidate: "", Count: 1}}), qt.ErrorIs, ErrInvalidInput)
	c.Assert(ctrl.PublishResults(organizer, id, []types.CandidateCount{
		{Candidate: "B", Count: 2},
		{Candidate: "A", Count: 0},
	}), qt.IsNil)

	// published pairs are returned verbatim
	results, err := ctrl.ElectionResults(id)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []types.CandidateCount{
		{Candidate: "B", Count: 2},
		{Candidate: "A", Count: 0},
	})
	candidates, err := ctrl.ElectionCandidates(id)
	c.Assert(err, qt.IsNil)
	c.Assert(candidates, qt.DeepEquals, []string{"B", "A"})
}

func TestMerkleElection(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	root, proof := twoLeafRoot()
	id := createElection(t, ctrl, clock, &CreateElectionParams{
		Candidates:          []string{"A", "B"},
		MerkleRoot:          root,
		EncryptionPublicKey: []byte("pubkey"),
	})

	clock.Set(150)
	nullifier := []byte("nullifier-1")
	c.Assert(ctrl.VoteWithMerkle(voter1, id, nullifier, []byte{0xaa}, proof), qt.IsNil)
	c.Assert(ctrl.VoteWithMerkle(voter1, id, nullifier, []byte{0xbb}, proof), qt.ErrorIs, ErrAlreadyVoted)

	tampered := [][]byte{append([]byte{}, proof[0]...)}
	tampered[0][0] ^= 0x01
	c.Assert(ctrl.VoteWithMerkle(voter1, id, []byte("nullifier-2"), []byte{0xcc}, tampered), qt.ErrorIs, ErrInvalidProof)

	// a rejected proof does not spend the nullifier
	used, err := ctrl.NullifierUsed(id, []byte("nullifier-2"))
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsFalse)
	used, err = ctrl.NullifierUsed(id, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)

	// the allow-list path can't bypass the proof
	_, err = ctrl.AddVoters(organizer, id, []common.Address{outsider})
	c.Assert(err, qt.IsNil)
	c.Assert(ctrl.Vote(outsider, id, []byte{0xdd}), qt.ErrorIs, ErrMisconfiguredElection)

	c.Assert(ctrl.VoteWithMerkle(voter1, id, nil, []byte{0xaa}, proof), qt.ErrorIs, ErrInvalidInput)
	c.Assert(ctrl.VoteWithMerkle(voter1, id, []byte("n3"), nil, proof), qt.ErrorIs, ErrInvalidInput)

	ballots, err := ctrl.EncryptedVotes(id)
	c.Assert(err, qt.IsNil)
	c.Assert(ballots, qt.DeepEquals, [][]byte{{0xaa}})

	c.Assert(ctrl.VerifyMerkleProof(voter1, root, proof), qt.IsTrue)
	c.Assert(ctrl.VerifyMerkleProof(voter2, root, proof), qt.IsFalse)
}

func TestMerkleMisconfigured(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	root, proof := twoLeafRoot()

	noRoot := createElection(t, ctrl, clock, &CreateElectionParams{EncryptionPublicKey: []byte{1}})
	noKey := createElection(t, ctrl, clock, &CreateElectionParams{MerkleRoot: root})

	clock.Set(150)
	c.Assert(ctrl.VoteWithMerkle(voter1, noRoot, []byte("n"), []byte{1}, proof), qt.ErrorIs, ErrMisconfiguredElection)
	c.Assert(ctrl.VoteWithMerkle(voter1, noKey, []byte("n"), []byte{1}, proof), qt.ErrorIs, ErrMisconfiguredElection)

	// setting the key enables anonymous voting
	c.Assert(ctrl.SetEncryptionPublicKey(organizer, noKey, []byte{1}), qt.IsNil)
	c.Assert(ctrl.VoteWithMerkle(voter1, noKey, []byte("n"), []byte{1}, proof), qt.IsNil)
}

func TestVoteEncrypted(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{
		Candidates:          []string{"A"},
		EncryptionPublicKey: []byte{1},
		RelayerVoting:       true,
	})
	noRelayer := createElection(t, ctrl, clock, &CreateElectionParams{EncryptionPublicKey: []byte{1}})

	c.Assert(ctrl.VoteEncrypted(outsider, id, []byte{1}, 7), qt.ErrorIs, ErrInvalidTiming)

	clock.Set(150)
	c.Assert(ctrl.VoteEncrypted(outsider, noRelayer, []byte{1}, 7), qt.ErrorIs, ErrMisconfiguredElection)
	c.Assert(ctrl.VoteEncrypted(outsider, id, nil, 7), qt.ErrorIs, ErrInvalidInput)
	c.Assert(ctrl.VoteEncrypted(outsider, id, []byte{1}, 7), qt.IsNil)
	c.Assert(ctrl.VoteEncrypted(voter1, id, []byte{2}, 7), qt.ErrorIs, ErrReplayDetected)
	c.Assert(ctrl.VoteEncrypted(voter1, id, []byte{2}, 8), qt.IsNil)

	// nonces are scoped to an election
	other := createElection(t, ctrl, clock, &CreateElectionParams{
		EncryptionPublicKey: []byte{1},
		RelayerVoting:       true,
	})
	clock.Set(150)
	c.Assert(ctrl.VoteEncrypted(voter1, other, []byte{3}, 7), qt.IsNil)

	n, err := ctrl.BallotCount(id)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, uint64(2))
}

func TestFinalizedRejectsBallots(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{
		EncryptionPublicKey: []byte{1},
		RelayerVoting:       true,
	})
	clock.Set(201)
	c.Assert(ctrl.PublishResults(organizer, id, []types.CandidateCount{}), qt.IsNil)

	// finalized is checked before the window
	clock.Set(150)
	c.Assert(ctrl.VoteEncrypted(voter1, id, []byte{1}, 1), qt.ErrorIs, ErrAlreadyFinalized)
	c.Assert(ctrl.Vote(voter1, id, []byte{1}), qt.ErrorIs, ErrAlreadyFinalized)

	results, err := ctrl.ElectionResults(id)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 0)
}

func TestConcurrentAdmission(t *testing.T) {
	const workers = 64
	engines := map[string]func(t *testing.T) db.Database{
		"inmem":  func(*testing.T) db.Database { return metadb.ForTest() },
		"pebble": func(t *testing.T) db.Database { return metadb.NewTest(t) },
	}
	root, proof := twoLeafRoot()
	key := []byte{0x04, 0x01}

	// race runs cast from every worker and returns the errors not matching
	// want, and how many calls succeeded.
	race := func(cast func() error, want error) (int, []error) {
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			unexpected []error
		)
		start := make(chan struct{})
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				err := cast()
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case !errors.Is(err, want):
					unexpected = append(unexpected, err)
				}
			}()
		}
		close(start)
		wg.Wait()
		return successes, unexpected
	}

	for name, open := range engines {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)
			clock := &testClock{}
			ctrl, err := New(storage.New(open(t)), organizer, WithClock(clock))
			c.Assert(err, qt.IsNil)

			allowList := createElection(t, ctrl, clock, &CreateElectionParams{EncryptionPublicKey: key})
			_, err = ctrl.AddVoters(organizer, allowList, []common.Address{voter1})
			c.Assert(err, qt.IsNil)
			anonymous := createElection(t, ctrl, clock, &CreateElectionParams{EncryptionPublicKey: key, MerkleRoot: root})
			relayed := createElection(t, ctrl, clock, &CreateElectionParams{EncryptionPublicKey: key, RelayerVoting: true})
			clock.Set(150)

			successes, unexpected := race(func() error {
				return ctrl.Vote(voter1, allowList, []byte{0xa1})
			}, ErrAlreadyVoted)
			c.Assert(unexpected, qt.HasLen, 0)
			c.Assert(successes, qt.Equals, 1)

			successes, unexpected = race(func() error {
				return ctrl.VoteWithMerkle(voter1, anonymous, []byte("shared nullifier"), []byte{0xb1}, proof)
			}, ErrAlreadyVoted)
			c.Assert(unexpected, qt.HasLen, 0)
			c.Assert(successes, qt.Equals, 1)

			successes, unexpected = race(func() error {
				return ctrl.VoteEncrypted(outsider, relayed, []byte{0xc1}, 42)
			}, ErrReplayDetected)
			c.Assert(unexpected, qt.HasLen, 0)
			c.Assert(successes, qt.Equals, 1)

			for _, id := range []uint64{allowList, anonymous, relayed} {
				n, err := ctrl.BallotCount(id)
				c.Assert(err, qt.IsNil)
				c.Assert(n, qt.Equals, uint64(1))
				ballots, err := ctrl.EncryptedVotes(id)
				c.Assert(err, qt.IsNil)
				c.Assert(ballots, qt.HasLen, 1)
			}
		})
	}
}
