package election

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/db/metadb"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

func TestNewController(t *testing.T) {
	c := qt.New(t)
	store := storage.New(metadb.ForTest())

	ctrl, err := New(store, organizer)
	c.Assert(err, qt.IsNil)
	c.Assert(ctrl.Organizer(), qt.Equals, organizer)
	c.Assert(ctrl.IsOrganizer(organizer), qt.IsTrue)
	c.Assert(ctrl.IsOrganizer(outsider), qt.IsFalse)

	// reopening with the same organizer works, another one is refused
	_, err = New(store, organizer)
	c.Assert(err, qt.IsNil)
	_, err = New(store, outsider)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)

	_, err = New(nil, organizer)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestCreateElection(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	clock.Set(50)

	valid := func() *CreateElectionParams {
		return &CreateElectionParams{
			Name:       "board",
			StartTime:  100,
			EndTime:    200,
			Candidates: []string{"A", "B"},
		}
	}

	for _, tc := range []struct {
		name   string
		caller bool
		mutate func(p *CreateElectionParams)
		err    error
	}{
		{"not organizer", false, func(p *CreateElectionParams) {}, ErrUnauthorized},
		{"unauthorized before invalid input", false, func(p *CreateElectionParams) { p.Name = "" }, ErrUnauthorized},
		{"empty name", true, func(p *CreateElectionParams) { p.Name = "" }, ErrInvalidInput},
		{"short root", true, func(p *CreateElectionParams) { p.MerkleRoot = make([]byte, 31) }, ErrInvalidInput},
		{"empty candidate", true, func(p *CreateElectionParams) { p.Candidates = []string{"A", ""} }, ErrInvalidInput},
		{"duplicated candidate", true, func(p *CreateElectionParams) { p.Candidates = []string{"A", "A"} }, ErrInvalidInput},
		{"relayer without key", true, func(p *CreateElectionParams) { p.RelayerVoting = true }, ErrInvalidInput},
		{"start equals end", true, func(p *CreateElectionParams) { p.EndTime = p.StartTime }, ErrInvalidTiming},
		{"start after end", true, func(p *CreateElectionParams) { p.StartTime = 300 }, ErrInvalidTiming},
		{"start in the past", true, func(p *CreateElectionParams) { p.StartTime = 49 }, ErrInvalidTiming},
		{"invalid input before timing", true, func(p *CreateElectionParams) { p.Name = ""; p.StartTime = 10 }, ErrInvalidInput},
	} {
		c.Run(tc.name, func(c *qt.C) {
			params := valid()
			tc.mutate(params)
			caller := organizer
			if !tc.caller {
				caller = outsider
			}
			_, err := ctrl.CreateElection(caller, params)
			c.Assert(err, qt.ErrorIs, tc.err)
		})
	}

	// failed creations persist nothing
	elections, err := ctrl.Elections()
	c.Assert(err, qt.IsNil)
	c.Assert(elections, qt.HasLen, 0)

	// start == now is allowed, ids start at 1
	params := valid()
	params.StartTime = 50
	params.MerkleRoot = make([]byte, 32)
	params.EncryptionPublicKey = []byte{0x01}
	params.RelayerVoting = true
	id, err := ctrl.CreateElection(organizer, params)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint64(1))

	e, err := ctrl.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Name, qt.Equals, "board")
	c.Assert(e.Candidates, qt.DeepEquals, []string{"A", "B"})
	c.Assert(e.HasMerkleRoot(), qt.IsTrue)
	c.Assert(e.RelayerVoting, qt.IsTrue)
	c.Assert(e.Finalized, qt.IsFalse)
	c.Assert(e.CreatedAt, qt.Equals, uint64(50))

	id, err = ctrl.CreateElection(organizer, valid())
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint64(2))

	// zero candidates is allowed
	params = valid()
	params.Candidates = nil
	id, err = ctrl.CreateElection(organizer, params)
	c.Assert(err, qt.IsNil)
	candidates, err := ctrl.ElectionCandidates(id)
	c.Assert(err, qt.IsNil)
	c.Assert(candidates, qt.HasLen, 0)

	_, err = ctrl.CreateElection(organizer, nil)
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
}

func TestAddVoters(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A"}})

	_, err := ctrl.AddVoters(outsider, id, []common.Address{voter1})
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
	_, err = ctrl.AddVoters(organizer, 99, []common.Address{voter1})
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	added, err := ctrl.AddVoters(organizer, id, []common.Address{voter1, voter2})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 2)
	added, err = ctrl.AddVoters(organizer, id, []common.Address{voter1, voter1})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 0)

	voters, err := ctrl.EligibleVoters(id)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.DeepEquals, []common.Address{voter1, voter2})

	// voters can be added while voting and after the window, not after
	// finalization
	clock.Set(150)
	_, err = ctrl.AddVoters(organizer, id, []common.Address{outsider})
	c.Assert(err, qt.IsNil)
	clock.Set(250)
	c.Assert(ctrl.EndElection(organizer, id), qt.IsNil)
	_, err = ctrl.AddVoters(organizer, id, []common.Address{common.Address{9}})
	c.Assert(err, qt.ErrorIs, ErrAlreadyFinalized)
}

func TestSetEncryptionPublicKey(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A", "B"}})

	c.Assert(ctrl.SetEncryptionPublicKey(outsider, id, []byte{1}), qt.ErrorIs, ErrUnauthorized)
	c.Assert(ctrl.SetEncryptionPublicKey(organizer, id, nil), qt.ErrorIs, ErrInvalidInput)
	c.Assert(ctrl.SetEncryptionPublicKey(organizer, 42, []byte{1}), qt.ErrorIs, ErrNotFound)

	c.Assert(ctrl.SetEncryptionPublicKey(organizer, id, []byte{1, 2}), qt.IsNil)
	key, err := ctrl.EncryptionPublicKey(id)
	c.Assert(err, qt.IsNil)
	c.Assert(key, qt.DeepEquals, []byte{1, 2})

	// rotation overwrites
	c.Assert(ctrl.SetEncryptionPublicKey(organizer, id, []byte{3}), qt.IsNil)
	key, err = ctrl.EncryptionPublicKey(id)
	c.Assert(err, qt.IsNil)
	c.Assert(key, qt.DeepEquals, []byte{3})

	// a plaintext election with votes can't become confidential
	plain := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A"}})
	_, err = ctrl.AddVoters(organizer, plain, []common.Address{voter1})
	c.Assert(err, qt.IsNil)
	clock.Set(150)
	c.Assert(ctrl.Vote(voter1, plain, []byte("A")), qt.IsNil)
	c.Assert(ctrl.SetEncryptionPublicKey(organizer, plain, []byte{1}), qt.ErrorIs, ErrMisconfiguredElection)
	key, err = ctrl.EncryptionPublicKey(plain)
	c.Assert(err, qt.IsNil)
	c.Assert(key, qt.HasLen, 0)
}

func TestEndElection(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{
		Candidates:          []string{"A"},
		EncryptionPublicKey: []byte{1},
	})

	clock.Set(200)
	c.Assert(ctrl.EndElection(organizer, id), qt.ErrorIs, ErrInvalidTiming)
	clock.Set(201)
	c.Assert(ctrl.EndElection(outsider, id), qt.ErrorIs, ErrUnauthorized)
	c.Assert(ctrl.EndElection(organizer, 7), qt.ErrorIs, ErrNotFound)

	// confidential elections wait for the published results
	c.Assert(ctrl.EndElection(organizer, id), qt.IsNil)
	e, err := ctrl.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Finalized, qt.IsFalse)
	c.Assert(e.Status(clock.Now()), qt.Equals, types.ElectionStatusClosed)
}

func TestForceEndElection(t *testing.T) {
	c := qt.New(t)
	ctrl, clock := newTestController(t)
	id := createElection(t, ctrl, clock, &CreateElectionParams{Candidates: []string{"A"}})

	clock.Set(150)
	c.Assert(ctrl.ForceEndElection(outsider, id), qt.ErrorIs, ErrUnauthorized)
	c.Assert(ctrl.ForceEndElection(organizer, id), qt.IsNil)
	e, err := ctrl.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(e.EndTime, qt.Equals, uint64(149))

	// the window is over: voting fails, a second force end fails, ending works
	_, err = ctrl.AddVoters(organizer, id, []common.Address{voter1})
	c.Assert(err, qt.IsNil)
	c.Assert(ctrl.Vote(voter1, id, []byte("A")), qt.ErrorIs, ErrInvalidTiming)
	c.Assert(ctrl.ForceEndElection(organizer, id), qt.ErrorIs, ErrInvalidTiming)
	c.Assert(ctrl.EndElection(organizer, id), qt.IsNil)
	c.Assert(ctrl.ForceEndElection(organizer, id), qt.ErrorIs, ErrAlreadyFinalized)

	// force ending before the start closes the election too
	early := createElection(t, ctrl, clock, &CreateElectionParams{})
	clock.Set(10)
	c.Assert(ctrl.ForceEndElection(organizer, early), qt.IsNil)
	e, err = ctrl.Election(early)
	c.Assert(err, qt.IsNil)
	c.Assert(e.EndTime, qt.Equals, uint64(9))
	c.Assert(e.Status(10), qt.Equals, types.ElectionStatusClosed)

	// saturates at zero
	zero := createElection(t, ctrl, clock, &CreateElectionParams{})
	clock.Set(0)
	c.Assert(ctrl.ForceEndElection(organizer, zero), qt.IsNil)
	e, err = ctrl.Election(zero)
	c.Assert(err, qt.IsNil)
	c.Assert(e.EndTime, qt.Equals, uint64(0))
}
