package election

import (
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/crypto/hash"
	"github.com/vocdoni/ballotbox/db/metadb"
	"github.com/vocdoni/ballotbox/storage"
)

var (
	organizer = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	voter1    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	voter2    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	outsider  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type testClock struct {
	now atomic.Uint64
}

func (c *testClock) Now() uint64 {
	return c.now.Load()
}

func (c *testClock) Set(t uint64) {
	c.now.Store(t)
}

func newTestController(t *testing.T) (*Controller, *testClock) {
	t.Helper()
	clock := &testClock{}
	ctrl, err := New(storage.New(metadb.ForTest()), organizer, WithClock(clock))
	qt.Assert(t, err, qt.IsNil)
	return ctrl, clock
}

// createElection creates an election with window [100, 200] at time 0.
func createElection(t *testing.T, ctrl *Controller, clock *testClock, params *CreateElectionParams) uint64 {
	t.Helper()
	clock.Set(0)
	if params.Name == "" {
		params.Name = "test election"
	}
	if params.StartTime == 0 && params.EndTime == 0 {
		params.StartTime, params.EndTime = 100, 200
	}
	id, err := ctrl.CreateElection(organizer, params)
	qt.Assert(t, err, qt.IsNil)
	return id
}

// twoLeafRoot returns the root of the two leaf tree {h(voter1), h(voter2)}
// and the proof of voter1.
func twoLeafRoot() ([]byte, [][]byte) {
	h1, h2 := hash.LeafHash(voter1), hash.LeafHash(voter2)
	return hash.Keccak256(h1, h2), [][]byte{h2}
}
