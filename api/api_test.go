package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/crypto/hash"
	"github.com/vocdoni/ballotbox/crypto/signatures/ethereum"
	"github.com/vocdoni/ballotbox/db/metadb"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/storage"
	"github.com/vocdoni/ballotbox/types"
)

func testAPI(t *testing.T) (*API, *ethereum.Signer, *atomic.Uint64) {
	t.Helper()
	organizer, err := ethereum.NewSigner()
	qt.Assert(t, err, qt.IsNil)
	now := &atomic.Uint64{}
	ctrl, err := election.New(storage.New(metadb.ForTest()), organizer.Address(),
		election.WithClock(election.ClockFunc(now.Load)))
	qt.Assert(t, err, qt.IsNil)
	a, err := New(&APIConfig{Host: "127.0.0.1", Controller: ctrl})
	qt.Assert(t, err, qt.IsNil)
	return a, organizer, now
}

// signedPost builds a POST request whose body is signed by signer.
func signedPost(t *testing.T, signer *ethereum.Signer, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	qt.Assert(t, err, qt.IsNil)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if signer != nil {
		sig, err := signer.Sign(data)
		qt.Assert(t, err, qt.IsNil)
		req.Header.Set(SignatureHeader, sig.Hex())
	}
	return req
}

func serve(a *API, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	qt.Assert(t, json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
	return resp
}

func TestNewRequiresController(t *testing.T) {
	c := qt.New(t)
	_, err := New(nil)
	c.Assert(err, qt.ErrorMatches, "missing API configuration")
	_, err = New(&APIConfig{})
	c.Assert(err, qt.ErrorMatches, "missing election controller")
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)
	rec := serve(a, httptest.NewRequest(http.MethodGet, PingEndpoint, nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get(RequestIDHeader), qt.Not(qt.Equals), "")
}

func TestRequestIDIsKept(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)
	req := httptest.NewRequest(http.MethodGet, PingEndpoint, nil)
	req.Header.Set(RequestIDHeader, "5c6a1d4e-3b0f-4a8c-9d2e-7f1b3c5a9e10")
	rec := serve(a, req)
	c.Assert(rec.Header().Get(RequestIDHeader), qt.Equals, "5c6a1d4e-3b0f-4a8c-9d2e-7f1b3c5a9e10")

	req = httptest.NewRequest(http.MethodGet, PingEndpoint, nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = serve(a, req)
	c.Assert(rec.Header().Get(RequestIDHeader), qt.Not(qt.Equals), "not-a-uuid")
}

func TestCreateElection(t *testing.T) {
	c := qt.New(t)
	a, organizer, _ := testAPI(t)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200, Candidates: []string{"a", "b"}}

	rec := serve(a, signedPost(t, organizer, ElectionsEndpoint, setup))
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body.String()))
	var resp types.ElectionSetupResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.ElectionID, qt.Equals, uint64(1))

	rec = serve(a, httptest.NewRequest(http.MethodGet, ElectionEndpointWithID(ElectionEndpoint, 1), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var info struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &info), qt.IsNil)
	c.Assert(info.Name, qt.Equals, "board")
	c.Assert(info.Status, qt.Equals, types.ElectionStatusCreatedName)
}

func TestCreateElectionUnauthorized(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)
	other, err := ethereum.NewSigner()
	c.Assert(err, qt.IsNil)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200}

	rec := serve(a, signedPost(t, other, ElectionsEndpoint, setup))
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrUnauthorized.Code)
}

func TestMissingSignature(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200}

	rec := serve(a, signedPost(t, nil, ElectionsEndpoint, setup))
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrMissingSignature.Code)

	req := signedPost(t, nil, ElectionsEndpoint, setup)
	req.Header.Set(SignatureHeader, "0xzz")
	rec = serve(a, req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrInvalidSignature.Code)
}

func TestSignatureCoversBody(t *testing.T) {
	c := qt.New(t)
	a, organizer, _ := testAPI(t)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200}
	data, err := json.Marshal(setup)
	c.Assert(err, qt.IsNil)
	sig, err := organizer.Sign(data)
	c.Assert(err, qt.IsNil)

	// tampering the body changes the recovered address
	setup.Name = "tampered"
	req := signedPost(t, nil, ElectionsEndpoint, setup)
	req.Header.Set(SignatureHeader, sig.Hex())
	rec := serve(a, req)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)
}

func TestElectionIDParam(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/elections/abc", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrMalformedElectionID.Code)

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/elections/0", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/elections/42", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrElectionNotFound.Code)
}

func TestSignedBodyMustMatchURLElection(t *testing.T) {
	c := qt.New(t)
	a, organizer, now := testAPI(t)
	voter, err := ethereum.NewSigner()
	c.Assert(err, qt.IsNil)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200, Candidates: []string{"a", "b"}}
	c.Assert(serve(a, signedPost(t, organizer, ElectionsEndpoint, setup)).Code, qt.Equals, http.StatusOK)
	c.Assert(serve(a, signedPost(t, organizer, ElectionsEndpoint, setup)).Code, qt.Equals, http.StatusOK)
	_, err = a.ctrl.AddVoters(organizer.Address(), 2, []common.Address{voter.Address()})
	c.Assert(err, qt.IsNil)
	now.Store(150)

	// every body is signed for election 1 and replayed against election 2
	first := types.ElectionActionRequest{ElectionID: 1}
	for _, tc := range []struct {
		name     string
		endpoint string
		signer   *ethereum.Signer
		body     any
	}{
		{"key", ElectionKeyEndpoint, organizer,
			&types.EncryptionKeyRequest{ElectionActionRequest: first, EncryptionPublicKey: types.HexBytes{1, 2, 3}}},
		{"voters", ElectionVotersEndpoint, organizer,
			&types.VotersRequest{ElectionActionRequest: first, Voters: []common.Address{{9}}}},
		{"votes", VotesEndpoint, voter,
			&types.VoteRequest{ElectionActionRequest: first, Ballot: types.HexBytes{1}}},
		{"merkle votes", MerkleVotesEndpoint, voter,
			&types.MerkleVoteRequest{ElectionActionRequest: first, Nullifier: types.HexBytes{7}, Ballot: types.HexBytes{1}}},
		{"encrypted votes", EncryptedVotesEndpoint, voter,
			&types.EncryptedVoteRequest{ElectionActionRequest: first, Ballot: types.HexBytes{1}, Nonce: 1}},
		{"results", ElectionResultsEndpoint, organizer,
			&types.ResultsRequest{ElectionActionRequest: first, Results: []types.CandidateCount{{Candidate: "a", Count: 1}}}},
		{"end", ElectionEndEndpoint, organizer, &first},
		{"forceEnd", ElectionForceEndEndpoint, organizer, &first},
		{"unbound body", ElectionForceEndEndpoint, organizer, &types.ElectionActionRequest{}},
	} {
		rec := serve(a, signedPost(t, tc.signer, ElectionEndpointWithID(tc.endpoint, 2), tc.body))
		c.Assert(rec.Code, qt.Equals, http.StatusBadRequest, qt.Commentf("%s", tc.name))
		c.Assert(decodeError(t, rec).Code, qt.Equals, ErrElectionMismatch.Code, qt.Commentf("%s", tc.name))
	}

	e, err := a.ctrl.Election(2)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Finalized, qt.IsFalse)
	c.Assert(e.EndTime, qt.Equals, uint64(200))
	c.Assert(e.EncryptionPublicKey, qt.HasLen, 0)
	voters, err := a.ctrl.EligibleVoters(2)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.DeepEquals, []common.Address{voter.Address()})
	count, err := a.ctrl.BallotCount(2)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(0))

	// the same bodies are accepted by the election they were signed for
	rec := serve(a, signedPost(t, organizer, ElectionEndpointWithID(ElectionForceEndEndpoint, 1), &first))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	second := types.ElectionActionRequest{ElectionID: 2}
	rec = serve(a, signedPost(t, voter, ElectionEndpointWithID(VotesEndpoint, 2),
		&types.VoteRequest{ElectionActionRequest: second, Ballot: types.HexBytes("a")}))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	c := qt.New(t)
	a, organizer, _ := testAPI(t)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200}
	c.Assert(serve(a, signedPost(t, organizer, ElectionsEndpoint, setup)).Code, qt.Equals, http.StatusOK)

	body := &types.VoteRequest{Ballot: make(types.HexBytes, maxRequestBodySize/2+1)}
	body.ElectionID = 1
	rec := serve(a, signedPost(t, organizer, ElectionEndpointWithID(VotesEndpoint, 1), body))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrRequestTooLarge.Code)

	setup.Name = string(bytes.Repeat([]byte{'x'}, maxRequestBodySize))
	rec = serve(a, signedPost(t, organizer, ElectionsEndpoint, setup))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrRequestTooLarge.Code)
}

func TestElectionErrorMapping(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		err  error
		want Error
	}{
		{election.ErrUnauthorized, ErrUnauthorized},
		{election.ErrNotFound, ErrElectionNotFound},
		{election.ErrInvalidInput, ErrInvalidInput},
		{election.ErrInvalidTiming, ErrInvalidTiming},
		{election.ErrAlreadyFinalized, ErrAlreadyFinalized},
		{election.ErrAlreadyVoted, ErrAlreadyVoted},
		{election.ErrReplayDetected, ErrReplayDetected},
		{election.ErrNotEligible, ErrNotEligible},
		{election.ErrInvalidProof, ErrInvalidMerkleProof},
		{election.ErrMisconfiguredElection, ErrMisconfiguredElection},
		{storage.ErrNotFound, ErrGenericInternalServerError},
	} {
		got := electionError(tc.err)
		c.Assert(got.Code, qt.Equals, tc.want.Code, qt.Commentf("%v", tc.err))
		c.Assert(got.HTTPstatus, qt.Equals, tc.want.HTTPstatus)
	}
}

func TestOrganizerEndpoint(t *testing.T) {
	c := qt.New(t)
	a, organizer, _ := testAPI(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, OrganizerEndpoint, nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var resp types.OrganizerResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.Organizer, qt.Equals, organizer.Address())
	c.Assert(resp.IsOrganizer, qt.IsNil)

	path := EndpointWithParam(OrganizerEndpoint, AddressURLParam, organizer.Address().Hex())
	rec = serve(a, httptest.NewRequest(http.MethodGet, path, nil))
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(*resp.IsOrganizer, qt.IsTrue)

	path = EndpointWithParam(OrganizerEndpoint, AddressURLParam, common.Address{1}.Hex())
	rec = serve(a, httptest.NewRequest(http.MethodGet, path, nil))
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(*resp.IsOrganizer, qt.IsFalse)

	path = EndpointWithParam(OrganizerEndpoint, AddressURLParam, "0x1234")
	rec = serve(a, httptest.NewRequest(http.MethodGet, path, nil))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrMalformedAddress.Code)
}

func TestErrorWrite(t *testing.T) {
	c := qt.New(t)
	rec := httptest.NewRecorder()
	ErrInvalidInput.Withf("bad %s", "thing").Write(rec)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
	resp := decodeError(t, rec)
	c.Assert(resp.Code, qt.Equals, 40023)
	c.Assert(resp.Error, qt.Equals, "invalid input: bad thing")
}

func TestVerifyMerkleProofQuery(t *testing.T) {
	c := qt.New(t)
	a, _, _ := testAPI(t)
	voter, sibling := common.Address{1}, common.Address{2}
	leaf, siblingLeaf := hash.LeafHash(voter), hash.LeafHash(sibling)
	root := hash.Keccak256(leaf, siblingLeaf)

	verify := func(voter common.Address, root, proof []byte) (int, bool) {
		path := EndpointWithParam(MerkleVerifyEndpoint, VoterQueryParam, voter.Hex())
		rootHex, proofHex := types.HexBytes(root), types.HexBytes(proof)
		path = EndpointWithParam(path, RootQueryParam, rootHex.Hex())
		path = EndpointWithParam(path, ProofQueryParam, proofHex.Hex())
		rec := serve(a, httptest.NewRequest(http.MethodGet, path, nil))
		var resp types.BoolResponse
		if rec.Code == http.StatusOK {
			c.Assert(json.Unmarshal(rec.Body.Bytes(), &resp), qt.IsNil)
		}
		return rec.Code, resp.Result
	}

	code, ok := verify(voter, root, siblingLeaf)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(ok, qt.IsTrue)
	_, ok = verify(sibling, root, leaf)
	c.Assert(ok, qt.IsFalse)
	code, _ = verify(voter, []byte("zz"), siblingLeaf)
	c.Assert(code, qt.Equals, http.StatusOK)

	rec := serve(a, httptest.NewRequest(http.MethodGet, MerkleVerifyEndpoint+"?voter=0x01", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestBallotCountAndNullifier(t *testing.T) {
	c := qt.New(t)
	a, organizer, _ := testAPI(t)
	setup := &types.ElectionSetup{Name: "board", StartTime: 100, EndTime: 200, Candidates: []string{"a", "b"}}
	rec := serve(a, signedPost(t, organizer, ElectionsEndpoint, setup))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	rec = serve(a, httptest.NewRequest(http.MethodGet, ElectionEndpointWithID(ElectionBallotCountEndpoint, 1), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var count types.BallotCountResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &count), qt.IsNil)
	c.Assert(count.Count, qt.Equals, uint64(0))

	nullifierPath := func(id uint64, nullifier string) string {
		return EndpointWithParam(ElectionEndpointWithID(ElectionNullifierEndpoint, id), NullifierURLParam, nullifier)
	}
	rec = serve(a, httptest.NewRequest(http.MethodGet, nullifierPath(1, "0xabcd"), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var nullifier types.NullifierResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &nullifier), qt.IsNil)
	c.Assert(nullifier.Used, qt.IsFalse)
	c.Assert(nullifier.Nullifier, qt.DeepEquals, types.HexBytes{0xab, 0xcd})

	rec = serve(a, httptest.NewRequest(http.MethodGet, nullifierPath(1, "0xzz"), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeError(t, rec).Code, qt.Equals, ErrMalformedParam.Code)

	rec = serve(a, httptest.NewRequest(http.MethodGet, nullifierPath(7, "0xabcd"), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	rec = serve(a, httptest.NewRequest(http.MethodGet, ElectionEndpointWithID(ElectionBallotCountEndpoint, 7), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}
