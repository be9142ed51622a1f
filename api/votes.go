package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/ballotbox/types"
)

// vote casts an allow-listed ballot, the signer is the voter.
// POST /elections/{electionId}/votes
func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	var req types.VoteRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.ctrl.Vote(caller, id, req.Ballot); err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// merkleVote casts an anonymous ballot. The signer must be the leaf the
// proof refers to.
// POST /elections/{electionId}/votes/merkle
func (a *API) merkleVote(w http.ResponseWriter, r *http.Request) {
	var req types.MerkleVoteRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	err := a.ctrl.VoteWithMerkle(caller, id, req.Nullifier, req.Ballot, types.ByteSlices(req.Proof))
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// encryptedVote stores a ballot submitted by a relayer.
// POST /elections/{electionId}/votes/encrypted
func (a *API) encryptedVote(w http.ResponseWriter, r *http.Request) {
	var req types.EncryptedVoteRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.ctrl.VoteEncrypted(caller, id, req.Ballot, req.Nonce); err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// ballots returns the stored ciphertexts of an election in arrival order.
// GET /elections/{electionId}/ballots
func (a *API) ballots(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	ballots, err := a.ctrl.EncryptedVotes(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.BallotsResponse{Ballots: types.HexBytesSlice(ballots)})
}

// ballotCount returns the number of stored ballots.
// GET /elections/{electionId}/ballots/count
func (a *API) ballotCount(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	n, err := a.ctrl.BallotCount(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.BallotCountResponse{Count: n})
}

// nullifierUsed reports whether an anonymous voter already spent a nullifier.
// GET /elections/{electionId}/nullifiers/{nullifier}
func (a *API) nullifierUsed(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	nullifier, err := types.HexStringToHexBytes(chi.URLParam(r, NullifierURLParam))
	if err != nil || len(nullifier) == 0 {
		ErrMalformedParam.Withf("invalid nullifier").Write(w)
		return
	}
	used, err := a.ctrl.NullifierUsed(id, nullifier)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.NullifierResponse{Nullifier: nullifier, Used: used})
}
