package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/types"
)

// newElection creates a new election.
// POST /elections
func (a *API) newElection(w http.ResponseWriter, r *http.Request) {
	var req types.ElectionSetup
	caller, apiErr := signedRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	id, err := a.ctrl.CreateElection(caller, &election.CreateElectionParams{
		Name:                req.Name,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Candidates:          req.Candidates,
		EncryptionPublicKey: req.EncryptionPublicKey,
		MerkleRoot:          req.MerkleRoot,
		RelayerVoting:       req.RelayerVoting,
	})
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.ElectionSetupResponse{ElectionID: id})
}

// elections lists every election with its current status.
// GET /elections
func (a *API) elections(w http.ResponseWriter, r *http.Request) {
	infos, err := a.ctrl.ElectionInfos()
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.ElectionList{Elections: infos})
}

// election returns an election with its current status.
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	info, err := a.ctrl.ElectionInfo(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, info)
}

// setEncryptionKey sets the encryption key of an election.
// POST /elections/{electionId}/key
func (a *API) setEncryptionKey(w http.ResponseWriter, r *http.Request) {
	var req types.EncryptionKeyRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.ctrl.SetEncryptionPublicKey(caller, id, req.EncryptionPublicKey); err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// encryptionKey returns the encryption key of an election.
// GET /elections/{electionId}/key
func (a *API) encryptionKey(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	key, err := a.ctrl.EncryptionPublicKey(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	resp := &types.EncryptionKeyRequest{EncryptionPublicKey: key}
	resp.ElectionID = id
	httpWriteJSON(w, resp)
}

// addVoters extends the allow-list of an election.
// POST /elections/{electionId}/voters
func (a *API) addVoters(w http.ResponseWriter, r *http.Request) {
	var req types.VotersRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	added, err := a.ctrl.AddVoters(caller, id, req.Voters)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.VotersAddedResponse{Added: added})
}

// voters returns the allow-list of an election.
// GET /elections/{electionId}/voters
func (a *API) voters(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voters, err := a.ctrl.EligibleVoters(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.VotersResponse{Voters: voters})
}

// hasVoted reports whether an address cast an allow-listed ballot.
// GET /elections/{electionId}/voters/{address}
func (a *API) hasVoted(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voter, apiErr := addressParam(chi.URLParam(r, AddressURLParam))
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voted, err := a.ctrl.HasVoted(id, voter)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.HasVotedResponse{Voter: voter, HasVoted: voted})
}

// endElection closes the tally of an election after its end time.
// POST /elections/{electionId}/end
func (a *API) endElection(w http.ResponseWriter, r *http.Request) {
	a.runElectionAction(w, r, "end", a.ctrl.EndElection)
}

// forceEndElection moves the end time of an election to the past.
// POST /elections/{electionId}/forceEnd
func (a *API) forceEndElection(w http.ResponseWriter, r *http.Request) {
	a.runElectionAction(w, r, "forceEnd", a.ctrl.ForceEndElection)
}

func (a *API) runElectionAction(w http.ResponseWriter, r *http.Request, name string,
	action func(caller common.Address, id uint64) error,
) {
	var req types.ElectionActionRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := action(caller, id); err != nil {
		electionError(err).Write(w)
		return
	}
	log.Debugw("election action applied", "action", name, "electionId", id)
	httpWriteOK(w)
}
