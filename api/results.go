package api

import (
	"net/http"

	"github.com/vocdoni/ballotbox/types"
)

// publishResults stores the final tally of an ended election.
// POST /elections/{electionId}/results
func (a *API) publishResults(w http.ResponseWriter, r *http.Request) {
	var req types.ResultsRequest
	caller, id, apiErr := signedElectionRequest(w, r, &req)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.ctrl.PublishResults(caller, id, req.Results); err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// results returns the tally of an election, all zeros until it is
// finalized.
// GET /elections/{electionId}/results
func (a *API) results(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	e, err := a.ctrl.Election(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	results, err := a.ctrl.ElectionResults(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.ResultsResponse{Finalized: e.Finalized, Results: results})
}

// candidates returns the candidate labels of an election.
// GET /elections/{electionId}/candidates
func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	candidates, err := a.ctrl.ElectionCandidates(id)
	if err != nil {
		electionError(err).Write(w)
		return
	}
	httpWriteJSON(w, &types.CandidatesResponse{Candidates: candidates})
}
