package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vocdoni/ballotbox/types"
)

// verifyMerkleProof checks a membership proof against a root. It does not
// depend on any election and needs no signature.
// POST /merkle/verify
func (a *API) verifyMerkleProof(w http.ResponseWriter, r *http.Request) {
	var req types.MerkleVerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	ok := a.ctrl.VerifyMerkleProof(req.Voter, req.Root, types.ByteSlices(req.Proof))
	httpWriteJSON(w, &types.BoolResponse{Result: ok})
}

// verifyMerkleProofQuery is the GET form of verifyMerkleProof, the proof is
// a comma separated list of hex siblings.
// GET /merkle/verify?voter=<address>&root=<hex>&proof=<hex,hex,...>
func (a *API) verifyMerkleProofQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	voter, apiErr := addressParam(query.Get(VoterQueryParam))
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	root, err := types.HexStringToHexBytes(query.Get(RootQueryParam))
	if err != nil {
		ErrMalformedParam.Withf("root: %v", err).Write(w)
		return
	}
	var proof [][]byte
	if raw := query.Get(ProofQueryParam); raw != "" {
		for _, sibling := range strings.Split(raw, ",") {
			b, err := types.HexStringToHexBytes(sibling)
			if err != nil {
				ErrMalformedParam.Withf("proof: %v", err).Write(w)
				return
			}
			proof = append(proof, b)
		}
	}
	httpWriteJSON(w, &types.BoolResponse{Result: a.ctrl.VerifyMerkleProof(voter, root, proof)})
}

// organizer returns the organizer address. With the address query param it
// also reports whether that address is the organizer.
// GET /organizer?address=<address>
func (a *API) organizer(w http.ResponseWriter, r *http.Request) {
	resp := &types.OrganizerResponse{Organizer: a.ctrl.Organizer()}
	if raw := r.URL.Query().Get(AddressURLParam); raw != "" {
		addr, apiErr := addressParam(raw)
		if apiErr != nil {
			apiErr.Write(w)
			return
		}
		is := a.ctrl.IsOrganizer(addr)
		resp.IsOrganizer = &is
	}
	httpWriteJSON(w, resp)
}
