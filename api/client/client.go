// Package client implements an HTTP client for the ballotbox API. Requests
// with a body are signed with the configured signer.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/api"
	"github.com/vocdoni/ballotbox/crypto/signatures/ethereum"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/types"
)

// DefaultTimeout is the timeout of every request.
const DefaultTimeout = 30 * time.Second

// HTTPclient is the API client.
type HTTPclient struct {
	c      *http.Client
	addr   *url.URL
	signer *ethereum.Signer
}

// New returns a client for the API at host, e.g. http://127.0.0.1:9090.
func New(host string) (*HTTPclient, error) {
	addr, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid API host %q: %w", host, err)
	}
	if addr.Scheme == "" || addr.Host == "" {
		return nil, fmt.Errorf("invalid API host %q: missing scheme or host", host)
	}
	return &HTTPclient{
		c:    &http.Client{Timeout: DefaultTimeout},
		addr: addr,
	}, nil
}

// SetSigner sets the key used to sign the request bodies.
func (c *HTTPclient) SetSigner(signer *ethereum.Signer) {
	c.signer = signer
}

// Address returns the address of the signer, or the zero address.
func (c *HTTPclient) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Request performs a request to the API. jsonBody is marshaled and signed
// if not nil. params are key=value query parameters and urlPath the path
// elements. It returns the response body and status code.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("could not marshal request body: %w", err)
		}
	}

	u := *c.addr
	u.Path = path.Join(append([]string{u.Path}, urlPath...)...)
	if len(params) > 0 {
		query := u.Query()
		for _, p := range params {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return nil, 0, fmt.Errorf("invalid query param %q", p)
			}
			query.Add(k, v)
		}
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if body != nil && c.signer != nil {
		sig, err := c.signer.Sign(body)
		if err != nil {
			return nil, 0, fmt.Errorf("could not sign request: %w", err)
		}
		req.Header.Set(api.SignatureHeader, sig.Hex())
	}

	log.Debugw("api client request", "method", method, "url", u.String())
	resp, err := c.c.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("could not read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// do performs a request and decodes a successful JSON response into out,
// which may be nil. Error replies are returned as *api.ErrorResponse.
func (c *HTTPclient) do(method string, jsonBody, out any, urlPath string, params ...string) error {
	data, status, err := c.Request(method, jsonBody, params, urlPath)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &ErrorResponse{Status: status}
		var body api.ErrorResponse
		if err := json.Unmarshal(data, &body); err != nil {
			apiErr.Message = strings.TrimSpace(string(data))
			return apiErr
		}
		apiErr.Code, apiErr.Message = body.Code, body.Error
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

// ErrorResponse is returned by the typed methods when the API replies with
// an error.
type ErrorResponse struct {
	Code    int
	Status  int
	Message string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.Status, e.Message)
}

func electionPath(endpoint string, id uint64) string {
	return api.ElectionEndpointWithID(endpoint, id)
}

// Ping checks that the API is reachable.
func (c *HTTPclient) Ping() error {
	return c.do(http.MethodGet, nil, nil, api.PingEndpoint)
}

// Organizer returns the organizer address of the node.
func (c *HTTPclient) Organizer() (common.Address, error) {
	var resp types.OrganizerResponse
	err := c.do(http.MethodGet, nil, &resp, api.OrganizerEndpoint)
	return resp.Organizer, err
}

// IsOrganizer asks the node whether addr is the organizer.
func (c *HTTPclient) IsOrganizer(addr common.Address) (bool, error) {
	var resp types.OrganizerResponse
	if err := c.do(http.MethodGet, nil, &resp, api.OrganizerEndpoint, api.AddressURLParam+"="+addr.Hex()); err != nil {
		return false, err
	}
	return resp.IsOrganizer != nil && *resp.IsOrganizer, nil
}

// CreateElection creates an election and returns its ID.
func (c *HTTPclient) CreateElection(setup *types.ElectionSetup) (uint64, error) {
	var resp types.ElectionSetupResponse
	err := c.do(http.MethodPost, setup, &resp, api.ElectionsEndpoint)
	return resp.ElectionID, err
}

// Elections lists every election.
func (c *HTTPclient) Elections() ([]*types.ElectionInfo, error) {
	var resp types.ElectionList
	err := c.do(http.MethodGet, nil, &resp, api.ElectionsEndpoint)
	return resp.Elections, err
}

// Election returns an election and its status.
func (c *HTTPclient) Election(id uint64) (*types.ElectionInfo, error) {
	resp := &types.ElectionInfo{}
	if err := c.do(http.MethodGet, nil, resp, electionPath(api.ElectionEndpoint, id)); err != nil {
		return nil, err
	}
	return resp, nil
}

// SetEncryptionKey sets the encryption key of an election.
func (c *HTTPclient) SetEncryptionKey(id uint64, key []byte) error {
	req := &types.EncryptionKeyRequest{EncryptionPublicKey: key}
	req.ElectionID = id
	return c.do(http.MethodPost, req, nil, electionPath(api.ElectionKeyEndpoint, id))
}

// EncryptionKey returns the encryption key of an election.
func (c *HTTPclient) EncryptionKey(id uint64) (types.HexBytes, error) {
	var resp types.EncryptionKeyRequest
	err := c.do(http.MethodGet, nil, &resp, electionPath(api.ElectionKeyEndpoint, id))
	return resp.EncryptionPublicKey, err
}

// AddVoters extends the allow-list of an election and returns how many
// addresses were new.
func (c *HTTPclient) AddVoters(id uint64, voters []common.Address) (int, error) {
	var resp types.VotersAddedResponse
	req := &types.VotersRequest{Voters: voters}
	req.ElectionID = id
	err := c.do(http.MethodPost, req, &resp, electionPath(api.ElectionVotersEndpoint, id))
	return resp.Added, err
}

// Voters returns the allow-list of an election.
func (c *HTTPclient) Voters(id uint64) ([]common.Address, error) {
	var resp types.VotersResponse
	err := c.do(http.MethodGet, nil, &resp, electionPath(api.ElectionVotersEndpoint, id))
	return resp.Voters, err
}

// HasVoted reports whether voter cast an allow-listed ballot.
func (c *HTTPclient) HasVoted(id uint64, voter common.Address) (bool, error) {
	var resp types.HasVotedResponse
	p := api.EndpointWithParam(electionPath(api.ElectionVoterEndpoint, id), api.AddressURLParam, voter.Hex())
	err := c.do(http.MethodGet, nil, &resp, p)
	return resp.HasVoted, err
}

// EndElection closes an election after its end time.
func (c *HTTPclient) EndElection(id uint64) error {
	return c.do(http.MethodPost, &types.ElectionActionRequest{ElectionID: id}, nil,
		electionPath(api.ElectionEndEndpoint, id))
}

// ForceEndElection ends an election before its end time.
func (c *HTTPclient) ForceEndElection(id uint64) error {
	return c.do(http.MethodPost, &types.ElectionActionRequest{ElectionID: id}, nil,
		electionPath(api.ElectionForceEndEndpoint, id))
}

// PublishResults publishes the final tally of an election.
func (c *HTTPclient) PublishResults(id uint64, results []types.CandidateCount) error {
	req := &types.ResultsRequest{Results: results}
	req.ElectionID = id
	return c.do(http.MethodPost, req, nil, electionPath(api.ElectionResultsEndpoint, id))
}

// Results returns the tally of an election.
func (c *HTTPclient) Results(id uint64) (*types.ResultsResponse, error) {
	resp := &types.ResultsResponse{}
	if err := c.do(http.MethodGet, nil, resp, electionPath(api.ElectionResultsEndpoint, id)); err != nil {
		return nil, err
	}
	return resp, nil
}

// Candidates returns the candidate labels of an election.
func (c *HTTPclient) Candidates(id uint64) ([]string, error) {
	var resp types.CandidatesResponse
	err := c.do(http.MethodGet, nil, &resp, electionPath(api.ElectionCandidatesEndpoint, id))
	return resp.Candidates, err
}

// Ballots returns the stored ciphertexts of an election.
func (c *HTTPclient) Ballots(id uint64) ([]types.HexBytes, error) {
	var resp types.BallotsResponse
	err := c.do(http.MethodGet, nil, &resp, electionPath(api.ElectionBallotsEndpoint, id))
	return resp.Ballots, err
}

// BallotCount returns the number of stored ballots of an election.
func (c *HTTPclient) BallotCount(id uint64) (uint64, error) {
	var resp types.BallotCountResponse
	err := c.do(http.MethodGet, nil, &resp, electionPath(api.ElectionBallotCountEndpoint, id))
	return resp.Count, err
}

// NullifierUsed reports whether a nullifier was spent in an election.
func (c *HTTPclient) NullifierUsed(id uint64, nullifier []byte) (bool, error) {
	var resp types.NullifierResponse
	h := types.HexBytes(nullifier)
	p := api.EndpointWithParam(electionPath(api.ElectionNullifierEndpoint, id), api.NullifierURLParam, h.String())
	err := c.do(http.MethodGet, nil, &resp, p)
	return resp.Used, err
}

// Vote casts an allow-listed ballot as the signer.
func (c *HTTPclient) Vote(id uint64, ballot []byte) error {
	req := &types.VoteRequest{Ballot: ballot}
	req.ElectionID = id
	return c.do(http.MethodPost, req, nil, electionPath(api.VotesEndpoint, id))
}

// VoteWithMerkle casts an anonymous ballot proving the signer is in the
// tree of the election.
func (c *HTTPclient) VoteWithMerkle(id uint64, nullifier, ballot []byte, proof [][]byte) error {
	req := &types.MerkleVoteRequest{
		Nullifier: nullifier,
		Ballot:    ballot,
		Proof:     types.HexBytesSlice(proof),
	}
	req.ElectionID = id
	return c.do(http.MethodPost, req, nil, electionPath(api.MerkleVotesEndpoint, id))
}

// VoteEncrypted relays a ballot with a single use nonce.
func (c *HTTPclient) VoteEncrypted(id uint64, ballot []byte, nonce uint64) error {
	req := &types.EncryptedVoteRequest{Ballot: ballot, Nonce: nonce}
	req.ElectionID = id
	return c.do(http.MethodPost, req, nil, electionPath(api.EncryptedVotesEndpoint, id))
}

// VerifyMerkleProof asks the node to check a membership proof.
func (c *HTTPclient) VerifyMerkleProof(voter common.Address, root []byte, proof [][]byte) (bool, error) {
	var resp types.BoolResponse
	req := &types.MerkleVerifyRequest{Voter: voter, Root: root, Proof: types.HexBytesSlice(proof)}
	err := c.do(http.MethodPost, req, &resp, api.MerkleVerifyEndpoint)
	return resp.Result, err
}
