package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Election endpoints
	ElectionURLParam            = "electionId"                                                 // URL parameter for election ID
	AddressURLParam             = "address"                                                    // URL parameter or query param for an address
	ElectionsEndpoint           = "/elections"                                                 // GET: List elections, POST: Create election
	ElectionEndpoint            = ElectionsEndpoint + "/{" + ElectionURLParam + "}"            // GET: Get election info
	ElectionKeyEndpoint         = ElectionEndpoint + "/key"                                    // GET: Encryption key, POST: Set encryption key
	ElectionVotersEndpoint      = ElectionEndpoint + "/voters"                                 // GET: Allow-list, POST: Add voters
	ElectionVoterEndpoint       = ElectionVotersEndpoint + "/{" + AddressURLParam + "}"        // GET: Has voted
	ElectionEndEndpoint         = ElectionEndpoint + "/end"                                    // POST: End election
	ElectionForceEndEndpoint    = ElectionEndpoint + "/forceEnd"                               // POST: Force end election
	ElectionResultsEndpoint     = ElectionEndpoint + "/results"                                // GET: Results, POST: Publish results
	ElectionCandidatesEndpoint  = ElectionEndpoint + "/candidates"                             // GET: Candidate labels
	ElectionBallotsEndpoint     = ElectionEndpoint + "/ballots"                                // GET: Stored ciphertexts
	ElectionBallotCountEndpoint = ElectionBallotsEndpoint + "/count"                           // GET: Number of stored ballots
	NullifierURLParam           = "nullifier"                                                  // URL parameter for a hex nullifier
	ElectionNullifierEndpoint   = ElectionEndpoint + "/nullifiers/{" + NullifierURLParam + "}" // GET: Nullifier spent

	// Vote endpoints
	VotesEndpoint          = ElectionEndpoint + "/votes"  // POST: Allow-list vote
	MerkleVotesEndpoint    = VotesEndpoint + "/merkle"    // POST: Anonymous vote
	EncryptedVotesEndpoint = VotesEndpoint + "/encrypted" // POST: Relayed vote

	// Merkle endpoints
	MerkleVerifyEndpoint = "/merkle/verify" // GET, POST: Verify a membership proof
	VoterQueryParam      = "voter"          // Query param for the proof leaf address
	RootQueryParam       = "root"           // Query param for the merkle root
	ProofQueryParam      = "proof"          // Query param for the comma separated siblings

	// Organizer endpoint
	OrganizerEndpoint = "/organizer" // GET: Organizer address, ?address= checks an address

	// SignatureHeader carries the hex encoded signature of the request body.
	SignatureHeader = "X-Signature"
	// RequestIDHeader carries the ID assigned to each request.
	RequestIDHeader = "X-Request-Id"
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. If the placeholder is not found, the
// value is added as a query param.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// ElectionEndpointWithID fills the election ID of an election endpoint.
func ElectionEndpointWithID(path string, id uint64) string {
	return EndpointWithParam(path, ElectionURLParam, fmt.Sprintf("%d", id))
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
}
