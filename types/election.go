package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ElectionStatus is the lifecycle phase of an election, derived from its
// time window and the finalized flag.
type ElectionStatus uint8

const (
	ElectionStatusCreated   = ElectionStatus(iota) // Election exists but voting did not start
	ElectionStatusOpen                             // Ballots are accepted
	ElectionStatusClosed                           // Voting ended, waiting for results
	ElectionStatusFinalized                        // Final tally is published

	ElectionStatusCreatedName   = "created"
	ElectionStatusOpenName      = "open"
	ElectionStatusClosedName    = "closed"
	ElectionStatusFinalizedName = "finalized"
)

func (s ElectionStatus) String() string {
	switch s {
	case ElectionStatusCreated:
		return ElectionStatusCreatedName
	case ElectionStatusOpen:
		return ElectionStatusOpenName
	case ElectionStatusClosed:
		return ElectionStatusClosedName
	case ElectionStatusFinalized:
		return ElectionStatusFinalizedName
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status by name.
func (s ElectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *ElectionStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case ElectionStatusCreatedName:
		*s = ElectionStatusCreated
	case ElectionStatusOpenName:
		*s = ElectionStatusOpen
	case ElectionStatusClosedName:
		*s = ElectionStatusClosed
	case ElectionStatusFinalizedName:
		*s = ElectionStatusFinalized
	default:
		return fmt.Errorf("unknown election status %q", name)
	}
	return nil
}

// Election is the persisted record of an election. Times are unix seconds and
// both bounds of the voting window are inclusive.
type Election struct {
	ID                  uint64   `json:"id"                            cbor:"0,keyasint,omitempty"`
	Name                string   `json:"name"                          cbor:"1,keyasint,omitempty"`
	StartTime           uint64   `json:"startTime"                     cbor:"2,keyasint,omitempty"`
	EndTime             uint64   `json:"endTime"                       cbor:"3,keyasint,omitempty"`
	Finalized           bool     `json:"finalized"                     cbor:"4,keyasint,omitempty"`
	Candidates          []string `json:"candidates"                    cbor:"5,keyasint,omitempty"`
	MerkleRoot          HexBytes `json:"merkleRoot,omitempty"          cbor:"6,keyasint,omitempty"`
	EncryptionPublicKey HexBytes `json:"encryptionPublicKey,omitempty" cbor:"7,keyasint,omitempty"`
	RelayerVoting       bool     `json:"relayerVoting"                 cbor:"8,keyasint,omitempty"`
	PlaintextVotes      uint64   `json:"plaintextVotes"                cbor:"9,keyasint,omitempty"`
	CreatedAt           uint64   `json:"createdAt"                     cbor:"10,keyasint,omitempty"`
}

// Status returns the lifecycle phase of the election at time now.
func (e *Election) Status(now uint64) ElectionStatus {
	switch {
	case e.Finalized:
		return ElectionStatusFinalized
	case now > e.EndTime:
		return ElectionStatusClosed
	case now < e.StartTime:
		return ElectionStatusCreated
	default:
		return ElectionStatusOpen
	}
}

// HasMerkleRoot reports whether admission is Merkle-anonymous.
func (e *Election) HasMerkleRoot() bool {
	return len(e.MerkleRoot) > 0
}

// Confidential reports whether ballots are ciphertexts, that is, whether an
// encryption public key is configured.
func (e *Election) Confidential() bool {
	return len(e.EncryptionPublicKey) > 0
}

// IsOpen reports whether ballots can be cast at time now.
func (e *Election) IsOpen(now uint64) bool {
	return e.Status(now) == ElectionStatusOpen
}

func (e *Election) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// CandidateCount is one entry of a tally.
type CandidateCount struct {
	Candidate string `json:"candidate" cbor:"0,keyasint"`
	Count     uint64 `json:"count"     cbor:"1,keyasint"`
}

// ElectionSetup is the body of an election creation request.
type ElectionSetup struct {
	Name                string   `json:"name"`
	StartTime           uint64   `json:"startTime"`
	EndTime             uint64   `json:"endTime"`
	Candidates          []string `json:"candidates"`
	EncryptionPublicKey HexBytes `json:"encryptionPublicKey,omitempty"`
	MerkleRoot          HexBytes `json:"merkleRoot,omitempty"`
	RelayerVoting       bool     `json:"relayerVoting,omitempty"`
}

// ElectionSetupResponse is returned after creating an election.
type ElectionSetupResponse struct {
	ElectionID uint64 `json:"electionId"`
}

// ElectionInfo is an election record plus its status at query time.
type ElectionInfo struct {
	*Election
	Status ElectionStatus `json:"status"`
}

// ElectionList is the response of the election listing endpoint.
type ElectionList struct {
	Elections []*ElectionInfo `json:"elections"`
}

// EncryptionKeyRequest sets the encryption public key of an election.
type EncryptionKeyRequest struct {
	ElectionActionRequest
	EncryptionPublicKey HexBytes `json:"encryptionPublicKey"`
}

// VotersRequest adds addresses to the allow-list of an election.
type VotersRequest struct {
	ElectionActionRequest
	Voters []common.Address `json:"voters"`
}

// VotersResponse lists the allow-list of an election.
type VotersResponse struct {
	Voters []common.Address `json:"voters"`
}

// VoteRequest is an allow-list ballot.
type VoteRequest struct {
	ElectionActionRequest
	Ballot HexBytes `json:"ballot"`
}

// MerkleVoteRequest is an anonymous ballot with its eligibility proof.
type MerkleVoteRequest struct {
	ElectionActionRequest
	Nullifier HexBytes   `json:"nullifier"`
	Ballot    HexBytes   `json:"ballot"`
	Proof     []HexBytes `json:"proof"`
}

// EncryptedVoteRequest is a relayed ballot.
type EncryptedVoteRequest struct {
	ElectionActionRequest
	Ballot HexBytes `json:"ballot"`
	Nonce  uint64   `json:"nonce"`
}

// ResultsRequest carries the decrypted tally to publish.
type ResultsRequest struct {
	ElectionActionRequest
	Results []CandidateCount `json:"results"`
}

// ResultsResponse is the tally of an election.
type ResultsResponse struct {
	Finalized bool             `json:"finalized"`
	Results   []CandidateCount `json:"results"`
}

// CandidatesResponse lists the candidate labels of an election.
type CandidatesResponse struct {
	Candidates []string `json:"candidates"`
}

// BallotsResponse lists the stored ciphertexts of an election.
type BallotsResponse struct {
	Ballots []HexBytes `json:"ballots"`
}

// HasVotedResponse reports whether a voter cast a ballot.
type HasVotedResponse struct {
	Voter    common.Address `json:"voter"`
	HasVoted bool           `json:"hasVoted"`
}

// MerkleVerifyRequest asks whether an identity belongs to the tree of root.
type MerkleVerifyRequest struct {
	Voter common.Address `json:"voter"`
	Root  HexBytes       `json:"root"`
	Proof []HexBytes     `json:"proof"`
}

// BoolResponse wraps a boolean query result.
type BoolResponse struct {
	Result bool `json:"result"`
}

// ElectionActionRequest is the signed body of the end and forceEnd requests.
// Every other signed body of a per election request embeds it. The election
// ID binds the signature to one election.
type ElectionActionRequest struct {
	ElectionID uint64 `json:"electionId"`
}

// TargetElection returns the election the body was signed for.
func (r *ElectionActionRequest) TargetElection() uint64 {
	return r.ElectionID
}

// OrganizerResponse is the response of the organizer endpoint. IsOrganizer
// is only set when an address is queried.
type OrganizerResponse struct {
	Organizer   common.Address `json:"organizer"`
	IsOrganizer *bool          `json:"isOrganizer,omitempty"`
}

// BallotCountResponse is the number of ballots stored for an election.
type BallotCountResponse struct {
	Count uint64 `json:"count"`
}

// NullifierResponse reports whether a nullifier was spent in an election.
type NullifierResponse struct {
	Nullifier HexBytes `json:"nullifier"`
	Used      bool     `json:"used"`
}

// VotersAddedResponse is the number of addresses newly added to an
// allow-list.
type VotersAddedResponse struct {
	Added int `json:"added"`
}
