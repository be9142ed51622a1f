//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the user's fault and return HTTP
// Status 4XX. Error codes 50001-59999 are the server's fault and return 5XX.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXX or 5XXX. Gaps are codes used in the past.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature      = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedElectionID   = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed election ID")}
	ErrElectionNotFound      = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrInvalidMerkleProof    = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid merkle proof")}
	ErrUnauthorized          = Error{Code: 40014, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("unauthorized")}
	ErrMalformedParam        = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrMalformedAddress      = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrAlreadyVoted          = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("already voted")}
	ErrInvalidInput          = Error{Code: 40023, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid input")}
	ErrInvalidTiming         = Error{Code: 40024, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid timing")}
	ErrAlreadyFinalized      = Error{Code: 40025, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election already finalized")}
	ErrReplayDetected        = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("replay detected")}
	ErrNotEligible           = Error{Code: 40027, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("voter not eligible")}
	ErrMisconfiguredElection = Error{Code: 40028, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("misconfigured election")}
	ErrMissingSignature      = Error{Code: 40029, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("missing request signature")}
	ErrElectionMismatch      = Error{Code: 40030, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("signed election does not match the request")}
	ErrRequestTooLarge       = Error{Code: 40031, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("request body too large")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
