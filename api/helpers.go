package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/ballotbox/crypto/signatures/ethereum"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/log"
)

// maxRequestBodySize bounds the body of the signed requests.
const maxRequestBodySize = 4 << 20

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// electionIDParam parses the election ID of the request URL.
func electionIDParam(r *http.Request) (uint64, *Error) {
	raw := chi.URLParam(r, ElectionURLParam)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		apiErr := ErrMalformedElectionID.Withf("%q", raw)
		return 0, &apiErr
	}
	return id, nil
}

// addressParam parses a hex address.
func addressParam(raw string) (common.Address, *Error) {
	if !common.IsHexAddress(raw) {
		apiErr := ErrMalformedAddress.Withf("%q", raw)
		return common.Address{}, &apiErr
	}
	return common.HexToAddress(raw), nil
}

// signedRequest reads the request body, recovers the address that signed it
// from the SignatureHeader and decodes the body into out. Bodies over
// maxRequestBodySize are rejected, never truncated.
func signedRequest(w http.ResponseWriter, r *http.Request, out any) (common.Address, *Error) {
	sigHex := r.Header.Get(SignatureHeader)
	if sigHex == "" {
		return common.Address{}, &ErrMissingSignature
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiErr := ErrRequestTooLarge.Withf("limit is %d bytes", tooLarge.Limit)
			return common.Address{}, &apiErr
		}
		apiErr := ErrMalformedBody.WithErr(err)
		return common.Address{}, &apiErr
	}
	sig, err := ethereum.HexToSignature(sigHex)
	if err != nil {
		apiErr := ErrInvalidSignature.WithErr(err)
		return common.Address{}, &apiErr
	}
	caller, err := ethereum.AddrFromSignature(body, sig)
	if err != nil {
		apiErr := ErrInvalidSignature.WithErr(err)
		return common.Address{}, &apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		apiErr := ErrMalformedBody.WithErr(err)
		return common.Address{}, &apiErr
	}
	return caller, nil
}

// electionBoundRequest is a signed body that names the election it was
// signed for.
type electionBoundRequest interface {
	TargetElection() uint64
}

// signedElectionRequest is signedRequest for the operations on the election
// of the request URL. The signed body must name that same election, so a
// signature can't be replayed against another one.
func signedElectionRequest(w http.ResponseWriter, r *http.Request, out electionBoundRequest) (common.Address, uint64, *Error) {
	id, apiErr := electionIDParam(r)
	if apiErr != nil {
		return common.Address{}, 0, apiErr
	}
	caller, apiErr := signedRequest(w, r, out)
	if apiErr != nil {
		return common.Address{}, 0, apiErr
	}
	if signed := out.TargetElection(); signed != id {
		apiErr := ErrElectionMismatch.Withf("signed for election %d, requested %d", signed, id)
		return common.Address{}, 0, &apiErr
	}
	return caller, id, nil
}

// electionError translates the errors returned by the election controller.
func electionError(err error) Error {
	switch {
	case errors.Is(err, election.ErrUnauthorized):
		return ErrUnauthorized.WithErr(err)
	case errors.Is(err, election.ErrNotFound):
		return ErrElectionNotFound.WithErr(err)
	case errors.Is(err, election.ErrInvalidInput):
		return ErrInvalidInput.WithErr(err)
	case errors.Is(err, election.ErrInvalidTiming):
		return ErrInvalidTiming.WithErr(err)
	case errors.Is(err, election.ErrAlreadyFinalized):
		return ErrAlreadyFinalized.WithErr(err)
	case errors.Is(err, election.ErrAlreadyVoted):
		return ErrAlreadyVoted.WithErr(err)
	case errors.Is(err, election.ErrReplayDetected):
		return ErrReplayDetected.WithErr(err)
	case errors.Is(err, election.ErrNotEligible):
		return ErrNotEligible.WithErr(err)
	case errors.Is(err, election.ErrInvalidProof):
		return ErrInvalidMerkleProof.WithErr(err)
	case errors.Is(err, election.ErrMisconfiguredElection):
		return ErrMisconfiguredElection.WithErr(err)
	default:
		log.Warnw("election operation failed", "error", err.Error())
		return ErrGenericInternalServerError.WithErr(err)
	}
}
