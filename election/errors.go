package election

import "errors"

// Errors returned by the controller. They are wrapped with context, use
// errors.Is to match them.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("election not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidTiming         = errors.New("invalid timing")
	ErrAlreadyFinalized      = errors.New("election already finalized")
	ErrAlreadyVoted          = errors.New("already voted")
	ErrReplayDetected        = errors.New("replay detected")
	ErrNotEligible           = errors.New("voter not eligible")
	ErrInvalidProof          = errors.New("invalid merkle proof")
	ErrMisconfiguredElection = errors.New("misconfigured election")
)
