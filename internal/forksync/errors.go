package forksync

import (
	"errors"
)

var (
	// ErrMissingBlock is returned when neither the peer set nor local
	// storage could produce a requested block.
	ErrMissingBlock = errors.New("missing block")

	// ErrMalformedBlock is returned when a produced block fails basic
	// structural well-formedness.
	ErrMalformedBlock = errors.New("malformed block")

	// ErrValidationRejected is returned when the chain validator rejects a
	// candidate block: bad linkage, invalid proof, illegal transaction, or
	// any other consensus-rule violation.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrStorageFailure is returned when persisting the recovered chain
	// fails. Recovery is never reported as successful in this case.
	ErrStorageFailure = errors.New("storage failure")

	// ErrChainExhausted is returned when the pending work list drains
	// before the accumulated chain reaches the target block.
	ErrChainExhausted = errors.New("work list exhausted before target")

	// ErrCanceled is returned when the session's context is canceled
	// before it reaches a terminal state.
	ErrCanceled = errors.New("recovery canceled")

	// ErrAlreadySynced is returned by the manager when the local chain tip
	// already is the target block; no session is started.
	ErrAlreadySynced = errors.New("already synchronized with target")
)

// IsTransient reports whether err is worth retrying: an unproduced block may
// appear on a later attempt or from a different peer, while a malformed
// block or a consensus rejection never becomes valid.
func IsTransient(err error) bool {
	return errors.Is(err, ErrMissingBlock)
}
