package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every operation group. Callers match with errors.Is.
var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrStaleState           = errors.New("stale state")
	ErrAlreadyClaimed       = errors.New("shared call already claimed")
	ErrFareMismatch         = errors.New("fare breakdown does not sum to fare")
	ErrTransactionAborted   = errors.New("transaction aborted")
	ErrDuplicateApplication = errors.New("duplicate application")
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
)

// InvalidTransitionError reports a status change that is not legal from the current state
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StaleStateError reports an optimistic concurrency mismatch
type StaleStateError struct {
	ID       string
	Expected string
	Actual   string
}

func (e StaleStateError) Error() string {
	return fmt.Sprintf("stale state for %s: expected %s, stored %s", e.ID, e.Expected, e.Actual)
}

func (e StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}

// FareMismatchError carries the rejected breakdown
type FareMismatchError struct {
	Fare  int64
	Total int64
}

func (e FareMismatchError) Error() string {
	return fmt.Sprintf("fare breakdown sums to %d, fare is %d", e.Total, e.Fare)
}

func (e FareMismatchError) Is(target error) bool {
	return target == ErrFareMismatch
}

// NotFoundError indicates a missing document
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return e.Entity + " not found: " + e.ID
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError indicates malformed input rejected before touching the store
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AbortedError wraps a store-level failure that rolled the transaction back
type AbortedError struct {
	Op  string
	Err error
}

func (e AbortedError) Error() string {
	return fmt.Sprintf("transaction aborted during %s: %v", e.Op, e.Err)
}

func (e AbortedError) Is(target error) bool {
	return target == ErrTransactionAborted
}

func (e AbortedError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may retry the operation as is
// (after re-reading for StaleState).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionAborted) || errors.Is(err, ErrStaleState)
}

// IsBenign reports outcomes that are not failures worth alarming on.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrDuplicateApplication)
}
