package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the dispatch/settlement core. These are expected,
// recoverable outcomes surfaced to callers as typed errors; the store
// transaction is rolled back whenever one occurs mid-transaction.
var (
	// ErrNotFound means the referenced job, provider, or wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the operation lost a race or the record is not in a
	// state that permits it (job already claimed, already settled, wrong
	// status). Expected under concurrency, not a bug.
	ErrConflict = errors.New("conflict")

	// ErrPolicyViolation means the provider is not allowed to take the job:
	// inactive, over quota, or holding a conflicting booking.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInvariant marks a should-never-happen state. Logged loudly, the
	// operation aborted with no partial write.
	ErrInvariant = errors.New("invariant violation")
)

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
