package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNoServerAvailable indicates the eligible set is empty. Callers are
	// expected to retry with backoff; it is a back-pressure signal, not a
	// hard failure.
	ErrNoServerAvailable = errors.New("no server available")

	// ErrServerExists indicates a duplicate server id on registration
	ErrServerExists = errors.New("server already exists")

	// ErrServerNotFound indicates the requested server does not exist
	ErrServerNotFound = errors.New("server not found")

	// ErrServerDraining indicates the server is being drained
	ErrServerDraining = errors.New("server is draining")

	// ErrUnknownStrategy indicates an unrecognized strategy name
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidWeight indicates an invalid weight value
	ErrInvalidWeight = errors.New("invalid weight value")

	// ErrInvalidSpec indicates a malformed server spec
	ErrInvalidSpec = errors.New("invalid server spec")

	// ErrInvalidPolicy indicates a malformed auto-scaling policy
	ErrInvalidPolicy = errors.New("invalid auto-scaling policy")

	// ErrStopped indicates the balancer has been shut down
	ErrStopped = errors.New("balancer stopped")
)

// ValidationError carries the offending field alongside the message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// IsRetryable reports whether a caller should retry the operation.
// Only transient unavailability qualifies; configuration errors never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoServerAvailable)
}
