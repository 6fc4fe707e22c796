// Package errors defines the error taxonomy for the RDS cluster scheduler.
//
// Errors are attached to these sentinels with errors.Mark so that callers can
// test the category with errors.Is regardless of how the error was wrapped.
package errors

import "github.com/cockroachdb/errors"

var (
	// ErrDiscovery indicates the fleet could not be listed or a cluster's
	// tags or state could not be read.
	ErrDiscovery = errors.New("discovery error")
	// ErrTransientAction indicates a start/stop call failed in a way that
	// may succeed on retry (throttling, timeouts, 5xx).
	ErrTransientAction = errors.New("transient action error")
	// ErrPermanentAction indicates a start/stop call failed in a way that
	// retrying cannot fix (invalid state, access denied, not found).
	ErrPermanentAction = errors.New("permanent action error")
	// ErrInvalidAction indicates the requested action is not Start or Stop.
	ErrInvalidAction = errors.New("invalid action")
	// ErrClusterNotFound indicates the RDS cluster was not found.
	ErrClusterNotFound = errors.New("cluster not found")
	// ErrRunNotFound indicates the requested run is not in the archive.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")
)

// IsNotFound returns true if the error is any kind of "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClusterNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsDiscovery returns true if the error is a discovery error.
func IsDiscovery(err error) bool {
	return errors.Is(err, ErrDiscovery)
}

// IsPermanent returns true if the error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentAction)
}

// IsTransient returns true if the error is marked transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientAction)
}

// Discovery marks err as a discovery error.
func Discovery(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrDiscovery)
}

// Transient marks err as a retryable action error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransientAction)
}

// Permanent marks err as a non-retryable action error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanentAction)
}

// IsInvalidAction returns true if the error rejects the requested action.
func IsInvalidAction(err error) bool {
	return errors.Is(err, ErrInvalidAction)
}
