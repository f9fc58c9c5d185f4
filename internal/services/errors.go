package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks a missing or malformed required field.
	ErrInput = errors.New("invalid input")
	// ErrNotFound is returned when a rule does not exist for the given owner.
	ErrNotFound = errors.New("not found")
	// ErrIntegrationMissing means the owner has not connected the platform.
	ErrIntegrationMissing = errors.New("integration not connected")
	// ErrCredentialUnavailable means the stored credential cannot be used (expired).
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrExchangeFailed covers every OAuth state, exchange and refresh failure.
	ErrExchangeFailed = errors.New("oauth exchange failed")
	// ErrSyncFailed means the CRM did not apply a stage move.
	ErrSyncFailed = errors.New("pipeline sync failed")
)

// SyncError carries the upstream CRM status for diagnostics.
// Status is 0 when no response was received.
type SyncError struct {
	Status int
	Body   string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("pipeline sync failed: %v", e.Err)
	}
	return fmt.Sprintf("pipeline sync failed: upstream status %d", e.Status)
}

func (e *SyncError) Is(target error) bool {
	return target == ErrSyncFailed
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func inputError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// Error kinds exposed to API callers.
const (
	KindInput                 = "input_error"
	KindNotFound              = "not_found"
	KindIntegrationMissing    = "integration_missing"
	KindCredentialUnavailable = "credential_unavailable"
	KindExchangeFailed        = "exchange_failed"
	KindSyncFailed            = "sync_failed"
	KindInternal              = "internal"
)

// ErrorKind maps err to one of the Kind* constants; nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIntegrationMissing):
		return KindIntegrationMissing
	case errors.Is(err, ErrCredentialUnavailable):
		return KindCredentialUnavailable
	case errors.Is(err, ErrExchangeFailed):
		return KindExchangeFailed
	case errors.Is(err, ErrSyncFailed):
		return KindSyncFailed
	default:
		return KindInternal
	}
}
