package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/tourneysync/tourney/internal/remote"
	"github.com/tourneysync/tourney/internal/store"
)

// Errors returned by Engine operations.
//
// Check them with errors.Is:
//
//	if errors.Is(err, reconcile.ErrNotAuthenticated) {
//	    // prompt for login
//	}
var (
	// ErrNotAuthenticated is returned when an operation needs a credential
	// and none is stored.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNetworkUnreachable is returned when the remote API cannot be
	// reached. Most mutations fall back to a local write instead of
	// surfacing it; Delete does not.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrSyncFailed matches every *SyncError.
	ErrSyncFailed = errors.New("sync failed")
)

// SyncError is a failed exchange with the remote API during a sync pass.
// The local store is left as it was before the failing step.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed: %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSyncFailed) hold for any SyncError.
func (e *SyncError) Is(target error) bool {
	return target == ErrSyncFailed
}

// IsFatal returns true if retrying cannot help until the user acts, such as
// logging in again.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	return remote.IsAuthError(err)
}

// IsRetryable returns true if the error is likely to go away on its own:
// connectivity problems, 5xx/429 responses and storage contention.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNetworkUnreachable) {
		return true
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	// Transport failures reach us as a bare SyncError cause.
	if errors.Is(err, ErrSyncFailed) {
		return true
	}
	return store.IsStorageError(err)
}
