package rank

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems. Callers match with errors.Is.
var (
	// ErrMissingCredentials means the search provider credentials were
	// not configured. Fatal, never retried.
	ErrMissingCredentials = errors.New("search provider credentials not configured")

	// ErrSnapshotNotFound means no snapshot exists for the keyword and date.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrBlogNotFound means the link has never been observed in a snapshot.
	ErrBlogNotFound = errors.New("blog not found")

	// ErrTrackingNotFound means the tracking subscription does not exist.
	ErrTrackingNotFound = errors.New("tracking subscription not found")

	// ErrDuplicateTracking means an identical (owner, keyword, URL)
	// subscription already exists.
	ErrDuplicateTracking = errors.New("tracking subscription already exists")

	// ErrForbidden means the subscription belongs to another owner.
	ErrForbidden = errors.New("tracking subscription owned by another user")

	// ErrNoActiveGrant means the owner holds no active or trial quota grant.
	ErrNoActiveGrant = errors.New("no active quota grant")

	// ErrQuotaExceeded means the plan's tracking slots are all in use.
	ErrQuotaExceeded = errors.New("tracking quota exceeded")

	// ErrTaskRunNotFound means no audit record exists for the task name.
	ErrTaskRunNotFound = errors.New("task run not found")
)

// ProviderError wraps a failed call to the search provider. StatusCode is
// zero for transport failures.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search provider: status %d", e.StatusCode)
	}
	return fmt.Sprintf("search provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
