package objectio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Errors shared by all objectio backends.
var (
	// ErrInvalidLocation reports a malformed or scheme-mismatched storage
	// location. It is detected before any network call and never retried.
	ErrInvalidLocation = errors.New("objectio: invalid location")

	// ErrNotFound is the cause carried by a FatalError when the remote
	// store reports a missing object or bucket.
	ErrNotFound = errors.New("objectio: not found")

	// ErrSinkClosed is returned when writing to a write sink after its
	// commit. This is a local usage error, not a remote failure.
	ErrSinkClosed = errors.New("objectio: write sink closed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("objectio: store closed")

	// ErrUnknownScheme is returned by Open and the Router when no backend
	// is registered for a location's scheme.
	ErrUnknownScheme = errors.New("objectio: unknown scheme")
)

// ThrottledError reports that the remote store explicitly signaled
// rate-limiting. ResumeAt is the earliest acceptable time for a retry;
// this layer surfaces the hint and never waits itself.
type ThrottledError struct {
	ResumeAt time.Time
	Message  string
	Cause    error
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s (retry after %s): %v", e.Message, e.ResumeAt.Format(time.RFC3339), e.Cause)
}

func (e *ThrottledError) Unwrap() error { return e.Cause }

// FatalError reports a remote failure that is not a throttling signal
// (permission denied, not found, malformed request, server error). It must
// not be retried automatically.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return "non-retryable storage failure: " + e.Cause.Error() }

func (e *FatalError) Unwrap() error { return e.Cause }

// DeleteError aggregates per-authority failures from a best-effort batch
// delete. Buckets absent from Failures were deleted successfully.
type DeleteError struct {
	// Failures maps an authority (bucket, container, host) to the error
	// its batch-delete call produced. Each value is itself classified as
	// throttled or fatal.
	Failures map[string]error
}

func (e *DeleteError) Error() string {
	auths := make([]string, 0, len(e.Failures))
	for a := range e.Failures {
		auths = append(auths, a)
	}
	sort.Strings(auths)

	var b strings.Builder
	fmt.Fprintf(&b, "batch delete failed for %d authorities:", len(auths))
	for _, a := range auths {
		fmt.Fprintf(&b, " %s: %v;", a, e.Failures[a])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Unwrap exposes the per-authority failures to errors.Is and errors.As.
func (e *DeleteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// IsInvalidLocation returns true if the error stems from a malformed or
// unsupported location string.
func IsInvalidLocation(err error) bool {
	return errors.Is(err, ErrInvalidLocation)
}

// IsThrottled returns true if the error carries a throttling signal.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}

// IsFatal returns true if the error is a non-retryable remote failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ResumeTime extracts the resume-after hint from a throttled error.
// The second return is false when err carries no throttling signal.
func ResumeTime(err error) (time.Time, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te.ResumeAt, true
	}
	return time.Time{}, false
}
