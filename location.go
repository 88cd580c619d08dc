package objectio

import (
	"fmt"
	"strings"
)

// Location is an immutable, parsed storage location of the form
// scheme://authority/path. The authority names a bucket, container, or
// host; the path addresses an object within it.
type Location struct {
	scheme    string
	authority string
	path      string
}

// Parse parses a raw location string.
//
// The raw string must be non-empty and carry an explicit scheme. An empty
// authority is accepted at parse time — backends that need one fail later
// through RequiredAuthority — so the same parser serves every backend
// family. Malformed input returns an error wrapping ErrInvalidLocation.
func Parse(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrInvalidLocation)
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidLocation, raw)
	}

	authority, path, ok := strings.Cut(rest, "/")
	if ok {
		path = "/" + path
	}

	return Location{
		scheme:    scheme,
		authority: authority,
		path:      path,
	}, nil
}

// MustParse is Parse that panics on malformed input.
// Intended for tests and compile-time-constant locations.
func MustParse(raw string) Location {
	loc, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// Scheme returns the location's scheme ("s3", "sftp", ...).
func (l Location) Scheme() string { return l.scheme }

// Authority returns the bucket/container/host portion, possibly empty.
func (l Location) Authority() string { return l.authority }

// Path returns the raw path portion, including its leading separator when
// one was present in the original string.
func (l Location) Path() string { return l.path }

// RequiredAuthority returns the authority, or an error wrapping
// ErrInvalidLocation when it is empty. There is no implicit default: every
// operation that needs a bucket name goes through this accessor.
func (l Location) RequiredAuthority() (string, error) {
	if l.authority == "" {
		return "", fmt.Errorf("%w: missing authority in %q", ErrInvalidLocation, l.String())
	}
	return l.authority, nil
}

// Key returns the path with at most one leading separator stripped, the
// form used as a storage key. Keys are always relative; applying Key to an
// already-relative path returns it unchanged.
func (l Location) Key() string {
	return strings.TrimPrefix(l.path, "/")
}

// String reassembles the location string.
func (l Location) String() string {
	return l.scheme + "://" + l.authority + l.path
}
