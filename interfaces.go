// Package objectio provides the object-storage access layer for a versioned
// data catalog.
//
// The catalog's persistence paths hand this layer fully-formed location
// strings (scheme://bucket/path) and exchange raw bytes; everything else —
// interpreting the bytes, deciding whether to retry a throttled call —
// belongs to the caller. Backends for concrete storage families (S3-like
// stores, SFTP hosts, in-memory for tests) live under backend/ and register
// themselves by scheme.
//
// Basic usage:
//
//	store, _ := s3.New(s3.Config{Region: "us-east-1"})
//	loc, _ := objectio.Parse("s3://metadata-bucket/tables/t1/snap-00042.json")
//	w, _ := store.Write(ctx, loc)
//	w.Write(payload)
//	w.Close() // single atomic commit
package objectio

import (
	"context"
	"io"
)

// Store moves bytes to and from one family of object stores.
//
// Implementations are safe for concurrent use by multiple goroutines. Every
// remote failure crossing this interface is one of three kinds: a location
// error (ErrInvalidLocation, detected before any network call), a
// *ThrottledError carrying a resume-after hint, or a *FatalError that must
// not be retried. Ping is the exception: it reports plain wrapped errors,
// being a liveness probe rather than a data operation.
//
// No Store method retries on its own. Callers own retry policy; see the
// backoff package for a helper that honors ThrottledError.ResumeAt.
type Store interface {
	// Ping probes reachability of the location's authority (bucket,
	// container, host). It does not touch a specific object.
	Ping(ctx context.Context, loc Location) error

	// Read opens a single-pass stream over the object at loc.
	// The stream is not restartable; closing it releases the underlying
	// connection, even when the body has not been fully consumed.
	Read(ctx context.Context, loc Location) (io.ReadCloser, error)

	// Write returns a sink buffering all written bytes in memory. No
	// remote call happens until Close, which commits the accumulated
	// content as one atomic put. Close is idempotent: the commit runs at
	// most once, and a sink that is never closed writes nothing remotely.
	Write(ctx context.Context, loc Location) (io.WriteCloser, error)

	// DeleteObjects removes the given objects, issuing one batch call per
	// distinct authority. Groups are attempted best-effort; failures are
	// collected into a *DeleteError returned after the last group.
	DeleteObjects(ctx context.Context, locs []Location) error

	// Close tears down all client handles held by the store. Intended for
	// process shutdown; borrowed read streams and write sinks must not
	// outlive it.
	Close() error
}
