// Package s3 provides the S3 object store family for objectio.
//
// It serves the schemes s3, s3a and s3n (the catalog accepts Hadoop-style
// aliases) against AWS S3 and S3-compatible services (MinIO, Cloudflare R2,
// Wasabi). One store can address buckets spread across regions, endpoints
// and credential sets; client handles are resolved per bucket and cached.
//
// Basic usage:
//
//	store, err := s3.New(s3.Config{Region: "us-east-1"})
//
// For S3-compatible services:
//
//	store, err := s3.New(s3.Config{
//	    Endpoint:     "https://play.min.io",
//	    UsePathStyle: true,
//	})
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lakecat/objectio"
)

func init() {
	objectio.Register("s3", NewFromConfig)
}

// Schemes lists the location schemes this store serves, for mounting on an
// objectio.Router.
func Schemes() []string {
	return []string{"s3", "s3a", "s3n"}
}

func isS3Scheme(scheme string) bool {
	return scheme == "s3" || scheme == "s3a" || scheme == "s3n"
}

// Store implements objectio.Store for the S3 family.
type Store struct {
	cfg     Config
	clients *pool
	now     func() time.Time
	closed  bool
	mu      sync.RWMutex
}

// New creates a new S3 store with the given configuration.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.UploadThreshold == 0 {
		cfg.UploadThreshold = defaultUploadThreshold
	}

	return &Store{
		cfg:     cfg,
		clients: newPool(cfg),
		now:     time.Now,
	}, nil
}

// NewFromConfig creates a new S3 store from a config map.
// This is used by the objectio registry.
func NewFromConfig(configMap map[string]string) (objectio.Store, error) {
	cfg := ConfigFromMap(configMap)
	return New(cfg)
}

// validate checks scheme and authority before any network activity and
// returns the bucket name. Failures wrap objectio.ErrInvalidLocation.
func (s *Store) validate(loc objectio.Location) (string, error) {
	if !isS3Scheme(loc.Scheme()) {
		return "", fmt.Errorf("%w: not an S3 scheme: %q", objectio.ErrInvalidLocation, loc.String())
	}
	return loc.RequiredAuthority()
}

// Ping probes the location's bucket with a HeadBucket call. Ping is a
// liveness check, not a data operation: remote failures come back as plain
// wrapped errors, never run through the throttling classifier.
func (s *Store) Ping(ctx context.Context, loc objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return err
	}

	bundle, err := s.clients.clientFor(ctx, bucket)
	if err != nil {
		return fmt.Errorf("s3: ping %s: %w", bucket, err)
	}

	_, err = bundle.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("s3: ping %s: %w", bucket, err)
	}
	return nil
}

// Read opens a streaming get for the object at loc. The returned stream is
// single-pass; closing it releases the underlying connection.
func (s *Store) Read(ctx context.Context, loc objectio.Location) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	bundle, err := s.clients.clientFor(ctx, bucket)
	if err != nil {
		return nil, &objectio.FatalError{Cause: err}
	}

	out, err := bundle.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(loc.Key()),
	})
	if err != nil {
		return nil, classify(err, s.cfg.RetryAfter, s.now())
	}
	return out.Body, nil
}

// Write validates loc eagerly and returns a sink buffering all bytes in
// memory. No network call happens until the sink's Close, which commits
// the buffered content as one put. The commit runs at most once, however
// many times Close is called; an abandoned sink never touches the remote
// store.
func (s *Store) Write(ctx context.Context, loc objectio.Location) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	return &sink{
		store:  s,
		ctx:    ctx,
		bucket: bucket,
		key:    loc.Key(),
	}, nil
}

// DeleteObjects groups locs by bucket and issues one batch-delete call per
// bucket — never a per-object call. Any malformed location fails the whole
// batch before network activity; remote failures are best-effort across
// buckets and aggregated into a *objectio.DeleteError.
func (s *Store) DeleteObjects(ctx context.Context, locs []objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	groups := make(map[string][]types.ObjectIdentifier)
	for _, loc := range locs {
		bucket, err := s.validate(loc)
		if err != nil {
			return err
		}
		groups[bucket] = append(groups[bucket], types.ObjectIdentifier{
			Key: aws.String(loc.Key()),
		})
	}

	buckets := make([]string, 0, len(groups))
	for b := range groups {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	failures := make(map[string]error)
	for _, bucket := range buckets {
		bundle, err := s.clients.clientFor(ctx, bucket)
		if err != nil {
			failures[bucket] = &objectio.FatalError{Cause: err}
			continue
		}

		out, err := bundle.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: groups[bucket],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			failures[bucket] = classify(err, s.cfg.RetryAfter, s.now())
			continue
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			failures[bucket] = &objectio.FatalError{
				Cause: fmt.Errorf("s3: %d objects not deleted in bucket %s (first: %s %s)",
					len(out.Errors), bucket, aws.ToString(first.Code), aws.ToString(first.Key)),
			}
		}
	}

	if len(failures) > 0 {
		return &objectio.DeleteError{Failures: failures}
	}
	return nil
}

// Close drops all cached client handles. Called once at process shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.clients.shutdown()
	return nil
}

// checkClosed returns an error if the store is closed.
func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return objectio.ErrStoreClosed
	}
	return nil
}

// sink accumulates written bytes and commits them as one put when closed.
//
// Lifecycle: open (writes accepted) → closing (commit in flight) → closed.
// The committed flag is the only transition guard; it flips exactly once,
// so concurrent Close calls race on the CompareAndSwap and exactly one
// performs the commit.
type sink struct {
	store  *Store
	ctx    context.Context
	bucket string
	key    string

	mu        sync.Mutex
	buf       bytes.Buffer
	committed atomic.Bool
}

// Write appends to the in-memory buffer. Writes after Close fail with
// objectio.ErrSinkClosed.
func (w *sink) Write(p []byte) (int, error) {
	if w.committed.Load() {
		return 0, objectio.ErrSinkClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Close commits the buffered content. The first call performs the put;
// every later call is a no-op returning nil. Remote failures are classified
// like Read's.
func (w *sink) Close() error {
	if !w.committed.CompareAndSwap(false, true) {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bundle, err := w.store.clients.clientFor(w.ctx, w.bucket)
	if err != nil {
		return &objectio.FatalError{Cause: err}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	}

	if int64(w.buf.Len()) >= w.store.cfg.UploadThreshold && bundle.uploader != nil {
		_, err = bundle.uploader.Upload(w.ctx, input)
	} else {
		_, err = bundle.api.PutObject(w.ctx, input)
	}
	if err != nil {
		return classify(err, w.store.cfg.RetryAfter, w.store.now())
	}
	return nil
}

// Ensure Store implements objectio.Store.
var _ objectio.Store = (*Store)(nil)
