// Package memory provides an in-memory object store for objectio.
//
// The memory store is useful for:
//   - Unit testing catalog persistence without network access
//   - Embedded and development setups
//
// It serves the scheme "mem". Buckets must be created up front (New or
// CreateBucket); operations against an unknown bucket fail the way a
// missing S3 bucket would. Data lives in RAM and is lost on Close.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lakecat/objectio"
)

func init() {
	objectio.Register("mem", NewFromConfig)
}

// Schemes lists the location schemes this store serves.
func Schemes() []string {
	return []string{"mem"}
}

// Store implements objectio.Store backed by process memory.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	closed  bool
}

// New creates a memory store with the given buckets pre-created.
func New(buckets ...string) *Store {
	s := &Store{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		s.buckets[b] = make(map[string][]byte)
	}
	return s
}

// NewFromConfig creates a memory store from a config map.
// Supported keys:
//   - buckets: comma-separated bucket names to pre-create
func NewFromConfig(configMap map[string]string) (objectio.Store, error) {
	var buckets []string
	if v, ok := configMap["buckets"]; ok && v != "" {
		buckets = strings.Split(v, ",")
	}
	return New(buckets...), nil
}

// CreateBucket adds a bucket. Creating an existing bucket is a no-op.
func (s *Store) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = make(map[string][]byte)
	}
}

// Put stores an object directly. Intended for seeding test fixtures.
func (s *Store) Put(bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objs, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("mem: bucket %s: %w", bucket, objectio.ErrNotFound)
	}
	objs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored object's bytes. Intended for test assertions.
func (s *Store) Get(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs, ok := s.buckets[bucket]
	if !ok {
		return nil, false
	}
	data, ok := objs[key]
	return data, ok
}

// Keys returns the sorted keys present in a bucket. Intended for tests.
func (s *Store) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validate checks scheme and authority before touching any bucket.
func (s *Store) validate(loc objectio.Location) (string, error) {
	if loc.Scheme() != "mem" {
		return "", fmt.Errorf("%w: not a mem scheme: %q", objectio.ErrInvalidLocation, loc.String())
	}
	return loc.RequiredAuthority()
}

// Ping reports whether the location's bucket exists.
func (s *Store) Ping(ctx context.Context, loc objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.buckets[bucket]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("mem: ping %s: %w", bucket, objectio.ErrNotFound)
	}
	return nil
}

// Read returns a single-pass stream over a copy of the stored bytes.
func (s *Store) Read(ctx context.Context, loc objectio.Location) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	objs, bucketOK := s.buckets[bucket]
	data, keyOK := objs[loc.Key()]
	s.mu.RUnlock()

	if !bucketOK || !keyOK {
		return nil, &objectio.FatalError{
			Cause: fmt.Errorf("mem: %s: %w", loc.String(), objectio.ErrNotFound),
		}
	}

	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Write returns a buffering sink that stores the object on its first
// Close. The commit fails fatally when the bucket does not exist.
func (s *Store) Write(ctx context.Context, loc objectio.Location) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	return &sink{
		store:  s,
		bucket: bucket,
		key:    loc.Key(),
	}, nil
}

// DeleteObjects removes the given objects, one bucket group at a time.
// Deleting an absent key is a no-op; an absent bucket fails its group.
func (s *Store) DeleteObjects(ctx context.Context, locs []objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	groups := make(map[string][]string)
	for _, loc := range locs {
		bucket, err := s.validate(loc)
		if err != nil {
			return err
		}
		groups[bucket] = append(groups[bucket], loc.Key())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[string]error)
	for bucket, keys := range groups {
		objs, ok := s.buckets[bucket]
		if !ok {
			failures[bucket] = &objectio.FatalError{
				Cause: fmt.Errorf("mem: bucket %s: %w", bucket, objectio.ErrNotFound),
			}
			continue
		}
		for _, k := range keys {
			delete(objs, k)
		}
	}

	if len(failures) > 0 {
		return &objectio.DeleteError{Failures: failures}
	}
	return nil
}

// Close discards all stored data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.buckets = nil
	return nil
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return objectio.ErrStoreClosed
	}
	return nil
}

// sink buffers writes and stores the object on first Close, mirroring the
// remote backends' at-most-once commit contract.
type sink struct {
	store  *Store
	bucket string
	key    string

	mu        sync.Mutex
	buf       bytes.Buffer
	committed atomic.Bool
}

func (w *sink) Write(p []byte) (int, error) {
	if w.committed.Load() {
		return 0, objectio.ErrSinkClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *sink) Close() error {
	if !w.committed.CompareAndSwap(false, true) {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if w.store.closed {
		return objectio.ErrStoreClosed
	}
	objs, ok := w.store.buckets[w.bucket]
	if !ok {
		return &objectio.FatalError{
			Cause: fmt.Errorf("mem: bucket %s: %w", w.bucket, objectio.ErrNotFound),
		}
	}
	objs[w.key] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

// Ensure Store implements objectio.Store.
var _ objectio.Store = (*Store)(nil)
