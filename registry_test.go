package objectio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeStore records calls for Router dispatch tests.
type fakeStore struct {
	pings     []Location
	deletes   [][]Location
	closes    int
	deleteErr error
}

func (f *fakeStore) Ping(_ context.Context, loc Location) error {
	f.pings = append(f.pings, loc)
	return nil
}

func (f *fakeStore) Read(_ context.Context, _ Location) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("data")), nil
}

func (f *fakeStore) Write(_ context.Context, _ Location) (io.WriteCloser, error) {
	return nopWriteCloser{}, nil
}

func (f *fakeStore) DeleteObjects(_ context.Context, locs []Location) error {
	f.deletes = append(f.deletes, locs)
	return f.deleteErr
}

func (f *fakeStore) Close() error {
	f.closes++
	return nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

func TestRegisterAndOpen(t *testing.T) {
	Register("test-open", func(config map[string]string) (Store, error) {
		return &fakeStore{}, nil
	})

	store, err := Open("test-open", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if store == nil {
		t.Fatal("Open() returned nil store")
	}

	if _, err := Open("no-such-scheme", nil); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Open(unregistered) error = %v, want ErrUnknownScheme", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func(config map[string]string) (Store, error) {
		return &fakeStore{}, nil
	})

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	Register("test-dup", func(config map[string]string) (Store, error) {
		return &fakeStore{}, nil
	})
}

func TestSchemesSorted(t *testing.T) {
	Register("test-zz", func(config map[string]string) (Store, error) { return &fakeStore{}, nil })
	Register("test-aa", func(config map[string]string) (Store, error) { return &fakeStore{}, nil })

	schemes := Schemes()
	for i := 1; i < len(schemes); i++ {
		if schemes[i-1] > schemes[i] {
			t.Fatalf("Schemes() not sorted: %v", schemes)
		}
	}
}

func TestRouterDispatch(t *testing.T) {
	s3like := &fakeStore{}
	memlike := &fakeStore{}

	r := NewRouter()
	r.Mount(s3like, "s3", "s3a", "s3n")
	r.Mount(memlike, "mem")

	ctx := context.Background()
	if err := r.Ping(ctx, MustParse("s3://bucket")); err != nil {
		t.Fatalf("Ping(s3) error = %v", err)
	}
	if err := r.Ping(ctx, MustParse("s3a://bucket")); err != nil {
		t.Fatalf("Ping(s3a) error = %v", err)
	}
	if err := r.Ping(ctx, MustParse("mem://fixtures")); err != nil {
		t.Fatalf("Ping(mem) error = %v", err)
	}

	if len(s3like.pings) != 2 {
		t.Errorf("s3 store pings = %d, want 2", len(s3like.pings))
	}
	if len(memlike.pings) != 1 {
		t.Errorf("mem store pings = %d, want 1", len(memlike.pings))
	}
}

func TestRouterUnknownScheme(t *testing.T) {
	r := NewRouter()
	r.Mount(&fakeStore{}, "s3")

	err := r.Ping(context.Background(), MustParse("gs://bucket/x"))
	if !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("Ping(unmounted scheme) error = %v, want ErrInvalidLocation", err)
	}
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Ping(unmounted scheme) error = %v, want ErrUnknownScheme", err)
	}

	if _, err := r.Read(context.Background(), MustParse("gs://bucket/x")); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Read(unmounted scheme) error = %v, want ErrUnknownScheme", err)
	}
	if _, err := r.Write(context.Background(), MustParse("gs://bucket/x")); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Write(unmounted scheme) error = %v, want ErrUnknownScheme", err)
	}
}

func TestRouterDeleteObjectsPartitions(t *testing.T) {
	s3like := &fakeStore{}
	memlike := &fakeStore{}

	r := NewRouter()
	r.Mount(s3like, "s3")
	r.Mount(memlike, "mem")

	locs := []Location{
		MustParse("s3://b1/x"),
		MustParse("mem://f/y"),
		MustParse("s3://b2/z"),
	}
	if err := r.DeleteObjects(context.Background(), locs); err != nil {
		t.Fatalf("DeleteObjects() error = %v", err)
	}

	if len(s3like.deletes) != 1 || len(s3like.deletes[0]) != 2 {
		t.Errorf("s3 store deletes = %v, want one call with 2 locations", s3like.deletes)
	}
	if len(memlike.deletes) != 1 || len(memlike.deletes[0]) != 1 {
		t.Errorf("mem store deletes = %v, want one call with 1 location", memlike.deletes)
	}
}

func TestRouterDeleteObjectsMergesFailures(t *testing.T) {
	throttled := &ThrottledError{Message: "throttled", Cause: errors.New("SlowDown")}
	failing := &fakeStore{
		deleteErr: &DeleteError{Failures: map[string]error{"b1": throttled}},
	}
	ok := &fakeStore{}

	r := NewRouter()
	r.Mount(failing, "s3")
	r.Mount(ok, "mem")

	locs := []Location{
		MustParse("s3://b1/x"),
		MustParse("mem://f/y"),
		MustParse("gs://g1/z"), // no store mounted
	}
	err := r.DeleteObjects(context.Background(), locs)

	var de *DeleteError
	if !errors.As(err, &de) {
		t.Fatalf("DeleteObjects() error = %v, want *DeleteError", err)
	}
	if len(de.Failures) != 2 {
		t.Fatalf("Failures = %v, want entries for b1 and g1", de.Failures)
	}
	if !IsThrottled(de.Failures["b1"]) {
		t.Errorf("Failures[b1] = %v, want throttled", de.Failures["b1"])
	}
	if !errors.Is(de.Failures["g1"], ErrUnknownScheme) {
		t.Errorf("Failures[g1] = %v, want ErrUnknownScheme", de.Failures["g1"])
	}

	// The mounted stores still saw their partitions.
	if len(ok.deletes) != 1 {
		t.Errorf("mem store deletes = %d, want 1", len(ok.deletes))
	}
}

func TestRouterCloseClosesEachStoreOnce(t *testing.T) {
	shared := &fakeStore{}
	other := &fakeStore{}

	r := NewRouter()
	r.Mount(shared, "s3", "s3a", "s3n")
	r.Mount(other, "mem")

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if shared.closes != 1 {
		t.Errorf("shared store closes = %d, want 1", shared.closes)
	}
	if other.closes != 1 {
		t.Errorf("other store closes = %d, want 1", other.closes)
	}
}
