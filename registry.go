package objectio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]StoreFactory)
)

// StoreFactory creates a Store from configuration.
// The config map contains backend-specific configuration keys.
type StoreFactory func(config map[string]string) (Store, error)

// Register registers a store factory under the given scheme.
// It is typically called from init() in backend packages.
//
// Register panics if factory is nil or the scheme is already registered.
func Register(scheme string, factory StoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("objectio: Register factory is nil")
	}
	if _, dup := factories[scheme]; dup {
		panic("objectio: Register called twice for scheme " + scheme)
	}
	factories[scheme] = factory
}

// Open constructs a store for the given scheme with the given configuration.
// Returns ErrUnknownScheme if no backend registered the scheme.
func Open(scheme string, config map[string]string) (Store, error) {
	factoriesMu.RLock()
	factory, ok := factories[scheme]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	return factory(config)
}

// Schemes returns a sorted list of registered schemes.
func Schemes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router is a Store that dispatches each operation to the mounted store
// for the location's scheme. It lets the catalog address several storage
// families (S3 buckets, SFTP hosts, in-memory fixtures) through one handle.
//
// A Router is safe for concurrent use. Mount is expected at setup time;
// mounting while operations are in flight is allowed but rarely useful.
type Router struct {
	mu     sync.RWMutex
	stores map[string]Store
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{stores: make(map[string]Store)}
}

// Mount serves the given schemes from store. A store may be mounted under
// several schemes (the S3 family answers s3, s3a and s3n).
func (r *Router) Mount(store Store, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.stores[s] = store
	}
}

// storeFor resolves the mounted store for loc's scheme. The scheme check
// happens here, before the backend sees the location, so an unsupported
// scheme never triggers a network call.
func (r *Router) storeFor(loc Location) (Store, error) {
	r.mu.RLock()
	store, ok := r.stores[loc.Scheme()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no store mounted for scheme %q (%w)", ErrInvalidLocation, loc.Scheme(), ErrUnknownScheme)
	}
	return store, nil
}

// Ping dispatches to the store mounted for loc's scheme.
func (r *Router) Ping(ctx context.Context, loc Location) error {
	store, err := r.storeFor(loc)
	if err != nil {
		return err
	}
	return store.Ping(ctx, loc)
}

// Read dispatches to the store mounted for loc's scheme.
func (r *Router) Read(ctx context.Context, loc Location) (io.ReadCloser, error) {
	store, err := r.storeFor(loc)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, loc)
}

// Write dispatches to the store mounted for loc's scheme.
func (r *Router) Write(ctx context.Context, loc Location) (io.WriteCloser, error) {
	store, err := r.storeFor(loc)
	if err != nil {
		return nil, err
	}
	return store.Write(ctx, loc)
}

// DeleteObjects partitions locs by scheme and delegates each partition to
// its mounted store. Partitions are attempted best-effort; per-authority
// failures from every store are merged into one *DeleteError.
func (r *Router) DeleteObjects(ctx context.Context, locs []Location) error {
	byScheme := make(map[string][]Location)
	for _, loc := range locs {
		byScheme[loc.Scheme()] = append(byScheme[loc.Scheme()], loc)
	}

	schemes := make([]string, 0, len(byScheme))
	for s := range byScheme {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)

	failures := make(map[string]error)
	for _, scheme := range schemes {
		group := byScheme[scheme]
		store, err := r.storeFor(group[0])
		if err != nil {
			for _, loc := range group {
				failures[loc.Authority()] = err
			}
			continue
		}

		err = store.DeleteObjects(ctx, group)
		if err == nil {
			continue
		}
		var de *DeleteError
		if errors.As(err, &de) {
			for auth, cause := range de.Failures {
				failures[auth] = cause
			}
			continue
		}
		for _, loc := range group {
			failures[loc.Authority()] = err
		}
	}

	if len(failures) > 0 {
		return &DeleteError{Failures: failures}
	}
	return nil
}

// Close closes every mounted store once, even when one store serves
// several schemes.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := make(map[Store]bool)
	var errs []error
	for _, store := range r.stores {
		if closed[store] {
			continue
		}
		closed[store] = true
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.stores = make(map[string]Store)
	return errors.Join(errs...)
}

// Ensure Router implements Store.
var _ Store = (*Router)(nil)
