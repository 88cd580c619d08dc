package gzip

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Reader wraps an io.ReadCloser with gzip decompression.
type Reader struct {
	gr     *gzip.Reader
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewReader creates a reader that decompresses data from the underlying
// stream, typically one returned by Store.Read.
func NewReader(r io.ReadCloser) (*Reader, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{
		gr:     gr,
		closer: r,
	}, nil
}

// Read reads decompressed data.
func (r *Reader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}

	return r.gr.Read(p)
}

// Close closes both the gzip stream and the underlying reader, releasing
// the store connection even when the body was not fully consumed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	// Close gzip reader first
	if err := r.gr.Close(); err != nil {
		_ = r.closer.Close()
		return err
	}

	return r.closer.Close()
}

// Ensure Reader implements io.ReadCloser
var _ io.ReadCloser = (*Reader)(nil)
