package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Reader wraps an io.ReadCloser with zstd decompression.
type Reader struct {
	zr     *zstd.Decoder
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewReader creates a reader that decompresses data from the underlying
// stream, typically one returned by Store.Read.
func NewReader(r io.ReadCloser) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{
		zr:     zr,
		closer: r,
	}, nil
}

// NewReaderWithOptions creates a new zstd reader with custom decoder options.
func NewReaderWithOptions(r io.ReadCloser, opts ...zstd.DOption) (*Reader, error) {
	zr, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, err
	}
	return &Reader{
		zr:     zr,
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

	return r.zr.Read(p)
}

// Close releases the decoder and closes the underlying reader, releasing
// the store connection even when the body was not fully consumed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	// Decoder close never fails; it only releases internal buffers.
	r.zr.Close()

	return r.closer.Close()
}

// Ensure Reader implements io.ReadCloser
var _ io.ReadCloser = (*Reader)(nil)
