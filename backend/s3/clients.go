package s3

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client this store calls. Narrowing the
// dependency to an interface keeps the remote side stubbable in tests.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// uploaderAPI is the transfer-manager slice used for large commit bodies.
type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// clientBundle is one cached client handle: the bucket-bound S3 client and
// its transfer manager. Handles are owned by the pool; callers borrow them
// for one call and never tear them down.
type clientBundle struct {
	api      s3API
	uploader uploaderAPI
}

// pool resolves and caches client handles per bucket identity. Buckets in
// different regions or behind different endpoints get distinct handles;
// repeated calls for one bucket share a single handle.
type pool struct {
	cfg Config

	// build constructs the handle for a bucket. Overridden in tests.
	build func(ctx context.Context, bucket string) (clientBundle, error)

	mu      sync.Mutex
	entries map[string]*poolEntry
}

type poolEntry struct {
	once   sync.Once
	bundle clientBundle
	err    error
}

func newPool(cfg Config) *pool {
	p := &pool{
		cfg:     cfg,
		entries: make(map[string]*poolEntry),
	}
	p.build = p.buildClient
	return p
}

// clientFor returns the cached handle for bucket, constructing it on first
// use. Construction is lazy: configuration problems surface here on the
// first call for a bucket (and on every later call — a failed construction
// is cached and not re-attempted). Concurrent first-use for one bucket
// collapses to a single construction; all callers receive the same handle.
func (p *pool) clientFor(ctx context.Context, bucket string) (clientBundle, error) {
	p.mu.Lock()
	entry, ok := p.entries[bucket]
	if !ok {
		entry = &poolEntry{}
		p.entries[bucket] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		entry.bundle, entry.err = p.build(ctx, bucket)
	})
	return entry.bundle, entry.err
}

// buildClient constructs the real SDK client for a bucket from the merged
// store/bucket configuration.
func (p *pool) buildClient(ctx context.Context, bucket string) (clientBundle, error) {
	rc := p.cfg.forBucket(bucket)

	var optFns []func(*config.LoadOptions) error
	if rc.region != "" {
		optFns = append(optFns, config.WithRegion(rc.region))
	}
	if rc.accessKeyID != "" && rc.secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			rc.accessKeyID,
			rc.secretAccessKey,
			rc.sessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return clientBundle{}, fmt.Errorf("s3: loading AWS config for bucket %s: %w", bucket, err)
	}

	var s3OptFns []func(*s3.Options)
	if rc.endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(rc.endpoint)
		})
	}
	if rc.usePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)

	return clientBundle{
		api:      client,
		uploader: manager.NewUploader(client),
	}, nil
}

// shutdown drops every cached handle. S3 clients hold no closable state of
// their own; releasing the references is the whole teardown.
func (p *pool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]*poolEntry)
}

// size reports the number of cached handles. Used by tests.
func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
