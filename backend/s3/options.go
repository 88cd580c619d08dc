package s3

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Errors specific to the S3 store.
var (
	ErrNegativeRetryAfter      = errors.New("s3: retry_after must not be negative")
	ErrNegativeUploadThreshold = errors.New("s3: upload_threshold must not be negative")
)

// defaultUploadThreshold is the buffered-body size at which a commit is
// handed to the transfer manager instead of a single PutObject call.
const defaultUploadThreshold = 16 * 1024 * 1024 // 16MB

// Config holds configuration for the S3 store. The zero value is usable:
// region and credentials then come from the AWS default chain.
//
// Fields on Config apply to every bucket; Buckets overrides them for
// individual buckets, which is how one store serves buckets spread across
// regions, endpoints and credential sets.
type Config struct {
	// Region is the default AWS region (e.g., "us-east-1").
	// If empty, uses AWS_REGION or AWS_DEFAULT_REGION environment variable.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services
	// (MinIO, Cloudflare R2, Wasabi). Leave empty for AWS S3.
	Endpoint string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses AWS_ACCESS_KEY_ID environment variable or IAM role.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses AWS_SECRET_ACCESS_KEY environment variable or IAM role.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing instead of
	// virtual-hosted-style. Required for some S3-compatible services.
	UsePathStyle bool

	// RetryAfter is the resume-after duration attached to throttled
	// failures when the service supplies no Retry-After hint of its own.
	// Zero falls through to the fixed 10-second fallback.
	RetryAfter time.Duration

	// UploadThreshold is the buffered size in bytes at which a write
	// commit escalates from a single PutObject call to the transfer
	// manager. The commit remains a single atomic release either way.
	// Default: 16MB.
	UploadThreshold int64

	// Buckets overrides the defaults above for individual buckets,
	// keyed by bucket name.
	Buckets map[string]BucketConfig
}

// BucketConfig carries per-bucket overrides. Empty fields inherit the
// store-wide Config value.
type BucketConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle overrides the store-wide setting when non-nil.
	UsePathStyle *bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		UploadThreshold: defaultUploadThreshold,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - OBJECTIO_S3_REGION or AWS_REGION or AWS_DEFAULT_REGION: region
//   - OBJECTIO_S3_ENDPOINT: custom endpoint
//   - AWS_ACCESS_KEY_ID: access key
//   - AWS_SECRET_ACCESS_KEY: secret key
//   - AWS_SESSION_TOKEN: session token
//   - OBJECTIO_S3_USE_PATH_STYLE: "true" for path-style addressing
//   - OBJECTIO_S3_RETRY_AFTER: default resume-after (Go duration string)
//   - OBJECTIO_S3_UPLOAD_THRESHOLD: transfer-manager threshold in bytes
func ConfigFromEnv() Config {
	config := DefaultConfig()

	if v := os.Getenv("OBJECTIO_S3_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.Region = v
	}

	if v := os.Getenv("OBJECTIO_S3_ENDPOINT"); v != "" {
		config.Endpoint = v
	}

	config.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.SessionToken = os.Getenv("AWS_SESSION_TOKEN")

	if v := os.Getenv("OBJECTIO_S3_USE_PATH_STYLE"); v == "true" || v == "1" {
		config.UsePathStyle = true
	}
	if v := os.Getenv("OBJECTIO_S3_RETRY_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.RetryAfter = d
		}
	}
	if v := os.Getenv("OBJECTIO_S3_UPLOAD_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.UploadThreshold = n
		}
	}

	return config
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - region: default AWS region
//   - endpoint: custom endpoint URL
//   - access_key_id: AWS access key
//   - secret_access_key: AWS secret key
//   - session_token: session token
//   - use_path_style: "true" for path-style addressing
//   - retry_after: default resume-after hint (Go duration string)
//   - upload_threshold: transfer-manager threshold in bytes
//
// Per-bucket overrides are not expressible in the flat map; construct a
// Config directly when buckets need distinct regions or credentials.
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["region"]; ok {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok && (v == "true" || v == "1") {
		config.UsePathStyle = true
	}
	if v, ok := m["retry_after"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.RetryAfter = d
		}
	}
	if v, ok := m["upload_threshold"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.UploadThreshold = n
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.RetryAfter < 0 {
		return ErrNegativeRetryAfter
	}
	if c.UploadThreshold < 0 {
		return ErrNegativeUploadThreshold
	}
	return nil
}

// resolved is the effective per-bucket client configuration after merging
// store-wide defaults with the bucket's overrides.
type resolved struct {
	region          string
	endpoint        string
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
	usePathStyle    bool
}

// forBucket merges the store-wide defaults with the overrides for bucket.
func (c Config) forBucket(bucket string) resolved {
	r := resolved{
		region:          c.Region,
		endpoint:        c.Endpoint,
		accessKeyID:     c.AccessKeyID,
		secretAccessKey: c.SecretAccessKey,
		sessionToken:    c.SessionToken,
		usePathStyle:    c.UsePathStyle,
	}

	bc, ok := c.Buckets[bucket]
	if !ok {
		return r
	}
	if bc.Region != "" {
		r.region = bc.Region
	}
	if bc.Endpoint != "" {
		r.endpoint = bc.Endpoint
	}
	if bc.AccessKeyID != "" {
		r.accessKeyID = bc.AccessKeyID
		r.secretAccessKey = bc.SecretAccessKey
		r.sessionToken = bc.SessionToken
	}
	if bc.UsePathStyle != nil {
		r.usePathStyle = *bc.UsePathStyle
	}
	return r
}
