package s3

import (
	"errors"
	"net/url"
	"strconv"
)

// Errors specific to the S3 operator.
var (
	ErrBucketRequired = errors.New("s3: bucket is required")
)

// Config holds configuration for the S3 operator.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix is an optional key prefix all paths live under.
	Prefix string

	// Region is the AWS region (e.g., "us-east-1").
	// If empty, the AWS SDK's default resolution applies.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services
	// (MinIO, Cloudflare R2, Wasabi). Leave empty for AWS S3.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials.
	// If empty, the SDK's default credential chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// SessionToken is an optional token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing, required by MinIO and
	// some other S3-compatible services.
	UsePathStyle bool

	// PartSize is the multipart transfer part size in bytes.
	// Default: 5MB (the S3 minimum).
	PartSize int64

	// Concurrency is the number of concurrent transfer goroutines.
	// Default: 5.
	Concurrency int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PartSize:    5 * 1024 * 1024,
		Concurrency: 5,
	}
}

// ConfigFromURL builds a Config from an s3:// connection URL.
// The host is the bucket, the path an optional key prefix, and query
// parameters supply the remaining options:
//
//	s3://my-bucket/backups?region=us-east-1
//	s3://my-bucket?endpoint=http://localhost:9000&use_path_style=true
//
// Supported query parameters: region, endpoint, access_key_id,
// secret_access_key, session_token, use_path_style, part_size, concurrency.
func ConfigFromURL(u *url.URL) Config {
	cfg := DefaultConfig()
	cfg.Bucket = u.Host
	cfg.Prefix = trimSlashes(u.Path)

	q := u.Query()
	cfg.Region = q.Get("region")
	cfg.Endpoint = q.Get("endpoint")
	cfg.AccessKeyID = q.Get("access_key_id")
	cfg.SecretAccessKey = q.Get("secret_access_key")
	cfg.SessionToken = q.Get("session_token")

	if v := q.Get("use_path_style"); v == "true" || v == "1" {
		cfg.UsePathStyle = true
	}
	if v := q.Get("part_size"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			cfg.PartSize = size
		}
	}
	if v := q.Get("concurrency"); v != "" {
		if c, err := strconv.Atoi(v); err == nil && c > 0 {
			cfg.Concurrency = c
		}
	}

	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}

func trimSlashes(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
