// Package s3 provides an S3-compatible operator for omnifs.
//
// It works with AWS S3 and S3-compatible object stores (MinIO, Cloudflare
// R2, Wasabi, DigitalOcean Spaces). Directories are implicit: listings use
// key delimiters and Mkdir creates zero-byte marker objects for tool
// compatibility.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/omnifs/omnifs"
)

func init() {
	omnifs.RegisterScheme("s3", New)
}

// Operator implements omnifs.Operator over an S3 bucket.
type Operator struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	closed   bool
	mu       sync.RWMutex
}

// New creates an S3 operator from a parsed s3:// URL. The descriptor's
// timeout bounds each HTTP call and its retry budget becomes the SDK's
// max-attempts setting.
func New(u *url.URL, policy omnifs.Policy) (omnifs.Operator, error) {
	return NewOperator(ConfigFromURL(u), policy)
}

// NewOperator creates an S3 operator with the given configuration.
func NewOperator(cfg Config, policy omnifs.Policy) (*Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * 1024 * 1024
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		optFns = append(optFns, awsconfig.WithCredentialsProvider(creds))
	}
	if policy.RetryAttempts > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(policy.RetryAttempts))
	}
	if policy.Timeout > 0 {
		optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: policy.Timeout}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	var s3OptFns []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})

	return &Operator{
		client:   client,
		uploader: uploader,
		config:   cfg,
	}, nil
}

// List returns the direct children of the "directory" at p using a
// delimiter listing: common prefixes become directories, objects files.
func (o *Operator) List(ctx context.Context, p string) ([]omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := o.fullKey(p)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []omnifs.Entry
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(o.config.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, o.translateError(err, p)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			rel := o.relPath(strings.TrimSuffix(*cp.Prefix, "/"))
			entries = append(entries, omnifs.Entry{
				Name:  path.Base(rel),
				Path:  rel,
				IsDir: true,
			})
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				continue // skip the directory marker itself
			}
			rel := o.relPath(*obj.Key)
			e := omnifs.Entry{
				Name: path.Base(rel),
				Path: rel,
			}
			if obj.Size != nil {
				e.Size = *obj.Size
			}
			if obj.LastModified != nil {
				e.Modified = *obj.LastModified
			}
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// NewReader opens the object at p for streaming reads.
func (o *Operator) NewReader(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.config.Bucket),
		Key:    aws.String(o.fullKey(p)),
	})
	if err != nil {
		return nil, o.translateError(err, p)
	}
	return result.Body, nil
}

// NewWriter opens the object at p for writing. The upload runs on Close
// through the transfer manager, so large objects are chunked into parts.
func (o *Operator) NewWriter(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &s3Writer{
		op:     o,
		ctx:    ctx,
		key:    o.fullKey(p),
		buffer: &bytes.Buffer{},
	}, nil
}

// Stat returns metadata for the object at p.
func (o *Operator) Stat(ctx context.Context, p string) (omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return omnifs.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return omnifs.Entry{}, err
	}

	result, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.config.Bucket),
		Key:    aws.String(o.fullKey(p)),
	})
	if err != nil {
		return omnifs.Entry{}, o.translateError(err, p)
	}

	e := omnifs.Entry{
		Name: path.Base(p),
		Path: strings.TrimPrefix(p, "/"),
	}
	if result.ContentLength != nil {
		e.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		e.Modified = *result.LastModified
	}
	if result.ContentType != nil {
		e.ContentType = *result.ContentType
	}
	return e, nil
}

// Exists reports whether the object at p exists.
func (o *Operator) Exists(ctx context.Context, p string) (bool, error) {
	_, err := o.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, omnifs.ErrPathNotFound) {
		return false, nil
	}
	return false, err
}

// Copy duplicates the object at src to dst using S3 server-side copy.
func (o *Operator) Copy(ctx context.Context, src, dst string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	copySource := fmt.Sprintf("%s/%s", o.config.Bucket, o.fullKey(src))
	_, err := o.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(o.config.Bucket),
		CopySource: aws.String(copySource),
		Key:        aws.String(o.fullKey(dst)),
	})
	if err != nil {
		return o.translateError(err, src)
	}
	return nil
}

// Rename moves the object at src to dst via server-side copy plus delete.
func (o *Operator) Rename(ctx context.Context, src, dst string) error {
	if err := o.Copy(ctx, src, dst); err != nil {
		return err
	}
	return o.Delete(ctx, src)
}

// Mkdir creates a zero-byte directory marker. S3 directories are implicit;
// the marker keeps listings consistent with directory-shaped tools.
func (o *Operator) Mkdir(ctx context.Context, p string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := o.fullKey(p)
	if key == "" {
		return nil // bucket root always exists
	}
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}

	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader([]byte{}),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return o.translateError(err, p)
	}
	return nil
}

// Delete removes the object at p. S3 deletes are idempotent.
func (o *Operator) Delete(ctx context.Context, p string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.config.Bucket),
		Key:    aws.String(o.fullKey(p)),
	})
	if err != nil {
		var nsk *types.NotFound
		if errors.As(err, &nsk) {
			return nil
		}
		return o.translateError(err, p)
	}
	return nil
}

// Close marks the operator closed. The SDK client needs no teardown.
func (o *Operator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// fullKey maps an operation path to a bucket key under the prefix.
func (o *Operator) fullKey(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "." {
		p = ""
	}
	if o.config.Prefix == "" {
		return p
	}
	if p == "" {
		return o.config.Prefix
	}
	return o.config.Prefix + "/" + p
}

// relPath strips the configured prefix from a bucket key.
func (o *Operator) relPath(key string) string {
	rel := strings.TrimPrefix(key, o.config.Prefix)
	return strings.TrimPrefix(rel, "/")
}

func (o *Operator) checkClosed() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return omnifs.ErrOperatorClosed
	}
	return nil
}

// translateError converts SDK errors to omnifs errors.
func (o *Operator) translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	var nsk *types.NotFound
	if errors.As(err, &nsk) {
		return omnifs.ErrPathNotFound
	}
	var nskey *types.NoSuchKey
	if errors.As(err, &nskey) {
		return omnifs.ErrPathNotFound
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %s: %w", o.config.Bucket, omnifs.ErrPathNotFound)
	}

	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return omnifs.ErrPathNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return omnifs.ErrPermissionDenied
		}
	}

	return fmt.Errorf("s3: %s: %w", p, err)
}

// s3Writer buffers writes and uploads the object on Close.
type s3Writer struct {
	op     *Operator
	ctx    context.Context
	key    string
	buffer *bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, omnifs.ErrOperatorClosed
	}
	return w.buffer.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.op.uploader.Upload(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.op.config.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("s3: uploading object: %w", err)
	}
	return nil
}

// Ensure Operator implements omnifs.Operator.
var _ omnifs.Operator = (*Operator)(nil)
