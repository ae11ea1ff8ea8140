// Package objectstore reads catalog exports from S3-compatible object
// storage (AWS S3, Cloudflare R2, MinIO).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Scheme is the URI scheme accepted by ParseLocation.
const Scheme = "s3://"

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Config holds object store client configuration. Endpoint and the static
// credentials are optional; without them the AWS default chain applies.
type Config struct {
	Endpoint    string // e.g. https://account-id.r2.cloudflarestorage.com
	Region      string
	AccessKeyID string
	SecretKey   string
	Bucket      string
}

// Validate checks that credentials come in pairs.
func (c Config) Validate() error {
	if (c.AccessKeyID == "") != (c.SecretKey == "") {
		return errors.New("objectstore: access key and secret key must be set together")
	}
	return nil
}

// ObjectInfo is the metadata HeadObject returns.
type ObjectInfo struct {
	ETag            string
	Size            int64
	ContentEncoding string
	LastModified    time.Time
}

// Client provides read access to one bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a client. Path-style addressing is used whenever a custom
// endpoint is configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3: s3Client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket the client reads from.
func (c *Client) Bucket() string {
	return c.bucket
}

// WithBucket returns a client for another bucket sharing the same connection.
func (c *Client) WithBucket(bucket string) *Client {
	return &Client{s3: c.s3, bucket: bucket}
}

// Download opens an object. The caller must close the body.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if c.bucket == "" {
		return nil, ObjectInfo{}, errors.New("objectstore: no bucket configured")
	}
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ObjectInfo{}, fmt.Errorf("%s/%s: %w", c.bucket, key, ErrNotFound)
		}
		return nil, ObjectInfo{}, fmt.Errorf("objectstore: download %q: %w", key, err)
	}

	info := ObjectInfo{
		ETag:            trimETag(result.ETag),
		Size:            aws.ToInt64(result.ContentLength),
		ContentEncoding: aws.ToString(result.ContentEncoding),
		LastModified:    aws.ToTime(result.LastModified),
	}
	return result.Body, info, nil
}

// HeadObject retrieves metadata without downloading the body.
func (c *Client) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	if c.bucket == "" {
		return ObjectInfo{}, errors.New("objectstore: no bucket configured")
	}
	result, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%s/%s: %w", c.bucket, key, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("objectstore: head %q: %w", key, err)
	}

	return ObjectInfo{
		ETag:            trimETag(result.ETag),
		Size:            aws.ToInt64(result.ContentLength),
		ContentEncoding: aws.ToString(result.ContentEncoding),
		LastModified:    aws.ToTime(result.LastModified),
	}, nil
}

// Location is a parsed s3://bucket/key URI.
type Location struct {
	Bucket string
	Key    string
}

// IsLocation reports whether s uses the s3:// scheme.
func IsLocation(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), Scheme)
}

// ParseLocation splits an s3://bucket/key URI.
func ParseLocation(uri string) (Location, error) {
	if !IsLocation(uri) {
		return Location{}, fmt.Errorf("objectstore: %q is not an %s URI", uri, Scheme)
	}
	bucket, key, ok := strings.Cut(uri[len(Scheme):], "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("objectstore: %q must name a bucket and a key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Key
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), "\"")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
