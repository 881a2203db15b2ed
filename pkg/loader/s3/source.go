// Package s3 provides a loader.Source that serves objects from an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/staticd/internal/telemetry"
	"github.com/marmos91/staticd/pkg/loader"
)

// Config holds configuration for the S3 origin.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for MinIO/Localstack).
	Endpoint string

	// KeyPrefix is prepended to every key (e.g. "site/").
	KeyPrefix string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool
}

// ObjectAPI is the subset of the S3 client the source needs.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source serves objects as files. The object key is KeyPrefix + key.
type Source struct {
	client    ObjectAPI
	bucket    string
	keyPrefix string
}

// New creates a source over an existing client.
func New(client ObjectAPI, cfg Config) *Source {
	return &Source{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}
}

// NewFromConfig builds an S3 client from cfg and wraps it.
func NewFromConfig(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 origin: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg), nil
}

// Name implements loader.Source.
func (s *Source) Name() string {
	return "s3"
}

// Bucket returns the configured bucket.
func (s *Source) Bucket() string {
	return s.bucket
}

func (s *Source) objectKey(key string) string {
	if key == "." {
		key = ""
	}
	return s.keyPrefix + key
}

// isDir treats the root and keys ending in "/" as directories. S3 has no
// real directories, and neither is ever served.
func isDir(key string) bool {
	return key == "" || key == "." || strings.HasSuffix(key, "/")
}

// Stat implements loader.Source.
func (s *Source) Stat(ctx context.Context, key string) (loader.Info, error) {
	if isDir(key) {
		return loader.Info{IsDir: true}, nil
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return loader.Info{}, loader.ErrNotFound
		}
		return loader.Info{}, fmt.Errorf("%w: s3 head object: %w", loader.ErrNotFound, err)
	}

	return loader.Info{Size: aws.ToInt64(out.ContentLength)}, nil
}

// Read implements loader.Source.
func (s *Source) Read(ctx context.Context, key string) ([]byte, error) {
	if isDir(key) {
		return nil, loader.ErrIsDirectory
	}

	telemetry.SetAttributes(ctx, telemetry.Bucket(s.bucket))

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, loader.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	return data, nil
}

// isNotFoundError reports whether err is an S3 missing-object error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}

	// HeadObject errors carry no typed body, only the code in the message.
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "StatusCode: 404")
}

var _ loader.Source = (*Source)(nil)
