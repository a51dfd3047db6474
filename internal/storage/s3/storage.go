// Package s3 implements the storage Backend for AWS S3 and S3-compatible storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/trikaweb/trikaweb/internal/storage"
)

// multipartUploadPartSize is the size for S3 multipart upload parts (5MB minimum)
const multipartUploadPartSize = 5 * 1024 * 1024

// Config holds configuration for S3 storage.
type Config struct {
	Region          string
	Endpoint        string // Custom endpoint for MinIO or other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool // Use path-style addressing (required for MinIO)

	// BucketNames maps logical bucket names (storage.BucketExams,
	// storage.BucketSolutions) to the real S3 bucket names. Unmapped
	// names are used as-is.
	BucketNames map[string]string
}

// Storage implements the storage Backend for S3.
type Storage struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	buckets  map[string]string
}

// resolve maps a logical bucket name to the configured S3 bucket.
func (s *Storage) resolve(bucket string) string {
	if name, ok := s.buckets[bucket]; ok && name != "" {
		return name
	}
	return bucket
}

// New creates an S3 storage backend with the given configuration.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	var optFuncs []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFuncs = append(optFuncs, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFuncs = append(optFuncs, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFuncs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = multipartUploadPartSize
	})

	slog.Info("S3 storage initialized",
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"path_style", cfg.PathStyle,
	)

	return &Storage{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: uploader,
		buckets:  cfg.BucketNames,
	}, nil
}

// validateKey rejects keys that could smuggle traversal sequences.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key not allowed")
	}
	if strings.ContainsRune(key, '\x00') {
		return fmt.Errorf("key contains null byte")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key contains path traversal sequence")
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	slog.Debug("object stored", "bucket", bucket, "key", key, "size", size)
	return nil
}

func (s *Storage) Retrieve(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, storage.ErrNotFound)
		}
		return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, err)
	}
	return out.Body, nil
}

func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, storage.NewStorageError("Exists", bucket+"/"+key, err)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, storage.NewStorageError("Exists", bucket+"/"+key, err)
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	if err := validateKey(key); err != nil {
		return storage.NewStorageError("Delete", bucket+"/"+key, err)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.NewStorageError("Delete", bucket+"/"+key, err)
	}
	return nil
}

func (s *Storage) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", storage.NewStorageError("SignedURL", bucket+"/"+key, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", storage.NewStorageError("SignedURL", bucket+"/"+key, err)
	}
	return req.URL, nil
}

func (s *Storage) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", storage.NewStorageError("SignedUploadURL", bucket+"/"+key, err)
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.resolve(bucket)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", storage.NewStorageError("SignedUploadURL", bucket+"/"+key, err)
	}
	return req.URL, nil
}
