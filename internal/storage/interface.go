// Package storage provides abstraction for file storage operations.
// This enables the exam and solution archives to live on the local
// filesystem or any S3-compatible service without changing handler code.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Buckets used by the application.
const (
	BucketExams     = "exams"
	BucketSolutions = "solutions"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrPresignUnsupported is returned by backends that cannot issue
	// signed URLs; callers fall back to streaming through the server.
	ErrPresignUnsupported = errors.New("signed URLs not supported by this backend")
)

// Backend defines the interface for object storage operations.
type Backend interface {
	// Store writes data from the reader to the bucket under key.
	Store(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error

	// Retrieve returns a reader for the stored object.
	// The caller is responsible for closing the returned ReadCloser.
	Retrieve(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Exists checks whether an object exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// SignedURL returns a short-lived URL for downloading the object.
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)

	// SignedUploadURL returns a short-lived URL for uploading to key.
	SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// StorageError wraps storage failures with operation context.
type StorageError struct {
	Op   string // Operation that failed (e.g., "Store", "Retrieve")
	Path string // bucket/key involved
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError with context.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}
