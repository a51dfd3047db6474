// Package filesystem implements the storage Backend over a local directory.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trikaweb/trikaweb/internal/storage"
)

// Storage keeps each bucket as a subdirectory of a base directory.
type Storage struct {
	baseDir    string
	absBaseDir string
}

// New creates a filesystem storage rooted at baseDir.
func New(baseDir string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, storage.NewStorageError("New", baseDir, err)
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, storage.NewStorageError("New", baseDir, err)
	}

	return &Storage{baseDir: baseDir, absBaseDir: absBaseDir}, nil
}

// resolve validates that bucket/key stays inside the base directory.
func (s *Storage) resolve(bucket, key string) (string, error) {
	clean := filepath.Clean(filepath.Join(bucket, key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s/%s", bucket, key)
	}

	fullPath := filepath.Join(s.baseDir, clean)
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(absPath, s.absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escape attempt: %s/%s", bucket, key)
	}
	return fullPath, nil
}

// Store writes the object atomically via a temp file and rename.
func (s *Storage) Store(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	filePath, err := s.resolve(bucket, key)
	if err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	tempPath := filePath + ".tmp"
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	var succeeded bool
	defer func() {
		tempFile.Close()
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(tempFile, reader)
	if err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}
	if size > 0 && written != size {
		return storage.NewStorageError("Store", bucket+"/"+key,
			fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", size, written))
	}

	if err := tempFile.Close(); err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return storage.NewStorageError("Store", bucket+"/"+key, err)
	}

	succeeded = true
	slog.Debug("object stored", "bucket", bucket, "key", key, "size", written)
	return nil
}

func (s *Storage) Retrieve(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	filePath, err := s.resolve(bucket, key)
	if err != nil {
		return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, storage.ErrNotFound)
		}
		return nil, storage.NewStorageError("Retrieve", bucket+"/"+key, err)
	}
	return file, nil
}

func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	filePath, err := s.resolve(bucket, key)
	if err != nil {
		return false, storage.NewStorageError("Exists", bucket+"/"+key, err)
	}

	_, err = os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, storage.NewStorageError("Exists", bucket+"/"+key, err)
}

func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	filePath, err := s.resolve(bucket, key)
	if err != nil {
		return storage.NewStorageError("Delete", bucket+"/"+key, err)
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storage.NewStorageError("Delete", bucket+"/"+key, err)
	}
	return nil
}

// SignedURL is unsupported on the filesystem backend; file endpoints
// fall back to streaming the object through the server.
func (s *Storage) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "", storage.ErrPresignUnsupported
}

// SignedUploadURL is unsupported on the filesystem backend.
func (s *Storage) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "", storage.ErrPresignUnsupported
}
