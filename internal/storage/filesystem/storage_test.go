package filesystem

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/trikaweb/trikaweb/internal/storage"
)

func TestStoreAndRetrieve(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	content := "%PDF-1.4 fake exam"
	err = fs.Store(ctx, storage.BucketExams, "BMA01/parcial/2024-1.pdf",
		strings.NewReader(content), int64(len(content)), "application/pdf")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	exists, err := fs.Exists(ctx, storage.BucketExams, "BMA01/parcial/2024-1.pdf")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got exists=%v err=%v", exists, err)
	}

	rc, err := fs.Retrieve(ctx, storage.BucketExams, "BMA01/parcial/2024-1.pdf")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("retrieved content mismatch: %q", data)
	}
}

func TestRetrieveMissing(t *testing.T) {
	fs, _ := New(t.TempDir())

	_, err := fs.Retrieve(context.Background(), storage.BucketExams, "missing.pdf")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSizeMismatchRejected(t *testing.T) {
	fs, _ := New(t.TempDir())

	err := fs.Store(context.Background(), storage.BucketExams, "short.pdf",
		strings.NewReader("abc"), 10, "application/pdf")
	if err == nil {
		t.Error("size mismatch should fail the store")
	}

	exists, _ := fs.Exists(context.Background(), storage.BucketExams, "short.pdf")
	if exists {
		t.Error("failed store must not leave the object behind")
	}
}

func TestPathTraversalRejected(t *testing.T) {
	fs, _ := New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../escape.pdf", "../../etc/passwd"} {
		if err := fs.Store(ctx, storage.BucketExams, key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	fs, _ := New(t.TempDir())
	ctx := context.Background()

	if err := fs.Store(ctx, storage.BucketSolutions, "sol.pdf", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := fs.Delete(ctx, storage.BucketSolutions, "sol.pdf"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := fs.Delete(ctx, storage.BucketSolutions, "sol.pdf"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestPresignUnsupported(t *testing.T) {
	fs, _ := New(t.TempDir())

	_, err := fs.SignedURL(context.Background(), storage.BucketExams, "a.pdf", 0)
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		t.Errorf("expected ErrPresignUnsupported, got %v", err)
	}
	_, err = fs.SignedUploadURL(context.Background(), storage.BucketExams, "a.pdf", 0)
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		t.Errorf("expected ErrPresignUnsupported, got %v", err)
	}
}
