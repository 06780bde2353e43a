package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()

	content := "%PDF-1.4 test"
	if err := store.Upload(ctx, "exports/report.pdf", strings.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	exists, err := store.Exists(ctx, "exports/report.pdf")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true", exists, err)
	}

	rc, err := store.Download(ctx, "exports/report.pdf")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != content {
		t.Errorf("Download() = %q, want %q", data, content)
	}

	if err := store.Delete(ctx, "exports/report.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, err = store.Exists(ctx, "exports/report.pdf")
	if err != nil || exists {
		t.Errorf("Exists() after delete = %v, %v, want false", exists, err)
	}
}

func TestLocalStorageDeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	if err := store.Delete(context.Background(), "never-existed.pdf"); err != nil {
		t.Errorf("Delete() on missing object error = %v, want nil", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Upload(ctx, "../escape.pdf", strings.NewReader("x"), 1, "application/pdf"); err == nil {
		t.Error("Upload() accepted a traversal key")
	}
	if _, err := store.Download(ctx, "../../etc/passwd"); err == nil {
		t.Error("Download() accepted a traversal key")
	}
}

func TestLocalStorageRequiresDirectory(t *testing.T) {
	if _, err := NewLocalStorage(""); err == nil {
		t.Error("NewLocalStorage(\"\") did not fail")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://minio.example.com", "minio.example.com"},
		{"http://localhost:9000/", "localhost:9000"},
		{"https://account.r2.cloudflarestorage.com/bucket", "account.r2.cloudflarestorage.com"},
		{"plain-host:9000", "plain-host:9000"},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in); got != tt.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"account.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.us-east-1.amazonaws.com", StorageTypeS3},
		{"minio.internal:9000", StorageTypeS3Compatible},
	}

	for _, tt := range tests {
		if got := detectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("detectStorageType(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}
