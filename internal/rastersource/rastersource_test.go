package rastersource

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"cubed/internal/logging"
)

func TestResolveLocalPathPassesThrough(t *testing.T) {
	r := New(t.TempDir(), logging.Discard())
	got, err := r.Resolve(context.Background(), "/data/scene.tif")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/data/scene.tif" {
		t.Errorf("got %q, want unchanged local path", got)
	}
}

func TestResolveFileSchemeStripsPrefix(t *testing.T) {
	r := New(t.TempDir(), logging.Discard())
	got, err := r.Resolve(context.Background(), "file:///data/scene.tif")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/data/scene.tif" {
		t.Errorf("got %q, want /data/scene.tif", got)
	}
}

func TestResolveUnsupportedSchemeErrors(t *testing.T) {
	r := New(t.TempDir(), logging.Discard())
	_, err := r.Resolve(context.Background(), "ftp://example.com/scene.tif")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestSpoolNameIsFilesystemSafe(t *testing.T) {
	// spoolName must never contain a path separator from the object key,
	// since it's joined directly under SpoolDir.
	u, err := url.Parse("s3://my-bucket/a/b/c/scene.tif")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	name := spoolName(u)
	if filepath.Base(name) != name {
		t.Errorf("spoolName %q is not a single path component", name)
	}
}
