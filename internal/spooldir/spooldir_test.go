package spooldir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureExistsCreatesSubdirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	d := New(root)

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	for _, sub := range []string{d.Root(), d.FilesDir(), d.SpoolDir()} {
		info, err := os.Stat(sub)
		if err != nil {
			t.Fatalf("stat %s: %v", sub, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}
}

func TestSnapshotPathUnderRoot(t *testing.T) {
	d := New("/tmp/cubed-work")
	want := filepath.Join("/tmp/cubed-work", "collection.snapshot")
	if got := d.SnapshotPath(); got != want {
		t.Errorf("SnapshotPath() = %q, want %q", got, want)
	}
}
