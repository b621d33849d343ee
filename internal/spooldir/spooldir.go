// Package spooldir manages the compute server's working directory layout.
//
// The working directory (--dir) owns all of the server's on-disk state:
// uploaded raster files, spooled copies of remote blob descriptors, and
// the optional image-collection snapshot.
//
// Layout:
//
//	<root>/
//	  files/      (uploaded files served back by descriptor via POST /file)
//	  spool/      (local copies of s3://, az://, gs:// blob descriptors)
//	  collection.snapshot   (msgpack snapshot of the image collection index)
package spooldir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents the compute server's working directory.
type Dir struct {
	root string
}

// New creates a Dir rooted at an explicit path.
func New(root string) Dir {
	return Dir{root: root}
}

// Root returns the working directory path.
func (d Dir) Root() string {
	return d.root
}

// FilesDir returns the directory uploaded files are stored under.
func (d Dir) FilesDir() string {
	return filepath.Join(d.root, "files")
}

// SpoolDir returns the directory remote blob descriptors are copied into
// before being handed to the raster backend.
func (d Dir) SpoolDir() string {
	return filepath.Join(d.root, "spool")
}

// SnapshotPath returns the path of the image-collection snapshot file.
func (d Dir) SnapshotPath() string {
	return filepath.Join(d.root, "collection.snapshot")
}

// EnsureExists creates the working directory and its files/spool
// subdirectories (and parents) if they don't already exist.
func (d Dir) EnsureExists() error {
	for _, sub := range []string{d.root, d.FilesDir(), d.SpoolDir()} {
		if err := os.MkdirAll(sub, 0o750); err != nil {
			return fmt.Errorf("create working directory %s: %w", sub, err)
		}
	}
	return nil
}
