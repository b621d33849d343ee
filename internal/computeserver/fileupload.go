package computeserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"cubed/internal/cubeerr"
)

// POST /file?name=NAME streams the request body to {workdir}/NAME. If name
// is omitted, a fresh UUIDv7 name is generated so upload order is roughly
// sortable on disk.
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = uuid.Must(uuid.NewV7()).String()
	}
	if containsPathSeparator(name) {
		writeError(w, fmt.Errorf("name must not contain path separators: %w", cubeerr.ErrInvalidConfiguration))
		return
	}
	dest := filepath.Join(s.workDir, name)

	if fi, err := os.Stat(dest); err == nil {
		existingSize := fi.Size()
		if r.ContentLength < 0 || r.ContentLength != existingSize {
			writeError(w, fmt.Errorf("file exists with a different size: %w", cubeerr.ErrConflict))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, dest)
		return
	} else if !errors.Is(err, os.ErrNotExist) {
		writeError(w, err)
		return
	}

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Create(dest)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	if _, err := io.Copy(f, r.Body); err != nil {
		os.Remove(dest)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, dest)
}

// HEAD /file?name=NAME&size=N reports presence and size match without
// transferring a body.
func (s *Server) handleFileHead(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, fmt.Errorf("name is required: %w", cubeerr.ErrInvalidConfiguration))
		return
	}
	sizeRaw := r.URL.Query().Get("size")
	wantSize, err := strconv.ParseInt(sizeRaw, 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("size must be an integer: %w", cubeerr.ErrInvalidConfiguration))
		return
	}

	fi, err := os.Stat(filepath.Join(s.workDir, name))
	if errors.Is(err, os.ErrNotExist) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if fi.Size() != wantSize {
		w.WriteHeader(http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func containsPathSeparator(name string) bool {
	return filepath.Base(name) != name
}
