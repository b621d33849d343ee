package computeserver

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"cubed/internal/bandspec"
	"cubed/internal/chunkbuf"
	"cubed/internal/cube"
	"cubed/internal/logging"
	"cubed/internal/stref"
)

// slowFakeCube blocks in ReadChunk until release is closed, so tests can
// control exactly when a worker's computation finishes — this is what
// makes the download-rendezvous scenario observable.
type slowFakeCube struct {
	cube.Base
	buf     chunkbuf.Buffer
	release chan struct{}

	mu      sync.Mutex
	readHit int
}

func newSlowFakeCube(t *testing.T, buf chunkbuf.Buffer) *slowFakeCube {
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, buf.Size().T)
	ref, err := stref.New(
		stref.Window{Left: 0, Right: float64(buf.Size().X), Bottom: 0, Top: float64(buf.Size().Y), SRS: "EPSG:4326"},
		buf.Size().X, buf.Size().Y, buf.Size().T,
		t0, t1, stref.Duration{N: 1, Unit: stref.Days},
	)
	if err != nil {
		t.Fatalf("stref.New: %v", err)
	}
	bands := []bandspec.Band{{Name: "b1"}}
	return &slowFakeCube{
		Base:    cube.NewBase(ref, bands, stref.ChunkSize{T: buf.Size().T, Y: buf.Size().Y, X: buf.Size().X}),
		buf:     buf,
		release: make(chan struct{}),
	}
}

func (f *slowFakeCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	<-f.release
	f.mu.Lock()
	f.readHit++
	f.mu.Unlock()
	return f.buf, nil
}

func (f *slowFakeCube) ToJSON() (json.RawMessage, error) {
	return json.Marshal(map[string]string{"cube_type": "fake"})
}

func newTestServer(t *testing.T) *Server {
	dir := t.TempDir()
	s := New(Config{
		BasePath:   "/api",
		WorkDir:    dir,
		MaxWorkers: 2,
		Logger:     logging.Discard(),
	})
	s.workerCtx = context.Background()
	return s
}

func (s *Server) registerForTest(c cube.Cube) int {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	id := s.nextCubeID
	s.nextCubeID++
	s.cubes[id] = c
	return id
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestFileUploadThenHead(t *testing.T) {
	s := newTestServer(t)
	body := []byte("hello world")

	req := httptest.NewRequest(http.MethodPost, "/api/file?name=test.bin", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	headReq := httptest.NewRequest(http.MethodHead, "/api/file?name=test.bin&size=11", nil)
	headW := httptest.NewRecorder()
	s.mux.ServeHTTP(headW, headReq)
	if headW.Code != http.StatusOK {
		t.Errorf("head matching size = %d, want 200", headW.Code)
	}

	mismatchReq := httptest.NewRequest(http.MethodHead, "/api/file?name=test.bin&size=999", nil)
	mismatchW := httptest.NewRecorder()
	s.mux.ServeHTTP(mismatchW, mismatchReq)
	if mismatchW.Code != http.StatusConflict {
		t.Errorf("head mismatched size = %d, want 409", mismatchW.Code)
	}

	missingReq := httptest.NewRequest(http.MethodHead, "/api/file?name=nope.bin&size=1", nil)
	missingW := httptest.NewRecorder()
	s.mux.ServeHTTP(missingW, missingReq)
	if missingW.Code != http.StatusNoContent {
		t.Errorf("head missing file = %d, want 204", missingW.Code)
	}
}

func TestFileHeadRequiresName(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodHead, "/api/file?size=1", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStatusUnknownCubeReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/cube/99/0/status", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDownloadNeverRequestedReturns404(t *testing.T) {
	s := newTestServer(t)
	buf := chunkbuf.New(chunkbuf.Size{B: 1, T: 1, Y: 1, X: 1})
	c := newSlowFakeCube(t, buf)
	id := s.registerForTest(c)

	req := httptest.NewRequest(http.MethodGet, fakePath(id, 0, "download"), nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// TestStartThenDownloadRendezvous verifies that start followed immediately
// by download blocks until the worker finishes, and that the body's first
// 16 bytes equal the chunk's advertised size.
func TestStartThenDownloadRendezvous(t *testing.T) {
	s := newTestServer(t)
	buf := chunkbuf.New(chunkbuf.Size{B: 1, T: 1, Y: 1, X: 4})
	buf.Set(0, 0, 0, 0, 42.0)
	c := newSlowFakeCube(t, buf)
	id := s.registerForTest(c)

	startReq := httptest.NewRequest(http.MethodPost, fakePath(id, 0, "start"), nil)
	startW := httptest.NewRecorder()
	s.mux.ServeHTTP(startW, startReq)
	if startW.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", startW.Code)
	}

	downloadDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, fakePath(id, 0, "download"), nil)
		w := httptest.NewRecorder()
		s.mux.ServeHTTP(w, req)
		downloadDone <- w
	}()

	// Give the download goroutine a chance to block on rendezvous before
	// the worker is released.
	time.Sleep(20 * time.Millisecond)
	select {
	case w := <-downloadDone:
		t.Fatalf("download returned early with status %d before compute finished", w.Code)
	default:
	}

	close(c.release)

	select {
	case w := <-downloadDone:
		if w.Code != http.StatusOK {
			t.Fatalf("download status = %d, want 200, body=%s", w.Code, w.Body.String())
		}
		body := w.Body.Bytes()
		if len(body) < 16 {
			t.Fatalf("body too short: %d bytes", len(body))
		}
		gotB := binary.LittleEndian.Uint32(body[0:4])
		gotT := binary.LittleEndian.Uint32(body[4:8])
		gotY := binary.LittleEndian.Uint32(body[8:12])
		gotX := binary.LittleEndian.Uint32(body[12:16])
		if gotB != 1 || gotT != 1 || gotY != 1 || gotX != 4 {
			t.Errorf("header = (%d,%d,%d,%d), want (1,1,1,4)", gotB, gotT, gotY, gotX)
		}
		firstVal := math.Float64frombits(binary.LittleEndian.Uint64(body[16:24]))
		if firstVal != 42.0 {
			t.Errorf("first payload value = %v, want 42.0", firstVal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download did not unblock after worker finished")
	}

	statusReq := httptest.NewRequest(http.MethodGet, fakePath(id, 0, "status"), nil)
	statusW := httptest.NewRecorder()
	s.mux.ServeHTTP(statusW, statusReq)
	if got := statusW.Body.String(); got != string(statusFinished) {
		t.Errorf("status after download = %q, want %q", got, statusFinished)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	buf := chunkbuf.New(chunkbuf.Size{B: 1, T: 1, Y: 1, X: 1})
	c := newSlowFakeCube(t, buf)
	close(c.release)
	id := s.registerForTest(c)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, fakePath(id, 0, "start"), nil)
		w := httptest.NewRecorder()
		s.mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("start #%d status = %d, want 200", i, w.Code)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, fakePath(id, 0, "status"), nil)
		w := httptest.NewRecorder()
		s.mux.ServeHTTP(w, req)
		if w.Body.String() == string(statusFinished) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("chunk never reached finished status")
}

func fakePath(cubeID, chunkID int, verb string) string {
	return "/api/cube/" + strconv.Itoa(cubeID) + "/" + strconv.Itoa(chunkID) + "/" + verb
}
