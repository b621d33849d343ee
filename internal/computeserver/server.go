// Package computeserver exposes the cube DAG over HTTP: cube construction
// and description, per-chunk start/status/download, and the worker pool
// and rendezvous that make asynchronous chunk computation possible.
//
// Built around a plain net/http.ServeMux with an explicit Run(ctx)/
// Shutdown lifecycle rather than a generated-RPC transport, keeping the
// wire format to plain HTTP: JSON bodies, plus a raw binary body for chunk
// downloads.
package computeserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"cubed/internal/chunkcache"
	"cubed/internal/cube"
	"cubed/internal/cubeerr"
	"cubed/internal/cubefactory"
	"cubed/internal/logging"
)

// Config configures a Server.
type Config struct {
	BasePath   string // e.g. "/gdalcubes/api"
	WorkDir    string // spool directory for POST /file uploads
	MaxWorkers int
	CacheBytes int64 // chunk cache byte budget; <=0 means unbounded

	Factory *cubefactory.Factory
	Logger  *slog.Logger
}

// Server owns the cube registry, the chunk-cache, and the per-(cube,chunk)
// rendezvous records that make asynchronous chunk computation observable
// over HTTP.
type Server struct {
	basePath   string
	workDir    string
	maxWorkers int
	factory    *cubefactory.Factory
	cache      *chunkcache.Cache
	logger     *slog.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener

	registryMu sync.Mutex
	cubes      map[int]cube.Cube
	nextCubeID int

	recordsMu sync.Mutex
	records   map[chunkcache.Key]*chunkRecord

	queueMu sync.Mutex
	queue   []chunkcache.Key

	workersMu     sync.Mutex
	activeWorkers int
	workerCtx     context.Context

	poolSignal *signaler
}

// New constructs a Server and registers its HTTP routes. It does not start
// listening; call Run for that.
func New(cfg Config) *Server {
	s := &Server{
		basePath:   cfg.BasePath,
		workDir:    cfg.WorkDir,
		maxWorkers: cfg.MaxWorkers,
		factory:    cfg.Factory,
		cache:      chunkcache.New(cfg.CacheBytes),
		logger:     logging.Default(cfg.Logger).With("component", "compute_server"),
		cubes:      make(map[int]cube.Cube),
		records:    make(map[chunkcache.Key]*chunkRecord),
		poolSignal: newSignaler(),
		workerCtx:  context.Background(),
	}
	if s.maxWorkers <= 0 {
		s.maxWorkers = 1
	}

	s.mux = http.NewServeMux()
	s.routes()
	s.httpServer = &http.Server{Handler: s.mux}
	return s
}

func (s *Server) path(p string) string {
	return s.basePath + p
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET "+s.path("/version"), s.handleVersion)
	s.mux.HandleFunc("POST "+s.path("/file"), s.handleFileUpload)
	s.mux.HandleFunc("HEAD "+s.path("/file"), s.handleFileHead)
	s.mux.HandleFunc("POST "+s.path("/cube"), s.handleCreateCube)
	s.mux.HandleFunc("GET "+s.path("/cube/{id}"), s.handleGetCube)
	s.mux.HandleFunc("POST "+s.path("/cube/{id}/{chunk}/start"), s.handleStartChunk)
	s.mux.HandleFunc("GET "+s.path("/cube/{id}/{chunk}/status"), s.handleChunkStatus)
	s.mux.HandleFunc("GET "+s.path("/cube/{id}/{chunk}/download"), s.handleChunkDownload)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails to serve.
func (s *Server) Run(ctx context.Context, addr string) error {
	var err error
	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("computeserver: listen: %w", err)
	}

	s.workersMu.Lock()
	s.workerCtx = ctx
	s.workersMu.Unlock()

	s.logger.Info("compute server starting", "addr", s.listener.Addr().String(), "base_path", s.basePath, "max_workers", s.maxWorkers)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("compute server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Addr returns the listener's address. Only valid after Run has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "cubed %s\n", Version)
}

// Version is the product version string reported by GET /version.
const Version = "0.1.0"

func (s *Server) handleCreateCube(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, fmt.Errorf("malformed cube description: %w", cubeerr.ErrInvalidConfiguration))
		return
	}

	c, err := s.factory.Build(r.Context(), raw)
	if err != nil {
		writeError(w, fmt.Errorf("%s: %w", err.Error(), cubeerr.ErrInvalidConfiguration))
		return
	}

	s.registryMu.Lock()
	id := s.nextCubeID
	s.nextCubeID++
	s.cubes[id] = c
	s.registryMu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d", id)
}

func (s *Server) handleGetCube(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathCubeID(w, r)
	if !ok {
		return
	}
	c, ok := s.getCube(id)
	if !ok {
		writeError(w, fmt.Errorf("unknown cube id: %w", cubeerr.ErrNotFound))
		return
	}
	raw, err := c.ToJSON()
	if err != nil {
		writeError(w, fmt.Errorf("encode cube: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *Server) getCube(id int) (cube.Cube, bool) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	c, ok := s.cubes[id]
	return c, ok
}
