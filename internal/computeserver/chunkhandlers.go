package computeserver

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"

	"cubed/internal/chunkcache"
	"cubed/internal/cubeerr"
)

// pathCubeID parses the {id} path segment, writing a 400 response and
// returning ok=false on failure.
func (s *Server) pathCubeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, fmt.Errorf("malformed cube id: %w", cubeerr.ErrInvalidConfiguration))
		return 0, false
	}
	return id, true
}

// pathChunkKey parses {id} and {chunk}, confirming the cube is registered
// and the chunk id is in range. It writes the error response itself on
// failure.
func (s *Server) pathChunkKey(w http.ResponseWriter, r *http.Request) (chunkcache.Key, bool) {
	id, ok := s.pathCubeID(w, r)
	if !ok {
		return chunkcache.Key{}, false
	}
	c, ok := s.getCube(id)
	if !ok {
		writeError(w, fmt.Errorf("unknown cube id: %w", cubeerr.ErrNotFound))
		return chunkcache.Key{}, false
	}

	chunkRaw := r.PathValue("chunk")
	chunkID, err := strconv.Atoi(chunkRaw)
	if err != nil {
		writeError(w, fmt.Errorf("malformed chunk id: %w", cubeerr.ErrInvalidConfiguration))
		return chunkcache.Key{}, false
	}
	if chunkID < 0 || chunkID >= c.CountChunks() {
		writeError(w, fmt.Errorf("chunk id out of range: %w", cubeerr.ErrNotFound))
		return chunkcache.Key{}, false
	}

	return chunkcache.Key{CubeID: id, ChunkID: chunkID}, true
}

func (s *Server) handleStartChunk(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathChunkKey(w, r)
	if !ok {
		return
	}
	s.startChunk(key)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleChunkStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathChunkKey(w, r)
	if !ok {
		return
	}
	st := s.status(key)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(st))
}

// handleChunkDownload blocks until the requested chunk is finished, then
// serves a 16-byte (B,T,Y,X) little-endian header followed by the raw
// float64 payload in the cube's internal axis order.
func (s *Server) handleChunkDownload(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathChunkKey(w, r)
	if !ok {
		return
	}

	st := s.status(key)
	if st == statusNotRequested {
		writeError(w, fmt.Errorf("chunk was never requested: %w", cubeerr.ErrInvalidState))
		return
	}

	st = s.waitForChunk(r.Context(), key)
	if st != statusFinished {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, fmt.Errorf("chunk computation failed: %w", cubeerr.ErrInvalidState))
		return
	}

	buf, ok := s.cache.Get(key)
	if !ok {
		// Evicted between waitForChunk and Get; the client may retry.
		writeError(w, fmt.Errorf("chunk evicted from cache, restart required: %w", cubeerr.ErrNotFound))
		return
	}

	header := make([]byte, 16)
	size := buf.Size()
	binary.LittleEndian.PutUint32(header[0:4], uint32(size.B))
	binary.LittleEndian.PutUint32(header[4:8], uint32(size.T))
	binary.LittleEndian.PutUint32(header[8:12], uint32(size.Y))
	binary.LittleEndian.PutUint32(header[12:16], uint32(size.X))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(header)
	binary.Write(w, binary.LittleEndian, buf.Raw())
}
