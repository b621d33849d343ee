package computeserver

import (
	"context"
	"fmt"
	"sync"

	"cubed/internal/chunkbuf"
	"cubed/internal/chunkcache"
	"cubed/internal/notify"
)

// chunkStatus is the externally observable state of one (cube, chunk) pair,
// reported verbatim by GET .../status.
type chunkStatus string

const (
	statusNotRequested chunkStatus = "notrequested"
	statusQueued       chunkStatus = "queued"
	statusRunning      chunkStatus = "running"
	statusFinished     chunkStatus = "finished"
	statusFailed       chunkStatus = "failed"
)

// chunkRecord is the per-key rendezvous record: one mutex-guarded state plus
// its own broadcast signal. The pool's shared signaler wakes idle workers;
// this signal wakes only waiters on this specific key.
type chunkRecord struct {
	mu     sync.Mutex
	status chunkStatus
	err    error
	signal *notify.Signal
}

func newChunkRecord() *chunkRecord {
	return &chunkRecord{status: statusQueued, signal: notify.NewSignal()}
}

// signaler is the pool-level condition variable idle workers wait on
// between dequeues.
type signaler struct {
	s *notify.Signal
}

func newSignaler() *signaler { return &signaler{s: notify.NewSignal()} }

func (p *signaler) wake() { p.s.Notify() }

func (p *signaler) wait(ctx context.Context) {
	ch := p.s.C()
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// recordFor returns the chunkRecord for key, creating one lazily on first
// reference. The returned record's status starts at statusQueued — callers
// that only want to read status without implicitly creating a record must
// use s.peekRecord instead.
func (s *Server) recordFor(key chunkcache.Key) *chunkRecord {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = newChunkRecord()
		s.records[key] = rec
	}
	return rec
}

func (s *Server) peekRecord(key chunkcache.Key) (*chunkRecord, bool) {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// status reports a key's externally observable state: finished takes
// precedence (the cache is authoritative once populated), then whatever
// the in-flight record says, then notrequested.
func (s *Server) status(key chunkcache.Key) chunkStatus {
	if s.cache.Has(key) {
		return statusFinished
	}
	rec, ok := s.peekRecord(key)
	if !ok {
		return statusNotRequested
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status
}

// startChunk is idempotent: issuing it for any non-notrequested key is a
// no-op that returns success.
func (s *Server) startChunk(key chunkcache.Key) {
	if s.status(key) != statusNotRequested {
		return
	}
	s.recordFor(key)

	s.queueMu.Lock()
	s.queue = append(s.queue, key)
	s.queueMu.Unlock()

	s.workersMu.Lock()
	if s.activeWorkers < s.maxWorkers {
		s.activeWorkers++
		go s.workerLoop(s.workerCtx)
	}
	s.workersMu.Unlock()

	s.poolSignal.wake()
}

func (s *Server) dequeue() (chunkcache.Key, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return chunkcache.Key{}, false
	}
	key := s.queue[0]
	s.queue = s.queue[1:]
	return key, true
}

// workerLoop drains the pending queue until ctx is cancelled. It never
// holds queueMu or recordsMu across the ReadChunk call, per the design
// note that worker loops must not hold any state-map lock across the
// raster backend call.
func (s *Server) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		key, ok := s.dequeue()
		if !ok {
			s.poolSignal.wait(ctx)
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		s.runChunk(ctx, key)
	}
}

func (s *Server) runChunk(ctx context.Context, key chunkcache.Key) {
	rec := s.recordFor(key)
	rec.mu.Lock()
	rec.status = statusRunning
	rec.mu.Unlock()

	c, ok := s.getCube(key.CubeID)
	if !ok {
		s.finishChunk(rec, key, nil, fmt.Errorf("computeserver: cube %d no longer registered", key.CubeID))
		return
	}

	buf, err := c.ReadChunk(ctx, key.ChunkID)
	s.finishChunk(rec, key, buf, err)
}

func (s *Server) finishChunk(rec *chunkRecord, key chunkcache.Key, buf chunkbuf.Buffer, err error) {
	rec.mu.Lock()
	if err != nil {
		rec.status = statusFailed
		rec.err = err
		s.logger.Warn("chunk compute failed", "cube_id", key.CubeID, "chunk_id", key.ChunkID, "error", err)
	} else {
		rec.status = statusFinished
		s.cache.Add(key, buf)
	}
	rec.mu.Unlock()
	rec.signal.Notify()

	// A failed chunk returns to notrequested on the next status check (the
	// record is dropped) so a client may retry start; its error is logged
	// above, matching the propagation policy that io failures during
	// read_chunk are fatal only for that chunk.
	if err != nil {
		s.recordsMu.Lock()
		delete(s.records, key)
		s.recordsMu.Unlock()
	}
}

// CacheOccupancy reports the chunk cache's current entry count, total
// bytes, and configured byte budget, for the cache sweep job's periodic
// log line.
func (s *Server) CacheOccupancy() (entries int, totalBytes, budgetBytes int64) {
	return s.cache.Len(), s.cache.TotalSizeBytes(), s.cache.BudgetBytes()
}

// PruneStaleRecords drops rendezvous records whose chunk has left the
// cache (finished and since evicted, or failed) and is not queued or
// running, keeping the record map bounded by periodic reclamation rather
// than by changing when records are created. It returns the number of
// records removed.
func (s *Server) PruneStaleRecords() int {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()

	pruned := 0
	for key, rec := range s.records {
		rec.mu.Lock()
		st := rec.status
		rec.mu.Unlock()

		if st == statusFinished && !s.cache.Has(key) {
			delete(s.records, key)
			pruned++
			continue
		}
		if st == statusFailed {
			delete(s.records, key)
			pruned++
		}
	}
	return pruned
}

// waitForChunk blocks until key's status is finished or failed, or ctx is
// cancelled. It returns the terminal status observed.
//
// The channel must be captured before the status check, not after:
// Notify() closes the current channel and installs a fresh one
// atomically, so checking status first and only then calling C() leaves
// a window where a Notify landing between the two would close a channel
// nobody is holding, and the waiter would subscribe to the next one and
// block forever.
func (s *Server) waitForChunk(ctx context.Context, key chunkcache.Key) chunkStatus {
	for {
		rec, ok := s.peekRecord(key)
		if !ok {
			return s.status(key)
		}
		ch := rec.signal.C()

		st := s.status(key)
		if st == statusFinished || st == statusFailed || st == statusNotRequested {
			return st
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return s.status(key)
		}
	}
}
