// Package dircollection is a filesystem-backed imgcoll.Collection
// implementation: a glob over a directory, with a JSON sidecar file per
// raster supplying the metadata a real indexer would otherwise derive
// from the raster header.
package dircollection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/vmihailenco/msgpack/v5"

	"cubed/internal/callgroup"
	"cubed/internal/imgcoll"
	"cubed/internal/logging"
)

// sidecar is the per-file metadata convention: "<file>.meta.json" next to
// each raster, standing in for the ingestion pipeline's SQLite schema.
type sidecar struct {
	Bands    []sidecarBand `json:"bands"`
	Datetime time.Time     `json:"datetime"`
	Left     float64       `json:"left"`
	Right    float64       `json:"right"`
	Bottom   float64       `json:"bottom"`
	Top      float64       `json:"top"`
	SRS      string        `json:"srs"`
}

type sidecarBand struct {
	Name   string  `json:"name"`
	Num    int     `json:"num"`
	Unit   string  `json:"unit,omitempty"`
	Nodata string  `json:"nodata,omitempty"`
	Type   string  `json:"type,omitempty"`
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Collection glob-matches a directory tree for raster files, loads each
// one's sidecar metadata, and keeps the record set fresh via an fsnotify
// watch on the glob's static directory prefix.
type Collection struct {
	pattern      string
	snapshotPath string
	logger       *slog.Logger
	watcher      *fsnotify.Watcher
	rescan       callgroup.Group[string]

	mu      sync.RWMutex
	bands   []imgcoll.CollectionBand
	records []imgcoll.Record
}

// Option configures optional Collection behavior.
type Option func(*Collection)

// WithSnapshotPath enables a msgpack snapshot of the scanned record set at
// snapshotPath. On construction, a readable snapshot lets the collection
// serve queries immediately while a fresh scan runs in the background,
// rather than blocking startup on re-globbing and re-reading every
// sidecar file.
func WithSnapshotPath(snapshotPath string) Option {
	return func(c *Collection) { c.snapshotPath = snapshotPath }
}

// New constructs a Collection, performs an initial scan, and starts
// watching for new files. Call Close to stop the watcher.
func New(ctx context.Context, pattern string, logger *slog.Logger, opts ...Option) (*Collection, error) {
	c := &Collection{
		pattern: pattern,
		logger:  logging.Default(logger).With("component", "dircollection"),
	}
	for _, opt := range opts {
		opt(c)
	}

	usedSnapshot := false
	if c.snapshotPath != "" {
		if err := c.loadSnapshot(); err == nil {
			usedSnapshot = true
			c.logger.Info("loaded collection snapshot", "path", c.snapshotPath, "records", len(c.records))
		}
	}

	if usedSnapshot {
		go func() {
			if err := c.scan(); err != nil {
				c.logger.Warn("background rescan after snapshot load failed", "error", err)
			}
		}()
	} else if err := c.scan(); err != nil {
		return nil, fmt.Errorf("dircollection: initial scan: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dircollection: create watcher: %w", err)
	}
	c.watcher = watcher
	if err := watcher.Add(staticPrefix(pattern)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("dircollection: watch %s: %w", staticPrefix(pattern), err)
	}

	go c.watchLoop(ctx)
	return c, nil
}

func (c *Collection) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// watchLoop debounces fsnotify bursts through callgroup so a flurry of
// Create events for the same directory triggers exactly one rescan.
func (c *Collection) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			c.rescan.DoChan(c.pattern, c.scan)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("watch error", "error", err)
		}
	}
}

func (c *Collection) scan() error {
	matches, err := doublestar.FilepathGlob(c.pattern)
	if err != nil {
		return err
	}
	sort.Strings(matches)

	bandSet := make(map[string]imgcoll.CollectionBand)
	var bandOrder []string
	var records []imgcoll.Record

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if strings.HasSuffix(path, ".meta.json") {
			continue
		}

		sc, err := readSidecar(path + ".meta.json")
		if err != nil {
			c.logger.Warn("skipping raster with missing/invalid sidecar", "path", path, "error", err)
			continue
		}

		for _, b := range sc.Bands {
			if _, ok := bandSet[b.Name]; !ok {
				bandOrder = append(bandOrder, b.Name)
			}
			bandSet[b.Name] = imgcoll.CollectionBand{
				Name: b.Name, Unit: b.Unit, Nodata: b.Nodata, Type: b.Type, Scale: b.Scale, Offset: b.Offset,
			}
			records = append(records, imgcoll.Record{
				Descriptor: path,
				BandName:   b.Name,
				BandNum:    b.Num,
				Datetime:   sc.Datetime,
				Left:       sc.Left,
				Right:      sc.Right,
				Bottom:     sc.Bottom,
				Top:        sc.Top,
				SRS:        sc.SRS,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Descriptor < records[j].Descriptor })

	bands := make([]imgcoll.CollectionBand, 0, len(bandOrder))
	for _, name := range bandOrder {
		bands = append(bands, bandSet[name])
	}

	c.mu.Lock()
	c.bands = bands
	c.records = records
	c.mu.Unlock()

	c.logger.Info("collection rescanned", "files", len(matches), "records", len(records), "bands", len(bands))

	if c.snapshotPath != "" {
		if err := c.saveSnapshot(); err != nil {
			c.logger.Warn("failed to persist collection snapshot", "path", c.snapshotPath, "error", err)
		}
	}
	return nil
}

// snapshot is the msgpack-encoded on-disk form of a scanned record set,
// letting a restart serve its last known records while the full re-scan
// runs in the background.
type snapshot struct {
	Bands   []imgcoll.CollectionBand
	Records []imgcoll.Record
}

func (c *Collection) saveSnapshot() error {
	c.mu.RLock()
	snap := snapshot{Bands: c.bands, Records: c.records}
	c.mu.RUnlock()

	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := c.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.snapshotPath)
}

func (c *Collection) loadSnapshot() error {
	raw, err := os.ReadFile(c.snapshotPath)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return err
	}
	c.mu.Lock()
	c.bands = snap.Bands
	c.records = snap.Records
	c.mu.Unlock()
	return nil
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return sidecar{}, err
	}
	return sc, nil
}

// GetBands implements imgcoll.Collection.
func (c *Collection) GetBands(ctx context.Context) ([]imgcoll.CollectionBand, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]imgcoll.CollectionBand, len(c.bands))
	copy(out, c.bands)
	return out, nil
}

// FindRangeST implements imgcoll.Collection, filtering by spatial/temporal
// overlap and returning results ordered by Descriptor ascending.
func (c *Collection) FindRangeST(ctx context.Context, bounds imgcoll.Bounds, orderBy string) ([]imgcoll.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []imgcoll.Record
	for _, r := range c.records {
		if !overlaps(r, bounds) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor < out[j].Descriptor })
	return out, nil
}

func overlaps(r imgcoll.Record, b imgcoll.Bounds) bool {
	if r.Right < b.Left || r.Left > b.Right || r.Top < b.Bottom || r.Bottom > b.Top {
		return false
	}
	if !b.From.IsZero() && r.Datetime.Before(b.From) {
		return false
	}
	if !b.To.IsZero() && !r.Datetime.Before(b.To) {
		return false
	}
	return true
}

func staticPrefix(pattern string) string {
	for i, ch := range pattern {
		if ch == '*' || ch == '?' || ch == '[' || ch == '{' {
			return filepath.Dir(pattern[:i])
		}
	}
	return filepath.Dir(pattern)
}
