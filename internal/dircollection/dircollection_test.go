package dircollection

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cubed/internal/imgcoll"
	"cubed/internal/logging"
)

func writeSidecar(t *testing.T, rasterPath string, sc sidecar) {
	t.Helper()
	raw, err := json.Marshal(sc)
	if err != nil {
		t.Fatalf("marshal sidecar: %v", err)
	}
	if err := os.WriteFile(rasterPath, []byte("fake raster bytes"), 0o644); err != nil {
		t.Fatalf("write raster: %v", err)
	}
	if err := os.WriteFile(rasterPath+".meta.json", raw, 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
}

func TestScanDiscoversBandsAndRecords(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

	writeSidecar(t, filepath.Join(dir, "a.tif"), sidecar{
		Bands:    []sidecarBand{{Name: "red", Num: 1}, {Name: "nir", Num: 2}},
		Datetime: t0,
		Left:     0, Right: 10, Bottom: 0, Top: 10, SRS: "EPSG:4326",
	})
	writeSidecar(t, filepath.Join(dir, "b.tif"), sidecar{
		Bands:    []sidecarBand{{Name: "red", Num: 1}, {Name: "nir", Num: 2}},
		Datetime: t0.AddDate(0, 0, 1),
		Left:     0, Right: 10, Bottom: 0, Top: 10, SRS: "EPSG:4326",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := New(ctx, filepath.Join(dir, "*.tif"), logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	bands, err := c.GetBands(ctx)
	if err != nil {
		t.Fatalf("GetBands: %v", err)
	}
	if len(bands) != 2 {
		t.Fatalf("got %d bands, want 2", len(bands))
	}

	records, err := c.FindRangeST(ctx, imgcoll.Bounds{Left: 0, Right: 10, Bottom: 0, Top: 10, SRS: "EPSG:4326"}, imgcoll.OrderByDescriptor)
	if err != nil {
		t.Fatalf("FindRangeST: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4 (2 files x 2 bands)", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Descriptor > records[i].Descriptor {
			t.Errorf("records not sorted by descriptor: %q before %q", records[i-1].Descriptor, records[i].Descriptor)
		}
	}
}

func TestFindRangeSTExcludesOutOfWindowRecords(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	writeSidecar(t, filepath.Join(dir, "far.tif"), sidecar{
		Bands:    []sidecarBand{{Name: "red", Num: 1}},
		Datetime: t0,
		Left:     100, Right: 110, Bottom: 100, Top: 110, SRS: "EPSG:4326",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := New(ctx, filepath.Join(dir, "*.tif"), logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	records, err := c.FindRangeST(ctx, imgcoll.Bounds{Left: 0, Right: 10, Bottom: 0, Top: 10, SRS: "EPSG:4326"}, imgcoll.OrderByDescriptor)
	if err != nil {
		t.Fatalf("FindRangeST: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 (spatially disjoint)", len(records))
	}
}

func TestSnapshotRoundTripsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	writeSidecar(t, filepath.Join(dir, "a.tif"), sidecar{
		Bands:    []sidecarBand{{Name: "red", Num: 1}},
		Datetime: t0,
		Left:     0, Right: 10, Bottom: 0, Top: 10, SRS: "EPSG:4326",
	})

	snapPath := filepath.Join(dir, "snapshot.msgpack")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c1, err := New(ctx, filepath.Join(dir, "*.tif"), logging.Discard(), WithSnapshotPath(snapPath))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c1.Close()

	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("expected snapshot file written: %v", err)
	}

	c2, err := New(ctx, filepath.Join(dir, "*.tif"), logging.Discard(), WithSnapshotPath(snapPath))
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer c2.Close()

	bands, err := c2.GetBands(ctx)
	if err != nil {
		t.Fatalf("GetBands: %v", err)
	}
	if len(bands) != 1 {
		t.Errorf("got %d bands after restart, want 1", len(bands))
	}
}

func TestMissingSidecarIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orphan.tif"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := New(ctx, filepath.Join(dir, "*.tif"), logging.Discard())
	if err != nil {
		t.Fatalf("New should not fail on a missing sidecar: %v", err)
	}
	defer c.Close()

	bands, _ := c.GetBands(ctx)
	if len(bands) != 0 {
		t.Errorf("got %d bands, want 0 for an orphaned raster", len(bands))
	}
}
