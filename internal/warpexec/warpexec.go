// Package warpexec implements internal/rasterio.Backend by shelling out to
// an external warp binary (gdalwarp-compatible CLI): "-of raw64 -t_srs ...
// -te ... -r <resampling> -wo NUM_THREADS=...". The actual resampling
// algorithm stays out of scope; this package only resolves descriptors to
// local paths (via rastersource.Resolver) and invokes the external tool,
// using os/exec the way a process-orchestration CLI drives a subcommand
// and captures its stdout.
package warpexec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"

	"cubed/internal/logging"
	"cubed/internal/rasterio"
	"cubed/internal/rastersource"
)

// Backend opens descriptors by resolving them to a local path and wraps
// each one in a Source that shells out to BinaryPath per warp request.
type Backend struct {
	BinaryPath string // e.g. "gdalwarp"; resolved via exec.LookPath at Open time
	Resolver   *rastersource.Resolver
	Logger     *slog.Logger
}

// New constructs a Backend. binaryPath is typically "gdalwarp" and is
// resolved against $PATH on first use.
func New(binaryPath string, resolver *rastersource.Resolver, logger *slog.Logger) *Backend {
	return &Backend{BinaryPath: binaryPath, Resolver: resolver, Logger: logging.Default(logger)}
}

// Open resolves descriptor to a local path and returns a Source bound to
// it. Opening never invokes the external binary; that happens per Warp
// call so a source that is opened but never warped costs nothing beyond
// descriptor resolution.
func (b *Backend) Open(ctx context.Context, descriptor string) (rasterio.Source, error) {
	path, err := b.Resolver.Resolve(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("warpexec: resolve %q: %w", descriptor, err)
	}
	if _, err := exec.LookPath(b.BinaryPath); err != nil {
		return nil, fmt.Errorf("warpexec: %s not found in PATH: %w", b.BinaryPath, err)
	}
	return &execSource{binaryPath: b.BinaryPath, path: path, logger: b.Logger}, nil
}

type execSource struct {
	binaryPath string
	path       string
	logger     *slog.Logger
}

// Warp shells out to the external binary once per call, requesting a raw
// float64 band-major dump on stdout so the result can be parsed without an
// intermediate file. -wo NUM_THREADS mirrors the original's warp-options
// thread count flag.
func (s *execSource) Warp(ctx context.Context, req rasterio.WarpRequest) (rasterio.WarpResult, error) {
	args := []string{
		"-of", "raw64",
		"-t_srs", req.DstSRS,
		"-te", fmt.Sprint(req.Left), fmt.Sprint(req.Bottom), fmt.Sprint(req.Right), fmt.Sprint(req.Top),
		"-ts", strconv.Itoa(req.Width), strconv.Itoa(req.Height),
		"-r", req.Resampling,
		"-wo", "NUM_THREADS=" + strconv.Itoa(req.NumThreads),
	}
	for _, b := range req.Bands {
		args = append(args, "-b", strconv.Itoa(b))
	}
	for _, nodata := range req.SrcNodata {
		args = append(args, "-srcnodata", fmt.Sprint(nodata))
	}
	args = append(args, s.path, "/vsistdout/")

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("warp exec", "path", s.path, "bands", req.Bands, "width", req.Width, "height", req.Height)
	if err := cmd.Run(); err != nil {
		return rasterio.WarpResult{}, fmt.Errorf("warpexec: %s %q: %w: %s", s.binaryPath, s.path, err, stderr.String())
	}

	return decodeRaw64(stdout.Bytes(), len(req.Bands), req.Width, req.Height)
}

// decodeRaw64 splits a band-major little-endian float64 dump into one
// slice per band.
func decodeRaw64(data []byte, numBands, width, height int) (rasterio.WarpResult, error) {
	cellsPerBand := width * height
	wantBytes := numBands * cellsPerBand * 8
	if len(data) != wantBytes {
		return rasterio.WarpResult{}, fmt.Errorf("warpexec: expected %d bytes, got %d", wantBytes, len(data))
	}

	bands := make([][]float64, numBands)
	for b := 0; b < numBands; b++ {
		band := make([]float64, cellsPerBand)
		for i := 0; i < cellsPerBand; i++ {
			off := (b*cellsPerBand + i) * 8
			bits := binary.LittleEndian.Uint64(data[off : off+8])
			band[i] = math.Float64frombits(bits)
		}
		bands[b] = band
	}
	return rasterio.WarpResult{Bands: bands}, nil
}

// Close is a no-op: the process is spawned fresh per Warp call, nothing to
// release between calls.
func (s *execSource) Close() error { return nil }
