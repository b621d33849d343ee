// Package rasterio defines the boundary between the cube DAG and the
// concrete raster-I/O library that opens source files and performs
// warping. That library itself is out of scope here — this package only
// fixes the interface the image-collection source cube depends on: a
// single external warp call per file group ("-of raw64 -t_srs ... -te ...
// -r <resampling> -wo NUM_THREADS=...").
package rasterio

import "context"

// WarpRequest asks the backend to read one or more bands of an already
// opened source, reprojected/resampled into a (Width, Height) grid over
// the given target bounds, with nodata normalized to NaN.
type WarpRequest struct {
	Bands      []int // 1-based band numbers within the source file
	DstSRS     string
	Left       float64
	Bottom     float64
	Right      float64
	Top        float64
	Width      int
	Height     int
	Resampling string

	// SrcNodata holds one value per requested band, or is empty when the
	// collection's nodata declaration was partial and should be omitted:
	// pass through if complete or a single shared value, warn and omit
	// otherwise.
	SrcNodata []float64

	NumThreads int
}

// WarpResult carries one row-major Width*Height float64 slice per
// requested band, in the same order as WarpRequest.Bands.
type WarpResult struct {
	Bands [][]float64
}

// Source is a single opened source raster.
type Source interface {
	Warp(ctx context.Context, req WarpRequest) (WarpResult, error)
	Close() error
}

// Backend opens descriptors into Sources. Opening failure and warp
// failure are both fatal for the chunk being computed.
type Backend interface {
	Open(ctx context.Context, descriptor string) (Source, error)
}
