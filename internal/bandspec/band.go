// Package bandspec describes a cube's output bands, shared between the
// cube DAG, the image-collection query interface, and the factory.
package bandspec

import "strings"

// Band describes one output band of a cube or a record field of an
// image-collection source. Nodata is carried as a string because the
// source collection may declare it in the input raster's native type; the
// core only ever materializes float64 with NaN as nodata once a value
// passes through a cube operator.
type Band struct {
	Name   string
	Unit   string
	Nodata string
	Type   string
	Scale  float64
	Offset float64
}

// Index returns the position of name within bands, case-insensitively, or
// -1 if not present.
func Index(bands []Band, name string) int {
	for i, b := range bands {
		if strings.EqualFold(b.Name, name) {
			return i
		}
	}
	return -1
}
