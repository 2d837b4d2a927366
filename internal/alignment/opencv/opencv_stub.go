//go:build !gocv

// Package opencv aligns images with OpenCV through gocv. Without the gocv
// build tag every call fails with ErrUnavailable.
package opencv

import (
	"layer-align/internal/alignment"
	"layer-align/internal/raster"
)

// Available reports whether the backend was compiled in.
func Available() bool { return false }

// Align always fails without the gocv build tag.
func Align(base, layer *raster.Image, opts alignment.Options) (*alignment.Result, error) {
	return nil, ErrUnavailable
}
