// Package raster provides the 8-bit pixel buffer the alignment pipeline
// works on, plus decoding, encoding, grayscale conversion and compositing.
package raster

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"golang.org/x/image/draw"
)

var (
	// ErrInvalidDimensions is returned for a zero or negative width or height.
	ErrInvalidDimensions = errors.New("raster: width and height must be positive")

	// ErrInvalidChannels is returned for channel counts other than 1 or 3.
	ErrInvalidChannels = errors.New("raster: channel count must be 1 or 3")

	// ErrPixelLength is returned when a pixel buffer does not match the
	// declared geometry.
	ErrPixelLength = errors.New("raster: pixel buffer length mismatch")
)

// Image is a row-major, channel-interleaved 8-bit raster with 1 (gray) or 3
// (RGB) channels. Images are treated as immutable once built: every
// operation in this module allocates a new Image instead of writing to its
// input.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed image.
func New(width, height, channels int) (*Image, error) {
	if err := validate(width, height, channels); err != nil {
		return nil, err
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// FromPix wraps an existing buffer. The image takes ownership of pix.
func FromPix(width, height, channels int, pix []uint8) (*Image, error) {
	if err := validate(width, height, channels); err != nil {
		return nil, err
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrPixelLength, width*height*channels, len(pix))
	}
	return &Image{Width: width, Height: height, Channels: channels, Pix: pix}, nil
}

func validate(width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if channels != 1 && channels != 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidChannels, channels)
	}
	return nil
}

// Validate checks the invariants of an image built by hand.
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	if err := validate(m.Width, m.Height, m.Channels); err != nil {
		return err
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return fmt.Errorf("%w: want %d, got %d", ErrPixelLength, m.Width*m.Height*m.Channels, len(m.Pix))
	}
	return nil
}

// Stride returns the number of bytes per row.
func (m *Image) Stride() int {
	return m.Width * m.Channels
}

// At returns channel c of the pixel at (x, y). Out-of-range coordinates
// return 0.
func (m *Image) At(x, y, c int) uint8 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[(y*m.Width+x)*m.Channels+c]
}

// Set writes channel c of the pixel at (x, y). It is meant for images
// under construction; out-of-range writes are ignored.
func (m *Image) Set(x, y, c int, v uint8) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[(y*m.Width+x)*m.Channels+c] = v
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Width: m.Width, Height: m.Height, Channels: m.Channels, Pix: pix}
}

// SameSize reports whether two images share width and height.
func (m *Image) SameSize(other *Image) bool {
	return m.Width == other.Width && m.Height == other.Height
}

// Gray returns a view of a single-channel image as *image.Gray sharing the
// pixel buffer. Callers must not modify it.
func (m *Image) Gray() (*image.Gray, error) {
	if m.Channels != 1 {
		return nil, fmt.Errorf("%w: gray view needs 1 channel, got %d", ErrInvalidChannels, m.Channels)
	}
	return &image.Gray{
		Pix:    m.Pix,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}, nil
}

// FromGray copies an *image.Gray into a single-channel image.
func FromGray(g *image.Gray) (*Image, error) {
	b := g.Bounds()
	out, err := New(b.Dx(), b.Dy(), 1)
	if err != nil {
		return nil, err
	}
	for y := 0; y < out.Height; y++ {
		src := g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride+(b.Min.X-g.Rect.Min.X):]
		copy(out.Pix[y*out.Width:(y+1)*out.Width], src[:out.Width])
	}
	return out, nil
}

// FromImage converts a decoded Go image. Gray images become 1-channel,
// everything else 3-channel RGB (alpha is dropped).
func FromImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}

	switch src := img.(type) {
	case *image.Gray:
		return FromGray(src)
	case *image.Gray16:
		b := src.Bounds()
		g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
		return FromGray(g)
	}

	b := img.Bounds()
	out, err := New(b.Dx(), b.Dy(), 3)
	if err != nil {
		return nil, err
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	forStripes(out.Height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			srcRow := rgba.Pix[y*rgba.Stride:]
			dstRow := out.Pix[y*out.Stride():]
			for x := 0; x < out.Width; x++ {
				dstRow[x*3+0] = srcRow[x*4+0]
				dstRow[x*3+1] = srcRow[x*4+1]
				dstRow[x*3+2] = srcRow[x*4+2]
			}
		}
	})

	return out, nil
}

// ToImage converts back to a Go image: *image.Gray for 1 channel,
// opaque *image.RGBA for 3.
func (m *Image) ToImage() image.Image {
	if m.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
		copy(g.Pix, m.Pix)
		return g
	}

	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	forStripes(m.Height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			srcRow := m.Pix[y*m.Stride():]
			dstRow := img.Pix[y*img.Stride:]
			for x := 0; x < m.Width; x++ {
				dstRow[x*4+0] = srcRow[x*3+0]
				dstRow[x*4+1] = srcRow[x*3+1]
				dstRow[x*4+2] = srcRow[x*3+2]
				dstRow[x*4+3] = 255
			}
		}
	})
	return img
}

// forStripes splits rows into one horizontal stripe per CPU and runs fn on
// each in parallel. Stripes never overlap, so fn may write its rows freely.
func forStripes(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}
