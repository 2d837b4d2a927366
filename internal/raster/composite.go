package raster

import (
	"fmt"
	"math"
	"strings"
)

// BlendMode specifies how an aligned layer is composited over its base.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "normal"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendOverlay:
		return "overlay"
	case BlendDifference:
		return "difference"
	default:
		return "unknown"
	}
}

// ParseBlendMode is the inverse of BlendMode.String.
func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return BlendNormal, nil
	case "multiply":
		return BlendMultiply, nil
	case "screen":
		return BlendScreen, nil
	case "overlay":
		return BlendOverlay, nil
	case "difference":
		return BlendDifference, nil
	default:
		return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
	}
}

// Composite blends layer over base. Both must have the same size; a gray
// input is promoted to RGB when the other one is color. opacity is clamped
// to [0, 1].
func Composite(base, layer *Image, mode BlendMode, opacity float64) (*Image, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}
	if err := layer.Validate(); err != nil {
		return nil, fmt.Errorf("layer: %w", err)
	}
	if !base.SameSize(layer) {
		return nil, fmt.Errorf("composite size mismatch: base %dx%d, layer %dx%d",
			base.Width, base.Height, layer.Width, layer.Height)
	}

	channels := max(base.Channels, layer.Channels)
	out, err := New(base.Width, base.Height, channels)
	if err != nil {
		return nil, err
	}
	alpha := clamp(opacity, 0, 1)

	forStripes(base.Height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < base.Width; x++ {
				for c := 0; c < channels; c++ {
					d := float64(sample(base, x, y, c)) / 255.0
					s := float64(sample(layer, x, y, c)) / 255.0
					r := blend(d, s, mode)
					v := r*alpha + d*(1-alpha)
					out.Pix[(y*out.Width+x)*channels+c] = uint8(math.Round(clamp(v, 0, 1) * 255))
				}
			}
		}
	})

	return out, nil
}

// sample reads channel c, repeating the gray channel for promoted images.
func sample(img *Image, x, y, c int) uint8 {
	if img.Channels == 1 {
		c = 0
	}
	return img.Pix[(y*img.Width+x)*img.Channels+c]
}

// blend performs the blend operation for one normalised channel value.
func blend(d, s float64, mode BlendMode) float64 {
	switch mode {
	case BlendMultiply:
		return s * d
	case BlendScreen:
		return 1 - (1-s)*(1-d)
	case BlendOverlay:
		if d < 0.5 {
			return 2 * s * d
		}
		return 1 - 2*(1-s)*(1-d)
	case BlendDifference:
		return math.Abs(s - d)
	default:
		return s
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
