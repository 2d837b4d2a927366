// Package synth generates deterministic test scenes and known transforms
// for exercising the alignment pipeline without image files.
package synth

import (
	"math"
	"math/rand/v2"

	"layer-align/internal/raster"
	"layer-align/pkg/geometry"
)

// Texture renders a scene of overlapping rectangles and discs with random
// intensities, softened by a small blur. The same arguments always give
// the same pixels. channels must be 1 or 3.
func Texture(width, height, channels int, seed uint64) (*raster.Image, error) {
	img, err := raster.New(width, height, channels)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	plane := make([]float64, width*height*channels)
	for i := range plane {
		plane[i] = 128
	}

	shapes := max(width*height/300, 8)
	for s := 0; s < shapes; s++ {
		var tint [3]float64
		for c := range tint {
			tint[c] = float64(rng.IntN(256))
		}
		cx := rng.Float64() * float64(width)
		cy := rng.Float64() * float64(height)
		rw := 3 + rng.Float64()*22
		rh := 3 + rng.Float64()*22
		disc := rng.IntN(3) == 0

		x0, x1 := max(int(cx-rw), 0), min(int(cx+rw)+1, width)
		y0, y1 := max(int(cy-rh), 0), min(int(cy+rh)+1, height)
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				if disc {
					dx, dy := (float64(x)-cx)/rw, (float64(y)-cy)/rh
					if dx*dx+dy*dy > 1 {
						continue
					}
				}
				base := (y*width + x) * channels
				for c := 0; c < channels; c++ {
					plane[base+c] = tint[c]
				}
			}
		}
	}

	blurred := blur(plane, width, height, channels)
	for i, v := range blurred {
		img.Pix[i] = uint8(max(0, min(255, math.Round(v))))
	}
	return img, nil
}

// Blank returns an image filled with a single value.
func Blank(width, height, channels int, value uint8) (*raster.Image, error) {
	img, err := raster.New(width, height, channels)
	if err != nil {
		return nil, err
	}
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img, nil
}

// Transform describes a similarity about the image center followed by a
// perspective tilt.
type Transform struct {
	Rotation    float64 // degrees, counter-clockwise in image coordinates
	Scale       float64 // 0 means 1
	TX, TY      float64 // pixels
	Perspective float64 // h20 and h21 magnitude
}

// Homography returns the transform for an image of the given size as a
// homography mapping source pixels to destination pixels.
func (t Transform) Homography(width, height int) geometry.Homography {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	center := geometry.NewPoint2D(float64(width)/2, float64(height)/2)
	affine := geometry.Translation(t.TX, t.TY).
		Compose(geometry.RotationAbout(t.Rotation*math.Pi/180, center)).
		Compose(geometry.Translation(center.X, center.Y)).
		Compose(geometry.Scale(s, s)).
		Compose(geometry.Translation(-center.X, -center.Y))

	tilt := geometry.IdentityHomography()
	tilt[2][0] = t.Perspective
	tilt[2][1] = -t.Perspective / 2
	// Keep the center fixed under the tilt.
	tilt[2][2] = 1 - t.Perspective*center.X + t.Perspective/2*center.Y

	h, ok := affine.Homography().Mul(tilt).Normalize()
	if !ok {
		return affine.Homography()
	}
	return h
}

// blur applies a separable Gaussian with sigma 1.
func blur(plane []float64, width, height, channels int) []float64 {
	kernel := [5]float64{0.0545, 0.2442, 0.4026, 0.2442, 0.0545}
	tmp := make([]float64, len(plane))
	out := make([]float64, len(plane))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				acc := 0.0
				for k, kv := range kernel {
					sx := max(0, min(width-1, x+k-2))
					acc += kv * plane[(y*width+sx)*channels+c]
				}
				tmp[(y*width+x)*channels+c] = acc
			}
		}
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				acc := 0.0
				for k, kv := range kernel {
					sy := max(0, min(height-1, y+k-2))
					acc += kv * tmp[(sy*width+x)*channels+c]
				}
				out[(y*width+x)*channels+c] = acc
			}
		}
	}
	return out
}
