package features

import (
	"image"
	"math"
	"math/rand/v2"
)

// Fixed seeds make the sampling pattern identical across runs and
// processes, so descriptors from separate Detect calls are comparable.
const (
	patternSeedHi = 0x6c61796572
	patternSeedLo = 0x616c69676e
)

// testPair is one intensity comparison of the BRIEF pattern, as offsets
// from the keypoint in the unrotated patch frame.
type testPair struct {
	x1, y1, x2, y2 int
}

// generatePattern draws bits point pairs from an isotropic Gaussian with
// sigma patchSize/5, clipped to the patch.
func generatePattern(bits, patchSize int) []testPair {
	rng := rand.New(rand.NewPCG(patternSeedHi, patternSeedLo))
	half := patchSize / 2
	sigma := float64(patchSize) / 5

	sample := func() int {
		v := int(math.Round(rng.NormFloat64() * sigma))
		return max(-half, min(half, v))
	}

	pattern := make([]testPair, 0, bits)
	for len(pattern) < bits {
		p := testPair{x1: sample(), y1: sample(), x2: sample(), y2: sample()}
		if p.x1 == p.x2 && p.y1 == p.y2 {
			continue
		}
		pattern = append(pattern, p)
	}
	return pattern
}

// describe fills out with the rotated BRIEF descriptor of the keypoint at
// (x, y) on the smoothed level image. out must be zeroed and hold
// len(pattern)/8 bytes.
func describe(smooth *image.Gray, x, y int, angleDeg float64, pattern []testPair, out Descriptor) {
	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	at := func(dx, dy int) uint8 {
		rx := int(math.Round(float64(dx)*cos - float64(dy)*sin))
		ry := int(math.Round(float64(dx)*sin + float64(dy)*cos))
		return smooth.Pix[(y+ry)*smooth.Stride+x+rx]
	}

	for i, p := range pattern {
		if at(p.x1, p.y1) < at(p.x2, p.y2) {
			out[i>>3] |= 1 << (i & 7)
		}
	}
}

// gaussianKernel returns a normalised 1-D kernel of the given radius.
func gaussianKernel(radius int, sigma float64) []float64 {
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

var briefKernel = gaussianKernel(3, 2)

// smoothLevel applies the 7x7 Gaussian BRIEF is computed on. Borders are
// replicated.
func smoothLevel(img *image.Gray) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	r := len(briefKernel) / 2
	tmp := make([]float64, w*h)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for k, kv := range briefKernel {
				sx := max(0, min(w-1, x+k-r))
				acc += kv * float64(row[sx])
			}
			tmp[y*w+x] = acc
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k, kv := range briefKernel {
				sy := max(0, min(h-1, y+k-r))
				acc += kv * tmp[sy*w+x]
			}
			out.Pix[y*out.Stride+x] = uint8(max(0, min(255, acc+0.5)))
		}
	}
	return out
}
