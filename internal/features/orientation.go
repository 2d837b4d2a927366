package features

import (
	"image"
	"math"
)

// orientation measures keypoint angle from the intensity centroid of a
// circular patch.
type orientation struct {
	radius int
	umax   []int // half-width of the disc at each row offset
}

func newOrientation(patchSize int) orientation {
	r := patchSize / 2
	umax := make([]int, r+1)
	for v := 0; v <= r; v++ {
		umax[v] = int(math.Floor(math.Sqrt(float64(r*r-v*v)) + 0.5))
	}
	return orientation{radius: r, umax: umax}
}

// angle returns the direction from (x, y) to the patch centroid in
// degrees in [0, 360). A flat patch has angle 0.
func (o orientation) angle(img *image.Gray, x, y int) float64 {
	var m01, m10 int
	for v := -o.radius; v <= o.radius; v++ {
		u := o.umax[abs(v)]
		row := (y+v)*img.Stride + x
		for dx := -u; dx <= u; dx++ {
			val := int(img.Pix[row+dx])
			m10 += dx * val
			m01 += v * val
		}
	}
	if m01 == 0 && m10 == 0 {
		return 0
	}

	deg := math.Atan2(float64(m01), float64(m10)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
