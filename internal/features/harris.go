package features

import (
	"image"
)

const (
	harrisBlock = 7
	harrisK     = 0.04
	// harrisRadius is the reach of the window plus the Sobel kernel.
	harrisRadius = harrisBlock/2 + 1
)

// harrisResponse computes the Harris corner measure det(M) - k*trace(M)^2
// of the 7x7 structure tensor at (x, y). The caller keeps (x, y) at least
// harrisRadius pixels from every edge.
func harrisResponse(img *image.Gray, x, y int) float64 {
	const r = harrisBlock / 2
	const scale = 1.0 / (4 * harrisBlock * 255)

	at := func(px, py int) float64 {
		return float64(img.Pix[py*img.Stride+px])
	}

	var a, b, c float64
	for py := y - r; py <= y+r; py++ {
		for px := x - r; px <= x+r; px++ {
			ix := (at(px+1, py-1) + 2*at(px+1, py) + at(px+1, py+1)) -
				(at(px-1, py-1) + 2*at(px-1, py) + at(px-1, py+1))
			iy := (at(px-1, py+1) + 2*at(px, py+1) + at(px+1, py+1)) -
				(at(px-1, py-1) + 2*at(px, py-1) + at(px+1, py-1))
			ix *= scale
			iy *= scale
			a += ix * ix
			b += iy * iy
			c += ix * iy
		}
	}
	return a*b - c*c - harrisK*(a+b)*(a+b)
}
