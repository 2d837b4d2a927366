package geometry

import (
	"fmt"
	"math"
)

// Homography is a 3x3 projective transform acting on homogeneous
// coordinates. By convention H[2][2] is 1 once normalised.
type Homography [3][3]float64

// IdentityHomography returns the identity matrix.
func IdentityHomography() Homography {
	return Homography{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Apply maps p through the homography. The second return value is false
// when p maps to the line at infinity.
func (h Homography) Apply(p Point2D) (Point2D, bool) {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}, true
}

// Mul returns h * other, i.e. other is applied first.
func (h Homography) Mul(other Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][0]*other[0][c] + h[r][1]*other[1][c] + h[r][2]*other[2][c]
		}
	}
	return out
}

// Det returns the determinant.
func (h Homography) Det() float64 {
	return h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
}

// Inverse returns the normalised inverse, if it exists.
func (h Homography) Inverse() (Homography, bool) {
	det := h.Det()
	if math.Abs(det) < 1e-12 {
		return Homography{}, false
	}

	inv := Homography{
		{
			h[1][1]*h[2][2] - h[1][2]*h[2][1],
			h[0][2]*h[2][1] - h[0][1]*h[2][2],
			h[0][1]*h[1][2] - h[0][2]*h[1][1],
		},
		{
			h[1][2]*h[2][0] - h[1][0]*h[2][2],
			h[0][0]*h[2][2] - h[0][2]*h[2][0],
			h[0][2]*h[1][0] - h[0][0]*h[1][2],
		},
		{
			h[1][0]*h[2][1] - h[1][1]*h[2][0],
			h[0][1]*h[2][0] - h[0][0]*h[2][1],
			h[0][0]*h[1][1] - h[0][1]*h[1][0],
		},
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			inv[r][c] /= det
		}
	}
	return inv.Normalize()
}

// Normalize scales the matrix so that H[2][2] == 1. It fails when the
// bottom-right entry is (numerically) zero.
func (h Homography) Normalize() (Homography, bool) {
	s := h[2][2]
	if math.Abs(s) < 1e-12 {
		return Homography{}, false
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][c] / s
		}
	}
	return out, true
}

// AlmostEqual reports whether every entry differs by at most tol.
func (h Homography) AlmostEqual(other Homography, tol float64) bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if math.Abs(h[r][c]-other[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// MapPolygon maps every vertex of poly. It fails if any vertex maps to
// infinity.
func (h Homography) MapPolygon(poly []Point2D) ([]Point2D, bool) {
	out := make([]Point2D, len(poly))
	for i, p := range poly {
		q, ok := h.Apply(p)
		if !ok {
			return nil, false
		}
		out[i] = q
	}
	return out, true
}

// Flat returns the matrix in row-major order.
func (h Homography) Flat() [9]float64 {
	return [9]float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	}
}

func (h Homography) String() string {
	return fmt.Sprintf("[[%.6g %.6g %.6g] [%.6g %.6g %.6g] [%.6g %.6g %.6g]]",
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2])
}
