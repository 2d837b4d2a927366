package features

import (
	"image"
)

// fastCircle is the Bresenham circle of radius 3 used by the FAST test,
// clockwise from the top.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastArc is the number of contiguous circle pixels that must all be
// brighter or all be darker than the center.
const fastArc = 9

type candidate struct {
	x, y     int
	score    int
	response float64
}

// detectFAST returns FAST-9 corners of img that survive 3x3 non-maximum
// suppression, in raster order. Pixels closer than border to an edge are
// not tested.
func detectFAST(img *image.Gray, threshold, border int) []candidate {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 2*border || h <= 2*border {
		return nil
	}

	var offsets [16]int
	for i, o := range fastCircle {
		offsets[i] = o[1]*img.Stride + o[0]
	}

	scores := make([]int, w*h)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			scores[y*w+x] = fastScore(img.Pix, y*img.Stride+x, &offsets, threshold)
		}
	}

	var out []candidate
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			s := scores[y*w+x]
			if s == 0 || !isLocalMax(scores, w, x, y, s) {
				continue
			}
			out = append(out, candidate{x: x, y: y, score: s})
		}
	}
	return out
}

// isLocalMax keeps one pixel per plateau: s must beat the neighbours that
// precede it in raster order and at least tie the ones that follow.
func isLocalMax(scores []int, w, x, y, s int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if n > s || (before && n == s) {
				return false
			}
		}
	}
	return true
}

// fastScore returns 0 when the pixel at idx is not a corner. Otherwise it
// returns the largest margin by which a contiguous arc clears the center,
// which is always greater than threshold.
func fastScore(pix []uint8, idx int, offsets *[16]int, threshold int) int {
	p := int(pix[idx])

	// Any arc of 9 covers at least two of the four compass pixels.
	bright, dark := 0, 0
	for i := 0; i < 16; i += 4 {
		v := int(pix[idx+offsets[i]])
		if v > p+threshold {
			bright++
		} else if v < p-threshold {
			dark++
		}
	}
	if bright < 2 && dark < 2 {
		return 0
	}

	var d [16]int
	for i := range d {
		d[i] = int(pix[idx+offsets[i]]) - p
	}

	best := 0
	if bright >= 2 {
		if s := arcMargin(&d, 1); s > threshold {
			best = s
		}
	}
	if dark >= 2 {
		if s := arcMargin(&d, -1); s > threshold && s > best {
			best = s
		}
	}
	return best
}

// arcMargin returns the best, over all arcs of fastArc pixels, of the
// smallest signed difference in the arc.
func arcMargin(d *[16]int, sign int) int {
	best := 0
	for start := 0; start < 16; start++ {
		m := 256
		for k := 0; k < fastArc; k++ {
			v := sign * d[(start+k)&15]
			if v < m {
				m = v
			}
			if m <= best {
				break
			}
		}
		if m > best {
			best = m
		}
	}
	return best
}
