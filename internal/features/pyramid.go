package features

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// level is one pyramid image. scale is the nominal factor^index; sx and sy
// are the exact size ratios to level 0 after rounding.
type level struct {
	index  int
	scale  float64
	sx, sy float64
	img    *image.Gray
}

// toBase maps a level pixel center to level-0 coordinates.
func (lv level) toBase(x, y int) (float64, float64) {
	return (float64(x)+0.5)*lv.sx - 0.5, (float64(y)+0.5)*lv.sy - 0.5
}

// buildPyramid downsamples base by cfg.ScaleFactor per level. Levels too
// small to hold a keypoint away from the border are not built, so the
// result may be shorter than cfg.PyramidLevels or empty.
func buildPyramid(base *image.Gray, cfg Config) []level {
	minSide := 2*cfg.EdgeThreshold + 1
	bw, bh := base.Bounds().Dx(), base.Bounds().Dy()
	if bw < minSide || bh < minSide {
		return nil
	}

	levels := []level{{index: 0, scale: 1, sx: 1, sy: 1, img: base}}
	for l := 1; l < cfg.PyramidLevels; l++ {
		scale := math.Pow(cfg.ScaleFactor, float64(l))
		w := int(math.Round(float64(bw) / scale))
		h := int(math.Round(float64(bh) / scale))
		if w < minSide || h < minSide {
			break
		}

		prev := levels[l-1].img
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		levels = append(levels, level{
			index: l,
			scale: scale,
			sx:    float64(bw) / float64(w),
			sy:    float64(bh) / float64(h),
			img:   dst,
		})
	}
	return levels
}

// levelBudgets splits total keypoints across n levels in proportion to
// each level's linear size. The budgets sum to total.
func levelBudgets(total, n int, factor float64) []int {
	budgets := make([]int, n)
	if n == 0 {
		return budgets
	}
	f := 1 / factor
	perLevel := float64(total) * (1 - f) / (1 - math.Pow(f, float64(n)))

	sum := 0
	for l := 0; l < n-1; l++ {
		b := min(int(math.Round(perLevel)), total-sum)
		budgets[l] = b
		sum += b
		perLevel *= f
	}
	budgets[n-1] = max(total-sum, 0)
	return budgets
}
