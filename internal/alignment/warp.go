package alignment

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"layer-align/internal/raster"
	"layer-align/pkg/colorutil"
	"layer-align/pkg/geometry"
)

// boundsTolerance admits source coordinates that miss the last pixel
// center by floating point noise.
const boundsTolerance = 1e-6

// Warp resamples layer onto a width x height grid. Output pixel (x, y) takes
// the bilinear sample of layer at H⁻¹(x, y); samples outside the layer get
// bg. h maps layer pixels to output pixels.
func Warp(layer *raster.Image, h geometry.Homography, width, height int, bg color.RGBA) (*raster.Image, error) {
	out, _, err := WarpWithMask(layer, h, width, height, bg)
	return out, err
}

// WarpWithMask is Warp that also reports which output pixels were sampled
// from the layer, in row-major order.
func WarpWithMask(layer *raster.Image, h geometry.Homography, width, height int, bg color.RGBA) (*raster.Image, []bool, error) {
	if layer == nil {
		return nil, nil, errors.New("warp: nil layer")
	}
	if err := layer.Validate(); err != nil {
		return nil, nil, fmt.Errorf("warp: %w", err)
	}
	inv, ok := h.Inverse()
	if !ok {
		return nil, nil, fmt.Errorf("warp: %w", ErrDegenerateFit)
	}

	out, err := raster.New(width, height, layer.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("warp: %w", err)
	}
	mask := make([]bool, width*height)
	fill := backgroundPixel(bg, layer.Channels)

	workers := runtime.GOMAXPROCS(0)
	rows := max((height+workers-1)/workers, 1)

	var g errgroup.Group
	g.SetLimit(workers)
	for y0 := 0; y0 < height; y0 += rows {
		y1 := min(y0+rows, height)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				warpRow(layer, inv, out, mask, y, fill)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, mask, nil
}

func warpRow(src *raster.Image, inv geometry.Homography, dst *raster.Image, mask []bool, y int, fill []uint8) {
	ch := src.Channels
	maxX := float64(src.Width - 1)
	maxY := float64(src.Height - 1)

	for x := 0; x < dst.Width; x++ {
		o := (y*dst.Width + x) * ch
		p, ok := inv.Apply(geometry.Point2D{X: float64(x), Y: float64(y)})
		if !ok || p.X < -boundsTolerance || p.Y < -boundsTolerance ||
			p.X > maxX+boundsTolerance || p.Y > maxY+boundsTolerance {
			copy(dst.Pix[o:o+ch], fill)
			continue
		}
		mask[y*dst.Width+x] = true

		sx := math.Min(math.Max(p.X, 0), maxX)
		sy := math.Min(math.Max(p.Y, 0), maxY)
		x0, y0 := int(sx), int(sy)
		x1, y1 := min(x0+1, src.Width-1), min(y0+1, src.Height-1)
		fx, fy := sx-float64(x0), sy-float64(y0)

		i00 := (y0*src.Width + x0) * ch
		i10 := (y0*src.Width + x1) * ch
		i01 := (y1*src.Width + x0) * ch
		i11 := (y1*src.Width + x1) * ch
		for c := 0; c < ch; c++ {
			v := (1-fx)*(1-fy)*float64(src.Pix[i00+c]) +
				fx*(1-fy)*float64(src.Pix[i10+c]) +
				(1-fx)*fy*float64(src.Pix[i01+c]) +
				fx*fy*float64(src.Pix[i11+c])
			dst.Pix[o+c] = uint8(math.Min(255, v+0.5))
		}
	}
}

// backgroundPixel converts bg to the layer's channel layout.
func backgroundPixel(bg color.RGBA, channels int) []uint8 {
	if channels == 1 {
		return []uint8{colorutil.Luma(bg.R, bg.G, bg.B)}
	}
	return []uint8{bg.R, bg.G, bg.B}
}
