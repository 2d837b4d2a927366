package features

import (
	"image"
	"image/color"
	"math"

	"layer-align/internal/raster"
	"layer-align/pkg/colorutil"
	"layer-align/pkg/geometry"
)

// RenderOptions configures keypoint annotation.
type RenderOptions struct {
	Color           color.RGBA
	LineWidth       int
	ShowOrientation bool // draw a radius along each keypoint's angle
	ShowCenters     bool // fill a dot at each keypoint
}

// DefaultRenderOptions returns the options used by the detect command.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Color:           colorutil.Green,
		LineWidth:       1,
		ShowOrientation: true,
		ShowCenters:     true,
	}
}

// Annotate draws every keypoint of set over img as a circle of the
// keypoint's size.
func Annotate(img *raster.Image, set *Set, opts RenderOptions) *image.RGBA {
	canvas := toRGBA(img)
	if set == nil {
		return canvas
	}

	for _, kp := range set.Keypoints {
		cx, cy := int(math.Round(kp.X)), int(math.Round(kp.Y))
		r := max(int(kp.Size/2), 1)

		for w := 0; w < max(opts.LineWidth, 1); w++ {
			drawCircle(canvas, cx, cy, r-w, opts.Color)
		}
		if opts.ShowCenters {
			fillCircle(canvas, cx, cy, 1, darken(opts.Color, 0.3))
		}
		if opts.ShowOrientation {
			rad := kp.Angle * math.Pi / 180
			ex := kp.X + float64(r)*math.Cos(rad)
			ey := kp.Y + float64(r)*math.Sin(rad)
			drawThickLine(canvas, kp.X, kp.Y, ex, ey, opts.LineWidth, opts.Color)
		}
	}
	return canvas
}

// DrawPolygon outlines a closed polygon on canvas, for example the
// projected footprint of an aligned layer.
func DrawPolygon(canvas *image.RGBA, poly []geometry.Point2D, width int, c color.RGBA) {
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		drawThickLine(canvas, a.X, a.Y, b.X, b.Y, width, c)
	}
}

func toRGBA(img *raster.Image) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			o := canvas.PixOffset(x, y)
			if img.Channels == 1 {
				v := img.At(x, y, 0)
				canvas.Pix[o], canvas.Pix[o+1], canvas.Pix[o+2] = v, v, v
			} else {
				canvas.Pix[o] = img.At(x, y, 0)
				canvas.Pix[o+1] = img.At(x, y, 1)
				canvas.Pix[o+2] = img.At(x, y, 2)
			}
			canvas.Pix[o+3] = 255
		}
	}
	return canvas
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				setPixel(img, x, y, c)
			}
		}
	}
}

// drawCircle draws a circle outline with the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	if r <= 0 {
		setPixel(img, cx, cy, c)
		return
	}
	x, y, e := r, 0, 0
	for x >= y {
		for _, p := range [8][2]int{
			{x, y}, {y, x}, {-y, x}, {-x, y},
			{-x, -y}, {-y, -x}, {y, -x}, {x, -y},
		} {
			setPixel(img, cx+p[0], cy+p[1], c)
		}
		y++
		if e <= 0 {
			e += 2*y + 1
		}
		if e > 0 {
			x--
			e -= 2*x + 1
		}
	}
}

// drawThickLine draws parallel Bresenham lines across the thickness.
func drawThickLine(img *image.RGBA, x1, y1, x2, y2 float64, thickness int, c color.RGBA) {
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		setPixel(img, int(math.Round(x1)), int(math.Round(y1)), c)
		return
	}
	px, py := -dy/length, dx/length

	half := float64(max(thickness, 1)-1) / 2
	for t := -half; t <= half; t++ {
		drawLine(img,
			int(math.Round(x1+px*t)), int(math.Round(y1+py*t)),
			int(math.Round(x2+px*t)), int(math.Round(y2+py*t)), c)
	}
}

func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}

	e := dx - dy
	for {
		setPixel(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * e
		if e2 > -dy {
			e -= dy
			x1 += sx
		}
		if e2 < dx {
			e += dx
			y1 += sy
		}
	}
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * (1 - factor)),
		G: uint8(float64(c.G) * (1 - factor)),
		B: uint8(float64(c.B) * (1 - factor)),
		A: c.A,
	}
}
