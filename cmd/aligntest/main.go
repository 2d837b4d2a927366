// Command aligntest warps an image with a known homography, aligns it back
// and prints how close the recovered transform is.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"

	"layer-align/internal/alignment"
	"layer-align/internal/logging"
	"layer-align/internal/raster"
	"layer-align/internal/synth"
	"layer-align/pkg/geometry"
)

func main() {
	input := flag.String("i", "", "Path to input image (a synthetic texture if empty)")
	width := flag.Int("width", 640, "Synthetic image width")
	height := flag.Int("height", 480, "Synthetic image height")
	rot := flag.Float64("rot", 2, "Rotation in degrees")
	scale := flag.Float64("scale", 1, "Scale factor")
	tx := flag.Float64("tx", 15, "Translation X in pixels")
	ty := flag.Float64("ty", -10, "Translation Y in pixels")
	persp := flag.Float64("persp", 1e-5, "Perspective tilt")
	seed := flag.Uint64("seed", 1, "Seed for the synthetic texture")
	out := flag.String("o", "", "Write the aligned layer to this path")
	verbose := flag.Bool("v", false, "Log pipeline stages")
	flag.Parse()

	base, err := loadBase(*input, *width, *height, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load input: %v\n", err)
		os.Exit(1)
	}

	tr := synth.Transform{Rotation: *rot, Scale: *scale, TX: *tx, TY: *ty, Perspective: *persp}
	want := tr.Homography(base.Width, base.Height)
	inv, ok := want.Inverse()
	if !ok {
		fmt.Fprintln(os.Stderr, "Transform is not invertible")
		os.Exit(1)
	}
	layer, err := alignment.Warp(base, inv, base.Width, base.Height, color.RGBA{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warp failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Input %dx%d, %d channel(s) ===\n", base.Width, base.Height, base.Channels)
	fmt.Printf("Applied homography:\n%s\n", want)

	opts := alignment.Options{}
	if *verbose {
		opts.Logger = logging.New("debug", "text")
	}
	res, err := alignment.Align(context.Background(), base, layer, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Alignment failed (%s): %v\n", alignment.ReasonOf(err), err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Result ===\n")
	fmt.Printf("Keypoints: base %d, layer %d\n", res.BaseKeypoints, res.LayerKeypoints)
	fmt.Printf("Matches: %d, kept %d\n", res.Matches, res.Filtered)
	fmt.Printf("Inliers: %d (%.1f%%) after %d iterations\n", res.InlierCount,
		100*float64(res.InlierCount)/float64(len(res.Correspondences)), res.Iterations)
	fmt.Printf("Mean inlier error: %.3f px\n", res.MeanError)
	fmt.Printf("Coverage: %.3f, inlier spread: %.3f\n", res.Coverage, res.InlierSpread)
	fmt.Printf("Recovered homography:\n%s\n", res.Homography)

	maxErr := 0.0
	fmt.Printf("\nCorner error:\n")
	w, h := float64(base.Width-1), float64(base.Height-1)
	for _, p := range []geometry.Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}} {
		a, _ := want.Apply(p)
		b, _ := res.Homography.Apply(p)
		d := a.Distance(b)
		maxErr = math.Max(maxErr, d)
		fmt.Printf("  (%5.0f, %5.0f)  err=%.3f px\n", p.X, p.Y, d)
	}
	fmt.Printf("Max corner error: %.3f px\n", maxErr)

	printResiduals(res)

	if *out != "" {
		if err := raster.Save(*out, res.Warped); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
	}
}

func loadBase(path string, w, h int, seed uint64) (*raster.Image, error) {
	if path == "" {
		return synth.Texture(w, h, 3, seed)
	}
	return raster.Load(path)
}

// printResiduals lists the worst inlier residuals, sorted by error.
func printResiduals(res *alignment.Result) {
	if len(res.Correspondences) == 0 {
		return
	}
	type entry struct {
		x, y, err float64
	}
	residuals := alignment.Residuals(res.Homography, res.Correspondences)
	var entries []entry
	for i, c := range res.Correspondences {
		if res.Inliers[i] {
			entries = append(entries, entry{c.Base.X, c.Base.Y, residuals[i]})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].err > entries[j].err })
	if len(entries) > 10 {
		entries = entries[:10]
	}

	fmt.Printf("\nWorst inlier residuals:\n")
	for _, e := range entries {
		fmt.Printf("  X=%5.0f Y=%5.0f  err=%.2f px\n", e.x, e.y, e.err)
	}
}
