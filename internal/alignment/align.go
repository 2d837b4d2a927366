// Package alignment registers a layer image onto a base image with a
// planar homography estimated from matched ORB keypoints.
//
// The pipeline runs Loaded -> GrayscaleReady -> KeypointsDetected ->
// Matched -> Filtered -> HomographyFit -> Warped. A precondition failure at
// any stage stops the run with an *Error whose Reason is one of
// UnreadableImage, NoFeaturesDetected, InsufficientCorrespondences or
// DegenerateFit. Nothing is retried.
package alignment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"layer-align/internal/features"
	"layer-align/internal/matching"
	"layer-align/internal/raster"
	"layer-align/pkg/geometry"
)

// Result is a successful alignment.
type Result struct {
	Warped     *raster.Image       // layer resampled onto the base grid
	Homography geometry.Homography // maps layer pixels to base pixels

	Correspondences []Correspondence // filtered matches handed to RANSAC
	Inliers         []bool           // per correspondence

	BaseKeypoints  int
	LayerKeypoints int
	Matches        int
	Filtered       int
	InlierCount    int
	Iterations     int
	MeanError      float64 // mean inlier reprojection error in base pixels

	Footprint    []geometry.Point2D // layer frame corners in base pixels
	Coverage     float64            // share of the base area covered by the warped layer
	InlierSpread float64            // convex hull area of inlier base points over base area

	Stage Stage
}

// run carries per-call state. Nothing is shared between calls.
type run struct {
	opts  Options
	log   *slog.Logger
	stage Stage
}

func (r *run) advance(s Stage, attrs ...any) {
	r.stage = s
	r.log.Debug("alignment stage", append([]any{"stage", s.String()}, attrs...)...)
}

func (r *run) fail(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		r.log.Debug("alignment failed",
			"stage", StageFailed.String(),
			"reason", ae.Reason.String(),
			"after", ae.Stage.String(),
			"err", err)
	}
	return err
}

// Align registers layer onto base. The warped layer has base's width and
// height and layer's channel count.
func Align(ctx context.Context, base, layer *raster.Image, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	r := &run{opts: opts, log: opts.Logger}

	if err := checkInput("base", base); err != nil {
		return nil, r.fail(err)
	}
	if err := checkInput("layer", layer); err != nil {
		return nil, r.fail(err)
	}
	r.advance(StageLoaded,
		"base_width", base.Width, "base_height", base.Height,
		"layer_width", layer.Width, "layer_height", layer.Height)

	baseGray, err := raster.Grayscale(base)
	if err != nil {
		return nil, r.fail(newError(ReasonUnreadableImage, StageLoaded, err, "base grayscale"))
	}
	layerGray, err := raster.Grayscale(layer)
	if err != nil {
		return nil, r.fail(newError(ReasonUnreadableImage, StageLoaded, err, "layer grayscale"))
	}
	r.advance(StageGrayscaleReady)

	baseSet, layerSet, err := detectBoth(ctx, baseGray, layerGray, opts)
	if err != nil {
		return nil, r.fail(err)
	}
	if baseSet.Empty() || layerSet.Empty() {
		return nil, r.fail(newError(ReasonNoFeaturesDetected, StageGrayscaleReady, nil,
			"base %d keypoints, layer %d keypoints", baseSet.Len(), layerSet.Len()))
	}
	r.advance(StageKeypointsDetected,
		"keypoints_base", baseSet.Len(), "keypoints_layer", layerSet.Len())

	matches, err := matching.BruteForce(baseSet.Descriptors, layerSet.Descriptors, opts.matchOptions())
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	r.advance(StageMatched, "matches", len(matches))

	kept, err := matching.Filter(matches, opts.RetentionFraction)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	corrs := correspondences(kept, baseSet, layerSet)
	r.advance(StageFiltered, "correspondences", len(corrs))

	fit, err := EstimateHomography(corrs, opts)
	if err != nil {
		return nil, r.fail(err)
	}
	footprint, ok := layerFootprint(fit.H, layer.Width, layer.Height)
	if !ok {
		return nil, r.fail(newError(ReasonDegenerateFit, StageFiltered, nil,
			"layer rectangle does not map to a convex quadrilateral"))
	}
	r.advance(StageHomographyFit,
		"inliers", fit.InlierCount, "iterations", fit.Iterations, "mean_error", fit.MeanError)

	warped, err := Warp(layer, fit.H, base.Width, base.Height, opts.Background)
	if err != nil {
		return nil, r.fail(newError(ReasonDegenerateFit, StageHomographyFit, err, "warp"))
	}

	res := &Result{
		Warped:          warped,
		Homography:      fit.H,
		Correspondences: corrs,
		Inliers:         fit.Inliers,
		BaseKeypoints:   baseSet.Len(),
		LayerKeypoints:  layerSet.Len(),
		Matches:         len(matches),
		Filtered:        len(kept),
		InlierCount:     fit.InlierCount,
		Iterations:      fit.Iterations,
		MeanError:       fit.MeanError,
		Footprint:       footprint,
		Coverage:        coverage(footprint, base.Width, base.Height),
		InlierSpread:    inlierSpread(corrs, fit.Inliers, base.Width, base.Height),
		Stage:           StageWarped,
	}
	r.advance(StageWarped, "coverage", res.Coverage, "inlier_spread", res.InlierSpread)
	return res, nil
}

// AlignImages converts decoded images and aligns them.
func AlignImages(ctx context.Context, base, layer image.Image, opts Options) (*Result, error) {
	b, err := raster.FromImage(base)
	if err != nil {
		return nil, newError(ReasonUnreadableImage, StageLoaded, err, "base")
	}
	l, err := raster.FromImage(layer)
	if err != nil {
		return nil, newError(ReasonUnreadableImage, StageLoaded, err, "layer")
	}
	return Align(ctx, b, l, opts)
}

// AlignFiles loads both images from disk and aligns them.
func AlignFiles(ctx context.Context, basePath, layerPath string, opts Options) (*Result, error) {
	b, err := raster.Load(basePath)
	if err != nil {
		return nil, newError(ReasonUnreadableImage, StageLoaded, err, "base %s", basePath)
	}
	l, err := raster.Load(layerPath)
	if err != nil {
		return nil, newError(ReasonUnreadableImage, StageLoaded, err, "layer %s", layerPath)
	}
	return Align(ctx, b, l, opts)
}

func checkInput(name string, img *raster.Image) error {
	if img == nil {
		return newError(ReasonUnreadableImage, StageLoaded, nil, "%s image is nil", name)
	}
	if err := img.Validate(); err != nil {
		return newError(ReasonUnreadableImage, StageLoaded, err, "%s image", name)
	}
	return nil
}

// detectBoth runs the detector on both images concurrently.
func detectBoth(ctx context.Context, base, layer *raster.Image, opts Options) (*features.Set, *features.Set, error) {
	det, err := features.NewDetector(opts.detectorConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("detector: %w", err)
	}

	var baseSet, layerSet *features.Set
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baseSet, err = det.Detect(gctx, base)
		return err
	})
	g.Go(func() error {
		var err error
		layerSet, err = det.Detect(gctx, layer)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return baseSet, layerSet, nil
}

func correspondences(matches []matching.Match, base, layer *features.Set) []Correspondence {
	out := make([]Correspondence, len(matches))
	for i, m := range matches {
		out[i] = Correspondence{
			Base:  base.Keypoints[m.BaseIndex].Point(),
			Layer: layer.Keypoints[m.LayerIndex].Point(),
		}
	}
	return out
}

// layerFootprint maps the layer rectangle through h. It fails when a
// corner lands on or behind the line at infinity or the quad is not convex.
func layerFootprint(h geometry.Homography, width, height int) ([]geometry.Point2D, bool) {
	corners := geometry.NewRect(0, 0, float64(width-1), float64(height-1)).Corners()
	for _, c := range corners {
		if h[2][0]*c.X+h[2][1]*c.Y+h[2][2] <= 0 {
			return nil, false
		}
	}
	quad, ok := h.MapPolygon(corners)
	if !ok || !geometry.IsConvex(quad) {
		return nil, false
	}
	return quad, true
}

func coverage(footprint []geometry.Point2D, width, height int) float64 {
	frame := geometry.NewRect(0, 0, float64(width-1), float64(height-1))
	if frame.Area() == 0 {
		return 0
	}
	inter := geometry.IntersectPolygons(footprint, frame.Corners())
	return min(geometry.PolygonArea(inter)/frame.Area(), 1)
}

func inlierSpread(corrs []Correspondence, inliers []bool, width, height int) float64 {
	var pts []geometry.Point2D
	for i, ok := range inliers {
		if ok {
			pts = append(pts, corrs[i].Base)
		}
	}
	area := float64(width-1) * float64(height-1)
	if len(pts) < 3 || area == 0 {
		return 0
	}
	return min(geometry.PolygonArea(geometry.ConvexHull(pts))/area, 1)
}
