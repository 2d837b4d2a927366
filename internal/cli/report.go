package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"

	"golang.org/x/image/draw"

	"layer-align/internal/alignment"
	"layer-align/internal/batch"
	"layer-align/internal/features"
	"layer-align/internal/raster"
	"layer-align/pkg/colorutil"
)

// Report is the JSON document written by align --report.
type Report struct {
	Base    string        `json:"base"`
	Backend string        `json:"backend"`
	Aligned int           `json:"aligned"`
	Failed  int           `json:"failed"`
	Layers  []LayerReport `json:"layers"`
}

// LayerReport describes one layer.
type LayerReport struct {
	Layer  string `json:"layer"`
	Output string `json:"output,omitempty"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Stage  string `json:"stage"`
	Error  string `json:"error,omitempty"`

	Homography      *[3][3]float64 `json:"homography,omitempty"`
	BaseKeypoints   int            `json:"base_keypoints"`
	LayerKeypoints  int            `json:"layer_keypoints"`
	Matches         int            `json:"matches"`
	Correspondences int            `json:"correspondences"`
	Inliers         int            `json:"inliers"`
	Iterations      int            `json:"iterations"`
	MeanError       float64        `json:"mean_error"`
	Coverage        float64        `json:"coverage"`
	InlierSpread    float64        `json:"inlier_spread"`
	DurationMS      int64          `json:"duration_ms"`
}

func newLayerReport(o batch.Outcome) LayerReport {
	lr := LayerReport{
		Layer:      o.Layer.Path,
		OK:         o.OK(),
		DurationMS: o.Duration.Milliseconds(),
	}
	if !lr.OK {
		lr.Stage = alignment.StageFailed.String()
		lr.Reason = o.Reason.String()
		if o.Err != nil {
			lr.Error = o.Err.Error()
		}
		var ae *alignment.Error
		if errors.As(o.Err, &ae) {
			lr.Stage = ae.Stage.String()
		}
		return lr
	}

	res := o.Result
	h := [3][3]float64(res.Homography)
	lr.Stage = res.Stage.String()
	lr.Homography = &h
	lr.BaseKeypoints = res.BaseKeypoints
	lr.LayerKeypoints = res.LayerKeypoints
	lr.Matches = res.Matches
	lr.Correspondences = len(res.Correspondences)
	lr.Inliers = res.InlierCount
	lr.Iterations = res.Iterations
	lr.MeanError = res.MeanError
	lr.Coverage = res.Coverage
	lr.InlierSpread = res.InlierSpread
	return lr
}

func (r *Report) tally() {
	r.Aligned, r.Failed = 0, 0
	for _, l := range r.Layers {
		if l.OK {
			r.Aligned++
		} else {
			r.Failed++
		}
	}
}

func writeReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// outlineFootprint draws the layer boundary over an overlay preview.
func outlineFootprint(preview *raster.Image, res *alignment.Result) *raster.Image {
	src := preview.ToImage()
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, image.Point{}, draw.Src)
	features.DrawPolygon(canvas, res.Footprint, 2, colorutil.Magenta)

	out, err := raster.FromImage(canvas)
	if err != nil {
		return preview
	}
	return out
}
