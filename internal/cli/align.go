package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"layer-align/internal/alignment"
	"layer-align/internal/alignment/opencv"
	"layer-align/internal/batch"
	"layer-align/internal/config"
	"layer-align/internal/logging"
	"layer-align/internal/raster"
)

type alignFlags struct {
	output  string
	inPlace bool
	overlay string
	opacity float64
	report  string

	// cfg starts as a copy of the loaded configuration; flags override it.
	cfg config.Config
}

func newAlignCmd(root *Root) *cobra.Command {
	f := alignFlags{
		output:  "aligned",
		opacity: 0.5,
		cfg:     *root.cfg,
	}
	c := &f.cfg

	cmd := &cobra.Command{
		Use:   "align <base> <layer>...",
		Short: "Align layers onto a base image",
		Long: `Align one or more layer images onto a base image.

Each layer is written resampled onto the base grid, either into the output
directory under its own file name or over the input with --in-place.

Examples:
  # Align two scans of the same page
  layeralign align page-front.png page-front-rescan.png -o aligned/

  # Overwrite the layers and keep a difference preview
  layeralign align base.tif l1.tif l2.tif --in-place --overlay difference

  # Write a JSON report with the recovered homographies
  layeralign align base.png layer.png --report report.json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.inPlace && cmd.Flags().Changed("output") {
				return errors.New("--output and --in-place are mutually exclusive")
			}
			return root.runAlign(cmd.Context(), f, args[0], args[1:])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", f.output, "output directory for aligned layers")
	fl.BoolVar(&f.inPlace, "in-place", false, "overwrite each layer with its aligned version")
	fl.StringVar(&f.overlay, "overlay", "", "also write a preview blended over the base (normal|multiply|screen|overlay|difference)")
	fl.Float64Var(&f.opacity, "opacity", f.opacity, "layer opacity in the overlay preview")
	fl.StringVar(&f.report, "report", "", "write a JSON report to this path")
	fl.IntVarP(&c.Jobs, "jobs", "j", c.Jobs, "concurrent alignments (0 = number of CPUs)")
	fl.StringVar(&c.Backend, "backend", c.Backend, "alignment backend (native|opencv)")
	fl.StringVar(&c.Background, "background", c.Background, "fill color for uncovered pixels (#rrggbb)")
	fl.IntVar(&c.MaxKeypoints, "max-keypoints", c.MaxKeypoints, "keypoints detected per image")
	fl.Float64Var(&c.RetentionFraction, "retention", c.RetentionFraction, "fraction of best matches kept, in (0, 1]")
	fl.Float64Var(&c.RansacThreshold, "threshold", c.RansacThreshold, "RANSAC inlier threshold in pixels")
	fl.IntVar(&c.RansacIterations, "iterations", c.RansacIterations, "maximum RANSAC iterations")
	fl.Float64Var(&c.Confidence, "confidence", c.Confidence, "RANSAC early stop confidence")
	fl.Float64Var(&c.MinInlierRatio, "min-inlier-ratio", c.MinInlierRatio,
		"minimum inlier ratio for a fit (0 = default 0.1, negative = no minimum)")
	fl.Uint64Var(&c.Seed, "seed", c.Seed, "RANSAC seed (0 = built-in default)")
	fl.BoolVar(&c.CrossCheck, "cross-check", c.CrossCheck, "keep only mutual nearest neighbour matches")
	fl.Float64Var(&c.RatioTest, "ratio", c.RatioTest, "Lowe ratio test threshold (0 = off)")

	return cmd
}

func (f alignFlags) alignFunc() (batch.AlignFunc, error) {
	switch strings.ToLower(f.cfg.Backend) {
	case config.BackendNative:
		return alignment.Align, nil
	case config.BackendOpenCV:
		if !opencv.Available() {
			return nil, fmt.Errorf("backend %s: %w", f.cfg.Backend, opencv.ErrUnavailable)
		}
		return func(_ context.Context, base, layer *raster.Image, opts alignment.Options) (*alignment.Result, error) {
			return opencv.Align(base, layer, opts)
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", f.cfg.Backend)
	}
}

func (r *Root) runAlign(ctx context.Context, f alignFlags, basePath string, layerPaths []string) error {
	for _, p := range append([]string{basePath}, layerPaths...) {
		if !raster.IsSupportedFormat(p) {
			return fmt.Errorf("%s: unsupported image format %q", p, filepath.Ext(p))
		}
	}
	opts, err := f.cfg.Options()
	if err != nil {
		return err
	}
	opts.Logger = r.log
	align, err := f.alignFunc()
	if err != nil {
		return err
	}
	var mode raster.BlendMode
	if f.overlay != "" {
		if mode, err = raster.ParseBlendMode(f.overlay); err != nil {
			return err
		}
	}

	base, err := raster.Load(basePath)
	if err != nil {
		return fmt.Errorf("load base: %w", err)
	}
	if !f.inPlace {
		if err := os.MkdirAll(f.output, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	layers := make([]batch.Layer, len(layerPaths))
	for i, p := range layerPaths {
		layers[i] = batch.Layer{Name: filepath.Base(p), Path: p}
	}

	runner := &batch.Runner{Jobs: f.cfg.Jobs, Options: opts, Align: align, Logger: r.log}
	outcomes := runner.Run(ctx, base, layers)

	report := Report{Base: basePath, Backend: strings.ToLower(f.cfg.Backend)}
	for _, o := range outcomes {
		entry := newLayerReport(o)
		if o.OK() {
			entry.Output, err = r.writeOutputs(f, mode, base, o)
			if err != nil {
				entry.OK = false
				entry.Error = err.Error()
				logging.LogLayerFailed(r.log, o.Layer.Path, "write", err)
			} else {
				logging.LogLayerDone(r.log, o.Layer.Path, entry.Output,
					o.Result.InlierCount, len(o.Result.Correspondences), o.Result.MeanError)
			}
		} else {
			logging.LogLayerFailed(r.log, o.Layer.Path, o.Reason.String(), o.Err)
		}
		report.Layers = append(report.Layers, entry)
	}
	report.tally()

	if f.report != "" {
		if err := writeReport(f.report, report); err != nil {
			return err
		}
	}
	fmt.Fprintf(r.out, "aligned %d of %d layers\n", report.Aligned, len(report.Layers))

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d layers failed", report.Failed, len(report.Layers))
	}
	return nil
}

// writeOutputs saves the aligned layer and, when requested, its overlay
// preview. It returns the aligned layer's path.
func (r *Root) writeOutputs(f alignFlags, mode raster.BlendMode, base *raster.Image, o batch.Outcome) (string, error) {
	dst := outputPath(f, o.Layer.Path)
	if err := raster.Save(dst, o.Result.Warped); err != nil {
		return "", err
	}
	if f.overlay == "" {
		return dst, nil
	}

	preview, err := raster.Composite(base, o.Result.Warped, mode, f.opacity)
	if err != nil {
		return dst, fmt.Errorf("overlay: %w", err)
	}
	if len(o.Result.Footprint) > 0 {
		preview = outlineFootprint(preview, o.Result)
	}
	if err := raster.Save(overlayPath(dst), preview); err != nil {
		return dst, fmt.Errorf("overlay: %w", err)
	}
	return dst, nil
}

// outputPath keeps the layer's file name. Formats that cannot be written
// are saved as PNG.
func outputPath(f alignFlags, layerPath string) string {
	dst := layerPath
	if !f.inPlace {
		dst = filepath.Join(f.output, filepath.Base(layerPath))
	}
	if !raster.IsWritableFormat(raster.FormatFromPath(dst)) {
		dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + ".png"
	}
	return dst
}

func overlayPath(dst string) string {
	ext := filepath.Ext(dst)
	return strings.TrimSuffix(dst, ext) + "-overlay" + ext
}
