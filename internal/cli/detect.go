package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"layer-align/internal/features"
	"layer-align/internal/raster"
	"layer-align/pkg/colorutil"
	"layer-align/pkg/geometry"
)

func newDetectCmd(root *Root) *cobra.Command {
	var (
		output      string
		markerColor string
		cfg         = features.DefaultConfig()
		orientation bool
	)
	cfg.MaxKeypoints = root.cfg.MaxKeypoints

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect keypoints and print statistics",
		Long: `Run the keypoint detector on one image and print how many keypoints each
pyramid level produced. With --output the image is written with every
keypoint drawn over it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := raster.Load(args[0])
			if err != nil {
				return fmt.Errorf("load image: %w", err)
			}
			gray, err := raster.Grayscale(img)
			if err != nil {
				return err
			}
			det, err := features.NewDetector(cfg)
			if err != nil {
				return err
			}
			set, err := det.Detect(cmd.Context(), gray)
			if err != nil {
				return err
			}

			perOctave := map[int]int{}
			for _, kp := range set.Keypoints {
				perOctave[kp.Octave]++
			}
			octaves := make([]int, 0, len(perOctave))
			for o := range perOctave {
				octaves = append(octaves, o)
			}
			sort.Ints(octaves)

			fmt.Fprintf(root.out, "%s: %dx%d, %d keypoints\n", args[0], img.Width, img.Height, set.Len())
			for _, o := range octaves {
				fmt.Fprintf(root.out, "  level %d: %d\n", o, perOctave[o])
			}
			if set.Len() > 0 {
				box := geometry.BoundingBox(set.Points())
				fmt.Fprintf(root.out, "  extent: %.0f,%.0f %.0fx%.0f\n", box.X, box.Y, box.Width, box.Height)
			}
			root.log.Debug("detect finished", "image", args[0], "keypoints", set.Len())

			if output == "" {
				return nil
			}
			opts := features.DefaultRenderOptions()
			opts.ShowOrientation = orientation
			if opts.Color, err = colorutil.ParseHex(markerColor); err != nil {
				return err
			}
			annotated, err := raster.FromImage(features.Annotate(img, set, opts))
			if err != nil {
				return err
			}
			return raster.Save(output, annotated)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "write the annotated image to this path")
	fl.StringVar(&markerColor, "color", colorutil.Hex(colorutil.Green), "marker color (#rrggbb)")
	fl.BoolVar(&orientation, "orientation", true, "draw keypoint orientation")
	fl.IntVar(&cfg.MaxKeypoints, "max-keypoints", cfg.MaxKeypoints, "maximum keypoints")
	fl.IntVar(&cfg.FastThreshold, "fast-threshold", cfg.FastThreshold, "FAST intensity threshold")
	fl.IntVar(&cfg.PyramidLevels, "levels", cfg.PyramidLevels, "pyramid levels")
	fl.Float64Var(&cfg.ScaleFactor, "scale-factor", cfg.ScaleFactor, "pyramid scale factor")

	return cmd
}
