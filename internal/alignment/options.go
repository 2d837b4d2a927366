package alignment

import (
	"fmt"
	"image/color"
	"log/slog"

	"layer-align/internal/features"
	"layer-align/internal/logging"
	"layer-align/internal/matching"
)

// DefaultSeed seeds RANSAC sampling when Options.Seed is zero.
const DefaultSeed uint64 = 0x5eed1a7e

// Options configures an alignment run. Zero fields take the values from
// DefaultOptions, so Options{} is valid.
type Options struct {
	MaxKeypoints      int        // keypoints per image
	RetentionFraction float64    // share of matches kept, in (0, 1]
	RansacThreshold   float64    // inlier reprojection tolerance in base pixels
	RansacIterations  int        // upper bound on RANSAC iterations
	Background        color.RGBA // fill for output pixels outside the layer

	Confidence     float64 // RANSAC early-stop confidence in (0, 1)
	Seed           uint64  // RANSAC sampling seed
	MinInlierRatio float64 // minimum inliers / correspondences; 0 means 0.1, negative means none
	SkipRefinement bool    // keep the best minimal-sample model as is

	CrossCheck bool    // keep only mutual nearest neighbours
	RatioTest  float64 // Lowe ratio, 0 disables

	DescriptorBits int
	PyramidLevels  int
	ScaleFactor    float64
	FastThreshold  int

	// Logger receives stage transitions at debug level. Nil discards.
	Logger *slog.Logger
}

// DefaultOptions returns the default alignment settings.
func DefaultOptions() Options {
	return Options{
		MaxKeypoints:      5000,
		RetentionFraction: 0.15,
		RansacThreshold:   3.0,
		RansacIterations:  2000,
		Background:        color.RGBA{A: 255},
		Confidence:        0.995,
		Seed:              DefaultSeed,
		MinInlierRatio:    0.1,
		DescriptorBits:    256,
		PyramidLevels:     8,
		ScaleFactor:       1.2,
		FastThreshold:     20,
	}
}

// withDefaults fills zero fields. Background is left alone: its zero
// value is transparent black, which renders as black. A negative
// MinInlierRatio is kept so that callers can turn the ratio check off.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxKeypoints == 0 {
		o.MaxKeypoints = d.MaxKeypoints
	}
	if o.RetentionFraction == 0 {
		o.RetentionFraction = d.RetentionFraction
	}
	if o.RansacThreshold == 0 {
		o.RansacThreshold = d.RansacThreshold
	}
	if o.RansacIterations == 0 {
		o.RansacIterations = d.RansacIterations
	}
	if o.Confidence == 0 {
		o.Confidence = d.Confidence
	}
	if o.Seed == 0 {
		o.Seed = d.Seed
	}
	if o.MinInlierRatio == 0 {
		o.MinInlierRatio = d.MinInlierRatio
	}
	if o.DescriptorBits == 0 {
		o.DescriptorBits = d.DescriptorBits
	}
	if o.PyramidLevels == 0 {
		o.PyramidLevels = d.PyramidLevels
	}
	if o.ScaleFactor == 0 {
		o.ScaleFactor = d.ScaleFactor
	}
	if o.FastThreshold == 0 {
		o.FastThreshold = d.FastThreshold
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// Validate checks the fields that no later stage checks itself.
func (o Options) Validate() error {
	switch {
	case o.RetentionFraction <= 0 || o.RetentionFraction > 1:
		return fmt.Errorf("retention fraction %g not in (0, 1]", o.RetentionFraction)
	case o.RansacThreshold <= 0:
		return fmt.Errorf("ransac threshold %g must be positive", o.RansacThreshold)
	case o.RansacIterations < 1:
		return fmt.Errorf("ransac iterations %d must be positive", o.RansacIterations)
	case o.Confidence <= 0 || o.Confidence >= 1:
		return fmt.Errorf("confidence %g not in (0, 1)", o.Confidence)
	case o.MinInlierRatio > 1:
		return fmt.Errorf("min inlier ratio %g exceeds 1", o.MinInlierRatio)
	case o.RatioTest < 0 || o.RatioTest >= 1:
		return fmt.Errorf("ratio test %g not in [0, 1)", o.RatioTest)
	}
	return nil
}

func (o Options) detectorConfig() features.Config {
	return features.Config{
		MaxKeypoints:   o.MaxKeypoints,
		PyramidLevels:  o.PyramidLevels,
		ScaleFactor:    o.ScaleFactor,
		FastThreshold:  o.FastThreshold,
		DescriptorBits: o.DescriptorBits,
	}
}

func (o Options) matchOptions() matching.Options {
	return matching.Options{CrossCheck: o.CrossCheck, RatioTest: o.RatioTest}
}
