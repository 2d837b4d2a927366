package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by NewDetector for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config controls keypoint detection. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	MaxKeypoints   int     // upper bound on keypoints per image
	PyramidLevels  int     // number of pyramid levels including full size
	ScaleFactor    float64 // size ratio between consecutive levels, > 1
	FastThreshold  int     // FAST intensity threshold
	DescriptorBits int     // descriptor length, multiple of 8
	EdgeThreshold  int     // keypoints closer than this to a border are skipped
	PatchSize      int     // side of the orientation and descriptor patch, odd
}

// DefaultConfig returns the standard ORB settings.
func DefaultConfig() Config {
	return Config{
		MaxKeypoints:   5000,
		PyramidLevels:  8,
		ScaleFactor:    1.2,
		FastThreshold:  20,
		DescriptorBits: 256,
		EdgeThreshold:  31,
		PatchSize:      31,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxKeypoints == 0 {
		c.MaxKeypoints = d.MaxKeypoints
	}
	if c.PyramidLevels == 0 {
		c.PyramidLevels = d.PyramidLevels
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = d.ScaleFactor
	}
	if c.FastThreshold == 0 {
		c.FastThreshold = d.FastThreshold
	}
	if c.DescriptorBits == 0 {
		c.DescriptorBits = d.DescriptorBits
	}
	if c.EdgeThreshold == 0 {
		c.EdgeThreshold = d.EdgeThreshold
	}
	if c.PatchSize == 0 {
		c.PatchSize = d.PatchSize
	}
	return c
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	switch {
	case c.MaxKeypoints < 1:
		return fmt.Errorf("%w: max keypoints %d", ErrInvalidConfig, c.MaxKeypoints)
	case c.PyramidLevels < 1:
		return fmt.Errorf("%w: pyramid levels %d", ErrInvalidConfig, c.PyramidLevels)
	case c.ScaleFactor <= 1:
		return fmt.Errorf("%w: scale factor %g", ErrInvalidConfig, c.ScaleFactor)
	case c.FastThreshold < 1 || c.FastThreshold > 254:
		return fmt.Errorf("%w: fast threshold %d", ErrInvalidConfig, c.FastThreshold)
	case c.DescriptorBits < 8 || c.DescriptorBits%8 != 0:
		return fmt.Errorf("%w: descriptor bits %d", ErrInvalidConfig, c.DescriptorBits)
	case c.PatchSize < 7 || c.PatchSize%2 == 0:
		return fmt.Errorf("%w: patch size %d", ErrInvalidConfig, c.PatchSize)
	case c.EdgeThreshold < minEdge(c.PatchSize):
		return fmt.Errorf("%w: edge threshold %d too small for patch size %d",
			ErrInvalidConfig, c.EdgeThreshold, c.PatchSize)
	}
	return nil
}

// minEdge is the smallest border that keeps every rotated pattern sample
// and Harris window inside the level image.
func minEdge(patchSize int) int {
	rotated := int(math.Ceil(float64(patchSize/2)*math.Sqrt2)) + 1
	return max(rotated, harrisRadius+1)
}
