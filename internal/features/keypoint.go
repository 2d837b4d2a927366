// Package features detects oriented corner keypoints and computes binary
// descriptors for them.
//
// Detection follows the ORB recipe: FAST-9 corners on a scale pyramid,
// ranked by the Harris measure, oriented by the intensity centroid and
// described with a rotated BRIEF test pattern. All steps are
// deterministic for a given image and configuration.
package features

import (
	"layer-align/pkg/geometry"
)

// Keypoint is a detected corner in level-0 (full resolution) coordinates.
type Keypoint struct {
	X, Y     float64
	Angle    float64 // degrees in [0, 360)
	Size     float64 // diameter of the described patch
	Response float64 // Harris corner measure
	Octave   int     // pyramid level the keypoint was found on
}

// Point returns the keypoint location.
func (k Keypoint) Point() geometry.Point2D {
	return geometry.Point2D{X: k.X, Y: k.Y}
}

// Descriptor is a fixed-length binary string. Bit i lives in byte i/8 at
// position i%8.
type Descriptor []byte

// Bits returns the descriptor length in bits.
func (d Descriptor) Bits() int {
	return len(d) * 8
}

// Set holds keypoints and their descriptors. Keypoints[i] is described by
// Descriptors[i].
type Set struct {
	Keypoints   []Keypoint
	Descriptors []Descriptor
}

// Len returns the number of keypoints.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keypoints)
}

// Empty reports whether no keypoints were detected.
func (s *Set) Empty() bool {
	return s.Len() == 0
}

// Points returns the keypoint locations in order.
func (s *Set) Points() []geometry.Point2D {
	pts := make([]geometry.Point2D, s.Len())
	for i, kp := range s.Keypoints {
		pts[i] = kp.Point()
	}
	return pts
}
