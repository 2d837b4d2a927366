package alignment

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableImage is returned when an input cannot be decoded or
	// is not a valid raster.
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrNoFeaturesDetected is returned when either image has no keypoints.
	ErrNoFeaturesDetected = errors.New("no features detected")

	// ErrInsufficientCorrespondences is returned when fewer than four
	// correspondences remain after filtering.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")

	// ErrDegenerateFit is returned when no acceptable homography exists.
	ErrDegenerateFit = errors.New("degenerate homography fit")
)

// Reason classifies an alignment failure. The set is closed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnreadableImage
	ReasonNoFeaturesDetected
	ReasonInsufficientCorrespondences
	ReasonDegenerateFit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnreadableImage:
		return "unreadable_image"
	case ReasonNoFeaturesDetected:
		return "no_features_detected"
	case ReasonInsufficientCorrespondences:
		return "insufficient_correspondences"
	case ReasonDegenerateFit:
		return "degenerate_fit"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonUnreadableImage:
		return ErrUnreadableImage
	case ReasonNoFeaturesDetected:
		return ErrNoFeaturesDetected
	case ReasonInsufficientCorrespondences:
		return ErrInsufficientCorrespondences
	case ReasonDegenerateFit:
		return ErrDegenerateFit
	default:
		return nil
	}
}

// Error reports the stage at which the pipeline failed and why.
//
// errors.Is matches the sentinel for Reason; the underlying error
// (if any) can be accessed via errors.Unwrap.
type Error struct {
	Reason Reason
	Stage  Stage  // last stage completed before the failure
	Detail string // human readable context, may be empty
	cause  error
}

func newError(reason Reason, stage Stage, cause error, format string, args ...any) *Error {
	return &Error{
		Reason: reason,
		Stage:  stage,
		Detail: fmt.Sprintf(format, args...),
		cause:  cause,
	}
}

func (e *Error) Error() string {
	msg := e.Reason.sentinel()
	text := "alignment failed"
	if msg != nil {
		text = msg.Error()
	}
	if e.Detail != "" {
		text += ": " + e.Detail
	}
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches the sentinel error of the failure reason.
func (e *Error) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}

// ReasonOf returns the failure reason carried by err, or ReasonNone.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	for _, r := range []Reason{
		ReasonUnreadableImage,
		ReasonNoFeaturesDetected,
		ReasonInsufficientCorrespondences,
		ReasonDegenerateFit,
	} {
		if errors.Is(err, r.sentinel()) {
			return r
		}
	}
	return ReasonNone
}
