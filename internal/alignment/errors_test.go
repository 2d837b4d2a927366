package alignment

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinel(t *testing.T) {
	err := newError(ReasonDegenerateFit, StageFiltered, io.ErrUnexpectedEOF, "consensus of %d", 3)

	assert.ErrorIs(t, err, ErrDegenerateFit)
	assert.NotErrorIs(t, err, ErrNoFeaturesDetected)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "degenerate homography fit: consensus of 3: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("layer 2: %w", err)
	assert.ErrorIs(t, wrapped, ErrDegenerateFit)
	assert.Equal(t, ReasonDegenerateFit, ReasonOf(wrapped))

	var ae *Error
	assert.True(t, errors.As(wrapped, &ae))
	assert.Equal(t, StageFiltered, ae.Stage)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonOf(nil))
	assert.Equal(t, ReasonNone, ReasonOf(errors.New("boom")))
	assert.Equal(t, ReasonUnreadableImage, ReasonOf(fmt.Errorf("x: %w", ErrUnreadableImage)))
	assert.Equal(t, ReasonInsufficientCorrespondences,
		ReasonOf(newError(ReasonInsufficientCorrespondences, StageFiltered, nil, "")))
}

func TestReasonAndStageStrings(t *testing.T) {
	assert.Equal(t, "no_features_detected", ReasonNoFeaturesDetected.String())
	assert.Equal(t, "reason(42)", Reason(42).String())
	assert.Equal(t, "homography_fit", StageHomographyFit.String())
	assert.True(t, StageWarped.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageMatched.Terminal())
}
