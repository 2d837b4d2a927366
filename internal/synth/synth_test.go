package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layer-align/pkg/geometry"
)

func TestTextureIsDeterministic(t *testing.T) {
	a, err := Texture(64, 48, 3, 9)
	require.NoError(t, err)
	b, err := Texture(64, 48, 3, 9)
	require.NoError(t, err)
	c, err := Texture(64, 48, 3, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, a.Channels)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, c.Pix)

	_, err = Texture(0, 10, 1, 1)
	assert.Error(t, err)
}

func TestBlank(t *testing.T) {
	img, err := Blank(5, 4, 1, 77)
	require.NoError(t, err)
	for _, v := range img.Pix {
		assert.Equal(t, uint8(77), v)
	}
}

func TestZeroTransformIsIdentity(t *testing.T) {
	h := Transform{}.Homography(320, 240)
	assert.True(t, h.AlmostEqual(geometry.IdentityHomography(), 1e-12), "got %s", h)
}

func TestTransformKeepsCenterUnderRotationAndTilt(t *testing.T) {
	h := Transform{Rotation: 10, Scale: 1.1, TX: 4, TY: -2, Perspective: 1e-4}.Homography(200, 100)
	p, ok := h.Apply(geometry.NewPoint2D(100, 50))
	require.True(t, ok)
	assert.InDelta(t, 104, p.X, 1e-9)
	assert.InDelta(t, 48, p.Y, 1e-9)
	assert.InDelta(t, 1, h[2][2], 1e-12)
}
