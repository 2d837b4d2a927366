package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layer-align/internal/features"
)

func desc(b ...byte) features.Descriptor {
	return features.Descriptor(b)
}

func TestHamming(t *testing.T) {
	a := make(features.Descriptor, 32)
	b := make(features.Descriptor, 32)
	assert.Equal(t, 0, Hamming(a, b))

	b[0] = 0xff
	b[9] = 0x01
	b[31] = 0x80
	assert.Equal(t, 10, Hamming(a, b))
	assert.Equal(t, 10, Hamming(b, a))

	assert.Equal(t, 3, Hamming(desc(0b101, 0), desc(0, 0b100)))
}

func TestBruteForceEmpty(t *testing.T) {
	m, err := BruteForce(nil, []features.Descriptor{desc(1)}, Options{})
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)

	m, err = BruteForce([]features.Descriptor{desc(1)}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestBruteForceNearestInBaseOrder(t *testing.T) {
	base := []features.Descriptor{desc(0x0f), desc(0xf0), desc(0x00)}
	layer := []features.Descriptor{desc(0xf1), desc(0x0e), desc(0x01)}

	m, err := BruteForce(base, layer, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Match{
		{BaseIndex: 0, LayerIndex: 1, Distance: 1},
		{BaseIndex: 1, LayerIndex: 0, Distance: 1},
		{BaseIndex: 2, LayerIndex: 2, Distance: 1},
	}, m)
}

func TestBruteForceTieKeepsLowestLayerIndex(t *testing.T) {
	base := []features.Descriptor{desc(0x00)}
	layer := []features.Descriptor{desc(0x03), desc(0x01), desc(0x02)}

	m, err := BruteForce(base, layer, Options{})
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, 1, m[0].LayerIndex)
}

func TestBruteForceManyToOneWithoutCrossCheck(t *testing.T) {
	base := []features.Descriptor{desc(0x01), desc(0x03)}
	layer := []features.Descriptor{desc(0x01), desc(0xff)}

	m, err := BruteForce(base, layer, Options{})
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, 0, m[0].LayerIndex)
	assert.Equal(t, 0, m[1].LayerIndex)

	m, err = BruteForce(base, layer, Options{CrossCheck: true})
	require.NoError(t, err)
	assert.Equal(t, []Match{{BaseIndex: 0, LayerIndex: 0, Distance: 0}}, m)
}

func TestBruteForceRatioTest(t *testing.T) {
	base := []features.Descriptor{desc(0x00)}
	layer := []features.Descriptor{desc(0x01), desc(0x03)}

	m, err := BruteForce(base, layer, Options{RatioTest: 0.8})
	require.NoError(t, err)
	assert.Len(t, m, 1, "1 < 0.8*2")

	ambiguous := []features.Descriptor{desc(0x01), desc(0x02)}
	m, err = BruteForce(base, ambiguous, Options{RatioTest: 0.8})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestBruteForceLengthMismatch(t *testing.T) {
	_, err := BruteForce([]features.Descriptor{desc(1, 2)}, []features.Descriptor{desc(1)}, Options{})
	assert.ErrorIs(t, err, ErrDescriptorLength)
}

func TestBruteForceLargeSetMatchesSerial(t *testing.T) {
	var base, layer []features.Descriptor
	for i := 0; i < 300; i++ {
		base = append(base, desc(byte(i), byte(i*7), byte(i*13), byte(i*31)))
		layer = append(layer, desc(byte(i*3), byte(i*5), byte(i*11), byte(i*17)))
	}

	m, err := BruteForce(base, layer, Options{})
	require.NoError(t, err)
	require.Len(t, m, len(base))
	for i, match := range m {
		assert.Equal(t, i, match.BaseIndex)
		best := -1
		for j := range layer {
			if d := Hamming(base[i], layer[j]); best < 0 || d < Hamming(base[i], layer[best]) {
				best = j
			}
		}
		assert.Equal(t, best, match.LayerIndex)
		assert.Equal(t, Hamming(base[i], layer[best]), match.Distance)
	}
}

func TestFilterKeepsFloorFraction(t *testing.T) {
	matches := make([]Match, 20)
	for i := range matches {
		matches[i] = Match{BaseIndex: i, Distance: (i * 7) % 10}
	}
	orig := append([]Match(nil), matches...)

	out, err := Filter(matches, 0.15)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1].Distance, out[i].Distance)
	}
	assert.Equal(t, 0, out[0].Distance)
	assert.Equal(t, orig, matches, "input must not be reordered")
	for _, m := range out {
		assert.Contains(t, matches, m)
	}
}

func TestFilterStableTies(t *testing.T) {
	matches := []Match{
		{BaseIndex: 0, Distance: 5},
		{BaseIndex: 1, Distance: 1},
		{BaseIndex: 2, Distance: 5},
		{BaseIndex: 3, Distance: 1},
	}
	out, err := Filter(matches, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 0, 2}, []int{out[0].BaseIndex, out[1].BaseIndex, out[2].BaseIndex, out[3].BaseIndex})
}

func TestFilterSmallInputs(t *testing.T) {
	out, err := Filter(nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Filter([]Match{{Distance: 1}, {Distance: 2}}, 0.15)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFilterRejectsBadFraction(t *testing.T) {
	for _, f := range []float64{0, -0.1, 1.5} {
		_, err := Filter([]Match{{}}, f)
		assert.ErrorIs(t, err, ErrInvalidFraction)
	}
}
