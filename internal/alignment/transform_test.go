package alignment

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layer-align/pkg/geometry"
)

var testH = geometry.Homography{
	{0.98, -0.06, 14},
	{0.05, 1.01, -9},
	{2e-5, -1e-5, 1},
}

func project(t *testing.T, h geometry.Homography, p geometry.Point2D) geometry.Point2D {
	t.Helper()
	q, ok := h.Apply(p)
	require.True(t, ok)
	return q
}

// assertSameMapping compares two homographies by where they send a spread
// of points in a 320x240 frame.
func assertSameMapping(t *testing.T, want, got geometry.Homography, tol float64) {
	t.Helper()
	for _, p := range []geometry.Point2D{{X: 0, Y: 0}, {X: 320, Y: 0}, {X: 320, Y: 240}, {X: 0, Y: 240}, {X: 160, Y: 120}} {
		w := project(t, want, p)
		g := project(t, got, p)
		assert.Less(t, g.Distance(w), tol, "point %v: want %v got %v", p, w, g)
	}
}

func gridCorrespondences(t *testing.T, h geometry.Homography, nx, ny int) []Correspondence {
	var out []Correspondence
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			// Jitter keeps rows from being exactly collinear.
			p := geometry.NewPoint2D(20+float64(i)*37+float64(j%3), 15+float64(j)*29+float64(i%4))
			out = append(out, Correspondence{Layer: p, Base: project(t, h, p)})
		}
	}
	return out
}

func TestEstimateExactFourPoints(t *testing.T) {
	layer := []geometry.Point2D{{X: 0, Y: 0}, {X: 300, Y: 10}, {X: 290, Y: 220}, {X: 5, Y: 200}}
	corrs := make([]Correspondence, len(layer))
	for i, p := range layer {
		corrs[i] = Correspondence{Layer: p, Base: project(t, testH, p)}
	}

	fit, err := EstimateHomography(corrs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, fit.InlierCount)
	assert.Equal(t, []bool{true, true, true, true}, fit.Inliers)
	assertSameMapping(t, testH, fit.H, 1e-4)
	assert.InDelta(t, 0, fit.MeanError, 1e-6)
	assert.Equal(t, 1.0, fit.H[2][2])
}

func TestEstimateTooFewCorrespondences(t *testing.T) {
	corrs := []Correspondence{
		{Layer: geometry.NewPoint2D(0, 0), Base: geometry.NewPoint2D(1, 1)},
		{Layer: geometry.NewPoint2D(5, 0), Base: geometry.NewPoint2D(6, 1)},
		{Layer: geometry.NewPoint2D(0, 5), Base: geometry.NewPoint2D(1, 6)},
	}
	_, err := EstimateHomography(corrs, Options{})
	require.ErrorIs(t, err, ErrInsufficientCorrespondences)
	assert.Equal(t, ReasonInsufficientCorrespondences, ReasonOf(err))

	_, err = EstimateHomography(nil, Options{})
	assert.ErrorIs(t, err, ErrInsufficientCorrespondences)
}

func TestEstimateCollinearIsDegenerate(t *testing.T) {
	var corrs []Correspondence
	for i := 0; i < 12; i++ {
		p := geometry.NewPoint2D(float64(i)*10, float64(i)*5)
		corrs = append(corrs, Correspondence{Layer: p, Base: p.Add(geometry.NewPoint2D(3, 3))})
	}
	_, err := EstimateHomography(corrs, Options{RansacIterations: 200})
	require.ErrorIs(t, err, ErrDegenerateFit)
}

func TestEstimateCoincidentPointsIsDegenerate(t *testing.T) {
	corrs := make([]Correspondence, 6)
	for i := range corrs {
		corrs[i] = Correspondence{Layer: geometry.NewPoint2D(4, 4), Base: geometry.NewPoint2D(7, 7)}
	}
	_, err := EstimateHomography(corrs, Options{})
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestEstimateRejectsOutliers(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 8, 7)
	inliers := len(corrs)

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 40; i++ {
		corrs = append(corrs, Correspondence{
			Layer: geometry.NewPoint2D(rng.Float64()*320, rng.Float64()*240),
			Base:  geometry.NewPoint2D(rng.Float64()*320, rng.Float64()*240),
		})
	}

	fit, err := EstimateHomography(corrs, Options{})
	require.NoError(t, err)
	assertSameMapping(t, testH, fit.H, 0.5)
	assert.GreaterOrEqual(t, fit.InlierCount, inliers)
	for i := 0; i < inliers; i++ {
		assert.True(t, fit.Inliers[i], "grid point %d", i)
	}
	assert.LessOrEqual(t, fit.Iterations, 2000)
	assert.Less(t, fit.MeanError, 0.5)
}

func TestEstimateNoisyRefinementImprovesError(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 9, 8)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := range corrs {
		corrs[i].Base = corrs[i].Base.Add(geometry.NewPoint2D(rng.NormFloat64()*0.5, rng.NormFloat64()*0.5))
	}

	refined, err := EstimateHomography(corrs, Options{})
	require.NoError(t, err)
	raw, err := EstimateHomography(corrs, Options{SkipRefinement: true})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, refined.InlierCount, raw.InlierCount)
	assert.Less(t, refined.MeanError, 1.0)

	corner := geometry.NewPoint2D(300, 220)
	want := project(t, testH, corner)
	got := project(t, refined.H, corner)
	assert.Less(t, got.Distance(want), 1.0)
}

func TestEstimateLowInlierRatioIsDegenerate(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 3, 2)
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 200; i++ {
		corrs = append(corrs, Correspondence{
			Layer: geometry.NewPoint2D(rng.Float64()*1000, rng.Float64()*1000),
			Base:  geometry.NewPoint2D(rng.Float64()*1000, rng.Float64()*1000),
		})
	}

	_, err := EstimateHomography(corrs, Options{})
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestEstimateNegativeInlierRatioDisablesCheck(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 6, 5)
	rng := rand.New(rand.NewPCG(21, 22))
	corrs = append(corrs, randomCorrespondences(rng, 300, 1000)...)

	_, err := EstimateHomography(corrs, Options{})
	assert.ErrorIs(t, err, ErrDegenerateFit)

	fit, err := EstimateHomography(corrs, Options{MinInlierRatio: -1, RansacIterations: 200000})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fit.InlierCount, 30)
	assertSameMapping(t, testH, fit.H, 0.5)
}

func randomCorrespondences(rng *rand.Rand, n int, size float64) []Correspondence {
	corrs := make([]Correspondence, n)
	for i := range corrs {
		corrs[i] = Correspondence{
			Layer: geometry.NewPoint2D(rng.Float64()*size, rng.Float64()*size),
			Base:  geometry.NewPoint2D(rng.Float64()*size, rng.Float64()*size),
		}
	}
	return corrs
}

func TestEstimateNoiseOnlyIsDegenerate(t *testing.T) {
	for _, n := range []int{5, 6, 8, 12, 20, 30, 40} {
		for seed := uint64(1); seed <= 20; seed++ {
			rng := rand.New(rand.NewPCG(seed, uint64(n)))
			corrs := randomCorrespondences(rng, n, 1000)

			fit, err := EstimateHomography(corrs, Options{})
			assert.Nil(t, fit, "n=%d seed=%d", n, seed)
			assert.ErrorIs(t, err, ErrDegenerateFit, "n=%d seed=%d", n, seed)
		}
	}
}

func TestEstimateDuplicatedNoiseIsDegenerate(t *testing.T) {
	// Every noise pair appears three times with sub-pixel offsets, the way
	// one corner is found at several pyramid levels.
	rng := rand.New(rand.NewPCG(11, 12))
	var corrs []Correspondence
	for _, c := range randomCorrespondences(rng, 10, 1000) {
		for k := 0; k < 3; k++ {
			d := geometry.NewPoint2D(0.4*float64(k), -0.3*float64(k))
			corrs = append(corrs, Correspondence{Layer: c.Layer.Add(d), Base: c.Base.Add(d)})
		}
	}

	_, err := EstimateHomography(corrs, Options{})
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestEstimateSmallConsistentSets(t *testing.T) {
	layer := []geometry.Point2D{{X: 0, Y: 0}, {X: 300, Y: 10}, {X: 290, Y: 220}, {X: 5, Y: 200}, {X: 150, Y: 90}, {X: 60, Y: 170}}
	for n := 5; n <= len(layer); n++ {
		corrs := make([]Correspondence, n)
		for i, p := range layer[:n] {
			corrs[i] = Correspondence{Layer: p, Base: project(t, testH, p)}
		}
		fit, err := EstimateHomography(corrs, Options{})
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, fit.InlierCount)
		assertSameMapping(t, testH, fit.H, 1e-3)
	}
}

func TestDistinctSupport(t *testing.T) {
	src := []geometry.Point2D{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}, // sample
		{X: 1, Y: 1},     // next to a sample point
		{X: 50, Y: 50},   // distinct
		{X: 51, Y: 50},   // duplicate of the previous one
		{X: 200, Y: 200}, // distinct but not an inlier
	}
	mask := []bool{true, true, true, true, true, true, true, false}
	assert.Equal(t, 1, distinctSupport(mask, src, [4]int{0, 1, 2, 3}, 6))
}

func TestEstimateIsReproducible(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 6, 6)
	rng := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 30; i++ {
		corrs = append(corrs, Correspondence{
			Layer: geometry.NewPoint2D(rng.Float64()*320, rng.Float64()*240),
			Base:  geometry.NewPoint2D(rng.Float64()*320, rng.Float64()*240),
		})
	}

	a, err := EstimateHomography(corrs, Options{Seed: 99})
	require.NoError(t, err)
	b, err := EstimateHomography(corrs, Options{Seed: 99})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAdaptiveIterations(t *testing.T) {
	assert.Equal(t, 1, adaptiveIterations(1, 0.995))
	assert.Equal(t, math.MaxInt, adaptiveIterations(0, 0.995))

	half := adaptiveIterations(0.5, 0.995)
	assert.Equal(t, int(math.Ceil(math.Log(1-0.995)/math.Log(1-0.0625))), half)
	assert.Greater(t, adaptiveIterations(0.3, 0.995), half)
}

func TestSampleUsableRejectsFoldedSample(t *testing.T) {
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	mirrored := []geometry.Point2D{{X: 0, Y: 0}, {X: -10, Y: 0}, {X: -10, Y: 10}, {X: 0, Y: 10}}
	idx := [4]int{0, 1, 2, 3}

	assert.True(t, sampleUsable(src, src, idx))
	assert.False(t, sampleUsable(src, mirrored, idx))

	line := []geometry.Point2D{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	assert.False(t, sampleUsable(line, src, idx))
}

func TestResiduals(t *testing.T) {
	corrs := []Correspondence{
		{Layer: geometry.NewPoint2D(0, 0), Base: geometry.NewPoint2D(3, 4)},
		{Layer: geometry.NewPoint2D(1, 1), Base: geometry.NewPoint2D(1, 1)},
	}
	r := Residuals(geometry.IdentityHomography(), corrs)
	assert.InDeltaSlice(t, []float64{5, 0}, r, 1e-12)
}

func TestLeastSquaresMatchesExactModel(t *testing.T) {
	corrs := gridCorrespondences(t, testH, 5, 4)
	src := make([]geometry.Point2D, len(corrs))
	dst := make([]geometry.Point2D, len(corrs))
	for i, c := range corrs {
		src[i], dst[i] = c.Layer, c.Base
	}
	h, ok := solveLeastSquares(src, dst)
	require.True(t, ok)
	assertSameMapping(t, testH, h, 1e-4)
}
