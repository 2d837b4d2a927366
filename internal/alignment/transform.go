package alignment

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"layer-align/pkg/geometry"
)

const (
	// minCorrespondences is the size of a minimal homography sample.
	minCorrespondences = 4

	// collinearTolerance is the sine below which three sample points are
	// treated as collinear.
	collinearTolerance = 1e-3

	// maxCondition bounds the 2-norm condition number of an accepted
	// homography.
	maxCondition = 1e12

	refineRounds = 3

	// minSupport is the number of distinct inliers, besides the sample
	// that produced a model, needed to accept it. Smaller sets must agree
	// completely.
	minSupport = 4

	// supportRadius, in multiples of the inlier threshold, merges inliers
	// whose layer points lie this close together into one. The pyramid
	// detects the same corner at several levels.
	supportRadius = 2
)

// Correspondence pairs a layer point with the base point it should map to.
type Correspondence struct {
	Base  geometry.Point2D
	Layer geometry.Point2D
}

// Fit is a homography estimated from correspondences.
type Fit struct {
	H           geometry.Homography // maps layer pixels to base pixels, H[2][2] == 1
	Inliers     []bool              // Inliers[i] reports whether correspondence i agrees with H
	InlierCount int
	Iterations  int     // RANSAC iterations run
	MeanError   float64 // mean reprojection error over the inliers, in base pixels
}

// EstimateHomography fits the homography mapping layer points to base
// points with RANSAC. Sampling is driven by opts.Seed, so equal inputs and
// options give equal results.
//
// Fewer than four correspondences fail with ErrInsufficientCorrespondences.
// A consensus below four inliers or below opts.MinInlierRatio, a model
// supported by nothing but its own sample, or a model that cannot be
// normalised, fails with ErrDegenerateFit.
func EstimateHomography(corrs []Correspondence, opts Options) (*Fit, error) {
	opts = opts.withDefaults()
	n := len(corrs)
	if n < minCorrespondences {
		return nil, newError(ReasonInsufficientCorrespondences, StageFiltered, nil,
			"%d correspondences, need %d", n, minCorrespondences)
	}

	src := make([]geometry.Point2D, n)
	dst := make([]geometry.Point2D, n)
	for i, c := range corrs {
		src[i] = c.Layer
		dst[i] = c.Base
	}

	srcNorm, ts, okS := normalizePoints(src)
	dstNorm, td, okD := normalizePoints(dst)
	if !okS || !okD {
		return nil, newError(ReasonDegenerateFit, StageFiltered, nil, "all points coincide")
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xa0761d6478bd642f))

	bestCount := -1
	var bestH geometry.Homography
	var bestMask []bool
	var bestSample [minCorrespondences]int

	limit := opts.RansacIterations
	iter := 0
	for iter < limit {
		iter++

		idx := sampleIndices(rng, n)
		if !sampleUsable(src, dst, idx) {
			continue
		}
		hn, ok := solveMinimal(srcNorm, dstNorm, idx)
		if !ok {
			continue
		}
		h := denormalize(hn, ts, td)

		count, mask := countInliers(h, src, dst, opts.RansacThreshold)
		if count > bestCount {
			bestCount, bestH, bestMask, bestSample = count, h, mask, idx
			limit = min(opts.RansacIterations,
				adaptiveIterations(float64(count)/float64(n), opts.Confidence))
		}
	}

	if bestCount < 0 {
		return nil, newError(ReasonDegenerateFit, StageFiltered, nil,
			"no non-degenerate sample in %d iterations", iter)
	}
	if bestCount < minCorrespondences || float64(bestCount)/float64(n) < opts.MinInlierRatio {
		return nil, newError(ReasonDegenerateFit, StageFiltered, nil,
			"consensus of %d out of %d correspondences", bestCount, n)
	}
	need := min(minSupport, n-minCorrespondences)
	if got := distinctSupport(bestMask, src, bestSample, supportRadius*opts.RansacThreshold); got < need {
		return nil, newError(ReasonDegenerateFit, StageFiltered, nil,
			"%d distinct inliers outside the minimal sample, need %d", got, need)
	}

	if !opts.SkipRefinement {
		bestH, bestCount, bestMask = refine(bestH, bestCount, bestMask, src, dst, opts.RansacThreshold)
	}

	h, ok := bestH.Normalize()
	if !ok || !wellConditioned(h) {
		return nil, newError(ReasonDegenerateFit, StageFiltered, nil, "singular homography")
	}

	return &Fit{
		H:           h,
		Inliers:     bestMask,
		InlierCount: bestCount,
		Iterations:  iter,
		MeanError:   meanError(h, src, dst, bestMask),
	}, nil
}

// refine refits H to its inlier set by least squares and keeps the refit
// only while it does not lose inliers.
func refine(h geometry.Homography, count int, mask []bool, src, dst []geometry.Point2D, threshold float64) (geometry.Homography, int, []bool) {
	for round := 0; round < refineRounds; round++ {
		var in, out []geometry.Point2D
		for i, ok := range mask {
			if ok {
				in = append(in, src[i])
				out = append(out, dst[i])
			}
		}

		refit, ok := solveLeastSquares(in, out)
		if !ok {
			break
		}
		c, m := countInliers(refit, src, dst, threshold)
		if c < count {
			break
		}
		grew := c > count
		h, count, mask = refit, c, m
		if !grew {
			break
		}
	}
	return h, count, mask
}

// Residuals returns the reprojection distance of every correspondence
// under h. Points that map to infinity get +Inf.
func Residuals(h geometry.Homography, corrs []Correspondence) []float64 {
	out := make([]float64, len(corrs))
	for i, c := range corrs {
		p, ok := h.Apply(c.Layer)
		if !ok {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = p.Distance(c.Base)
	}
	return out
}

// distinctSupport counts the inliers that are neither sample points nor
// within radius (in the layer image) of a sample point or of an inlier
// counted before.
func distinctSupport(mask []bool, src []geometry.Point2D, sample [minCorrespondences]int, radius float64) int {
	taken := make([]geometry.Point2D, 0, 2*minCorrespondences)
	for _, i := range sample {
		taken = append(taken, src[i])
	}
	count := 0
	for i, in := range mask {
		if !in {
			continue
		}
		near := false
		for _, q := range taken {
			if src[i].Distance(q) <= radius {
				near = true
				break
			}
		}
		if !near {
			taken = append(taken, src[i])
			count++
		}
	}
	return count
}

func countInliers(h geometry.Homography, src, dst []geometry.Point2D, threshold float64) (int, []bool) {
	mask := make([]bool, len(src))
	count := 0
	for i := range src {
		p, ok := h.Apply(src[i])
		if ok && p.Distance(dst[i]) <= threshold {
			mask[i] = true
			count++
		}
	}
	return count, mask
}

func meanError(h geometry.Homography, src, dst []geometry.Point2D, mask []bool) float64 {
	var sum float64
	n := 0
	for i, ok := range mask {
		if !ok {
			continue
		}
		if p, ok := h.Apply(src[i]); ok {
			sum += p.Distance(dst[i])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// adaptiveIterations returns the number of samples needed to draw one
// all-inlier sample with the given confidence at inlier ratio w.
func adaptiveIterations(w, confidence float64) int {
	if w >= 1 {
		return 1
	}
	p := math.Pow(w, minCorrespondences)
	denom := math.Log(1 - p)
	if p <= 0 || denom >= 0 {
		return math.MaxInt
	}
	n := math.Ceil(math.Log(1-confidence) / denom)
	if n >= float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return max(int(n), 1)
}

// sampleIndices draws four distinct indices below n.
func sampleIndices(rng *rand.Rand, n int) [minCorrespondences]int {
	var idx [minCorrespondences]int
	for i := 0; i < minCorrespondences; i++ {
	draw:
		for {
			v := rng.IntN(n)
			for j := 0; j < i; j++ {
				if idx[j] == v {
					continue draw
				}
			}
			idx[i] = v
			break
		}
	}
	return idx
}

// sampleUsable rejects samples with three collinear points in either
// image, and samples whose triangles change orientation between images.
func sampleUsable(src, dst []geometry.Point2D, idx [minCorrespondences]int) bool {
	triples := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	for _, t := range triples {
		a, b, c := idx[t[0]], idx[t[1]], idx[t[2]]
		if geometry.Collinear(src[a], src[b], src[c], collinearTolerance) ||
			geometry.Collinear(dst[a], dst[b], dst[c], collinearTolerance) {
			return false
		}
		s := geometry.Cross(src[a], src[b], src[c])
		d := geometry.Cross(dst[a], dst[b], dst[c])
		if (s > 0) != (d > 0) {
			return false
		}
	}
	return true
}

// normalizePoints translates the centroid to the origin and scales the
// mean distance to sqrt(2). It fails when all points coincide.
func normalizePoints(pts []geometry.Point2D) ([]geometry.Point2D, geometry.Homography, bool) {
	c := geometry.Centroid(pts)
	var mean float64
	for _, p := range pts {
		mean += p.Distance(c)
	}
	mean /= float64(len(pts))
	if mean < 1e-12 {
		return nil, geometry.Homography{}, false
	}

	s := math.Sqrt2 / mean
	t := geometry.Homography{
		{s, 0, -s * c.X},
		{0, s, -s * c.Y},
		{0, 0, 1},
	}
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point2D{X: s * (p.X - c.X), Y: s * (p.Y - c.Y)}
	}
	return out, t, true
}

// denormalize undoes the point normalisation: H = Td^-1 * Hn * Ts.
func denormalize(hn, ts, td geometry.Homography) geometry.Homography {
	s := td[0][0]
	tdInv := geometry.Homography{
		{1 / s, 0, -td[0][2] / s},
		{0, 1 / s, -td[1][2] / s},
		{0, 0, 1},
	}
	return tdInv.Mul(hn).Mul(ts)
}

// solveMinimal solves the 8x8 system for the homography through four
// normalised pairs with h22 fixed to 1.
func solveMinimal(src, dst []geometry.Point2D, idx [minCorrespondences]int) (geometry.Homography, bool) {
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i, k := range idx {
		x, y := src[k].X, src[k].Y
		u, v := dst[k].X, dst[k].Y

		// u = (h00 x + h01 y + h02) / (h20 x + h21 y + 1)
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -u*x)
		A.Set(i*2, 7, -u*y)
		B.SetVec(i*2, u)

		// v = (h10 x + h11 y + h12) / (h20 x + h21 y + 1)
		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -v*x)
		A.Set(i*2+1, 7, -v*y)
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.Homography{}, false
	}

	var h geometry.Homography
	for i := 0; i < 8; i++ {
		v := params.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return geometry.Homography{}, false
		}
		h[i/3][i%3] = v
	}
	h[2][2] = 1
	return h, true
}

// solveLeastSquares fits a homography to n >= 4 pairs with the normalised
// DLT: the solution is the eigenvector of AᵀA with the smallest eigenvalue.
func solveLeastSquares(src, dst []geometry.Point2D) (geometry.Homography, bool) {
	if len(src) < minCorrespondences {
		return geometry.Homography{}, false
	}
	sn, ts, okS := normalizePoints(src)
	dn, td, okD := normalizePoints(dst)
	if !okS || !okD {
		return geometry.Homography{}, false
	}

	A := mat.NewDense(2*len(sn), 9, nil)
	for i := range sn {
		x, y := sn[i].X, sn[i].Y
		u, v := dn[i].X, dn[i].Y
		A.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		A.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var ata mat.SymDense
	ata.SymOuterK(1, A.T())

	var eig mat.EigenSym
	if !eig.Factorize(&ata, true) {
		return geometry.Homography{}, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	smallest := 0
	for i, v := range values {
		if v < values[smallest] {
			smallest = i
		}
	}

	var hn geometry.Homography
	for i := 0; i < 9; i++ {
		hn[i/3][i%3] = vectors.At(i, smallest)
	}
	h, ok := denormalize(hn, ts, td).Normalize()
	return h, ok
}

// wellConditioned rejects singular or numerically unusable homographies.
func wellConditioned(h geometry.Homography) bool {
	flat := h.Flat()
	for _, v := range flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if math.Abs(h.Det()) < 1e-12 {
		return false
	}
	cond := mat.Cond(mat.NewDense(3, 3, flat[:]), 2)
	return !math.IsInf(cond, 0) && cond < maxCondition
}
