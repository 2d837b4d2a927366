//go:build gocv

// Package opencv aligns images with OpenCV's ORB, brute-force matcher,
// findHomography and warpPerspective through gocv. It mirrors the native
// pipeline's defaults and serves as a reference to compare against.
//
// Build with -tags gocv; OpenCV 4 must be installed.
package opencv

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"layer-align/internal/alignment"
	"layer-align/internal/raster"
	"layer-align/pkg/geometry"
)

// Available reports whether the backend was compiled in.
func Available() bool { return true }

// Align registers layer onto base using OpenCV.
func Align(base, layer *raster.Image, opts alignment.Options) (*alignment.Result, error) {
	d := alignment.DefaultOptions()
	if opts.MaxKeypoints == 0 {
		opts.MaxKeypoints = d.MaxKeypoints
	}
	if opts.RetentionFraction == 0 {
		opts.RetentionFraction = d.RetentionFraction
	}
	if opts.RansacThreshold == 0 {
		opts.RansacThreshold = d.RansacThreshold
	}
	if opts.RansacIterations == 0 {
		opts.RansacIterations = d.RansacIterations
	}
	if opts.Confidence == 0 {
		opts.Confidence = d.Confidence
	}

	baseMat, err := imageToMat(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base: %v", alignment.ErrUnreadableImage, err)
	}
	defer baseMat.Close()
	layerMat, err := imageToMat(layer)
	if err != nil {
		return nil, fmt.Errorf("%w: layer: %v", alignment.ErrUnreadableImage, err)
	}
	defer layerMat.Close()

	baseGray := toGray(baseMat)
	defer baseGray.Close()
	layerGray := toGray(layerMat)
	defer layerGray.Close()

	orb := gocv.NewORBWithParams(opts.MaxKeypoints, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	noMask := gocv.NewMat()
	defer noMask.Close()
	baseKps, baseDesc := orb.DetectAndCompute(baseGray, noMask)
	defer baseDesc.Close()
	layerKps, layerDesc := orb.DetectAndCompute(layerGray, noMask)
	defer layerDesc.Close()
	if len(baseKps) == 0 || len(layerKps) == 0 {
		return nil, fmt.Errorf("%w: base %d keypoints, layer %d keypoints",
			alignment.ErrNoFeaturesDetected, len(baseKps), len(layerKps))
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, opts.CrossCheck)
	defer bf.Close()

	var matches []gocv.DMatch
	for _, knn := range bf.KnnMatch(baseDesc, layerDesc, 1) {
		if len(knn) > 0 {
			matches = append(matches, knn[0])
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	total := len(matches)
	matches = matches[:int(float64(total)*opts.RetentionFraction)]
	if len(matches) < 4 {
		return nil, fmt.Errorf("%w: %d correspondences", alignment.ErrInsufficientCorrespondences, len(matches))
	}

	corrs := make([]alignment.Correspondence, len(matches))
	src := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV64FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV64FC2)
	defer dst.Close()
	for i, m := range matches {
		b := baseKps[m.QueryIdx]
		l := layerKps[m.TrainIdx]
		corrs[i] = alignment.Correspondence{
			Base:  geometry.NewPoint2D(b.X, b.Y),
			Layer: geometry.NewPoint2D(l.X, l.Y),
		}
		src.SetDoubleAt(i, 0, l.X)
		src.SetDoubleAt(i, 1, l.Y)
		dst.SetDoubleAt(i, 0, b.X)
		dst.SetDoubleAt(i, 1, b.Y)
	}

	mask := gocv.NewMat()
	defer mask.Close()
	hMat := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC,
		opts.RansacThreshold, &mask, opts.RansacIterations, opts.Confidence)
	defer hMat.Close()
	if hMat.Empty() {
		return nil, fmt.Errorf("%w: findHomography returned no model", alignment.ErrDegenerateFit)
	}

	var h geometry.Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = hMat.GetDoubleAt(r, c)
		}
	}

	inliers := make([]bool, len(matches))
	count := 0
	for i := range inliers {
		if !mask.Empty() && mask.GetUCharAt(i, 0) != 0 {
			inliers[i] = true
			count++
		}
	}

	warpedMat := gocv.NewMat()
	defer warpedMat.Close()
	gocv.WarpPerspectiveWithParams(layerMat, &warpedMat, hMat, image.Pt(base.Width, base.Height),
		gocv.InterpolationLinear, gocv.BorderConstant, opts.Background)

	warped, err := matToImage(warpedMat, layer.Channels)
	if err != nil {
		return nil, err
	}

	return &alignment.Result{
		Warped:          warped,
		Homography:      h,
		Correspondences: corrs,
		Inliers:         inliers,
		BaseKeypoints:   len(baseKps),
		LayerKeypoints:  len(layerKps),
		Matches:         total,
		Filtered:        len(matches),
		InlierCount:     count,
		Stage:           alignment.StageWarped,
	}, nil
}

func toGray(m gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if m.Channels() == 1 {
		m.CopyTo(&gray)
		return gray
	}
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	return gray
}

// imageToMat copies a raster into a BGR or single-channel Mat.
func imageToMat(img *raster.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.Mat{}, err
	}
	if img.Channels == 1 {
		return gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC1, img.Pix)
	}

	bgr := make([]byte, len(img.Pix))
	for i := 0; i < len(img.Pix); i += 3 {
		bgr[i], bgr[i+1], bgr[i+2] = img.Pix[i+2], img.Pix[i+1], img.Pix[i]
	}
	return gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, bgr)
}

// matToImage copies a BGR or single-channel Mat back into a raster.
func matToImage(m gocv.Mat, channels int) (*raster.Image, error) {
	out, err := raster.New(m.Cols(), m.Rows(), channels)
	if err != nil {
		return nil, err
	}
	for y := 0; y < m.Rows(); y++ {
		for x := 0; x < m.Cols(); x++ {
			o := (y*out.Width + x) * channels
			if channels == 1 {
				out.Pix[o] = m.GetUCharAt(y, x)
				continue
			}
			out.Pix[o+0] = m.GetUCharAt(y, x*3+2)
			out.Pix[o+1] = m.GetUCharAt(y, x*3+1)
			out.Pix[o+2] = m.GetUCharAt(y, x*3+0)
		}
	}
	return out, nil
}
