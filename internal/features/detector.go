package features

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"layer-align/internal/raster"
)

// Detector finds keypoints and computes descriptors. It is safe for
// concurrent use; all state is immutable after NewDetector.
type Detector struct {
	cfg     Config
	pattern []testPair
	orient  orientation
}

// NewDetector validates cfg, filling zero fields with defaults.
func NewDetector(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:     cfg,
		pattern: generatePattern(cfg.DescriptorBits, cfg.PatchSize),
		orient:  newOrientation(cfg.PatchSize),
	}, nil
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect finds up to MaxKeypoints keypoints on a single-channel image.
// An image without corners yields an empty set and no error. Pyramid
// levels are processed concurrently; the result does not depend on
// scheduling.
func (d *Detector) Detect(ctx context.Context, img *raster.Image) (*Set, error) {
	if img == nil {
		return nil, errors.New("detect: nil image")
	}
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	gray, err := img.Gray()
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	levels := buildPyramid(gray, d.cfg)
	if len(levels) == 0 {
		return &Set{}, nil
	}
	budgets := levelBudgets(d.cfg.MaxKeypoints, len(levels), d.cfg.ScaleFactor)

	results := make([]Set, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	for i, lv := range levels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.detectLevel(lv, budgets[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r.Keypoints)
	}
	set := &Set{
		Keypoints:   make([]Keypoint, 0, total),
		Descriptors: make([]Descriptor, 0, total),
	}
	for _, r := range results {
		set.Keypoints = append(set.Keypoints, r.Keypoints...)
		set.Descriptors = append(set.Descriptors, r.Descriptors...)
	}
	return set, nil
}

// detectLevel runs FAST, keeps the strongest 2*budget corners by FAST
// score, ranks those by Harris response and describes the best budget.
func (d *Detector) detectLevel(lv level, budget int) Set {
	if budget <= 0 {
		return Set{}
	}

	cands := detectFAST(lv.img, d.cfg.FastThreshold, d.cfg.EdgeThreshold)
	if len(cands) == 0 {
		return Set{}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})
	if len(cands) > 2*budget {
		cands = cands[:2*budget]
	}

	for i := range cands {
		cands[i].response = harrisResponse(lv.img, cands[i].x, cands[i].y)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].response > cands[j].response
	})
	if len(cands) > budget {
		cands = cands[:budget]
	}

	smooth := smoothLevel(lv.img)
	size := float64(d.cfg.PatchSize) * lv.scale
	nbytes := d.cfg.DescriptorBits / 8

	out := Set{
		Keypoints:   make([]Keypoint, len(cands)),
		Descriptors: make([]Descriptor, len(cands)),
	}
	for i, c := range cands {
		angle := d.orient.angle(lv.img, c.x, c.y)
		desc := make(Descriptor, nbytes)
		describe(smooth, c.x, c.y, angle, d.pattern, desc)

		x, y := lv.toBase(c.x, c.y)
		out.Keypoints[i] = Keypoint{
			X:        x,
			Y:        y,
			Angle:    angle,
			Size:     size,
			Response: c.response,
			Octave:   lv.index,
		}
		out.Descriptors[i] = desc
	}
	return out
}
