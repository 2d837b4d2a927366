// Package batch aligns many layers against one base image with a bounded
// number of concurrent workers.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"layer-align/internal/alignment"
	"layer-align/internal/logging"
	"layer-align/internal/raster"
)

// AlignFunc registers layer onto base.
type AlignFunc func(ctx context.Context, base, layer *raster.Image, opts alignment.Options) (*alignment.Result, error)

// Layer is one input. Image is used when set, otherwise Path is loaded.
type Layer struct {
	Name  string
	Path  string
	Image *raster.Image
}

// Outcome is the result for the layer at the same index of the input.
type Outcome struct {
	Layer    Layer
	Result   *alignment.Result
	Err      error
	Reason   alignment.Reason
	Duration time.Duration
}

// OK reports whether the layer was aligned.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// Runner dispatches alignment jobs.
type Runner struct {
	Jobs    int // concurrent alignments, runtime.NumCPU() when zero
	Options alignment.Options
	Align   AlignFunc // alignment.Align when nil
	Logger  *slog.Logger
}

// Run aligns every layer against base. Failures are reported per layer and
// never stop the other jobs; a cancelled context marks the jobs that had
// not started yet.
func (r *Runner) Run(ctx context.Context, base *raster.Image, layers []Layer) []Outcome {
	align := r.Align
	if align == nil {
		align = alignment.Align
	}
	log := r.Logger
	if log == nil {
		log = logging.Discard()
	}
	jobs := r.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	out := make([]Outcome, len(layers))
	var g errgroup.Group
	g.SetLimit(jobs)

	for i, l := range layers {
		out[i].Layer = l
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}

			start := time.Now()
			res, err := r.alignOne(ctx, align, base, l)
			out[i].Duration = time.Since(start)
			out[i].Result = res
			out[i].Err = err
			out[i].Reason = alignment.ReasonOf(err)

			if err != nil {
				log.Debug("batch job failed", "layer", l.Name, "reason", out[i].Reason, "error", err)
			} else {
				log.Debug("batch job done", "layer", l.Name, "inliers", res.InlierCount,
					"duration_ms", out[i].Duration.Milliseconds())
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Runner) alignOne(ctx context.Context, align AlignFunc, base *raster.Image, l Layer) (*alignment.Result, error) {
	img := l.Image
	if img == nil {
		loaded, err := raster.Load(l.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %v", alignment.ErrUnreadableImage, l.Path, err)
		}
		img = loaded
	}
	return align(ctx, base, img, r.Options)
}

// Summary counts successes and failures by reason.
type Summary struct {
	Aligned  int
	Failed   int
	ByReason map[alignment.Reason]int
}

// Summarize tallies outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{ByReason: make(map[alignment.Reason]int)}
	for _, o := range outcomes {
		if o.OK() {
			s.Aligned++
			continue
		}
		s.Failed++
		s.ByReason[o.Reason]++
	}
	return s
}
