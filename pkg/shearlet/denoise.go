package shearlet

import (
	"context"
	"fmt"
)

// Options controls Denoise
type Options struct {
	// Cutoff is the low-pass pass band edge in cycles per sample
	Cutoff float64

	// EdgeLow and EdgeHigh bound the ramp from fully smoothed to fully kept
	EdgeLow  float64
	EdgeHigh float64

	// MeanMedian enables mean-median smoothing along irregular edges
	MeanMedian bool

	// MeanMedianThreshold is the edge strength above which a pixel takes part
	// in mean-median smoothing
	MeanMedianThreshold float64
}

// DefaultOptions returns the options used by the built-in denoiser
func DefaultOptions() Options {
	return Options{
		Cutoff:              0.08,
		EdgeLow:             0.1,
		EdgeHigh:            0.35,
		MeanMedian:          true,
		MeanMedianThreshold: 0.2,
	}
}

// Denoise smooths a single plane while keeping edges.
//
// The plane is low-passed with the Meyer scaling function, then blended with
// the input by shearlet edge strength: strong edges keep the input value,
// flat areas take the low-passed value. Mean-median smoothing then cleans up
// irregular edges.
func (t *Transform) Denoise(ctx context.Context, data []float64, width, height int, opts Options) ([]float64, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidSize, len(data), width, height)
	}
	if opts.Cutoff <= 0 || opts.Cutoff > 0.5 {
		return nil, fmt.Errorf("cutoff must be in (0, 0.5], got %g", opts.Cutoff)
	}
	if opts.EdgeHigh <= opts.EdgeLow {
		return nil, fmt.Errorf("edge ramp is empty: low %g, high %g", opts.EdgeLow, opts.EdgeHigh)
	}

	plan := newPlan2D(2*width, 2*height)
	spectrum := plan.forward(mirrorPad(data, width, height))

	info, err := t.analyze(ctx, plan, spectrum, width, height)
	if err != nil {
		return nil, err
	}

	low := applyFilter(plan, spectrum, scalingFunction(plan, opts.Cutoff), width, height)

	out := make([]float64, len(data))
	for i := range data {
		w := meyer((info.Edges[i] - opts.EdgeLow) / (opts.EdgeHigh - opts.EdgeLow))
		out[i] = w*data[i] + (1-w)*low[i]
	}

	if opts.MeanMedian {
		t.applyEdgePreservedSmoothing(out, width, height, info, opts.MeanMedianThreshold)
	}

	return out, nil
}
