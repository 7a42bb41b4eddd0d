package shearlet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultScales is the number of dyadic scales analysed
const DefaultScales = 3

// ErrInvalidSize is returned when the data length does not match width x height
var ErrInvalidSize = errors.New("data does not match image dimensions")

// Transform implements a cone-adapted discrete shearlet transform evaluated in
// the frequency domain. Filter banks are built per image size and cached, so a
// single Transform can serve concurrent callers.
type Transform struct {
	scales    int
	coneParam float64
	workers   int

	mu    sync.Mutex
	banks map[bankKey][]filter
}

type bankKey struct {
	width  int
	height int
}

// filter is one shearlet in the frequency domain together with the edge
// orientation it responds to
type filter struct {
	scale       int
	shear       int
	orientation float64
	psi         []float64
}

// EdgeInfo holds edge detection information
type EdgeInfo struct {
	Edges        []float64
	Orientations []float64
}

// NewTransform creates a transform with the given number of scales
func NewTransform(scales int) *Transform {
	if scales <= 0 {
		scales = DefaultScales
	}
	return &Transform{
		scales:    scales,
		coneParam: 1.0,
		workers:   runtime.NumCPU(),
		banks:     make(map[bankKey][]filter),
	}
}

// NewDefaultTransform creates a transform with DefaultScales scales
func NewDefaultTransform() *Transform {
	return NewTransform(DefaultScales)
}

// Scales returns the number of scales
func (t *Transform) Scales() int { return t.scales }

// bank returns the cached filter bank for a padded spectrum size
func (t *Transform) bank(plan *plan2D) []filter {
	key := bankKey{plan.width, plan.height}

	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.banks[key]; ok {
		return b
	}

	var b []filter
	for scale := 0; scale < t.scales; scale++ {
		maxShear := 1 << scale
		for _, shear := range t.getShearRange(maxShear) {
			for cone := 0; cone < 2; cone++ {
				b = append(b, t.createShearletFilter(plan, scale, shear, cone))
			}
		}
	}
	t.banks[key] = b
	return b
}

// getShearRange returns the range of shear parameters for a given maximum shear
func (t *Transform) getShearRange(maxShear int) []int {
	shearRange := make([]int, 2*maxShear+1)
	for i := 0; i <= 2*maxShear; i++ {
		shearRange[i] = i - maxShear
	}
	return shearRange
}

// createShearletFilter builds the frequency response of one shearlet.
// Cone 0 covers |fx| >= |fy| (edges closer to vertical), cone 1 the rest.
func (t *Transform) createShearletFilter(plan *plan2D, scale, shear, cone int) filter {
	maxShear := float64(int(1) << scale)
	slope := float64(shear) / maxShear
	centre := 0.3 / math.Pow(2, float64(scale))

	psi := make([]float64, plan.width*plan.height)
	for i := 0; i < plan.height; i++ {
		fy := plan.freqY(i)
		for j := 0; j < plan.width; j++ {
			fx := plan.freqX(j)

			var s float64
			switch {
			case cone == 0 && fx != 0 && math.Abs(fx) >= math.Abs(fy):
				s = fy / fx
			case cone == 1 && fy != 0 && math.Abs(fy) > math.Abs(fx):
				s = fx / fy
			default:
				continue
			}

			radial := bandpass(math.Hypot(fx, fy), centre)
			d := (s - slope) * maxShear / t.coneParam
			angular := math.Exp(-0.5 * d * d)

			psi[i*plan.width+j] = radial * angular
		}
	}

	orientation := math.Atan(slope)
	if cone == 1 {
		orientation = math.Pi/2 - orientation
		if orientation > math.Pi/2 {
			orientation -= math.Pi
		}
	}

	return filter{scale: scale, shear: shear, orientation: orientation, psi: psi}
}

// bandpass is a log-Gaussian radial window half an octave wide
func bandpass(radius, centre float64) float64 {
	if radius <= 0 {
		return 0
	}
	octaves := math.Log2(radius / centre)
	return math.Exp(-octaves * octaves / (2 * 0.5 * 0.5))
}

// scalingFunction builds the Meyer low-pass window that passes frequencies
// below cutoff and rolls off to zero at twice the cutoff
func scalingFunction(plan *plan2D, cutoff float64) []float64 {
	phi := make([]float64, plan.width*plan.height)
	for i := 0; i < plan.height; i++ {
		fy := plan.freqY(i)
		for j := 0; j < plan.width; j++ {
			r := math.Hypot(plan.freqX(j), fy)

			var value float64
			if r <= cutoff {
				value = 1
			} else if r <= 2*cutoff {
				value = math.Cos(math.Pi / 2 * meyer(r/cutoff-1))
			}
			phi[i*plan.width+j] = value
		}
	}
	return phi
}

// DetectEdgesWithOrientation applies the shearlet transform to detect edges
// and their orientations. Edge strengths are normalized to [0,1].
func (t *Transform) DetectEdgesWithOrientation(ctx context.Context, data []float64, width, height int) (EdgeInfo, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return EdgeInfo{}, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidSize, len(data), width, height)
	}

	plan := newPlan2D(2*width, 2*height)
	spectrum := plan.forward(mirrorPad(data, width, height))
	return t.analyze(ctx, plan, spectrum, width, height)
}

// analyze applies every filter of the bank to a padded spectrum and keeps the
// strongest response per pixel
func (t *Transform) analyze(ctx context.Context, plan *plan2D, spectrum []complex128, width, height int) (EdgeInfo, error) {
	bank := t.bank(plan)
	responses := make([][]float64, len(bank))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for k := range bank {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := newPlan2D(plan.width, plan.height)
			responses[k] = applyFilter(local, spectrum, bank[k].psi, width, height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EdgeInfo{}, err
	}

	n := width * height
	edges := make([]float64, n)
	orientations := make([]float64, n)

	maxEdge := 0.0
	for i := 0; i < n; i++ {
		best := 0.0
		bestIdx := -1
		for k, resp := range responses {
			if v := math.Abs(resp[i]); v > best {
				best = v
				bestIdx = k
			}
		}
		edges[i] = best
		if bestIdx >= 0 {
			orientations[i] = bank[bestIdx].orientation
		}
		if best > maxEdge {
			maxEdge = best
		}
	}

	// responses at round-off level mean the image has no structure
	if maxEdge > 1e-9 {
		for i := range edges {
			edges[i] /= maxEdge
		}
	} else {
		clear(edges)
	}

	return EdgeInfo{Edges: edges, Orientations: orientations}, nil
}

// applyFilter multiplies a spectrum by a real frequency response and returns
// the cropped spatial result
func applyFilter(plan *plan2D, spectrum []complex128, response []float64, width, height int) []float64 {
	buf := make([]complex128, len(spectrum))
	for i, c := range spectrum {
		buf[i] = c * complex(response[i], 0)
	}
	return crop(plan.inverse(buf), plan.width, width, height)
}

// DetectEdges is a simplified version that only returns the edge map
func (t *Transform) DetectEdges(ctx context.Context, data []float64, width, height int) ([]float64, error) {
	info, err := t.DetectEdgesWithOrientation(ctx, data, width, height)
	if err != nil {
		return nil, err
	}
	return info.Edges, nil
}

// DetectEdgesWithThreshold detects edges using a custom threshold value
func (t *Transform) DetectEdgesWithThreshold(ctx context.Context, data []float64, width, height int, threshold float64) ([]float64, error) {
	edges, err := t.DetectEdges(ctx, data, width, height)
	if err != nil {
		return nil, err
	}

	for i, e := range edges {
		if e > threshold {
			edges[i] = 1.0
		} else {
			edges[i] = 0.0
		}
	}
	return edges, nil
}

// applyEdgePreservedSmoothing runs mean-median smoothing along edges whose
// orientation is irregular within a 5x5 window
func (t *Transform) applyEdgePreservedSmoothing(data []float64, width, height int, info EdgeInfo, threshold float64) {
	n := width * height
	edgePixels := make([]bool, n)
	for i := 0; i < n; i++ {
		edgePixels[i] = info.Edges[i] > threshold
	}

	orientations := info.Orientations
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			pixelIdx := y*width + x
			if !edgePixels[pixelIdx] {
				continue
			}

			var changed bool
			orientations, changed = t.processEdgeWindow(x, y, width, height, edgePixels, orientations)
			if changed {
				t.applyMeanMedianLogic(data, x, y, width, height, orientations[pixelIdx])
			}
		}
	}
}

// processEdgeWindow checks the 5x5 window around (x,y) for orientation
// changes and, when they dominate, replaces the window's edge orientations
// with their mean
func (t *Transform) processEdgeWindow(x, y, width, height int, edgePixels []bool, orientations []float64) ([]float64, bool) {
	const windowSize = 16
	edgePixelIndices := make([]int, 0, windowSize)

	for j := y - 2; j <= y+2 && len(edgePixelIndices) < windowSize; j++ {
		for i := x - 2; i <= x+2; i++ {
			if i < 0 || i >= width || j < 0 || j >= height {
				continue
			}
			if idx := j*width + i; edgePixels[idx] {
				edgePixelIndices = append(edgePixelIndices, idx)
				if len(edgePixelIndices) >= windowSize {
					break
				}
			}
		}
	}

	if len(edgePixelIndices) < 3 {
		return orientations, false
	}

	changes := 0
	for i := 1; i < len(edgePixelIndices); i++ {
		diff := math.Abs(orientations[edgePixelIndices[i]] - orientations[edgePixelIndices[i-1]])
		if diff > 0.2 {
			changes++
		}
	}

	if float64(changes)/float64(len(edgePixelIndices)) <= 0.3 {
		return orientations, false
	}

	sum := 0.0
	for _, idx := range edgePixelIndices {
		sum += orientations[idx]
	}
	mean := sum / float64(len(edgePixelIndices))

	updated := slices.Clone(orientations)
	for _, idx := range edgePixelIndices {
		updated[idx] = mean
	}
	return updated, true
}

// applyMeanMedianLogic replaces the 3x3 neighbourhood of (x,y) with the
// median of its own side of the edge
func (t *Transform) applyMeanMedianLogic(data []float64, x, y, width, height int, orientation float64) {
	// near-vertical edges split left/right, the rest split above/below
	vertical := orientation >= -math.Pi/4 && orientation < math.Pi/4

	side := func(dx, dy int) int {
		d := dy
		if vertical {
			d = dx
		}
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
		return 0
	}

	var before, after []float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			switch side(dx, dy) {
			case -1:
				before = append(before, data[ny*width+nx])
			case 1:
				after = append(after, data[ny*width+nx])
			}
		}
	}

	if len(before) < 3 || len(after) < 3 {
		return
	}

	beforeMedian := median(before)
	afterMedian := median(after)

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			switch side(dx, dy) {
			case -1:
				data[ny*width+nx] = beforeMedian
			case 1:
				data[ny*width+nx] = afterMedian
			}
		}
	}
}

// median calculates the median value of a slice
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if len(sorted)%2 == 0 {
		return (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	return sorted[len(sorted)/2]
}

// meyer implements the Meyer auxiliary function used in wavelet construction.
func meyer(t float64) float64 {
	if t < 0 {
		return 0
	} else if t > 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
