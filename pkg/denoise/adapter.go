// Package denoise runs a denoising model on canonical images.
//
// The Adapter owns the boundary with the model runtime: it adds and removes
// the batch axis, bounds each call with a timeout, validates the returned
// shape and optionally clamps the output into [0,1]. Runtimes implement Model.
package denoise

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"medidenoise/internal/models"
)

var (
	// ErrInference wraps every failure of the model call
	ErrInference = errors.New("inference failed")

	// ErrShape is returned when the model output does not match the input shape
	ErrShape = errors.New("model output shape mismatch")
)

// Model is a runtime that maps a batch to a batch of the same shape
type Model interface {
	Predict(ctx context.Context, batch models.Batch) (models.Batch, error)
}

// HealthChecker is implemented by models that can report availability
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Adapter wraps a Model for single canonical images
type Adapter struct {
	model   Model
	timeout time.Duration
	clamp   bool
	logger  zerolog.Logger
}

// NewAdapter creates an adapter. A non-positive timeout disables the deadline.
func NewAdapter(model Model, timeout time.Duration, clamp bool, logger zerolog.Logger) *Adapter {
	return &Adapter{
		model:   model,
		timeout: timeout,
		clamp:   clamp,
		logger:  logger,
	}
}

// Denoise runs the model on one image and returns a new image of the same shape
func (a *Adapter) Denoise(ctx context.Context, img *models.CanonicalImage) (*models.CanonicalImage, error) {
	if img == nil || len(img.Pix) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInference)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.model.Predict(ctx, ToBatch(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	if out.N != 1 || out.H != img.Height || out.W != img.Width || out.C != img.Channels || len(out.Data) != out.Len() {
		return nil, fmt.Errorf("%w: %w: got %v with %d values, want [1 %d %d %d]",
			ErrInference, ErrShape, out.Shape(), len(out.Data), img.Height, img.Width, img.Channels)
	}

	result := FromBatch(out)
	for _, v := range result.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: model produced non-finite values", ErrInference)
		}
	}
	if a.clamp {
		Clamp(result)
	}

	a.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Ints("shape", []int{out.N, out.H, out.W, out.C}).
		Msg("Model prediction complete")

	return result, nil
}

// CheckHealth reports model availability. Models without a health probe are
// always healthy.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	hc, ok := a.model.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.CheckHealth(ctx)
}

// ToBatch adds the batch axis, converting to float32
func ToBatch(img *models.CanonicalImage) models.Batch {
	data := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		data[i] = float32(v)
	}
	return models.Batch{N: 1, H: img.Height, W: img.Width, C: img.Channels, Data: data}
}

// FromBatch removes the batch axis of a single-element batch
func FromBatch(b models.Batch) *models.CanonicalImage {
	img := models.NewCanonicalImage(b.W, b.H, b.C)
	for i := range img.Pix {
		img.Pix[i] = float64(b.Data[i])
	}
	return img
}

// Clamp clips every value into [0,1] in place
func Clamp(img *models.CanonicalImage) {
	for i, v := range img.Pix {
		img.Pix[i] = math.Min(1, math.Max(0, v))
	}
}
