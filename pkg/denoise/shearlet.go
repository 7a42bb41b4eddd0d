package denoise

import (
	"context"
	"fmt"
	"slices"

	"medidenoise/internal/models"
	"medidenoise/pkg/shearlet"
)

// ShearletModel is the built-in denoiser. It needs no external runtime and
// denoises each channel with shearlet edge-preserving smoothing.
type ShearletModel struct {
	transform *shearlet.Transform
	opts      shearlet.Options
}

// NewShearletModel creates the built-in model with default options
func NewShearletModel() *ShearletModel {
	return &ShearletModel{
		transform: shearlet.NewDefaultTransform(),
		opts:      shearlet.DefaultOptions(),
	}
}

// Predict denoises every image and channel of the batch. Channels identical
// to an already processed one reuse its result.
func (m *ShearletModel) Predict(ctx context.Context, batch models.Batch) (models.Batch, error) {
	if batch.Len() != len(batch.Data) || batch.Len() == 0 {
		return models.Batch{}, fmt.Errorf("%w: batch %v holds %d values", ErrShape, batch.Shape(), len(batch.Data))
	}

	out := models.Batch{N: batch.N, H: batch.H, W: batch.W, C: batch.C, Data: make([]float32, len(batch.Data))}
	plane := batch.H * batch.W
	stride := plane * batch.C

	for n := 0; n < batch.N; n++ {
		img := batch.Data[n*stride : (n+1)*stride]
		var inputs, results [][]float64

		for c := 0; c < batch.C; c++ {
			channel := make([]float64, plane)
			for i := range channel {
				channel[i] = float64(img[i*batch.C+c])
			}

			var denoised []float64
			for k, prev := range inputs {
				if slices.Equal(prev, channel) {
					denoised = results[k]
					break
				}
			}
			if denoised == nil {
				var err error
				denoised, err = m.transform.Denoise(ctx, channel, batch.W, batch.H, m.opts)
				if err != nil {
					return models.Batch{}, err
				}
				inputs = append(inputs, channel)
				results = append(results, denoised)
			}

			dst := out.Data[n*stride : (n+1)*stride]
			for i, v := range denoised {
				dst[i*batch.C+c] = float32(v)
			}
		}
	}

	return out, nil
}
