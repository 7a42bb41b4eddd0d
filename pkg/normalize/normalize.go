// Package normalize turns a RawImage into the canonical model tensor:
// bilinear resize to a fixed square, grayscale replicated to three channels,
// intensities rescaled into the unit interval.
package normalize

import (
	"errors"
	"fmt"
	"math"

	"medidenoise/internal/models"
)

// Mode selects the rescaling divisor
type Mode string

const (
	// Fixed255 divides by 255 whatever the source bit depth. High bit depth
	// inputs (most DICOM) therefore leave the unit interval.
	Fixed255 Mode = "fixed255"

	// Dynamic divides by the image's observed maximum
	Dynamic Mode = "dynamic"
)

// ErrEmptyImage is returned for images with no pixels
var ErrEmptyImage = errors.New("image has no pixels")

// Pipeline holds the normalization parameters
type Pipeline struct {
	size     int
	channels int
	mode     Mode
}

// New creates a pipeline producing size x size x 3 images
func New(size int, mode Mode) *Pipeline {
	if size <= 0 {
		size = models.CanonicalSize
	}
	if mode != Dynamic {
		mode = Fixed255
	}
	return &Pipeline{
		size:     size,
		channels: models.CanonicalChannels,
		mode:     mode,
	}
}

// Default returns the 200x200 fixed255 pipeline
func Default() *Pipeline {
	return New(models.CanonicalSize, Fixed255)
}

// Size returns the output edge length
func (p *Pipeline) Size() int { return p.size }

// Mode returns the rescaling mode
func (p *Pipeline) Mode() Mode { return p.mode }

// Normalize resizes, replicates and rescales a raw image. The result carries
// float32 precision so it passes the model boundary unchanged.
//
// The divisor is 255 in Fixed255 mode. In Dynamic mode it is the maximum of
// the raw image; images whose maximum is not positive are left unscaled.
func (p *Pipeline) Normalize(raw *models.RawImage) (*models.CanonicalImage, error) {
	if raw == nil || raw.Width <= 0 || raw.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(raw.Pix) != raw.Width*raw.Height {
		return nil, fmt.Errorf("raw image has %d samples, expected %d", len(raw.Pix), raw.Width*raw.Height)
	}

	resized := ResizeBilinear(raw.Pix, raw.Width, raw.Height, p.size, p.size)
	img := Replicate(resized, p.size, p.size, p.channels)
	Rescale(img, p.divisor(raw))
	img.RoundToFloat32()

	return img, nil
}

// FromPlane builds a canonical image from an already unit-scaled plane of
// arbitrary size. Used when re-entering the pipeline from a decoded transport
// image, which carries no channel metadata.
func (p *Pipeline) FromPlane(plane []float64, width, height int) (*models.CanonicalImage, error) {
	if width <= 0 || height <= 0 || len(plane) != width*height {
		return nil, ErrEmptyImage
	}
	resized := ResizeBilinear(plane, width, height, p.size, p.size)
	img := Replicate(resized, p.size, p.size, p.channels)
	img.RoundToFloat32()
	return img, nil
}

func (p *Pipeline) divisor(raw *models.RawImage) float64 {
	if p.mode == Dynamic {
		if max := raw.Max(); max > 0 {
			return max
		}
		return 1
	}
	return 255.0
}

// ResizeBilinear resamples a row-major plane with half-pixel-centred bilinear
// interpolation and edge clamping. Scaling by 1 is an exact copy.
func ResizeBilinear(src []float64, sw, sh, dw, dh int) []float64 {
	dst := make([]float64, dw*dh)

	if sw == dw && sh == dh {
		copy(dst, src)
		return dst
	}

	xs0, xs1, wx := axisWeights(sw, dw)
	ys0, ys1, wy := axisWeights(sh, dh)

	for y := 0; y < dh; y++ {
		row0 := src[ys0[y]*sw : ys0[y]*sw+sw]
		row1 := src[ys1[y]*sw : ys1[y]*sw+sw]
		fy := wy[y]
		for x := 0; x < dw; x++ {
			fx := wx[x]
			top := row0[xs0[x]]*(1-fx) + row0[xs1[x]]*fx
			bottom := row1[xs0[x]]*(1-fx) + row1[xs1[x]]*fx
			dst[y*dw+x] = top*(1-fy) + bottom*fy
		}
	}

	return dst
}

// axisWeights precomputes the source indices and fractional weight for each
// destination coordinate along one axis
func axisWeights(srcLen, dstLen int) (lo, hi []int, w []float64) {
	lo = make([]int, dstLen)
	hi = make([]int, dstLen)
	w = make([]float64, dstLen)

	scale := float64(srcLen) / float64(dstLen)
	for d := 0; d < dstLen; d++ {
		pos := (float64(d)+0.5)*scale - 0.5
		i0 := int(math.Floor(pos))
		frac := pos - float64(i0)

		if i0 < 0 {
			i0, frac = 0, 0
		}
		if i0 >= srcLen-1 {
			i0, frac = srcLen-1, 0
		}
		i1 := i0 + 1
		if i1 > srcLen-1 {
			i1 = srcLen - 1
		}

		lo[d], hi[d], w[d] = i0, i1, frac
	}
	return lo, hi, w
}

// Replicate copies a single plane into every channel of a new image
func Replicate(plane []float64, width, height, channels int) *models.CanonicalImage {
	img := models.NewCanonicalImage(width, height, channels)
	for i, v := range plane {
		base := i * channels
		for c := 0; c < channels; c++ {
			img.Pix[base+c] = v
		}
	}
	return img
}

// Rescale divides every value by divisor in place
func Rescale(img *models.CanonicalImage, divisor float64) {
	if divisor == 0 || divisor == 1 {
		return
	}
	for i := range img.Pix {
		img.Pix[i] /= divisor
	}
}
