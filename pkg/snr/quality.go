package snr

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"medidenoise/internal/models"
)

// Report holds the full-reference quality metrics reported next to the
// relative SNR of a denoised image
type Report struct {
	// PSNR is the peak signal-to-noise ratio for a unit peak
	PSNR Value `json:"psnr"`

	// RMSE is the root mean square error
	RMSE float64 `json:"rmse"`

	// SSIM is the global structural similarity index
	SSIM float64 `json:"ssim"`

	// EntropyDiff is the absolute difference in Shannon entropy (bits)
	EntropyDiff float64 `json:"entropy_diff"`

	// MutualInfo is the histogram mutual information (bits)
	MutualInfo float64 `json:"mutual_information"`
}

// Compare computes the quality report on channel 0 of both images
func Compare(original, denoised *models.CanonicalImage) (Report, error) {
	if original == nil || denoised == nil {
		return Report{}, ErrEmpty
	}
	if !original.SameShape(denoised) {
		return Report{}, ErrShapeMismatch
	}

	o := original.Channel(0)
	d := denoised.Channel(0)
	if len(o) == 0 {
		return Report{}, ErrEmpty
	}
	if !allFinite(o) || !allFinite(d) {
		return Report{}, ErrNotFinite
	}

	rmse := RMSE(o, d)
	return Report{
		PSNR:        PSNR(rmse, 1.0),
		RMSE:        rmse,
		SSIM:        SSIM(o, d),
		EntropyDiff: math.Abs(Entropy(o) - Entropy(d)),
		MutualInfo:  MutualInformation(o, d),
	}, nil
}

// RMSE computes the root mean square error
func RMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	mse := 0.0
	for i := 0; i < n; i++ {
		diff := original[i] - reconstructed[i]
		mse += diff * diff
	}
	mse /= float64(n)

	return math.Sqrt(mse)
}

// PSNR converts an RMSE to decibels against the given peak value.
// A perfect match is the +∞ sentinel.
func PSNR(rmse, peak float64) Value {
	if rmse == 0 {
		return Infinite()
	}
	return Finite(20 * math.Log10(peak/rmse))
}

// SSIM computes the Structural Similarity Index over the whole plane
func SSIM(original, reconstructed []float64) float64 {
	// Constants for a unit dynamic range
	const L = 1.0
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	n := len(original)
	if n != len(reconstructed) || n < 2 {
		return 0
	}

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)

	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den
	}
	return 0
}

// Entropy computes the Shannon entropy of data over 256 bins spanning its range
func Entropy(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}

	min, max := findMinMax(data)

	// If all values are the same, entropy is 0
	if max <= min {
		return 0
	}

	const numBins = 256
	hist := make([]float64, numBins)
	for _, v := range data {
		hist[binIndex(v, min, max, numBins)]++
	}

	entropy := 0.0
	for _, count := range hist {
		if count > 0 {
			p := count / float64(n)
			entropy -= p * math.Log2(p)
		}
	}

	return entropy
}

// MutualInformation estimates I(X;Y) in bits from a 64x64 joint histogram.
// Each axis spans the range of its own data; a constant input carries no
// information.
func MutualInformation(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	minX, maxX := findMinMax(original)
	minY, maxY := findMinMax(reconstructed)
	if maxX <= minX || maxY <= minY {
		return 0
	}

	const numBins = 64
	joint := make([]float64, numBins*numBins)
	px := make([]float64, numBins)
	py := make([]float64, numBins)
	for i := range original {
		bx := binIndex(original[i], minX, maxX, numBins)
		by := binIndex(reconstructed[i], minY, maxY, numBins)
		joint[bx*numBins+by]++
		px[bx]++
		py[by]++
	}

	total := float64(n)
	mi := 0.0
	for bx := 0; bx < numBins; bx++ {
		for by := 0; by < numBins; by++ {
			c := joint[bx*numBins+by]
			if c == 0 {
				continue
			}
			pxy := c / total
			mi += pxy * math.Log2(pxy*total*total/(px[bx]*py[by]))
		}
	}
	return math.Max(0, mi)
}

func binIndex(v, min, max float64, numBins int) int {
	idx := int((v - min) / (max - min) * float64(numBins))
	if idx >= numBins {
		return numBins - 1
	}
	if idx < 0 {
		return 0
	}
	return idx
}

// findMinMax returns the minimum and maximum values in a slice
func findMinMax(data []float64) (min, max float64) {
	if len(data) == 0 {
		return 0, 0
	}

	min = data[0]
	max = data[0]

	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return min, max
}
