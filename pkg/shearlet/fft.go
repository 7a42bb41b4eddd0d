package shearlet

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// plan2D performs separable 2D complex FFTs of a fixed size.
// A plan holds scratch buffers and must not be shared between goroutines.
type plan2D struct {
	width  int
	height int
	rows   *fourier.CmplxFFT
	cols   *fourier.CmplxFFT
	col    []complex128
}

func newPlan2D(width, height int) *plan2D {
	return &plan2D{
		width:  width,
		height: height,
		rows:   fourier.NewCmplxFFT(width),
		cols:   fourier.NewCmplxFFT(height),
		col:    make([]complex128, height),
	}
}

// forward returns the 2D spectrum of a real row-major image
func (p *plan2D) forward(data []float64) []complex128 {
	buf := make([]complex128, len(data))
	for i, v := range data {
		buf[i] = complex(v, 0)
	}
	p.transform(buf, false)
	return buf
}

// inverse returns the real part of the normalized inverse transform.
// coeffs is overwritten.
func (p *plan2D) inverse(coeffs []complex128) []float64 {
	p.transform(coeffs, true)

	scale := 1 / float64(p.width*p.height)
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = real(c) * scale
	}
	return out
}

// transform runs the row pass then the column pass in place
func (p *plan2D) transform(buf []complex128, inverse bool) {
	for y := 0; y < p.height; y++ {
		line := buf[y*p.width : (y+1)*p.width]
		if inverse {
			p.rows.Sequence(line, line)
		} else {
			p.rows.Coefficients(line, line)
		}
	}

	for x := 0; x < p.width; x++ {
		for y := 0; y < p.height; y++ {
			p.col[y] = buf[y*p.width+x]
		}
		if inverse {
			p.cols.Sequence(p.col, p.col)
		} else {
			p.cols.Coefficients(p.col, p.col)
		}
		for y := 0; y < p.height; y++ {
			buf[y*p.width+x] = p.col[y]
		}
	}
}

// freqX returns the relative frequency of column index i
func (p *plan2D) freqX(i int) float64 { return p.rows.Freq(i) }

// freqY returns the relative frequency of row index i
func (p *plan2D) freqY(i int) float64 { return p.cols.Freq(i) }

// mirrorPad reflects an image into a 2w x 2h canvas so the periodic
// extension assumed by the FFT has no seams at the borders
func mirrorPad(data []float64, width, height int) []float64 {
	pw, ph := 2*width, 2*height
	out := make([]float64, pw*ph)
	for y := 0; y < ph; y++ {
		sy := y
		if sy >= height {
			sy = ph - 1 - y
		}
		for x := 0; x < pw; x++ {
			sx := x
			if sx >= width {
				sx = pw - 1 - x
			}
			out[y*pw+x] = data[sy*width+sx]
		}
	}
	return out
}

// crop extracts the top-left width x height window of a padded image
func crop(padded []float64, paddedWidth, width, height int) []float64 {
	out := make([]float64, width*height)
	for y := 0; y < height; y++ {
		copy(out[y*width:(y+1)*width], padded[y*paddedWidth:y*paddedWidth+width])
	}
	return out
}
