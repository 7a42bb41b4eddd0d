package models

// CanonicalSize is the edge length, in pixels, of every CanonicalImage.
const CanonicalSize = 200

// CanonicalChannels is the channel count the denoising model consumes.
const CanonicalChannels = 3

// Source identifies which decoder produced a RawImage.
type Source string

const (
	SourceRaster Source = "raster"
	SourceDICOM  Source = "dicom"
)

// RawImage represents a decoded single-channel image before normalization
type RawImage struct {
	// Pix holds the intensities in row-major order. The value range depends
	// on the source: 0-255 for raster images, the native stored range for DICOM.
	Pix []float64

	// Width and Height are the original dimensions in pixels
	Width  int
	Height int

	// BitDepth is the number of significant bits per sample in the source
	BitDepth int

	// Source records the decoder that produced the image
	Source Source
}

// NewRawImage allocates a zeroed raw image
func NewRawImage(width, height int) *RawImage {
	return &RawImage{
		Pix:      make([]float64, width*height),
		Width:    width,
		Height:   height,
		BitDepth: 8,
		Source:   SourceRaster,
	}
}

// At returns the intensity at (x, y)
func (r *RawImage) At(x, y int) float64 {
	return r.Pix[y*r.Width+x]
}

// Set stores an intensity at (x, y)
func (r *RawImage) Set(x, y int, v float64) {
	r.Pix[y*r.Width+x] = v
}

// Max returns the largest intensity, or 0 for an empty image.
func (r *RawImage) Max() float64 {
	if len(r.Pix) == 0 {
		return 0
	}
	max := r.Pix[0]
	for _, v := range r.Pix[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// CanonicalImage represents the fixed-shape tensor exchanged by the pipeline.
// Pixels are stored interleaved (height, width, channel), matching the NHWC
// layout of the model once a batch axis is added.
type CanonicalImage struct {
	Pix      []float64
	Width    int
	Height   int
	Channels int
}

// NewCanonicalImage allocates a zeroed image of the given shape
func NewCanonicalImage(width, height, channels int) *CanonicalImage {
	return &CanonicalImage{
		Pix:      make([]float64, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// At returns the value of channel ch at (x, y)
func (c *CanonicalImage) At(x, y, ch int) float64 {
	return c.Pix[(y*c.Width+x)*c.Channels+ch]
}

// Set stores the value of channel ch at (x, y)
func (c *CanonicalImage) Set(x, y, ch int, v float64) {
	c.Pix[(y*c.Width+x)*c.Channels+ch] = v
}

// Channel extracts one channel as a row-major plane
func (c *CanonicalImage) Channel(ch int) []float64 {
	plane := make([]float64, c.Width*c.Height)
	for i := range plane {
		plane[i] = c.Pix[i*c.Channels+ch]
	}
	return plane
}

// SetChannel overwrites one channel from a row-major plane
func (c *CanonicalImage) SetChannel(ch int, plane []float64) {
	for i := range plane {
		c.Pix[i*c.Channels+ch] = plane[i]
	}
}

// Clone returns a deep copy
func (c *CanonicalImage) Clone() *CanonicalImage {
	pix := make([]float64, len(c.Pix))
	copy(pix, c.Pix)
	return &CanonicalImage{Pix: pix, Width: c.Width, Height: c.Height, Channels: c.Channels}
}

// SameShape reports whether both images have identical dimensions
func (c *CanonicalImage) SameShape(o *CanonicalImage) bool {
	return o != nil && c.Width == o.Width && c.Height == o.Height && c.Channels == o.Channels
}

// IsCanonical reports whether the image has the 200x200x3 model shape
func (c *CanonicalImage) IsCanonical() bool {
	return c.Width == CanonicalSize && c.Height == CanonicalSize && c.Channels == CanonicalChannels &&
		len(c.Pix) == CanonicalSize*CanonicalSize*CanonicalChannels
}

// RoundToFloat32 rounds every value to float32 precision, the precision of
// the model boundary. Values that already passed through it are unchanged.
func (c *CanonicalImage) RoundToFloat32() {
	for i, v := range c.Pix {
		c.Pix[i] = float64(float32(v))
	}
}

// InUnitRange reports whether every value lies in [0, 1]
func (c *CanonicalImage) InUnitRange() bool {
	for _, v := range c.Pix {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Batch is an NHWC float32 tensor as exchanged with a model runtime
type Batch struct {
	N, H, W, C int
	Data       []float32
}

// Shape returns the tensor dimensions in NHWC order
func (b Batch) Shape() []int64 {
	return []int64{int64(b.N), int64(b.H), int64(b.W), int64(b.C)}
}

// Len returns the number of elements the shape implies
func (b Batch) Len() int {
	return b.N * b.H * b.W * b.C
}
