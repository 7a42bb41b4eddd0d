// Package ingest decodes uploaded files into single-channel RawImages.
//
// The filename extension selects the decoder: DICOM containers keep their
// native sample range, everything else is decoded as an 8-bit grayscale
// raster.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	// Raster formats understood by image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"medidenoise/internal/models"
)

var (
	// ErrUnsupportedFormat is returned when no decoder recognizes the bytes
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrCorrupt is returned when a decoder recognizes but cannot read the bytes
	ErrCorrupt = errors.New("corrupt image data")

	// ErrEmpty is returned for zero-length input
	ErrEmpty = errors.New("empty image data")

	// ErrTooLarge is returned when the declared dimensions exceed the pixel limit
	ErrTooLarge = errors.New("image dimensions exceed limit")
)

// DefaultMaxPixels bounds width*height of accepted images
const DefaultMaxPixels = 50_000_000

var dicomExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
}

// IsDICOM reports whether the filename carries a DICOM extension
func IsDICOM(filename string) bool {
	return dicomExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Decode produces a RawImage from an uploaded file. Images with more than
// maxPixels pixels are rejected before any pixel buffer is allocated; a
// non-positive maxPixels disables the check.
func Decode(filename string, data []byte, maxPixels int) (*models.RawImage, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if IsDICOM(filename) {
		return DecodeDICOM(data, maxPixels)
	}
	return DecodeRaster(data, maxPixels)
}

// DecodeRaster decodes any registered raster format into 8-bit luma.
// Color sources are reduced with the ITU-R BT.601 weights.
func DecodeRaster(data []byte, maxPixels int) (*models.RawImage, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	// the header alone tells us the allocation size
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(err)
	}
	if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(err)
	}

	return GrayFromImage(img), nil
}

func decodeError(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return ErrUnsupportedFormat
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

func checkPixels(width, height, maxPixels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrCorrupt, width, height)
	}
	if maxPixels > 0 && int64(width)*int64(height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d is more than %d pixels", ErrTooLarge, width, height, maxPixels)
	}
	return nil
}

// GrayFromImage converts an image to an 8-bit RawImage
func GrayFromImage(img image.Image) *models.RawImage {
	bounds := img.Bounds()
	raw := models.NewRawImage(bounds.Dx(), bounds.Dy())
	raw.Source = models.SourceRaster
	raw.BitDepth = 8

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < raw.Height; y++ {
			off := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := gray.Pix[off : off+raw.Width]
			for x, v := range row {
				raw.Pix[y*raw.Width+x] = float64(v)
			}
		}
		return raw
	}

	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			raw.Pix[y*raw.Width+x] = float64(g.Y)
		}
	}
	return raw
}
