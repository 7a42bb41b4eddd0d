// Package codec converts canonical images to and from PNG data URIs.
//
// Encoding quantizes to 8 bits, so a round trip is exact only for values that
// are multiples of 1/255; anything else comes back within 1/255.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"medidenoise/internal/models"
	"medidenoise/pkg/ingest"
	"medidenoise/pkg/normalize"
)

// Prefix is the data URI header written by Encode
const Prefix = "data:image/png;base64,"

var (
	// ErrMalformedURI is returned for strings that are not base64 data URIs
	ErrMalformedURI = errors.New("malformed data URI")

	// ErrEmptyImage is returned when there is nothing to encode
	ErrEmptyImage = errors.New("image has no pixels")
)

// Encode renders an image as a PNG data URI. Images whose channels are all
// equal become 8-bit grayscale PNGs; others keep the first three channels as
// RGB. Values are scaled by 255, rounded and clipped to [0,255].
func Encode(img *models.CanonicalImage) (string, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 {
		return "", ErrEmptyImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, ToImage(img)); err != nil {
		return "", fmt.Errorf("png encode: %w", err)
	}

	return Prefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ToImage converts a canonical image to an 8-bit image.Image
func ToImage(img *models.CanonicalImage) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)

	if img.Channels < 3 || channelsEqual(img) {
		gray := image.NewGray(rect)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				gray.SetGray(x, y, color.Gray{Y: Quantize(img.At(x, y, 0))})
			}
		}
		return gray
	}

	rgba := image.NewNRGBA(rect)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			rgba.SetNRGBA(x, y, color.NRGBA{
				R: Quantize(img.At(x, y, 0)),
				G: Quantize(img.At(x, y, 1)),
				B: Quantize(img.At(x, y, 2)),
				A: 255,
			})
		}
	}
	return rgba
}

// Quantize maps a unit-interval value to the nearest 8-bit level
func Quantize(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(math.Round(math.Min(255, math.Max(0, v*255))))
}

func channelsEqual(img *models.CanonicalImage) bool {
	for i := 0; i < len(img.Pix); i += img.Channels {
		for c := 1; c < img.Channels; c++ {
			if img.Pix[i+c] != img.Pix[i] {
				return false
			}
		}
	}
	return true
}

// Decode parses a data URI back into a canonical image. The payload is read
// as grayscale, divided by 255 and passed through the pipeline's resize and
// replicate steps, since the wire format carries no shape guarantees.
// Payloads declaring more than maxPixels pixels are rejected with
// ingest.ErrTooLarge.
func Decode(uri string, p *normalize.Pipeline, maxPixels int) (*models.CanonicalImage, error) {
	payload, err := Payload(uri)
	if err != nil {
		return nil, err
	}

	raw, err := ingest.DecodeRaster(payload, maxPixels)
	if err != nil {
		return nil, err
	}

	plane := make([]float64, len(raw.Pix))
	for i, v := range raw.Pix {
		plane[i] = v / 255.0
	}

	return p.FromPlane(plane, raw.Width, raw.Height)
}

// Payload strips the data URI header and base64-decodes the rest
func Payload(uri string) ([]byte, error) {
	header, data, ok := strings.Cut(strings.TrimSpace(uri), ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing ','", ErrMalformedURI)
	}
	if !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrMalformedURI, header)
	}

	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURI, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedURI)
	}
	return payload, nil
}
