package codec

import (
	"encoding/base64"
	"errors"
	"image"
	"math"
	"strings"
	"testing"

	"medidenoise/internal/models"
	"medidenoise/internal/testutil"
	"medidenoise/pkg/ingest"
	"medidenoise/pkg/normalize"
)

// createCanonical fills every channel with pattern(x, y)
func createCanonical(width, height int, pattern func(x, y int) float64) *models.CanonicalImage {
	img := models.NewCanonicalImage(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				img.Set(x, y, c, pattern(x, y))
			}
		}
	}
	return img
}

func TestEncodeHeader(t *testing.T) {
	uri, err := Encode(createCanonical(4, 4, func(x, y int) float64 { return 0.5 }))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("Unexpected prefix: %.40s", uri)
	}

	if _, err := Encode(nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage, got %v", err)
	}
}

// TestRoundTripExact verifies multiples of 1/255 survive unchanged
func TestRoundTripExact(t *testing.T) {
	img := createCanonical(200, 200, func(x, y int) float64 { return float64((x+3*y)%256) / 255.0 })
	img.RoundToFloat32()

	uri, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := Decode(uri, normalize.Default(), ingest.DefaultMaxPixels)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !back.IsCanonical() {
		t.Fatalf("Expected canonical shape, got %dx%dx%d", back.Width, back.Height, back.Channels)
	}
	for i := range img.Pix {
		if back.Pix[i] != img.Pix[i] {
			t.Fatalf("Value %d = %v, want %v", i, back.Pix[i], img.Pix[i])
		}
	}
}

// TestRoundTripQuantization verifies arbitrary values come back within 1/255
func TestRoundTripQuantization(t *testing.T) {
	img := createCanonical(200, 200, func(x, y int) float64 {
		return 0.5 + 0.5*math.Sin(float64(x)*0.37+float64(y)*0.11)
	})

	uri, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := Decode(uri, normalize.Default(), ingest.DefaultMaxPixels)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for i := range img.Pix {
		if d := math.Abs(back.Pix[i] - img.Pix[i]); d > 1.0/255.0 {
			t.Fatalf("Value %d off by %f", i, d)
		}
	}

	// a second cycle stays on the same 8-bit levels
	uri2, err := Encode(back)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if uri2 != uri {
		t.Error("Expected re-encoding decoded levels to reproduce the same PNG")
	}
}

func TestDecodeResizes(t *testing.T) {
	uri, err := Encode(createCanonical(50, 30, func(x, y int) float64 { return 0.2 }))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	back, err := Decode(uri, normalize.Default(), ingest.DefaultMaxPixels)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !back.IsCanonical() {
		t.Fatalf("Expected 200x200x3, got %dx%dx%d", back.Width, back.Height, back.Channels)
	}
	want := float64(Quantize(0.2)) / 255.0
	if math.Abs(back.At(100, 100, 1)-want) > 1e-6 {
		t.Errorf("Expected %f, got %f", want, back.At(100, 100, 1))
	}
}

func TestEncodeDivergentChannels(t *testing.T) {
	img := createCanonical(8, 8, func(x, y int) float64 { return 0.5 })
	img.Set(0, 0, 2, 0.9)

	if _, ok := ToImage(img).(*image.NRGBA); !ok {
		t.Fatalf("Expected an RGB image for divergent channels, got %T", ToImage(img))
	}
	if _, ok := ToImage(createCanonical(2, 2, func(x, y int) float64 { return 0 })).(*image.Gray); !ok {
		t.Error("Expected a grayscale image for identical channels")
	}

	uri, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := Decode(uri, normalize.New(8, normalize.Fixed255), ingest.DefaultMaxPixels)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.Width != 8 || back.Channels != 3 {
		t.Errorf("Unexpected shape %dx%dx%d", back.Width, back.Height, back.Channels)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{0, 0},
		{1, 255},
		{0.5, 128},
		{-0.3, 0},
		{1.7, 255},
		{math.NaN(), 0},
		{100.0 / 255.0, 100},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	p := normalize.Default()
	notImage := base64.StdEncoding.EncodeToString([]byte("plain text"))
	huge := base64.StdEncoding.EncodeToString(testutil.PNGWithSize(8000, 8000))

	tests := []struct {
		name   string
		uri    string
		target error
	}{
		{"no comma", "data:image/png;base64", ErrMalformedURI},
		{"empty", "", ErrMalformedURI},
		{"wrong header", "image/png," + notImage, ErrMalformedURI},
		{"not base64 header", "data:image/png," + notImage, ErrMalformedURI},
		{"bad base64", "data:image/png;base64,@@@", ErrMalformedURI},
		{"empty payload", "data:image/png;base64,", ErrMalformedURI},
		{"not an image", "data:image/png;base64," + notImage, ingest.ErrUnsupportedFormat},
		{"oversized", Prefix + huge, ingest.ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.uri, p, ingest.DefaultMaxPixels); !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
		})
	}
}
