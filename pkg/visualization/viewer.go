// Package visualization renders canonical images as previews and side by side
// comparison sheets for the command line tools.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"medidenoise/internal/models"
)

// DifferenceGain amplifies the absolute difference panel so small residuals
// stay visible
const DifferenceGain = 4.0

// panelGap is the width of the separator between panels, in output pixels
const panelGap = 4

// ToGray extracts one channel as an 8-bit image, clamping to [0,1]
func ToGray(img *models.CanonicalImage, channel int) (*image.Gray, error) {
	if img == nil || len(img.Pix) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if channel < 0 || channel >= img.Channels {
		return nil, fmt.Errorf("channel %d out of range (image has %d)", channel, img.Channels)
	}

	return grayFromPlane(img.Channel(channel), img.Width, img.Height), nil
}

func grayFromPlane(plane []float64, width, height int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := plane[y*width+x]
			if math.IsNaN(v) {
				v = 0
			}
			value := uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
			out.SetGray(x, y, color.Gray{Y: value})
		}
	}
	return out
}

// Difference returns |original - denoised| on channel 0, scaled by gain
func Difference(original, denoised *models.CanonicalImage, gain float64) ([]float64, error) {
	if original == nil || denoised == nil || !original.SameShape(denoised) {
		return nil, fmt.Errorf("images must have the same shape")
	}

	a, b := original.Channel(0), denoised.Channel(0)
	diff := make([]float64, len(a))
	for i := range a {
		diff[i] = math.Abs(a[i]-b[i]) * gain
	}
	return diff, nil
}

// ComparisonSheet lays out original, denoised and amplified difference side
// by side, each panel enlarged by scale
func ComparisonSheet(original, denoised *models.CanonicalImage, scale int) (*image.Gray, error) {
	if scale < 1 {
		return nil, fmt.Errorf("scale must be at least 1, got %d", scale)
	}

	diff, err := Difference(original, denoised, DifferenceGain)
	if err != nil {
		return nil, err
	}

	panels := []*image.Gray{
		grayFromPlane(original.Channel(0), original.Width, original.Height),
		grayFromPlane(denoised.Channel(0), denoised.Width, denoised.Height),
		grayFromPlane(diff, original.Width, original.Height),
	}

	pw, ph := original.Width*scale, original.Height*scale
	sheet := image.NewGray(image.Rect(0, 0, len(panels)*pw+(len(panels)-1)*panelGap, ph))
	draw.Draw(sheet, sheet.Bounds(), image.White, image.Point{}, draw.Src)

	for i, p := range panels {
		x0 := i * (pw + panelGap)
		dst := image.Rect(x0, 0, x0+pw, ph)
		draw.NearestNeighbor.Scale(sheet, dst, p, p.Bounds(), draw.Src, nil)
	}
	return sheet, nil
}

// SaveImage writes img as PNG or JPEG depending on the file extension
func SaveImage(img image.Image, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return fmt.Errorf("unsupported output format %q (use .png or .jpg)", ext)
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if ext == ".png" {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SavePreview writes channel 0 of a canonical image as an 8-bit preview
func SavePreview(img *models.CanonicalImage, filename string) error {
	gray, err := ToGray(img, 0)
	if err != nil {
		return err
	}
	return SaveImage(gray, filename)
}
