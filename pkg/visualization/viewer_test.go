package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"medidenoise/internal/models"
)

// createTestImage builds an image whose channels differ by a constant offset
func createTestImage(width, height int) *models.CanonicalImage {
	img := models.NewCanonicalImage(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := float64(x) / float64(width-1)
			for c := 0; c < 3; c++ {
				img.Set(x, y, c, v+float64(c)*0.1)
			}
		}
	}
	return img
}

func TestToGray(t *testing.T) {
	img := createTestImage(10, 4)
	img.Set(0, 0, 0, -0.5)
	img.Set(1, 0, 0, 1.5)

	gray, err := ToGray(img, 0)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}

	bounds := gray.Bounds()
	if bounds.Dx() != 10 || bounds.Dy() != 4 {
		t.Errorf("Expected 10x4, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if got := gray.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("Expected negative value clamped to 0, got %d", got)
	}
	if got := gray.GrayAt(1, 0).Y; got != 255 {
		t.Errorf("Expected value above 1 clamped to 255, got %d", got)
	}
	if got := gray.GrayAt(9, 2).Y; got != 255 {
		t.Errorf("Expected right edge at 255, got %d", got)
	}

	// channel 1 is brighter by 0.1
	c1, err := ToGray(img, 1)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}
	if c1.GrayAt(0, 2).Y != 26 {
		t.Errorf("Expected 26 for value 0.1, got %d", c1.GrayAt(0, 2).Y)
	}

	if _, err := ToGray(img, 3); err == nil {
		t.Error("Expected error for out of range channel")
	}
	if _, err := ToGray(nil, 0); err == nil {
		t.Error("Expected error for nil image")
	}
}

func TestDifference(t *testing.T) {
	a := createTestImage(6, 6)
	b := a.Clone()
	b.Set(2, 3, 0, a.At(2, 3, 0)+0.05)

	diff, err := Difference(a, b, 2)
	if err != nil {
		t.Fatalf("Difference failed: %v", err)
	}
	for i, v := range diff {
		want := 0.0
		if i == 3*6+2 {
			want = 0.1
		}
		if v < want-1e-12 || v > want+1e-12 {
			t.Errorf("Difference %d = %f, want %f", i, v, want)
		}
	}

	if _, err := Difference(a, createTestImage(5, 6), 1); err == nil {
		t.Error("Expected error for mismatched shapes")
	}
}

// TestComparisonSheet verifies the three panel layout
func TestComparisonSheet(t *testing.T) {
	orig := createTestImage(8, 5)
	den := orig.Clone()
	for i := range den.Pix {
		den.Pix[i] *= 0.5
	}

	sheet, err := ComparisonSheet(orig, den, 2)
	if err != nil {
		t.Fatalf("ComparisonSheet failed: %v", err)
	}

	wantW := 3*16 + 2*panelGap
	if sheet.Bounds().Dx() != wantW || sheet.Bounds().Dy() != 10 {
		t.Fatalf("Expected %dx10 sheet, got %dx%d", wantW, sheet.Bounds().Dx(), sheet.Bounds().Dy())
	}

	// right edge of the original panel is full white, the denoised one half
	if got := sheet.GrayAt(15, 4).Y; got != 255 {
		t.Errorf("Expected original panel value 255, got %d", got)
	}
	if got := sheet.GrayAt(16+panelGap+15, 4).Y; got != 128 {
		t.Errorf("Expected denoised panel value 128, got %d", got)
	}
	// the gap stays white
	if got := sheet.GrayAt(16, 0).Y; got != 255 {
		t.Errorf("Expected separator to be white, got %d", got)
	}
	// difference 0.5 amplified past 1 clips to white
	if got := sheet.GrayAt(2*(16+panelGap)+15, 4).Y; got != 255 {
		t.Errorf("Expected clipped difference, got %d", got)
	}
	// no difference at the left edge
	if got := sheet.GrayAt(2*(16+panelGap), 4).Y; got != 0 {
		t.Errorf("Expected zero difference, got %d", got)
	}

	if _, err := ComparisonSheet(orig, den, 0); err == nil {
		t.Error("Expected error for zero scale")
	}
}

func TestSaveImage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	dir := t.TempDir()
	img := createTestImage(12, 7)

	pngPath := filepath.Join(dir, "out", "preview.png")
	if err := SavePreview(img, pngPath); err != nil {
		t.Fatalf("SavePreview failed: %v", err)
	}

	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatalf("Saved file does not exist: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Saved file is not a PNG: %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 12, 7) {
		t.Errorf("Unexpected bounds %v", decoded.Bounds())
	}

	gray, _ := ToGray(img, 0)
	if err := SaveImage(gray, filepath.Join(dir, "preview.jpg")); err != nil {
		t.Errorf("SaveImage jpg failed: %v", err)
	}
	if err := SaveImage(gray, filepath.Join(dir, "preview.bmp")); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}
