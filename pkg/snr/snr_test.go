package snr

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"medidenoise/internal/models"
)

func constant(n int, v float64) []float64 {
	plane := make([]float64, n)
	for i := range plane {
		plane[i] = v
	}
	return plane
}

func TestStandaloneConstantIsInfinite(t *testing.T) {
	got, err := Standalone(constant(100, 0.4))
	if err != nil {
		t.Fatalf("Standalone failed: %v", err)
	}
	if !got.IsInf() {
		t.Errorf("Expected +inf for constant plane, got %s", got)
	}
}

// TestStandaloneKnownValue uses mean 100 and population std 10
func TestStandaloneKnownValue(t *testing.T) {
	plane := make([]float64, 1000)
	for i := range plane {
		if i%2 == 0 {
			plane[i] = 90
		} else {
			plane[i] = 110
		}
	}

	got, err := Standalone(plane)
	if err != nil {
		t.Fatalf("Standalone failed: %v", err)
	}
	if got.Kind() != KindFinite || math.Abs(got.DB()-10) > 1e-9 {
		t.Errorf("Expected 10 dB, got %s", got)
	}
	if got.Rounded() != 10 {
		t.Errorf("Expected rounded 10, got %f", got.Rounded())
	}
}

func TestStandaloneNonPositiveMean(t *testing.T) {
	got, err := Standalone([]float64{-1, 1, -1, 1})
	if err != nil {
		t.Fatalf("Standalone failed: %v", err)
	}
	if got.Kind() != KindNegInf {
		t.Errorf("Expected -inf for zero mean with spread, got %s", got)
	}
}

func TestRelativeIdentical(t *testing.T) {
	orig := []float64{0.1, 0.2, 0.3, 0.4}
	got, err := Relative(orig, append([]float64(nil), orig...))
	if err != nil {
		t.Fatalf("Relative failed: %v", err)
	}
	if !got.IsInf() {
		t.Errorf("Expected +inf for identical images, got %s", got)
	}
}

// TestRelativeZeroOverZero verifies an all-zero pair is +inf, not NaN
func TestRelativeZeroOverZero(t *testing.T) {
	got, err := Relative(constant(16, 0), constant(16, 0))
	if err != nil {
		t.Fatalf("Relative failed: %v", err)
	}
	if !got.IsInf() {
		t.Errorf("Expected +inf, got %s", got)
	}
}

func TestRelativeZeroSignal(t *testing.T) {
	got, err := Relative(constant(16, 0), constant(16, 0.5))
	if err != nil {
		t.Fatalf("Relative failed: %v", err)
	}
	if got.Kind() != KindNegInf {
		t.Errorf("Expected -inf, got %s", got)
	}
}

func TestRelativeKnownValue(t *testing.T) {
	// signal power 1, noise power 0.01 -> 20 dB
	orig := constant(100, 1)
	den := constant(100, 0.9)

	got, err := Relative(orig, den)
	if err != nil {
		t.Fatalf("Relative failed: %v", err)
	}
	if math.Abs(got.DB()-20) > 1e-9 {
		t.Errorf("Expected 20 dB, got %f", got.DB())
	}
}

func TestRelativeErrors(t *testing.T) {
	if _, err := Relative(nil, nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
	if _, err := Relative([]float64{1, 2}, []float64{1}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := Relative([]float64{1, 2}, []float64{1, math.NaN()}); !errors.Is(err, ErrNotFinite) {
		t.Errorf("Expected ErrNotFinite, got %v", err)
	}
	if _, err := Standalone(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
}

func TestImagesUseChannelZero(t *testing.T) {
	a := models.NewCanonicalImage(2, 2, 3)
	b := models.NewCanonicalImage(2, 2, 3)
	for i := range a.Pix {
		a.Pix[i] = 0.5
		b.Pix[i] = 0.5
	}
	// perturb only channel 1 of the denoised image
	b.Set(0, 0, 1, 0.9)

	got, err := RelativeImages(a, b)
	if err != nil {
		t.Fatalf("RelativeImages failed: %v", err)
	}
	if !got.IsInf() {
		t.Errorf("Expected channel 1 to be ignored, got %s", got)
	}

	if _, err := RelativeImages(a, models.NewCanonicalImage(3, 2, 3)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestValueFormatting(t *testing.T) {
	tests := []struct {
		value Value
		str   string
		json  string
	}{
		{Finite(12.3456), "12.35", "12.35"},
		{Finite(-3.001), "-3", "-3"},
		{Finite(7), "7", "7"},
		{Infinite(), "∞", `"∞"`},
		{NegativeInfinite(), "-∞", `"-∞"`},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		data, err := json.Marshal(tt.value)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(data) != tt.json {
			t.Errorf("Marshal = %s, want %s", data, tt.json)
		}

		var back Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal %s failed: %v", data, err)
		}
		if back.Kind() != tt.value.Kind() {
			t.Errorf("Unmarshal %s lost kind", data)
		}
	}

	var v Value
	if err := json.Unmarshal([]byte(`"NaN"`), &v); err == nil {
		t.Error("Expected error for unknown sentinel")
	}
}

func TestQualityMetrics(t *testing.T) {
	if got := RMSE([]float64{0, 0}, []float64{3, 4}); math.Abs(got-math.Sqrt(12.5)) > 1e-12 {
		t.Errorf("RMSE = %f", got)
	}
	if !PSNR(0, 1).IsInf() {
		t.Error("PSNR of perfect match should be +inf")
	}
	if got := PSNR(0.1, 1).DB(); math.Abs(got-20) > 1e-9 {
		t.Errorf("PSNR(0.1) = %f, want 20", got)
	}

	x := []float64{0.1, 0.5, 0.9, 0.3, 0.7}
	if got := SSIM(x, x); math.Abs(got-1) > 1e-12 {
		t.Errorf("SSIM of identical planes = %f, want 1", got)
	}
	if Entropy(constant(10, 0.2)) != 0 {
		t.Error("Entropy of constant plane should be 0")
	}
	// two equally populated bins -> 1 bit
	if got := Entropy([]float64{0, 0, 1, 1}); math.Abs(got-1) > 1e-12 {
		t.Errorf("Entropy = %f, want 1", got)
	}
}

func TestMutualInformation(t *testing.T) {
	x := []float64{0, 0, 1, 1}
	tests := []struct {
		name string
		y    []float64
		want float64
	}{
		{"identical", []float64{0, 0, 1, 1}, 1},
		{"inverted", []float64{1, 1, 0, 0}, 1},
		{"independent", []float64{0, 1, 0, 1}, 0},
		{"constant", []float64{0.4, 0.4, 0.4, 0.4}, 0},
		{"length mismatch", []float64{0, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MutualInformation(x, tt.y); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MutualInformation = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	a := models.NewCanonicalImage(4, 4, 3)
	for i := range a.Pix {
		a.Pix[i] = float64(i%7) / 7
	}

	report, err := Compare(a, a.Clone())
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if report.RMSE != 0 || !report.PSNR.IsInf() {
		t.Errorf("Expected perfect match, got %+v", report)
	}
	if math.Abs(report.SSIM-1) > 1e-12 {
		t.Errorf("Expected SSIM 1, got %f", report.SSIM)
	}
	if report.EntropyDiff != 0 || report.MutualInfo <= 0 {
		t.Errorf("Expected equal entropy and positive mutual information, got %+v", report)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["psnr"] != "∞" {
		t.Errorf("Expected psnr sentinel in JSON, got %v", decoded["psnr"])
	}
}
