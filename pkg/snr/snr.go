// Package snr estimates signal-to-noise ratios in decibels.
//
// Two estimates are provided. Standalone treats the mean intensity as signal
// and the population standard deviation as noise. Relative treats the mean
// squared original as signal power and the mean squared difference between
// original and denoised as noise power. Both work on channel 0 of a
// CanonicalImage; the other channels are replicas before denoising.
//
// Degenerate ratios never produce NaN. Zero noise yields the +∞ sentinel
// (checked first, so zero/zero is +∞). A non-positive signal with positive
// noise yields the -∞ sentinel.
package snr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"medidenoise/internal/models"
)

// InfinitySymbol is how the +∞ sentinel is rendered
const InfinitySymbol = "∞"

// NegativeInfinitySymbol is how the -∞ sentinel is rendered
const NegativeInfinitySymbol = "-∞"

var (
	// ErrEmpty is returned when there are no samples
	ErrEmpty = errors.New("no samples")

	// ErrShapeMismatch is returned when original and denoised differ in size
	ErrShapeMismatch = errors.New("original and denoised shapes differ")

	// ErrNotFinite is returned when the samples contain NaN or infinities
	ErrNotFinite = errors.New("samples contain non-finite values")
)

// Kind classifies a Value
type Kind int

const (
	KindFinite Kind = iota
	KindPosInf
	KindNegInf
)

// Value is an SNR in decibels or one of the two infinite sentinels
type Value struct {
	db   float64
	kind Kind
}

// Finite wraps a decibel value
func Finite(db float64) Value { return Value{db: db, kind: KindFinite} }

// Infinite is the no-noise sentinel
func Infinite() Value { return Value{kind: KindPosInf} }

// NegativeInfinite is the no-signal sentinel
func NegativeInfinite() Value { return Value{kind: KindNegInf} }

// Kind reports the classification
func (v Value) Kind() Kind { return v.kind }

// IsInf reports whether v is the +∞ sentinel
func (v Value) IsInf() bool { return v.kind == KindPosInf }

// DB returns the decibel value, mapping sentinels to math.Inf
func (v Value) DB() float64 {
	switch v.kind {
	case KindPosInf:
		return math.Inf(1)
	case KindNegInf:
		return math.Inf(-1)
	}
	return v.db
}

// Rounded returns the value rounded to two decimals
func (v Value) Rounded() float64 {
	if v.kind != KindFinite {
		return v.DB()
	}
	return math.Round(v.db*100) / 100
}

// String renders "12.34", "∞" or "-∞"
func (v Value) String() string {
	switch v.kind {
	case KindPosInf:
		return InfinitySymbol
	case KindNegInf:
		return NegativeInfinitySymbol
	}
	return strconv.FormatFloat(v.Rounded(), 'f', -1, 64)
}

// MarshalJSON encodes finite values as a rounded number and sentinels as strings
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind != KindFinite {
		return json.Marshal(v.String())
	}
	return []byte(strconv.FormatFloat(v.Rounded(), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case InfinitySymbol:
			*v = Infinite()
		case NegativeInfinitySymbol:
			*v = NegativeInfinite()
		default:
			return fmt.Errorf("unknown snr sentinel %q", s)
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("snr must be a number or sentinel: %w", err)
	}
	*v = Finite(f)
	return nil
}

// ratio converts signal and noise to decibels under the sentinel policy
func ratio(signal, noise float64) Value {
	if noise == 0 {
		return Infinite()
	}
	if signal <= 0 {
		return NegativeInfinite()
	}
	return Finite(10 * math.Log10(signal/noise))
}

// Standalone estimates SNR as 10*log10(mean/std) over one plane
func Standalone(plane []float64) (Value, error) {
	if len(plane) == 0 {
		return Value{}, ErrEmpty
	}
	if !allFinite(plane) {
		return Value{}, ErrNotFinite
	}

	mean, std := stat.PopMeanStdDev(plane, nil)
	return ratio(mean, std), nil
}

// Relative estimates SNR as 10*log10(mean(o^2) / mean((o-d)^2))
func Relative(original, denoised []float64) (Value, error) {
	if len(original) == 0 {
		return Value{}, ErrEmpty
	}
	if len(original) != len(denoised) {
		return Value{}, ErrShapeMismatch
	}
	if !allFinite(original) || !allFinite(denoised) {
		return Value{}, ErrNotFinite
	}

	n := float64(len(original))
	signalPower := floats.Dot(original, original) / n

	diff := make([]float64, len(original))
	floats.SubTo(diff, original, denoised)
	noisePower := floats.Dot(diff, diff) / n

	return ratio(signalPower, noisePower), nil
}

// StandaloneImage applies Standalone to channel 0
func StandaloneImage(img *models.CanonicalImage) (Value, error) {
	if img == nil {
		return Value{}, ErrEmpty
	}
	return Standalone(img.Channel(0))
}

// RelativeImages applies Relative to channel 0 of both images
func RelativeImages(original, denoised *models.CanonicalImage) (Value, error) {
	if original == nil || denoised == nil {
		return Value{}, ErrEmpty
	}
	if !original.SameShape(denoised) {
		return Value{}, ErrShapeMismatch
	}
	return Relative(original.Channel(0), denoised.Channel(0))
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
