// Package service implements the upload and denoise operations on top of the
// ingestion, normalization, codec, model and session packages.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"medidenoise/internal/models"
	"medidenoise/pkg/codec"
	"medidenoise/pkg/denoise"
	"medidenoise/pkg/ingest"
	"medidenoise/pkg/normalize"
	"medidenoise/pkg/session"
	"medidenoise/pkg/snr"
)

var (
	// ErrNoFile is returned when an upload carries no file bytes
	ErrNoFile = errors.New("no file part")

	// ErrNoFilename is returned when an upload has an empty filename
	ErrNoFilename = fmt.Errorf("%w: no selected file", ErrNoFile)

	// ErrNoImage is returned when a denoise request has no image
	ErrNoImage = errors.New("no image data provided")

	// ErrDecode is returned for corrupt or unsupported image data
	ErrDecode = errors.New("could not decode image")

	// ErrOriginalNotFound is returned when denoise runs before any upload in
	// the session, or after the session expired
	ErrOriginalNotFound = errors.New("original image not found")

	// ErrInference is returned when the model fails
	ErrInference = errors.New("denoising failed")
)

// UploadResult is returned by Upload
type UploadResult struct {
	OriginalImage string    `json:"original_image"`
	OriginalSNR   snr.Value `json:"original_snr"`
	SessionID     string    `json:"session_id"`
}

// DenoiseResult is returned by Denoise
type DenoiseResult struct {
	DenoisedImage string     `json:"denoised_image"`
	DenoisedSNR   snr.Value  `json:"denoised_snr"`
	Metrics       snr.Report `json:"metrics"`
}

// Service runs the two operations
type Service struct {
	pipeline *normalize.Pipeline
	adapter  *denoise.Adapter
	store    session.Store
	logger   zerolog.Logger

	maxPixels int
}

// New creates a service
func New(pipeline *normalize.Pipeline, adapter *denoise.Adapter, store session.Store, logger zerolog.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		adapter:  adapter,
		store:    store,
		logger:   logger,

		maxPixels: ingest.DefaultMaxPixels,
	}
}

// SetMaxPixels bounds the dimensions of uploaded and denoised images
func (s *Service) SetMaxPixels(n int) { s.maxPixels = n }

// MaxPixels returns the current pixel limit
func (s *Service) MaxPixels() int { return s.maxPixels }

// Pipeline returns the normalization pipeline in use
func (s *Service) Pipeline() *normalize.Pipeline { return s.pipeline }

// Upload decodes and normalizes a file, stores it as the session's original
// and returns its encoding and standalone SNR. An empty or malformed
// sessionID starts a new session.
func (s *Service) Upload(ctx context.Context, sessionID, filename string, data []byte) (*UploadResult, error) {
	if filename == "" {
		return nil, ErrNoFilename
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if !session.ValidID(sessionID) {
		sessionID = session.NewID()
	}

	raw, err := ingest.Decode(filename, data, s.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	img, err := s.pipeline.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	s.logger.Debug().
		Str("file", filename).
		Int("width", raw.Width).
		Int("height", raw.Height).
		Int("bitDepth", raw.BitDepth).
		Str("mode", string(s.pipeline.Mode())).
		Msg("Image normalized")

	value, err := snr.StandaloneImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	uri, err := codec.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("encode original: %w", err)
	}

	if err := s.store.Put(ctx, sessionID, img); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	return &UploadResult{
		OriginalImage: uri,
		OriginalSNR:   value,
		SessionID:     sessionID,
	}, nil
}

// Denoise decodes an encoded image, runs the model on it and compares the
// result against the session's original
func (s *Service) Denoise(ctx context.Context, sessionID, dataURI string) (*DenoiseResult, error) {
	if dataURI == "" {
		return nil, ErrNoImage
	}

	original, err := s.original(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	img, err := codec.Decode(dataURI, s.pipeline, s.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	denoised, err := s.adapter.Denoise(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	value, err := snr.RelativeImages(original, denoised)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	report, err := snr.Compare(original, denoised)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	uri, err := codec.Encode(denoised)
	if err != nil {
		return nil, fmt.Errorf("encode denoised: %w", err)
	}

	s.logger.Debug().
		Str("session", sessionID).
		Stringer("snr", value).
		Float64("rmse", report.RMSE).
		Msg("Image denoised")

	return &DenoiseResult{
		DenoisedImage: uri,
		DenoisedSNR:   value,
		Metrics:       report,
	}, nil
}

func (s *Service) original(ctx context.Context, sessionID string) (*models.CanonicalImage, error) {
	if sessionID == "" {
		return nil, ErrOriginalNotFound
	}

	img, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrOriginalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load original: %w", err)
	}
	return img, nil
}

// CheckHealth reports whether the model backend is reachable
func (s *Service) CheckHealth(ctx context.Context) error {
	return s.adapter.CheckHealth(ctx)
}
