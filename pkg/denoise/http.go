package denoise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"medidenoise/internal/models"
)

// HTTPModel calls a remote prediction endpoint speaking the TensorFlow
// Serving REST format: {"instances": [...]} in, {"predictions": [...]} out.
type HTTPModel struct {
	inferenceURL string
	healthURL    string
	client       *http.Client
}

// NewHTTPModel creates a remote model. An empty healthURL disables the probe.
func NewHTTPModel(inferenceURL, healthURL string, client *http.Client) *HTTPModel {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPModel{
		inferenceURL: inferenceURL,
		healthURL:    healthURL,
		client:       client,
	}
}

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][][][]float32 `json:"predictions"`
	Error       string          `json:"error,omitempty"`
}

// Predict sends the batch to the remote service
func (m *HTTPModel) Predict(ctx context.Context, batch models.Batch) (models.Batch, error) {
	body, err := json.Marshal(predictRequest{Instances: nest(batch)})
	if err != nil {
		return models.Batch{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.inferenceURL, bytes.NewReader(body))
	if err != nil {
		return models.Batch{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return models.Batch{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Batch{}, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Batch{}, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return models.Batch{}, fmt.Errorf("model error: %s", result.Error)
	}

	return flatten(result.Predictions)
}

// CheckHealth probes the model status endpoint
func (m *HTTPModel) CheckHealth(ctx context.Context) error {
	if m.healthURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// nest converts a flat NHWC batch to nested arrays
func nest(b models.Batch) [][][][]float32 {
	out := make([][][][]float32, b.N)
	i := 0
	for n := 0; n < b.N; n++ {
		out[n] = make([][][]float32, b.H)
		for y := 0; y < b.H; y++ {
			out[n][y] = make([][]float32, b.W)
			for x := 0; x < b.W; x++ {
				out[n][y][x] = b.Data[i : i+b.C : i+b.C]
				i += b.C
			}
		}
	}
	return out
}

// flatten converts nested arrays back to a batch, rejecting ragged input
func flatten(nested [][][][]float32) (models.Batch, error) {
	if len(nested) == 0 || len(nested[0]) == 0 || len(nested[0][0]) == 0 {
		return models.Batch{}, fmt.Errorf("%w: empty predictions", ErrShape)
	}

	b := models.Batch{
		N: len(nested),
		H: len(nested[0]),
		W: len(nested[0][0]),
		C: len(nested[0][0][0]),
	}
	b.Data = make([]float32, 0, b.Len())

	for _, img := range nested {
		if len(img) != b.H {
			return models.Batch{}, fmt.Errorf("%w: ragged height", ErrShape)
		}
		for _, row := range img {
			if len(row) != b.W {
				return models.Batch{}, fmt.Errorf("%w: ragged width", ErrShape)
			}
			for _, px := range row {
				if len(px) != b.C {
					return models.Batch{}, fmt.Errorf("%w: ragged channels", ErrShape)
				}
				b.Data = append(b.Data, px...)
			}
		}
	}
	return b, nil
}
