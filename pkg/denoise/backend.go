package denoise

import (
	"fmt"
	"io"
	"net/http"

	"medidenoise/pkg/config"
)

// NewModel builds the model runtime selected by the inference configuration
func NewModel(cfg *config.Config) (Model, error) {
	inf := cfg.Inference

	switch inf.Backend {
	case config.BackendHTTP:
		return NewHTTPModel(inf.URL, inf.HealthURL, &http.Client{}), nil
	case config.BackendONNX:
		return NewONNXModel(inf.ONNX.LibraryPath, inf.ONNX.ModelPath, inf.ONNX.InputName, inf.ONNX.OutputName)
	case config.BackendShearlet:
		return NewShearletModel(), nil
	default:
		return nil, fmt.Errorf("unknown inference backend %q", inf.Backend)
	}
}

// CloseModel releases models that hold runtime resources
func CloseModel(m Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
