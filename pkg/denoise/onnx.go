package denoise

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"medidenoise/internal/models"
)

var ortInit sync.Mutex

// ONNXModel runs an exported autoencoder in-process with ONNX Runtime.
// The graph takes and returns a float32 NHWC tensor.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

// NewONNXModel loads the model at modelPath. libraryPath points at the
// onnxruntime shared library; empty uses the platform default lookup.
func NewONNXModel(libraryPath, modelPath, inputName, outputName string) (*ONNXModel, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session for %s: %w", modelPath, err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

func initRuntime(libraryPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}
	return nil
}

// Predict runs the session. The runtime call itself cannot be interrupted,
// so the context is only checked before and after it.
func (m *ONNXModel) Predict(ctx context.Context, batch models.Batch) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}

	input, err := ort.NewTensor(ort.NewShape(batch.Shape()...), batch.Data)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return models.Batch{}, fmt.Errorf("onnx inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return models.Batch{}, fmt.Errorf("output %q is not a float32 tensor", m.outputName)
	}

	shape := tensor.GetShape()
	if len(shape) != 4 {
		return models.Batch{}, fmt.Errorf("%w: output rank %d", ErrShape, len(shape))
	}

	data := make([]float32, len(tensor.GetData()))
	copy(data, tensor.GetData())

	return models.Batch{
		N:    int(shape[0]),
		H:    int(shape[1]),
		W:    int(shape[2]),
		C:    int(shape[3]),
		Data: data,
	}, nil
}

// Close releases the session
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
