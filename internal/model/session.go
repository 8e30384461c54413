package model

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const (
	ModelFile    = "model.onnx"
	MetadataFile = "model_metadata.json"
)

// Options locate a model bundle and the ONNX runtime library.
type Options struct {
	// Dir holds ModelFile and MetadataFile unless overridden below.
	Dir          string
	ModelPath    string
	MetadataPath string
	// RuntimeLibrary is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	RuntimeLibrary string
	// Classes, when set, must match the metadata class list in order.
	Classes []string
	Logger  *zap.Logger
}

func (o Options) paths() (string, string) {
	modelPath, metaPath := o.ModelPath, o.MetadataPath
	if modelPath == "" {
		modelPath = filepath.Join(o.Dir, ModelFile)
	}
	if metaPath == "" {
		metaPath = filepath.Join(o.Dir, MetadataFile)
	}
	return modelPath, metaPath
}

// Session is a Classifier backed by an ONNX runtime session. The input and
// output tensors are allocated once and reused, so Predict calls are
// serialized.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	meta         Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// OpenONNX initializes the runtime environment and creates a session for
// the bundle described by opts.
func OpenONNX(opts Options) (*Session, error) {
	modelPath, metaPath := opts.paths()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metadata, err := LoadMetadata(metaPath, opts.Classes)
	if err != nil {
		return nil, &LoadError{Path: metaPath, Err: err}
	}

	if opts.RuntimeLibrary != "" {
		ort.SetSharedLibraryPath(opts.RuntimeLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, &LoadError{Path: modelPath, Err: fmt.Errorf("failed to initialize ONNX environment: %w", err)}
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, &LoadError{Path: modelPath, Err: fmt.Errorf("failed to create input tensor: %w", err)}
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, &LoadError{Path: modelPath, Err: fmt.Errorf("failed to create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &LoadError{Path: modelPath, Err: fmt.Errorf("failed to create ONNX session: %w", err)}
	}

	logger.Debug("onnx session created",
		zap.String("model", modelPath),
		zap.String("layout", string(metadata.Layout)),
		zap.Int("image_size", metadata.ImageSize))

	return &Session{
		session:      session,
		meta:         metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// ONNXLoader returns a LoaderFunc for Handle.Load.
func ONNXLoader(opts Options) LoaderFunc {
	return func(ctx context.Context) (Classifier, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := OpenONNX(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Metadata describes the bundle the session was created from.
func (s *Session) Metadata() Metadata { return s.meta }

// Predict copies input into the session's input tensor, runs the graph and
// returns a copy of the output scores.
func (s *Session) Predict(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNotReady
	}
	dst := s.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, &ShapeError{What: "input data", Expected: []int64{int64(len(dst))}, Got: []int64{int64(len(input))}}
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close releases the tensors, the session and the runtime environment.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}
