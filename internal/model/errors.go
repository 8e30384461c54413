package model

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when inference is requested before the model
// finished loading.
var ErrNotReady = errors.New("model not ready")

// ErrNoScore is returned when every score in the model output is NaN.
var ErrNoScore = errors.New("model returned no usable score")

// LoadError records why the model bundle could not be loaded. A handle that
// failed to load stays unavailable for the life of the process.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to load model: %v", e.Err)
	}
	return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotReady) hold for load failures too: an
// unavailable model is never ready.
func (e *LoadError) Is(target error) bool { return target == ErrNotReady }

// ShapeError reports a tensor whose shape does not match what the model
// expects. It indicates a configuration or programming error.
type ShapeError struct {
	What     string
	Expected []int64
	Got      []int64
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s shape mismatch: expected %v, got %v", e.What, e.Expected, e.Got)
}
