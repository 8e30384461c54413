// Package pipeline drives one image at a time through preprocessing,
// inference and result assembly, and exposes the current phase to a view.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/model"
	"github.com/Brownie44l1/soilscan/internal/preprocess"
	"github.com/Brownie44l1/soilscan/internal/soil"
)

// Phase is the stage of the current pipeline run.
type Phase int

const (
	Idle Phase = iota
	ImageSelected
	Predicting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ImageSelected:
		return "image selected"
	case Predicting:
		return "predicting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Busy reports whether a run is in flight.
func (p Phase) Busy() bool { return p == ImageSelected || p == Predicting }

// State is an immutable snapshot of the controller. Only the constructors
// below build one, so a result is present only when Succeeded and an error
// only when Failed.
type State struct {
	phase  Phase
	runID  string
	source acquire.Locator
	image  *preprocess.Image
	result *soil.Result
	err    error
}

func idle() State { return State{phase: Idle} }

func selected(runID string, src acquire.Locator) State {
	return State{phase: ImageSelected, runID: runID, source: src}
}

func predicting(runID string, src acquire.Locator, img *preprocess.Image) State {
	return State{phase: Predicting, runID: runID, source: src, image: img}
}

func succeeded(runID string, src acquire.Locator, img *preprocess.Image, res soil.Result) State {
	return State{phase: Succeeded, runID: runID, source: src, image: img, result: &res}
}

func failed(runID string, src acquire.Locator, img *preprocess.Image, err error) State {
	return State{phase: Failed, runID: runID, source: src, image: img, err: err}
}

func (s State) Phase() Phase { return s.phase }

// RunID identifies the run the state belongs to. Empty when Idle.
func (s State) RunID() string { return s.runID }

// Source is the image of the current run.
func (s State) Source() acquire.Locator { return s.source }

// Image describes the decoded source image once preprocessing read it.
func (s State) Image() (preprocess.Image, bool) {
	if s.image == nil {
		return preprocess.Image{}, false
	}
	return *s.image, true
}

// Result returns the prediction of a Succeeded run.
func (s State) Result() (soil.Result, bool) {
	if s.result == nil {
		return soil.Result{}, false
	}
	return *s.result, true
}

// Err returns the failure of a Failed run.
func (s State) Err() error { return s.err }

// Message is a user-facing description of the failure, or "".
func (s State) Message() string {
	if s.err == nil {
		return ""
	}
	return Describe(s.err)
}

// Describe turns a pipeline error into a message fit for display.
func Describe(err error) string {
	var (
		pe *preprocess.Error
		le *model.LoadError
		se *model.ShapeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return fmt.Sprintf("Could not read %s: %v", pe.Source.Name(), pe.Err)
	case errors.As(err, &le):
		return fmt.Sprintf("Model unavailable: %v", le.Err)
	case errors.Is(err, model.ErrNotReady):
		return "Model is still loading, try again in a moment"
	case errors.As(err, &se):
		return fmt.Sprintf("Model configuration error: %v", se)
	default:
		return fmt.Sprintf("Prediction failed: %v", err)
	}
}
