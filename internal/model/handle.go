package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Classifier is a loaded model able to run a forward pass.
type Classifier interface {
	Metadata() Metadata
	Predict(input []float32) ([]float32, error)
}

// LoaderFunc builds a Classifier from the bundled resources.
type LoaderFunc func(ctx context.Context) (Classifier, error)

// Status is the lifecycle stage of a Handle.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoading
	StatusReady
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusNotLoaded:
		return "not loaded"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Handle owns the process-wide model. It is assigned at most once; every
// read after the ready channel is closed sees the final value without
// locking.
type Handle struct {
	once    sync.Once
	started chan struct{}
	ready   chan struct{}
	clf     Classifier
	err     error
	logger  *zap.Logger
}

// NewHandle returns an empty handle. logger may be nil.
func NewHandle(logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{
		started: make(chan struct{}),
		ready:   make(chan struct{}),
		logger:  logger,
	}
}

// Load starts loading in the background. Only the first call has any
// effect; a failed load is not retried.
func (h *Handle) Load(ctx context.Context, load LoaderFunc) {
	h.once.Do(func() {
		close(h.started)
		go h.run(ctx, load)
	})
}

func (h *Handle) run(ctx context.Context, load LoaderFunc) {
	defer close(h.ready)

	start := time.Now()
	clf, err := load(ctx)
	if err == nil && clf == nil {
		err = ErrNotReady
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			h.err = le
		} else {
			h.err = &LoadError{Err: err}
		}
		h.logger.Error("model load failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	h.clf = clf
	meta := clf.Metadata()
	h.logger.Info("model loaded",
		zap.Int64s("input_shape", meta.InputShape),
		zap.Strings("classes", meta.Classes),
		zap.Duration("elapsed", time.Since(start)))
}

// Get returns the classifier without blocking. It returns ErrNotReady while
// loading and the *LoadError once loading failed.
func (h *Handle) Get() (Classifier, error) {
	select {
	case <-h.ready:
		if h.err != nil {
			return nil, h.err
		}
		return h.clf, nil
	default:
		return nil, ErrNotReady
	}
}

// Wait blocks until loading finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Classifier, error) {
	select {
	case <-h.ready:
		return h.Get()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status reports where the handle is in its lifecycle.
func (h *Handle) Status() Status {
	select {
	case <-h.ready:
		if h.err != nil {
			return StatusUnavailable
		}
		return StatusReady
	default:
	}
	select {
	case <-h.started:
		return StatusLoading
	default:
		return StatusNotLoaded
	}
}

// Err returns the load error, if loading finished and failed.
func (h *Handle) Err() error {
	select {
	case <-h.ready:
		return h.err
	default:
		return nil
	}
}

// Close waits for a pending load and releases the classifier if it holds
// native resources.
func (h *Handle) Close() error {
	select {
	case <-h.started:
	default:
		return nil
	}
	<-h.ready
	if c, ok := h.clf.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
