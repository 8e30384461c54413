package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/model"
	"github.com/Brownie44l1/soilscan/internal/preprocess"
	"github.com/Brownie44l1/soilscan/internal/soil"
)

// ErrClosed is returned by Select after Close.
var ErrClosed = errors.New("pipeline closed")

// Options configure a Controller.
type Options struct {
	Logger *zap.Logger
	// Observer is called after every state change, outside the controller's
	// lock. It may call back into the controller.
	Observer func(State)
}

// Controller owns the pipeline state. At most one run executes at a time:
// selecting a new image cancels the run in flight, and the new run starts
// only once the old one has returned. Stages of a superseded run no longer
// change the state.
type Controller struct {
	handle   *model.Handle
	logger   *zap.Logger
	observer func(State)

	ctx  context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New returns an idle controller predicting with the model in h.
func New(h *model.Handle, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		handle:   h,
		logger:   logger,
		observer: opts.Observer,
		ctx:      ctx,
		stop:     stop,
		state:    idle(),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready returns nil once the model is loaded. Views use it to enable the
// pick action.
func (c *Controller) Ready() error {
	_, err := c.handle.Get()
	return err
}

// WaitReady blocks until the model finished loading and returns the load
// error, if any.
func (c *Controller) WaitReady(ctx context.Context) error {
	_, err := c.handle.Wait(ctx)
	return err
}

// ModelStatus reports the model handle's lifecycle stage.
func (c *Controller) ModelStatus() model.Status { return c.handle.Status() }

// Pick shows picker and starts a run on the chosen image. A dismissed
// picker returns the controller to Idle and is not an error. A picker
// failure is recorded as Failed; while a run is in flight it is returned
// instead.
func (c *Controller) Pick(ctx context.Context, picker acquire.Picker) error {
	if err := c.Ready(); err != nil {
		return err
	}
	loc, err := picker.Pick(ctx)
	switch {
	case errors.Is(err, acquire.ErrCancelled):
		c.logger.Debug("picker cancelled")
		c.Cancel()
		return nil
	case err != nil:
		c.logger.Warn("image acquisition failed", zap.Error(err))
		if !c.fail(err) {
			return err
		}
		return nil
	}
	return c.Select(loc)
}

// Select starts a run on loc, discarding any previous result. If the model
// is not ready it returns the handle's error and leaves the state alone.
func (c *Controller) Select(loc acquire.Locator) error {
	if err := c.Ready(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
		if c.state.phase.Busy() {
			c.logger.Info("superseding run in flight", zap.String("run_id", c.state.runID), zap.Stringer("phase", c.state.phase))
		}
	}
	prev := c.done
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	st := selected(runID, loc)
	c.state = st
	c.mu.Unlock()

	c.logger.Info("image selected", zap.String("run_id", runID), zap.String("source", loc.Name()))
	c.notify(st)

	go c.run(ctx, cancel, done, prev, runID, loc)
	return nil
}

// Cancel handles a dismissed picker. A run in flight is left alone;
// otherwise the controller returns to Idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state.phase == Idle || c.state.phase.Busy() {
		c.mu.Unlock()
		return
	}
	st := idle()
	c.state = st
	c.mu.Unlock()
	c.notify(st)
}

// Wait blocks until no run is in flight and returns the resulting state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		done := c.done
		st := c.state
		c.mu.Unlock()

		if done == nil || !st.phase.Busy() {
			return st, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}

		c.mu.Lock()
		latest := c.done == done
		st = c.state
		c.mu.Unlock()
		if latest {
			return st, nil
		}
	}
}

// Close cancels the run in flight and waits for it to return.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	done := c.done
	c.mu.Unlock()

	c.stop()
	if done != nil {
		<-done
	}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, prev <-chan struct{}, runID string, loc acquire.Locator) {
	defer close(done)
	defer cancel()

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	log := c.logger.With(zap.String("run_id", runID))

	clf, err := c.handle.Get()
	if err != nil {
		c.finish(runID, failed(runID, loc, nil, err))
		return
	}
	if !c.transition(runID, predicting(runID, loc, nil)) {
		return
	}

	tensor, info, err := preprocess.New(clf.Metadata(), log).Tensor(ctx, loc)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Warn("preprocessing failed", zap.Error(err))
		c.finish(runID, failed(runID, loc, nil, err))
		return
	}
	if !c.transition(runID, predicting(runID, loc, &info)) {
		return
	}

	pred, err := model.Infer(c.handle, tensor)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		var se *model.ShapeError
		if errors.As(err, &se) {
			log.Error("tensor shape mismatch", zap.Error(err))
		} else {
			log.Warn("inference failed", zap.Error(err))
		}
		c.finish(runID, failed(runID, loc, &info, err))
		return
	}

	res, err := soil.Assemble(pred.Index, pred.Scores, loc)
	if err != nil {
		log.Warn("result assembly failed", zap.Error(err))
		c.finish(runID, failed(runID, loc, &info, err))
		return
	}

	log.Info("prediction complete",
		zap.String("soil_type", string(res.Category)),
		zap.Float32("confidence", res.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	c.finish(runID, succeeded(runID, loc, &info, res))
}

// transition applies st if runID is still the current run.
func (c *Controller) transition(runID string, st State) bool {
	c.mu.Lock()
	if c.state.runID != runID {
		c.mu.Unlock()
		return false
	}
	c.state = st
	c.mu.Unlock()
	c.notify(st)
	return true
}

func (c *Controller) finish(runID string, st State) {
	if !c.transition(runID, st) {
		c.logger.Debug("discarding stale run", zap.String("run_id", runID), zap.Stringer("phase", st.phase))
	}
}

// fail records an error that happened before a run could start. It leaves
// a run in flight alone and reports false.
func (c *Controller) fail(err error) bool {
	c.mu.Lock()
	if c.state.phase.Busy() {
		c.mu.Unlock()
		return false
	}
	st := failed(uuid.NewString(), "", nil, err)
	c.state = st
	c.mu.Unlock()
	c.notify(st)
	return true
}

func (c *Controller) notify(st State) {
	if c.observer != nil {
		c.observer(st)
	}
}
