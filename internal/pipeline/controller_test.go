package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/model"
	"github.com/Brownie44l1/soilscan/internal/preprocess"
	"github.com/Brownie44l1/soilscan/internal/soil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSize = 8

func scoresFor(c soil.Category) []float32 {
	out := make([]float32, soil.NumLabels)
	for i, l := range soil.Labels() {
		if l == c {
			out[i] = 0.8
		} else {
			out[i] = 0.02
		}
	}
	return out
}

type fakeClassifier struct {
	predict func(call int, input []float32) ([]float32, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeClassifier) Metadata() model.Metadata {
	return model.Metadata{
		InputShape:  []int64{1, testSize, testSize, 3},
		OutputShape: []int64{1, int64(soil.NumLabels)},
		Classes:     soil.LabelStrings(),
		ImageSize:   testSize,
		Layout:      model.LayoutNHWC,
		Scale:       model.ScaleNone,
	}
}

func (f *fakeClassifier) Predict(input []float32) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.predict(call, input)
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func constant(scores []float32) *fakeClassifier {
	return &fakeClassifier{predict: func(int, []float32) ([]float32, error) { return scores, nil }}
}

func readyHandle(t *testing.T, clf model.Classifier) *model.Handle {
	t.Helper()
	h := model.NewHandle(nil)
	h.Load(context.Background(), func(context.Context) (model.Classifier, error) { return clf, nil })
	_, err := h.Wait(context.Background())
	require.NoError(t, err)
	return h
}

type recorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *recorder) observe(st State) {
	r.mu.Lock()
	r.phases = append(r.phases, st.Phase())
	r.mu.Unlock()
}

func (r *recorder) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func newController(t *testing.T, h *model.Handle) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(h, Options{Observer: rec.observe})
	t.Cleanup(c.Close)
	return c, rec
}

func soilImage(t *testing.T, name string, w, h int) acquire.Locator {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 110, G: 75, B: 45, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return acquire.Locator(path)
}

func wait(t *testing.T, c *Controller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := c.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestSelectBeforeModelReady(t *testing.T) {
	release := make(chan struct{})
	h := model.NewHandle(nil)
	h.Load(context.Background(), func(context.Context) (model.Classifier, error) {
		<-release
		return constant(scoresFor(soil.Loam)), nil
	})
	defer func() {
		close(release)
		_, _ = h.Wait(context.Background())
	}()

	c, rec := newController(t, h)
	err := c.Select(soilImage(t, "loam.png", 20, 20))
	assert.ErrorIs(t, err, model.ErrNotReady)
	assert.Equal(t, Idle, c.State().Phase())
	assert.Empty(t, rec.Phases())

	err = c.Pick(context.Background(), acquire.PickerFunc(func(context.Context) (acquire.Locator, error) {
		t.Fatal("picker shown before model was ready")
		return "", nil
	}))
	assert.ErrorIs(t, err, model.ErrNotReady)
}

func TestSelectAfterFailedLoad(t *testing.T) {
	h := model.NewHandle(nil)
	h.Load(context.Background(), func(context.Context) (model.Classifier, error) {
		return nil, errors.New("bundle missing")
	})
	_, _ = h.Wait(context.Background())

	c, _ := newController(t, h)
	err := c.Select(soilImage(t, "loam.png", 20, 20))
	var le *model.LoadError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, Idle, c.State().Phase())
	assert.Equal(t, model.StatusUnavailable, c.ModelStatus())
}

func TestEndToEndLoam(t *testing.T) {
	c, rec := newController(t, readyHandle(t, constant(scoresFor(soil.Loam))))
	loc := soilImage(t, "loam.png", 300, 200)

	require.NoError(t, c.Select(loc))
	st := wait(t, c)

	require.Equal(t, Succeeded, st.Phase())
	res, ok := st.Result()
	require.True(t, ok)
	assert.Equal(t, soil.Loam, res.Category)
	assert.Equal(t, "6.0 to 7.0", res.Attributes.PHRange)
	assert.Equal(t, "0.5% to 2.5%", res.Attributes.Potassium)
	assert.Equal(t, soil.AttributesFor(soil.Loam), res.Attributes)
	assert.Equal(t, loc, res.Source)
	assert.NoError(t, st.Err())
	assert.Empty(t, st.Message())

	img, ok := st.Image()
	require.True(t, ok)
	assert.Equal(t, preprocess.Image{Format: "png", Width: 300, Height: 200}, img)

	assert.Equal(t, []Phase{ImageSelected, Predicting, Predicting, Succeeded}, rec.Phases())
}

func TestTieGoesToLowestIndex(t *testing.T) {
	scores := []float32{0.2, 0.9, 0.9, 0, 0, 0, 0, 0, 0, 0, 0}
	c, _ := newController(t, readyHandle(t, constant(scores)))

	require.NoError(t, c.Select(soilImage(t, "x.png", 10, 10)))
	st := wait(t, c)
	res, ok := st.Result()
	require.True(t, ok)
	assert.Equal(t, soil.Clay, res.Category)
}

func TestPickerCancelStaysIdle(t *testing.T) {
	c, rec := newController(t, readyHandle(t, constant(scoresFor(soil.Sandy))))

	err := c.Pick(context.Background(), acquire.PathPicker{})
	require.NoError(t, err)

	st := c.State()
	assert.Equal(t, Idle, st.Phase())
	assert.NoError(t, st.Err())
	_, ok := st.Result()
	assert.False(t, ok)
	assert.Empty(t, rec.Phases())
}

func TestPickRunsPipeline(t *testing.T) {
	c, _ := newController(t, readyHandle(t, constant(scoresFor(soil.Humus))))
	loc := soilImage(t, "humus.png", 12, 12)
	dir, name := filepath.Split(string(loc))

	require.NoError(t, c.Pick(context.Background(), acquire.PathPicker{Dir: dir, Path: name}))
	st := wait(t, c)
	res, ok := st.Result()
	require.True(t, ok)
	assert.Equal(t, soil.Humus, res.Category)
}

func TestPickerErrorFails(t *testing.T) {
	c, _ := newController(t, readyHandle(t, constant(scoresFor(soil.Sandy))))
	boom := errors.New("permission denied")

	require.NoError(t, c.Pick(context.Background(), acquire.PickerFunc(func(context.Context) (acquire.Locator, error) {
		return "", boom
	})))
	st := c.State()
	assert.Equal(t, Failed, st.Phase())
	assert.ErrorIs(t, st.Err(), boom)
}

func TestPickerErrorDuringRunIsReturned(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	clf := &fakeClassifier{predict: func(int, []float32) ([]float32, error) {
		close(entered)
		<-release
		return scoresFor(soil.Loam), nil
	}}
	c, _ := newController(t, readyHandle(t, clf))
	require.NoError(t, c.Select(soilImage(t, "loam.png", 10, 10)))
	<-entered
	runID := c.State().RunID()

	boom := errors.New("permission denied")
	err := c.Pick(context.Background(), acquire.PickerFunc(func(context.Context) (acquire.Locator, error) {
		return "", boom
	}))
	assert.ErrorIs(t, err, boom)
	st := c.State()
	assert.Equal(t, Predicting, st.Phase())
	assert.Equal(t, runID, st.RunID())

	close(release)
	assert.Equal(t, Succeeded, wait(t, c).Phase())
}

func TestAllNaNScoresFail(t *testing.T) {
	nan := float32(math.NaN())
	scores := make([]float32, soil.NumLabels)
	for i := range scores {
		scores[i] = nan
	}
	c, _ := newController(t, readyHandle(t, constant(scores)))

	require.NoError(t, c.Select(soilImage(t, "x.png", 10, 10)))
	st := wait(t, c)
	require.Equal(t, Failed, st.Phase())
	assert.ErrorIs(t, st.Err(), model.ErrNoScore)
	assert.NotContains(t, st.Message(), "out of range")
}

func TestCancelAfterResultReturnsToIdle(t *testing.T) {
	c, _ := newController(t, readyHandle(t, constant(scoresFor(soil.Silty))))
	require.NoError(t, c.Select(soilImage(t, "silty.png", 10, 10)))
	require.Equal(t, Succeeded, wait(t, c).Phase())

	c.Cancel()
	st := c.State()
	assert.Equal(t, Idle, st.Phase())
	_, ok := st.Result()
	assert.False(t, ok)
}

func TestNonImageFails(t *testing.T) {
	clf := constant(scoresFor(soil.Clay))
	c, rec := newController(t, readyHandle(t, clf))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	require.NoError(t, c.Select(acquire.Locator(path)))
	st := wait(t, c)

	require.Equal(t, Failed, st.Phase())
	var pe *preprocess.Error
	assert.ErrorAs(t, st.Err(), &pe)
	assert.Contains(t, st.Message(), "Could not read notes.txt")
	_, ok := st.Result()
	assert.False(t, ok)
	assert.Zero(t, clf.Calls())
	assert.Equal(t, []Phase{ImageSelected, Predicting, Failed}, rec.Phases())
}

func TestInferenceErrorFails(t *testing.T) {
	clf := &fakeClassifier{predict: func(int, []float32) ([]float32, error) {
		return nil, errors.New("session run failed")
	}}
	c, _ := newController(t, readyHandle(t, clf))

	require.NoError(t, c.Select(soilImage(t, "x.png", 10, 10)))
	st := wait(t, c)
	require.Equal(t, Failed, st.Phase())
	assert.Contains(t, st.Message(), "session run failed")
	_, ok := st.Image()
	assert.True(t, ok)
}

func TestNewSelectionDiscardsFailure(t *testing.T) {
	clf := &fakeClassifier{predict: func(call int, _ []float32) ([]float32, error) {
		if call == 1 {
			return scoresFor(soil.Gravel)[:3], nil
		}
		return scoresFor(soil.Gravel), nil
	}}
	c, _ := newController(t, readyHandle(t, clf))

	require.NoError(t, c.Select(soilImage(t, "a.png", 10, 10)))
	st := wait(t, c)
	require.Equal(t, Failed, st.Phase())
	var se *model.ShapeError
	assert.ErrorAs(t, st.Err(), &se)

	require.NoError(t, c.Select(soilImage(t, "b.png", 10, 10)))
	st = wait(t, c)
	require.Equal(t, Succeeded, st.Phase())
	assert.NoError(t, st.Err())
}

func TestNewSelectionSupersedesRunInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	clf := &fakeClassifier{predict: func(call int, _ []float32) ([]float32, error) {
		if call == 1 {
			close(entered)
			<-release
			return scoresFor(soil.Loam), nil
		}
		return scoresFor(soil.Sandy), nil
	}}
	c, rec := newController(t, readyHandle(t, clf))

	first := soilImage(t, "first.png", 10, 10)
	second := soilImage(t, "second.png", 10, 10)

	require.NoError(t, c.Select(first))
	<-entered
	firstRun := c.State().RunID()

	require.NoError(t, c.Select(second))
	st := c.State()
	assert.Equal(t, ImageSelected, st.Phase())
	assert.Equal(t, second, st.Source())
	assert.NotEqual(t, firstRun, st.RunID())

	// The second run waits for the first to return.
	assert.Equal(t, 1, clf.Calls())
	close(release)

	st = wait(t, c)
	require.Equal(t, Succeeded, st.Phase())
	res, _ := st.Result()
	assert.Equal(t, soil.Sandy, res.Category)
	assert.Equal(t, second, res.Source)
	assert.Equal(t, 2, clf.Calls())

	phases := rec.Phases()
	assert.NotContains(t, phases, Failed)
	assert.Equal(t, Succeeded, phases[len(phases)-1])
}

func TestSupersedeIsLogged(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	clf := &fakeClassifier{predict: func(call int, _ []float32) ([]float32, error) {
		if call == 1 {
			close(entered)
			<-release
		}
		return scoresFor(soil.Gravel), nil
	}}
	core, logs := observer.New(zap.InfoLevel)
	c := New(readyHandle(t, clf), Options{Logger: zap.New(core)})
	t.Cleanup(c.Close)

	require.NoError(t, c.Select(soilImage(t, "first.png", 6, 6)))
	<-entered
	firstRun := c.State().RunID()
	require.NoError(t, c.Select(soilImage(t, "second.png", 6, 6)))
	close(release)
	require.Equal(t, Succeeded, wait(t, c).Phase())

	entries := logs.FilterMessage("superseding run in flight").All()
	require.Len(t, entries, 1)
	assert.Equal(t, firstRun, entries[0].ContextMap()["run_id"])
}

func TestSelectAfterClose(t *testing.T) {
	c, _ := newController(t, readyHandle(t, constant(scoresFor(soil.Clay))))
	c.Close()
	assert.ErrorIs(t, c.Select(soilImage(t, "x.png", 4, 4)), ErrClosed)
}

func TestCloseStopsRunInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	clf := &fakeClassifier{predict: func(int, []float32) ([]float32, error) {
		close(entered)
		<-release
		return scoresFor(soil.Clay), nil
	}}
	c := New(readyHandle(t, clf), Options{})
	require.NoError(t, c.Select(soilImage(t, "x.png", 4, 4)))
	<-entered

	// Predict returns only after Close cancelled the run.
	go func() {
		<-c.ctx.Done()
		close(release)
	}()
	c.Close()

	st, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Predicting, st.Phase())
}

func TestWaitWithoutRun(t *testing.T) {
	c, _ := newController(t, readyHandle(t, constant(scoresFor(soil.Clay))))
	st, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, st.Phase())
}
