package model

import "math"

// Infer runs one forward pass against the handle's classifier. It never
// touches the model when the handle is not ready or the input shape is
// wrong.
func Infer(h *Handle, input Tensor) (Prediction, error) {
	clf, err := h.Get()
	if err != nil {
		return Prediction{}, err
	}

	meta := clf.Metadata()
	want := meta.InputShape
	if !SameShape(want, input.Shape) {
		return Prediction{}, &ShapeError{What: "input", Expected: want, Got: input.Shape}
	}
	if len(input.Data) != Elements(want) {
		return Prediction{}, &ShapeError{What: "input data", Expected: []int64{int64(Elements(want))}, Got: []int64{int64(len(input.Data))}}
	}

	scores, err := clf.Predict(input.Data)
	if err != nil {
		return Prediction{}, err
	}
	if n := len(meta.Classes); len(scores) != n {
		return Prediction{}, &ShapeError{What: "output", Expected: []int64{1, int64(n)}, Got: []int64{1, int64(len(scores))}}
	}

	idx := ArgMax(scores)
	if idx < 0 {
		return Prediction{}, ErrNoScore
	}
	return Prediction{Index: idx, Scores: scores}, nil
}

// ArgMax returns the index of the largest score. Ties go to the lowest
// index and NaN never wins. It returns -1 for an empty or all-NaN slice.
func ArgMax(scores []float32) int {
	maxIdx := -1
	var maxVal float32
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if maxIdx == -1 || v > maxVal {
			maxIdx = i
			maxVal = v
		}
	}
	return maxIdx
}
