package model

import "fmt"

// Layout is the memory order of the image tensor.
type Layout string

const (
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
)

// Scale is the pixel value range the model was trained on.
type Scale string

const (
	// ScaleNone feeds raw 0..255 channel values.
	ScaleNone Scale = "none"
	// ScaleUnit feeds channel values divided into 0..1.
	ScaleUnit Scale = "unit"
)

// Metadata describes a bundled model. It is read from the JSON file that
// ships next to the model graph.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      Layout   `json:"layout"`
	Scale       Scale    `json:"scale"`
}

// Tensor is a dense float32 array with an explicit shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int64) Tensor {
	s := make([]int64, len(shape))
	copy(s, shape)
	return Tensor{Shape: s, Data: make([]float32, Elements(s))}
}

// Elements returns the number of values a tensor of shape holds.
func Elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return int(n)
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t Tensor) String() string {
	return fmt.Sprintf("tensor%v(%d values)", t.Shape, len(t.Data))
}

// Prediction is the raw outcome of a forward pass.
type Prediction struct {
	Index  int
	Scores []float32
}
