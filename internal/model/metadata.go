package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// LoadMetadata reads and validates the bundle metadata at path. When
// classes is non-empty the metadata's class list must equal it in order.
func LoadMetadata(path string, classes []string) (Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(b, classes)
}

// ParseMetadata decodes metadata JSON, fills defaults and validates it.
func ParseMetadata(b []byte, classes []string) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	meta.applyDefaults()
	if err := meta.Validate(classes); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = defaultInputName
	}
	if m.OutputName == "" {
		m.OutputName = defaultOutputName
	}
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Scale == "" {
		m.Scale = ScaleNone
	}
}

// Validate checks the metadata is internally consistent and, when classes
// is given, that the label order matches it.
func (m Metadata) Validate(classes []string) error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("invalid metadata: input shape %v must have rank 4", m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("invalid metadata: batch dimension must be 1, got %d", m.InputShape[0])
	}
	if m.ImageSize <= 0 {
		return errors.New("invalid metadata: image_size must be positive")
	}

	var want []int64
	size := int64(m.ImageSize)
	switch m.Layout {
	case LayoutNHWC:
		want = []int64{1, size, size, 3}
	case LayoutNCHW:
		want = []int64{1, 3, size, size}
	default:
		return fmt.Errorf("invalid metadata: unknown layout %q", m.Layout)
	}
	if !SameShape(want, m.InputShape) {
		return &ShapeError{What: "metadata input", Expected: want, Got: m.InputShape}
	}

	switch m.Scale {
	case ScaleNone, ScaleUnit:
	default:
		return fmt.Errorf("invalid metadata: unknown scale %q", m.Scale)
	}

	if len(m.Classes) == 0 {
		return errors.New("invalid metadata: no classes")
	}
	if n := Elements(m.OutputShape); n != len(m.Classes) {
		return fmt.Errorf("invalid metadata: output shape %v holds %d scores for %d classes", m.OutputShape, n, len(m.Classes))
	}

	if len(classes) > 0 {
		if len(classes) != len(m.Classes) {
			return fmt.Errorf("invalid metadata: %d classes, expected %d", len(m.Classes), len(classes))
		}
		for i := range classes {
			if m.Classes[i] != classes[i] {
				return fmt.Errorf("invalid metadata: class %d is %q, expected %q", i, m.Classes[i], classes[i])
			}
		}
	}
	return nil
}
