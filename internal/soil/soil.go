// Package soil holds the soil category label set, the static attribute
// tables keyed by category, and assembly of a prediction result.
package soil

import (
	"fmt"
	"strings"
)

// Category is one of the labels the classifier was trained on.
type Category string

const (
	Alike    Category = "alike"
	Clay     Category = "clay"
	DryRocky Category = "dry rocky"
	Grassy   Category = "grassy"
	Gravel   Category = "gravel"
	Humus    Category = "humus"
	Loam     Category = "loam"
	NotSoil  Category = "not"
	Sandy    Category = "sandy"
	Silty    Category = "silty"
	Yellow   Category = "yellow"
)

// labels is index-aligned with the model's output vector. The order must
// match the one used when the model was exported.
var labels = [...]Category{
	Alike, Clay, DryRocky, Grassy, Gravel, Humus, Loam, NotSoil, Sandy, Silty, Yellow,
}

// NumLabels is the length of the classifier's score vector.
const NumLabels = len(labels)

// Labels returns a copy of the ordered label list.
func Labels() []Category {
	out := make([]Category, NumLabels)
	copy(out, labels[:])
	return out
}

// LabelStrings returns the ordered label list as plain strings.
func LabelStrings() []string {
	out := make([]string, NumLabels)
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

// FromIndex maps a model output index to its category.
func FromIndex(i int) (Category, error) {
	if i < 0 || i >= NumLabels {
		return "", fmt.Errorf("class index %d out of range [0,%d)", i, NumLabels)
	}
	return labels[i], nil
}

// Parse normalizes s and reports whether it names a known category.
func Parse(s string) (Category, bool) {
	c := normalize(s)
	for _, l := range labels {
		if l == c {
			return l, true
		}
	}
	return c, false
}

// Known reports whether c is one of the trained labels.
func (c Category) Known() bool {
	_, ok := Parse(string(c))
	return ok
}

func (c Category) String() string { return string(c) }

// Title returns the label with its first letter upper-cased, for display.
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

func normalize(s string) Category {
	return Category(strings.ToLower(strings.TrimSpace(s)))
}
