package soil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/soilscan/internal/acquire"
)

// Result is the outcome of one successful pipeline run. It is never
// mutated after Assemble returns.
type Result struct {
	ID         string               `json:"id"`
	Category   Category             `json:"soil_type"`
	Attributes Attributes           `json:"attributes"`
	Confidence float32              `json:"confidence"`
	Scores     map[Category]float32 `json:"scores,omitempty"`
	Source     acquire.Locator      `json:"source"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Assemble maps the predicted index through the label list and attaches the
// table data for the resulting category. scores may be nil; when present it
// must be index-aligned with Labels.
func Assemble(index int, scores []float32, source acquire.Locator) (Result, error) {
	category, err := FromIndex(index)
	if err != nil {
		return Result{}, fmt.Errorf("assemble result: %w", err)
	}

	res := Result{
		ID:         uuid.NewString(),
		Category:   category,
		Attributes: AttributesFor(category),
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	}

	if len(scores) > 0 {
		if len(scores) != NumLabels {
			return Result{}, fmt.Errorf("assemble result: %d scores for %d labels", len(scores), NumLabels)
		}
		res.Confidence = scores[index]
		res.Scores = make(map[Category]float32, NumLabels)
		for i, s := range scores {
			res.Scores[labels[i]] = s
		}
	}
	return res, nil
}
