package grading

import "fmt"

// Rubric breaks a manually scored item into criteria.
type Rubric struct {
	Criteria []Criterion `json:"criteria" validate:"required,min=1,dive"`
}

type Criterion struct {
	Key       string  `json:"key" validate:"notblank"`
	Desc      string  `json:"desc"`
	MaxPoints float64 `json:"max_points" validate:"gt=0"`
}

// ScoreRubric sums the awarded points per criterion, each clamped to
// [0, MaxPoints], then clamps the total to limit. Unknown keys are ignored.
func ScoreRubric(r Rubric, awarded map[string]float64, limit float64) (float64, []string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := min(max(awarded[c.Key], 0), c.MaxPoints)
		total += v
		notes = append(notes, fmt.Sprintf("%s: %.2f/%.2f", c.Key, v, c.MaxPoints))
	}
	if limit > 0 && total > limit {
		total = limit
	}
	return total, notes
}
