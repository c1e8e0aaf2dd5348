package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGrader(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()

	cases := []struct {
		name   string
		q      Q
		resp   any
		want   float64
		manual bool
	}{
		{"single correct", Q{Type: TypeMCQSingle, Points: 2, AnswerKey: []string{"B"}}, "B", 2, false},
		{"single wrong", Q{Type: TypeMCQSingle, Points: 2, AnswerKey: []string{"B"}}, "A", 0, false},
		{"true false folds case", Q{Type: TypeTrueFalse, Points: 1, AnswerKey: []string{"true"}}, "True", 1, false},
		{"multi exact", Q{Type: TypeMCQMulti, Points: 4, AnswerKey: []string{"A", "C"}}, []any{"C", "A"}, 4, false},
		{"multi partial", Q{Type: TypeMCQMulti, Points: 4, AnswerKey: []string{"A", "C"}}, []any{"A"}, 2, false},
		{"multi wrong pick", Q{Type: TypeMCQMulti, Points: 4, AnswerKey: []string{"A", "C"}}, []string{"A", "B"}, 0, false},
		{"short word exact", Q{Type: TypeShortWord, Points: 1, AnswerKey: []string{"Photosynthesis"}}, " photosynthesis. ", 1, false},
		{"short word fuzzy", Q{Type: TypeShortWord, Points: 1, AnswerKey: []string{"mitochondria"}}, "mitochondrai", 0, false},
		{"short word one typo", Q{Type: TypeShortWord, Points: 1, AnswerKey: []string{"mitochondria"}}, "mitochondra", 0.5, false},
		{"numeric tolerance", Q{Type: TypeNumeric, Points: 3, AnswerKey: []string{"3.14159", "tol=0.01"}}, "3.14", 3, false},
		{"numeric relative", Q{Type: TypeNumeric, Points: 3, AnswerKey: []string{"100", "reltol=0.05"}}, 104.0, 3, false},
		{"numeric decimal comma", Q{Type: TypeNumeric, Points: 1, AnswerKey: []string{"2.5"}}, "2,5", 1, false},
		{"numeric outside", Q{Type: TypeNumeric, Points: 3, AnswerKey: []string{"100", "tol=1"}}, "98 kg", 0, false},
		{"essay", Q{Type: TypeEssay, Points: 10}, "long text", 0, true},
		{"coding", Q{Type: TypeCoding, Points: 10}, "print(1)", 0, true},
		{"unknown type", Q{Type: "matching", Points: 1}, "x", 0, true},
		{"no response", Q{Type: TypeMCQSingle, Points: 1, AnswerKey: []string{"A"}}, nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(ctx, tc.q, tc.resp)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, res.AutoPoints, 1e-9)
			assert.Equal(t, tc.q.Points, res.MaxPoints)
			assert.Equal(t, tc.manual, res.NeedsManual)
		})
	}
}

func TestDefaultGrader_Options(t *testing.T) {
	ctx := context.Background()
	strict := NewDefaultGrader(WithPartialMulti(false), WithMaxEditDistance(0))

	res, err := strict.Grade(ctx, Q{Type: TypeMCQMulti, Points: 4, AnswerKey: []string{"A", "C"}}, []any{"A"})
	require.NoError(t, err)
	assert.Zero(t, res.AutoPoints)

	res, err = strict.Grade(ctx, Q{Type: TypeShortWord, Points: 1, AnswerKey: []string{"cat"}}, "cats")
	require.NoError(t, err)
	assert.Zero(t, res.AutoPoints)

	_, err = strict.Grade(ctx, Q{Type: TypeMCQSingle, Points: 1}, 42.0)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, levenshtein("héllo", "hello"))
}

func TestScoreRubric(t *testing.T) {
	r := Rubric{Criteria: []Criterion{
		{Key: "correctness", MaxPoints: 6},
		{Key: "style", MaxPoints: 4},
	}}
	total, notes := ScoreRubric(r, map[string]float64{"correctness": 7, "style": -1, "bonus": 5}, 10)
	assert.Equal(t, 6.0, total)
	assert.Equal(t, []string{"correctness: 6.00/6.00", "style: 0.00/4.00"}, notes)

	total, _ = ScoreRubric(r, map[string]float64{"correctness": 6, "style": 4}, 8)
	assert.Equal(t, 8.0, total)
}
