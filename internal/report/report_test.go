package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counts(r QuizReport) []int {
	out := make([]int, len(r.Distribution))
	for i, b := range r.Distribution {
		out[i] = b.Count
	}
	return out
}

func TestCompute(t *testing.T) {
	r := Compute([]float64{10, 4, 7, 0, 9.5}, 10, 5)
	assert.Equal(t, 5, r.Count)
	assert.Equal(t, 0.0, r.Min)
	assert.Equal(t, 10.0, r.Max)
	assert.Equal(t, 6.1, r.Avg)
	assert.Equal(t, 7.0, r.Median)
	assert.Equal(t, 3.72, r.StdDev)
	require.Len(t, r.Distribution, 5)
	assert.Equal(t, Bucket{From: 0, To: 2, Count: 1}, r.Distribution[0])
	// 10 is the top edge and counts in the last bucket
	assert.Equal(t, []int{1, 0, 1, 1, 2}, counts(r))
	assert.Equal(t, 10.0, r.Distribution[4].To)
}

func TestCompute_Edges(t *testing.T) {
	cases := []struct {
		name     string
		scores   []float64
		maxScore float64
		buckets  int
		want     []int
		median   float64
	}{
		{"empty", nil, 20, 4, []int{0, 0, 0, 0}, 0},
		{"even count median", []float64{1, 2, 3, 4}, 4, 2, []int{1, 3}, 2.5},
		{"default buckets", []float64{5}, 10, 0, []int{0, 0, 0, 0, 0, 1, 0, 0, 0, 0}, 5},
		{"no max uses highest", []float64{2, 8}, 0, 2, []int{1, 1}, 5},
		{"over max clamps", []float64{12, -1}, 10, 2, []int{1, 1}, 5.5},
		{"all zero", []float64{0, 0}, 0, 2, []int{2, 0}, 0},
		{"fractional width edges", []float64{0.3, 0.7}, 1, 10, []int{0, 0, 0, 1, 0, 0, 0, 1, 0, 0}, 0.5},
		{"rounded edges", []float64{0.33, 0.67}, 1, 3, []int{0, 1, 1}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Compute(tc.scores, tc.maxScore, tc.buckets)
			assert.Equal(t, tc.want, counts(r))
			assert.Equal(t, tc.median, r.Median)
			assert.Equal(t, len(tc.scores), r.Count)
		})
	}
}
