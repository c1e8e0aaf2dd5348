// Package report computes and stores per-quiz score aggregates and fetches
// class spreadsheets from the report service.
package report

import (
	"math"
	"sort"
)

const DefaultBuckets = 10

// QuizReport is the aggregate attached to a quiz after evaluation.
type QuizReport struct {
	QuizID       string   `json:"quiz_id"`
	Count        int      `json:"count"`
	Avg          float64  `json:"avg"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Median       float64  `json:"median"`
	StdDev       float64  `json:"std_dev"`
	MaxScore     float64  `json:"max_score"`
	Distribution []Bucket `json:"distribution"`
	GeneratedAt  int64    `json:"generated_at"`
}

// Bucket counts scores in [From, To); the last bucket also includes To.
type Bucket struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Count int     `json:"count"`
}

// Compute aggregates scores into a report with n equal-width buckets over
// [0, maxScore]. When maxScore is not positive the highest score is used.
// Scores outside the range land in the first or last bucket.
func Compute(scores []float64, maxScore float64, n int) QuizReport {
	if n <= 0 {
		n = DefaultBuckets
	}
	rep := QuizReport{Count: len(scores), MaxScore: maxScore}

	upper := maxScore
	if len(scores) > 0 {
		sorted := append([]float64(nil), scores...)
		sort.Float64s(sorted)
		rep.Min, rep.Max = sorted[0], sorted[len(sorted)-1]

		sum := 0.0
		for _, s := range sorted {
			sum += s
		}
		rep.Avg = sum / float64(len(sorted))

		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			rep.Median = sorted[mid]
		} else {
			rep.Median = (sorted[mid-1] + sorted[mid]) / 2
		}

		ss := 0.0
		for _, s := range sorted {
			ss += (s - rep.Avg) * (s - rep.Avg)
		}
		rep.StdDev = math.Sqrt(ss / float64(len(sorted)))

		if upper <= 0 {
			upper = rep.Max
		}
	}
	if upper <= 0 {
		upper = 1
	}

	width := upper / float64(n)
	rep.Distribution = make([]Bucket, n)
	for i := range rep.Distribution {
		rep.Distribution[i] = Bucket{From: round2(float64(i) * width), To: round2(float64(i+1) * width)}
	}
	rep.Distribution[n-1].To = upper
	for _, s := range scores {
		i := min(max(int(s*float64(n)/upper), 0), n-1)
		// settle on the published edges so a score equal to From lands in that bucket
		for i < n-1 && s >= rep.Distribution[i+1].From {
			i++
		}
		for i > 0 && s < rep.Distribution[i].From {
			i--
		}
		rep.Distribution[i].Count++
	}

	rep.Avg, rep.Median, rep.StdDev = round2(rep.Avg), round2(rep.Median), round2(rep.StdDev)
	return rep
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
