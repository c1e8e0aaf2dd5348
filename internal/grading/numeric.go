package grading

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// numericStrategy compares against AnswerKey[0], optionally within a
// tolerance given by later keys:
//
//	["3.14159", "tol=0.01"]   absolute
//	["100", "reltol=0.05"]    relative (5%)
type numericStrategy struct{}

func (numericStrategy) Grade(_ context.Context, q Q, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	var got float64
	switch v := response.(type) {
	case float64:
		got = v
	case string:
		f, ok := parseFloatLoose(v)
		if !ok {
			res.Feedback = append(res.Feedback, "not a number")
			return res, nil
		}
		got = f
	default:
		return res, ErrBadResponse
	}
	if len(q.AnswerKey) == 0 {
		return res, nil
	}
	want, ok := parseFloatLoose(q.AnswerKey[0])
	if !ok {
		return res, nil
	}

	absTol, relTol := parseTolerances(q.AnswerKey[1:])
	diff := math.Abs(got - want)
	if diff == 0 || (absTol >= 0 && diff <= absTol) || (relTol >= 0 && diff <= relTol*math.Abs(want)) {
		res.AutoPoints = q.Points
	}
	return res, nil
}

// parseFloatLoose accepts a leading number followed by units ("9.8 m/s")
// and a decimal comma.
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseTolerances(keys []string) (absTol, relTol float64) {
	absTol, relTol = -1, -1
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		name, val, ok := strings.Cut(k, "=")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil || v < 0 {
			continue
		}
		switch name {
		case "tol":
			absTol = v
		case "reltol":
			relTol = v
		}
	}
	return
}
