package grading

import (
	"context"
	"errors"
	"strings"
)

// Question types understood by the engine.
const (
	TypeMCQSingle = "mcq_single"
	TypeMCQMulti  = "mcq_multi"
	TypeTrueFalse = "true_false"
	TypeShortWord = "short_word"
	TypeNumeric   = "numeric"
	TypeEssay     = "essay"
	TypeCoding    = "coding"
)

var Types = []string{TypeMCQSingle, TypeMCQMulti, TypeTrueFalse, TypeShortWord, TypeNumeric, TypeEssay, TypeCoding}

func ValidType(t string) bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// External reports whether responses of type t are scored by the
// evaluation service rather than in-process.
func External(t string) bool { return t == TypeEssay || t == TypeCoding }

var ErrBadResponse = errors.New("grading: unexpected response shape")

// Q is the part of a question needed for grading.
type Q struct {
	Type      string
	Points    float64
	AnswerKey []string
}

// Result is the outcome of grading a single response.
type Result struct {
	AutoPoints  float64
	MaxPoints   float64
	NeedsManual bool
	Feedback    []string
}

type Strategy interface {
	Grade(ctx context.Context, q Q, response any) (Result, error)
}

// Grader routes by question type to a Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response any) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response any) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy for " + q.Type}}, nil
	}
	if response == nil {
		return Result{MaxPoints: q.Points, NeedsManual: External(q.Type), Feedback: []string{"no response"}}, nil
	}
	return s.Grade(ctx, q, response)
}

type Option func(*config)

type config struct {
	MaxEditDistance   int
	AllowPartialMulti bool
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option   { return func(c *config) { c.AllowPartialMulti = b } }

func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		MaxEditDistance:   1,
		AllowPartialMulti: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeMCQSingle: choiceStrategy{},
			TypeTrueFalse: choiceStrategy{fold: true},
			TypeMCQMulti:  multiChoiceStrategy{allowPartial: cfg.AllowPartialMulti},
			TypeShortWord: shortWordStrategy{maxEdit: cfg.MaxEditDistance},
			TypeNumeric:   numericStrategy{},
			TypeEssay:     externalStrategy{},
			TypeCoding:    externalStrategy{},
		},
	}
}

// choiceStrategy awards full points when the response equals any key.
// fold compares case-insensitively ("True" == "true").
type choiceStrategy struct{ fold bool }

func (s choiceStrategy) Grade(_ context.Context, q Q, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp, ok := response.(string)
	if !ok {
		return res, ErrBadResponse
	}
	resp = strings.TrimSpace(resp)
	for _, k := range q.AnswerKey {
		if resp == k || (s.fold && strings.EqualFold(resp, k)) {
			res.AutoPoints = q.Points
			break
		}
	}
	return res, nil
}

// multiChoiceStrategy gives full points for the exact set and, when partial
// credit is on, a proportional share if no wrong option was picked.
type multiChoiceStrategy struct{ allowPartial bool }

func (s multiChoiceStrategy) Grade(_ context.Context, q Q, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	picked, ok := toStringSlice(response)
	if !ok {
		return res, ErrBadResponse
	}
	correct := toSet(q.AnswerKey)
	resp := toSet(picked)
	if len(correct) == 0 {
		return res, nil
	}

	hits := 0
	for r := range resp {
		if _, ok := correct[r]; !ok {
			res.Feedback = append(res.Feedback, "incorrect option selected")
			return res, nil
		}
		hits++
	}
	switch {
	case hits == len(correct):
		res.AutoPoints = q.Points
	case s.allowPartial:
		res.AutoPoints = q.Points * float64(hits) / float64(len(correct))
	}
	return res, nil
}

// shortWordStrategy accepts normalized exact matches for full points and
// near misses within maxEdit for half.
type shortWordStrategy struct{ maxEdit int }

func (s shortWordStrategy) Grade(_ context.Context, q Q, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp, ok := response.(string)
	if !ok {
		return res, ErrBadResponse
	}
	got := normalize(resp)
	if got == "" {
		return res, nil
	}

	near := false
	for _, k := range q.AnswerKey {
		want := normalize(k)
		if want == got {
			res.AutoPoints = q.Points
			return res, nil
		}
		if s.maxEdit > 0 && levenshtein(want, got) <= s.maxEdit {
			near = true
		}
	}
	if near {
		res.AutoPoints = q.Points * 0.5
		res.Feedback = append(res.Feedback, "close match")
	}
	return res, nil
}

// externalStrategy leaves the item for the evaluation service or a manager.
type externalStrategy struct{}

func (externalStrategy) Grade(_ context.Context, q Q, _ any) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"pending evaluation"}}, nil
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{t}, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		if s = strings.TrimSpace(s); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}
