package bank

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/validate"
)

// Access levels, ordered.
const (
	AccessNone   = ""
	AccessViewer = "viewer"
	AccessEditor = "editor"
	AccessOwner  = "owner"
)

func accessRank(a string) int {
	switch a {
	case AccessOwner:
		return 3
	case AccessEditor:
		return 2
	case AccessViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether have grants want.
func AtLeast(have, want string) bool { return accessRank(have) >= accessRank(want) && accessRank(want) > 0 }

type Bank struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name" validate:"notblank,max=200"`
	Description string `json:"description" db:"description"`
	CreatedBy   string `json:"created_by" db:"created_by"`
	CreatedAt   int64  `json:"created_at" db:"created_at"`
	Access      string `json:"access,omitempty" db:"access"`
}

type Share struct {
	BankID string `json:"bank_id" db:"bank_id"`
	UserID string `json:"user_id" db:"user_id"`
	Access string `json:"access" db:"access"`
}

type Question struct {
	ID         string   `json:"id"`
	BankID     string   `json:"bank_id"`
	Type       string   `json:"type" validate:"required"`
	Prompt     string   `json:"prompt" validate:"notblank"`
	Choices    []string `json:"choices,omitempty"`
	AnswerKey  []string `json:"answer_key,omitempty"`
	Points     float64  `json:"points" validate:"gt=0"`
	Topics     []string `json:"topics,omitempty" validate:"dive,notblank,max=64"`
	Difficulty string   `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// Validate checks field rules and the type-specific shape of choices and
// answer key.
func (q *Question) Validate() error {
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.Topics = NormalizeTopics(q.Topics)
	if q.Points == 0 {
		q.Points = 1
	}
	if err := validate.Struct(q); err != nil {
		return err
	}
	if !grading.ValidType(q.Type) {
		return apperr.NewValidationError(apperr.FieldError{Field: "type", Message: "must be one of " + strings.Join(grading.Types, " ")})
	}
	switch q.Type {
	case grading.TypeMCQSingle, grading.TypeMCQMulti:
		if len(q.Choices) < 2 {
			return apperr.NewValidationError(apperr.FieldError{Field: "choices", Message: "at least 2 choices required"})
		}
		if len(q.AnswerKey) == 0 || (q.Type == grading.TypeMCQSingle && len(q.AnswerKey) != 1) {
			return apperr.NewValidationError(apperr.FieldError{Field: "answer_key", Message: fmt.Sprintf("%s needs %s", q.Type, keyArity(q.Type))})
		}
		ids := make(map[string]bool, len(q.Choices))
		for i := range q.Choices {
			ids[ChoiceID(i)] = true
		}
		for _, k := range q.AnswerKey {
			if !ids[k] {
				return apperr.NewValidationError(apperr.FieldError{Field: "answer_key", Message: "unknown choice " + k})
			}
		}
	case grading.TypeTrueFalse:
		if len(q.AnswerKey) != 1 || (q.AnswerKey[0] != "true" && q.AnswerKey[0] != "false") {
			return apperr.NewValidationError(apperr.FieldError{Field: "answer_key", Message: "must be [\"true\"] or [\"false\"]"})
		}
	case grading.TypeShortWord, grading.TypeNumeric:
		if len(q.AnswerKey) == 0 {
			return apperr.NewValidationError(apperr.FieldError{Field: "answer_key", Message: "this field is required"})
		}
	}
	return nil
}

func keyArity(t string) string {
	if t == grading.TypeMCQSingle {
		return "exactly one answer"
	}
	return "at least one answer"
}

// ChoiceID is the letter key for the i-th choice: A, B, C...
func ChoiceID(i int) string { return string(rune('A' + i)) }

// NormalizeTopics trims, lowercases and dedups topic tags.
func NormalizeTopics(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

type TopicCount struct {
	Topic string `json:"topic" db:"topic"`
	Count int    `json:"count" db:"n"`
}

// questionRow is the stored shape of Question.
type questionRow struct {
	ID            string  `db:"id"`
	BankID        string  `db:"bank_id"`
	Type          string  `db:"type"`
	Prompt        string  `db:"prompt"`
	ChoicesJSON   string  `db:"choices_json"`
	AnswerKeyJSON string  `db:"answer_key_json"`
	Points        float64 `db:"points"`
	Difficulty    string  `db:"difficulty"`
	CreatedAt     int64   `db:"created_at"`
	UpdatedAt     int64   `db:"updated_at"`
}

func (r questionRow) question() Question {
	q := Question{
		ID: r.ID, BankID: r.BankID, Type: r.Type, Prompt: r.Prompt,
		Points: r.Points, Difficulty: r.Difficulty, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(r.ChoicesJSON), &q.Choices)
	_ = json.Unmarshal([]byte(r.AnswerKeyJSON), &q.AnswerKey)
	return q
}

func mustJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
