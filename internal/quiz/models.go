package quiz

import (
	"encoding/json"

	"github.com/mind-engage/quizdesk/internal/bank"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusClosed    = "closed"
)

const (
	ResultInProgress = "in_progress"
	ResultSubmitted  = "submitted"
	ResultEvaluated  = "evaluated"
)

type Quiz struct {
	ID          string         `json:"id" db:"id"`
	CourseID    string         `json:"course_id" db:"course_id" validate:"required"`
	Title       string         `json:"title" db:"title" validate:"notblank,max=200"`
	Description string         `json:"description" db:"description"`
	StartsAt    int64          `json:"starts_at" db:"starts_at" validate:"gte=0"`
	EndsAt      int64          `json:"ends_at" db:"ends_at" validate:"gte=0"`
	DurationSec int            `json:"duration_sec" db:"duration_sec" validate:"gte=0"`
	Status      string         `json:"status" db:"status"`
	EvalStatus  string         `json:"eval_status" db:"eval_status"`
	EvalPhase   string         `json:"eval_phase,omitempty" db:"eval_phase"`
	CreatedBy   string         `json:"created_by" db:"created_by"`
	CreatedAt   int64          `json:"created_at" db:"created_at"`
	Questions   []QuizQuestion `json:"questions,omitempty" db:"-"`
}

// MaxScore is the sum of question points.
func (q Quiz) MaxScore() float64 {
	total := 0.0
	for _, qq := range q.Questions {
		total += qq.Points
	}
	return total
}

// QuizQuestion is a snapshot of a question taken when it was added, so bank
// edits do not change a scheduled quiz.
type QuizQuestion struct {
	ID        string   `json:"id"`
	QuizID    string   `json:"quiz_id"`
	SourceID  string   `json:"source_id,omitempty"`
	Position  int      `json:"position"`
	Type      string   `json:"type"`
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices,omitempty"`
	AnswerKey []string `json:"answer_key,omitempty"`
	Points    float64  `json:"points"`
}

type Patch struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description,omitempty"`
	StartsAt    *int64  `json:"starts_at,omitempty" validate:"omitempty,gte=0"`
	EndsAt      *int64  `json:"ends_at,omitempty" validate:"omitempty,gte=0"`
	DurationSec *int    `json:"duration_sec,omitempty" validate:"omitempty,gte=0"`
}

// Result is one student's attempt at a quiz.
type Result struct {
	ID          string  `json:"id"`
	QuizID      string  `json:"quiz_id"`
	StudentID   string  `json:"student_id"`
	Status      string  `json:"status"`
	Items       []Item  `json:"items"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	StartedAt   int64   `json:"started_at"`
	SubmittedAt *int64  `json:"submitted_at,omitempty"`
}

type Item struct {
	QuestionID   string          `json:"question_id"`
	Type         string          `json:"type"`
	Response     json.RawMessage `json:"response,omitempty"`
	AutoPoints   float64         `json:"auto_points"`
	ManualPoints *float64        `json:"manual_points,omitempty"`
	MaxPoints    float64         `json:"max_points"`
	NeedsManual  bool            `json:"needs_manual"`
	Feedback     []string        `json:"feedback,omitempty"`
}

// Points is the manual score when set, otherwise the automatic one.
func (it Item) Points() float64 {
	if it.ManualPoints != nil {
		return *it.ManualPoints
	}
	return it.AutoPoints
}

func (r *Result) recompute() {
	r.Score, r.MaxScore = 0, 0
	for _, it := range r.Items {
		r.Score += it.Points()
		r.MaxScore += it.MaxPoints
	}
}

func (r *Result) item(questionID string) (*Item, bool) {
	for i := range r.Items {
		if r.Items[i].QuestionID == questionID {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// ScoreEdit records one manual change so it can be undone.
type ScoreEdit struct {
	ID         string   `json:"id" db:"id"`
	ResultID   string   `json:"result_id" db:"result_id"`
	QuestionID string   `json:"question_id" db:"question_id"`
	Seq        int      `json:"seq" db:"seq"`
	PrevPoints *float64 `json:"prev_points" db:"prev_points"`
	NewPoints  float64  `json:"new_points" db:"new_points"`
	Editor     string   `json:"editor" db:"editor"`
	CreatedAt  int64    `json:"created_at" db:"created_at"`
	UndoneAt   *int64   `json:"undone_at,omitempty" db:"undone_at"`
}

// ScoreChange is a manual score edit request.
type ScoreChange struct {
	Points   float64  `json:"points"`
	Expected *float64 `json:"expected,omitempty"`
	Feedback []string `json:"feedback,omitempty"`
}

// ExternalScore is a score produced by the evaluation service.
type ExternalScore struct {
	ResultID   string   `json:"result_id" validate:"required"`
	QuestionID string   `json:"question_id" validate:"required"`
	Points     float64  `json:"points" validate:"gte=0"`
	Feedback   []string `json:"feedback,omitempty"`
}

func snapshot(q bank.Question) QuizQuestion {
	return QuizQuestion{
		SourceID:  q.ID,
		Type:      q.Type,
		Prompt:    q.Prompt,
		Choices:   q.Choices,
		AnswerKey: q.AnswerKey,
		Points:    q.Points,
	}
}

type questionRow struct {
	ID            string  `db:"id"`
	QuizID        string  `db:"quiz_id"`
	SourceID      string  `db:"source_id"`
	Position      int     `db:"position"`
	Type          string  `db:"type"`
	Prompt        string  `db:"prompt"`
	ChoicesJSON   string  `db:"choices_json"`
	AnswerKeyJSON string  `db:"answer_key_json"`
	Points        float64 `db:"points"`
}

func (r questionRow) question(withKeys bool) QuizQuestion {
	q := QuizQuestion{ID: r.ID, QuizID: r.QuizID, SourceID: r.SourceID, Position: r.Position, Type: r.Type, Prompt: r.Prompt, Points: r.Points}
	_ = json.Unmarshal([]byte(r.ChoicesJSON), &q.Choices)
	if withKeys {
		_ = json.Unmarshal([]byte(r.AnswerKeyJSON), &q.AnswerKey)
	}
	return q
}

type resultRow struct {
	ID          string  `db:"id"`
	QuizID      string  `db:"quiz_id"`
	StudentID   string  `db:"student_id"`
	Status      string  `db:"status"`
	ItemsJSON   string  `db:"items_json"`
	Score       float64 `db:"score"`
	MaxScore    float64 `db:"max_score"`
	StartedAt   int64   `db:"started_at"`
	SubmittedAt *int64  `db:"submitted_at"`
}

func (r resultRow) result() (Result, error) {
	res := Result{
		ID: r.ID, QuizID: r.QuizID, StudentID: r.StudentID, Status: r.Status,
		Score: r.Score, MaxScore: r.MaxScore, StartedAt: r.StartedAt, SubmittedAt: r.SubmittedAt,
	}
	if err := json.Unmarshal([]byte(r.ItemsJSON), &res.Items); err != nil {
		return Result{}, err
	}
	return res, nil
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
