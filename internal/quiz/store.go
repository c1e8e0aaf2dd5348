package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/validate"
)

type Store struct {
	db     *sqlx.DB
	grader grading.Grader
	now    func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithGrader(g grading.Grader) Option { return func(s *Store) { s.grader = g } }

func NewStore(dbh *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: dbh, grader: grading.NewDefaultGrader(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, q Quiz) (Quiz, error) {
	q.Title = strings.TrimSpace(q.Title)
	if err := validate.Struct(q); err != nil {
		return Quiz{}, err
	}
	if err := checkWindow(q.StartsAt, q.EndsAt); err != nil {
		return Quiz{}, err
	}
	q.ID = uuid.NewString()
	q.Status = StatusDraft
	q.EvalStatus = "IDLE"
	q.CreatedAt = s.now().Unix()
	_, err := s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id, course_id, title, description, starts_at, ends_at, duration_sec, status, eval_status, eval_phase, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'',$10,$11)`,
		q.ID, q.CourseID, q.Title, q.Description, q.StartsAt, q.EndsAt, q.DurationSec, q.Status, q.EvalStatus, q.CreatedBy, q.CreatedAt)
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func checkWindow(start, end int64) error {
	if start > 0 && end > 0 && end <= start {
		return apperr.NewValidationError(apperr.FieldError{Field: "ends_at", Message: "must be after starts_at"})
	}
	return nil
}

// Get loads a quiz with its questions. Answer keys are included only when
// withKeys is set.
func (s *Store) Get(ctx context.Context, id string, withKeys bool) (Quiz, error) {
	q, err := s.header(ctx, s.db, id)
	if err != nil {
		return Quiz{}, err
	}
	if q.Questions, err = s.questions(ctx, s.db, id, withKeys); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *Store) header(ctx context.Context, ext sqlx.QueryerContext, id string) (Quiz, error) {
	var q Quiz
	err := sqlx.GetContext(ctx, ext, &q, `SELECT * FROM quizzes WHERE id=$1`, id)
	if db.IsNoRows(err) {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, apperr.ErrNotFound)
	}
	return q, err
}

func (s *Store) questions(ctx context.Context, ext sqlx.QueryerContext, quizID string, withKeys bool) ([]QuizQuestion, error) {
	var rows []questionRow
	if err := sqlx.SelectContext(ctx, ext, &rows, `SELECT * FROM quiz_questions WHERE quiz_id=$1 ORDER BY position, id`, quizID); err != nil {
		return nil, err
	}
	out := make([]QuizQuestion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.question(withKeys))
	}
	return out, nil
}

// ListByCourse lists a course's quizzes; drafts only when includeDrafts.
func (s *Store) ListByCourse(ctx context.Context, courseID string, includeDrafts bool) ([]Quiz, error) {
	out := []Quiz{}
	query := `SELECT * FROM quizzes WHERE course_id=$1`
	if !includeDrafts {
		query += ` AND status<>'draft'`
	}
	err := s.db.SelectContext(ctx, &out, query+` ORDER BY starts_at DESC, created_at DESC`, courseID)
	return out, err
}

// Update edits a quiz. The schedule can change only while it is a draft.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Quiz, error) {
	if err := validate.Struct(p); err != nil {
		return Quiz{}, err
	}
	q, err := s.header(ctx, s.db, id)
	if err != nil {
		return Quiz{}, err
	}
	if (p.StartsAt != nil || p.EndsAt != nil || p.DurationSec != nil) && q.Status != StatusDraft {
		return Quiz{}, fmt.Errorf("quiz %s is %s; schedule is fixed: %w", id, q.Status, apperr.ErrConflict)
	}
	if p.Title != nil {
		q.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		q.Description = *p.Description
	}
	if p.StartsAt != nil {
		q.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		q.EndsAt = *p.EndsAt
	}
	if p.DurationSec != nil {
		q.DurationSec = *p.DurationSec
	}
	if err := checkWindow(q.StartsAt, q.EndsAt); err != nil {
		return Quiz{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE quizzes SET title=$1, description=$2, starts_at=$3, ends_at=$4, duration_sec=$5 WHERE id=$6`,
		q.Title, q.Description, q.StartsAt, q.EndsAt, q.DurationSec, id)
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

// Delete removes a quiz; quizzes with attempts are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.header(ctx, tx, id); err != nil {
			return err
		}
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM results WHERE quiz_id=$1`, id); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("quiz %s has %d results: %w", id, n, apperr.ErrConflict)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
		return err
	})
}

// Publish makes a draft visible to students. It needs at least one question
// and a valid window.
func (s *Store) Publish(ctx context.Context, id string) (Quiz, error) {
	q, err := s.Get(ctx, id, false)
	if err != nil {
		return Quiz{}, err
	}
	if q.Status != StatusDraft {
		return Quiz{}, fmt.Errorf("quiz %s is %s: %w", id, q.Status, apperr.ErrConflict)
	}
	var fields []apperr.FieldError
	if len(q.Questions) == 0 {
		fields = append(fields, apperr.FieldError{Field: "questions", Message: "add at least one question"})
	}
	if q.StartsAt == 0 || q.EndsAt <= q.StartsAt {
		fields = append(fields, apperr.FieldError{Field: "ends_at", Message: "schedule needs starts_at before ends_at"})
	}
	if len(fields) > 0 {
		return Quiz{}, apperr.NewValidationError(fields...)
	}
	return s.setStatus(ctx, q, StatusPublished)
}

func (s *Store) Close(ctx context.Context, id string) (Quiz, error) {
	q, err := s.Get(ctx, id, false)
	if err != nil {
		return Quiz{}, err
	}
	if q.Status != StatusPublished {
		return Quiz{}, fmt.Errorf("quiz %s is %s: %w", id, q.Status, apperr.ErrConflict)
	}
	return s.setStatus(ctx, q, StatusClosed)
}

func (s *Store) setStatus(ctx context.Context, q Quiz, status string) (Quiz, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET status=$1 WHERE id=$2 AND status=$3`, status, q.ID, q.Status)
	if err != nil {
		return Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, fmt.Errorf("quiz %s changed concurrently: %w", q.ID, apperr.ErrConflict)
	}
	q.Status = status
	return q, nil
}

// CloseExpired closes published quizzes whose window ended before now and
// returns their ids.
func (s *Store) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &ids, `SELECT id FROM quizzes WHERE status='published' AND ends_at>0 AND ends_at<$1`, now.Unix()); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		query, args, err := sqlx.In(`UPDATE quizzes SET status='closed' WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err
	})
	return ids, err
}

func (s *Store) requireDraft(ctx context.Context, ext sqlx.QueryerContext, quizID string) error {
	q, err := s.header(ctx, ext, quizID)
	if err != nil {
		return err
	}
	if q.Status != StatusDraft {
		return fmt.Errorf("quiz %s is %s; questions are fixed: %w", quizID, q.Status, apperr.ErrConflict)
	}
	return nil
}

// AddFromBank appends snapshots of bank questions to a draft quiz.
func (s *Store) AddFromBank(ctx context.Context, quizID string, qs []bank.Question) ([]QuizQuestion, error) {
	snaps := make([]QuizQuestion, 0, len(qs))
	for _, q := range qs {
		snaps = append(snaps, snapshot(q))
	}
	return s.appendQuestions(ctx, quizID, snaps)
}

// AddQuestion appends a question authored directly on the quiz.
func (s *Store) AddQuestion(ctx context.Context, quizID string, q bank.Question) (QuizQuestion, error) {
	if err := q.Validate(); err != nil {
		return QuizQuestion{}, err
	}
	q.ID = ""
	out, err := s.appendQuestions(ctx, quizID, []QuizQuestion{snapshot(q)})
	if err != nil {
		return QuizQuestion{}, err
	}
	return out[0], nil
}

func (s *Store) appendQuestions(ctx context.Context, quizID string, qs []QuizQuestion) ([]QuizQuestion, error) {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireDraft(ctx, tx, quizID); err != nil {
			return err
		}
		var next int
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) FROM quiz_questions WHERE quiz_id=$1`, quizID); err != nil {
			return err
		}
		for i := range qs {
			next++
			q := &qs[i]
			q.ID = uuid.NewString()
			q.QuizID = quizID
			q.Position = next
			if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_questions
				(id, quiz_id, source_id, position, type, prompt, choices_json, answer_key_json, points)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				q.ID, q.QuizID, q.SourceID, q.Position, q.Type, q.Prompt, toJSON(q.Choices), toJSON(q.AnswerKey), q.Points); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *Store) RemoveQuestion(ctx context.Context, quizID, questionID string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireDraft(ctx, tx, quizID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE id=$1 AND quiz_id=$2`, questionID, quizID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("question %s: %w", questionID, apperr.ErrNotFound)
		}
		return nil
	})
}

// Reorder sets positions from the order of ids, which must list every
// question of the quiz exactly once.
func (s *Store) Reorder(ctx context.Context, quizID string, ids []string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireDraft(ctx, tx, quizID); err != nil {
			return err
		}
		var have []string
		if err := tx.SelectContext(ctx, &have, `SELECT id FROM quiz_questions WHERE quiz_id=$1`, quizID); err != nil {
			return err
		}
		want := make(map[string]bool, len(have))
		for _, id := range have {
			want[id] = true
		}
		if len(ids) != len(have) {
			return apperr.NewValidationError(apperr.FieldError{Field: "ids", Message: "must list every question once"})
		}
		for i, id := range ids {
			if !want[id] {
				return apperr.NewValidationError(apperr.FieldError{Field: fmt.Sprintf("ids[%d]", i), Message: "unknown or repeated question"})
			}
			delete(want, id)
			if _, err := tx.ExecContext(ctx, `UPDATE quiz_questions SET position=$1 WHERE id=$2`, i+1, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetEvalStatus stores the last known evaluation state of a quiz.
func (s *Store) SetEvalStatus(ctx context.Context, quizID, status, phase string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET eval_status=$1, eval_phase=$2 WHERE id=$3`, status, phase, quizID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("quiz %s: %w", quizID, apperr.ErrNotFound)
	}
	return nil
}

// ClaimEvaluation moves a quiz to status/phase unless its stored evaluation
// status is one of busy, and returns the status and phase it replaced.
// A quiz that is already busy gives ErrConflict.
func (s *Store) ClaimEvaluation(ctx context.Context, quizID, status, phase string, busy ...string) (string, string, error) {
	var prev struct {
		Status string `db:"eval_status"`
		Phase  string `db:"eval_phase"`
	}
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &prev, `SELECT eval_status, eval_phase FROM quizzes WHERE id=$1`, quizID); err != nil {
			if db.IsNoRows(err) {
				return fmt.Errorf("quiz %s: %w", quizID, apperr.ErrNotFound)
			}
			return err
		}
		query := `UPDATE quizzes SET eval_status=?, eval_phase=? WHERE id=?`
		args := []any{status, phase, quizID}
		if len(busy) > 0 {
			q, a, err := sqlx.In(query+` AND eval_status NOT IN (?)`, status, phase, quizID, busy)
			if err != nil {
				return err
			}
			query, args = q, a
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("quiz %s evaluation is %s: %w", quizID, prev.Status, apperr.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return prev.Status, prev.Phase, nil
}

// ListByEvalStatus returns ids of quizzes whose stored evaluation status is
// one of statuses.
func (s *Store) ListByEvalStatus(ctx context.Context, statuses ...string) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM quizzes WHERE eval_status IN (?) ORDER BY created_at`, statuses)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...)
	return ids, err
}
