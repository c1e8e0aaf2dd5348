package quiz

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/validate"
)

// Start opens an attempt for an enrolled student while the quiz window is
// open. Starting again returns the attempt in progress.
func (s *Store) Start(ctx context.Context, quizID, studentID string) (Result, error) {
	var out Result
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		q, err := s.header(ctx, tx, quizID)
		if err != nil {
			return err
		}
		now := s.now().Unix()
		if q.Status != StatusPublished || now < q.StartsAt || now > q.EndsAt {
			return fmt.Errorf("quiz %s is not open: %w", quizID, apperr.ErrConflict)
		}
		var enrolled int
		if err := tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM course_students
			WHERE course_id=$1 AND student_id=$2 AND status='active'`, q.CourseID, studentID); err != nil {
			return err
		}
		if enrolled == 0 {
			return fmt.Errorf("student not enrolled in course %s: %w", q.CourseID, apperr.ErrForbidden)
		}

		var existing resultRow
		err = tx.GetContext(ctx, &existing, `SELECT * FROM results WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID)
		switch {
		case err == nil:
			if existing.Status != ResultInProgress {
				return fmt.Errorf("quiz %s already submitted: %w", quizID, apperr.ErrConflict)
			}
			out, err = existing.result()
			return err
		case !db.IsNoRows(err):
			return err
		}

		qs, err := s.questions(ctx, tx, quizID, false)
		if err != nil {
			return err
		}
		out = Result{ID: uuid.NewString(), QuizID: quizID, StudentID: studentID, Status: ResultInProgress, StartedAt: now}
		for _, qq := range qs {
			out.Items = append(out.Items, Item{QuestionID: qq.ID, Type: qq.Type, MaxPoints: qq.Points})
		}
		out.recompute()
		_, err = tx.ExecContext(ctx, `INSERT INTO results (id, quiz_id, student_id, status, items_json, score, max_score, started_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			out.ID, out.QuizID, out.StudentID, out.Status, toJSON(out.Items), out.Score, out.MaxScore, out.StartedAt)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("attempt exists: %w", apperr.ErrConflict)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (s *Store) GetResult(ctx context.Context, id string) (Result, error) {
	return s.getResult(ctx, s.db, id)
}

func (s *Store) getResult(ctx context.Context, ext sqlx.QueryerContext, id string) (Result, error) {
	var r resultRow
	err := sqlx.GetContext(ctx, ext, &r, `SELECT * FROM results WHERE id=$1`, id)
	if db.IsNoRows(err) {
		return Result{}, fmt.Errorf("result %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Result{}, err
	}
	return r.result()
}

func (s *Store) ListResults(ctx context.Context, quizID string) ([]Result, error) {
	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM results WHERE quiz_id=$1 ORDER BY started_at, id`, quizID); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		res, err := r.result()
		if err != nil {
			return nil, fmt.Errorf("result %s: %w", r.ID, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Store) saveResult(ctx context.Context, tx *sqlx.Tx, r Result) error {
	_, err := tx.ExecContext(ctx, `UPDATE results SET status=$1, items_json=$2, score=$3, max_score=$4, submitted_at=$5 WHERE id=$6`,
		r.Status, toJSON(r.Items), r.Score, r.MaxScore, r.SubmittedAt, r.ID)
	return err
}

// openAttempt loads an in-progress result owned by studentID whose time has
// not run out.
func (s *Store) openAttempt(ctx context.Context, tx *sqlx.Tx, resultID, studentID string) (Result, Quiz, error) {
	r, err := s.getResult(ctx, tx, resultID)
	if err != nil {
		return Result{}, Quiz{}, err
	}
	if r.StudentID != studentID {
		return Result{}, Quiz{}, fmt.Errorf("result %s: %w", resultID, apperr.ErrNotFound)
	}
	if r.Status != ResultInProgress {
		return Result{}, Quiz{}, fmt.Errorf("result %s is %s: %w", resultID, r.Status, apperr.ErrConflict)
	}
	q, err := s.header(ctx, tx, r.QuizID)
	if err != nil {
		return Result{}, Quiz{}, err
	}
	return r, q, nil
}

// deadline is the earlier of the quiz end and the attempt's time limit.
func deadline(q Quiz, r Result) int64 {
	end := q.EndsAt
	if q.DurationSec > 0 {
		end = min(end, r.StartedAt+int64(q.DurationSec))
	}
	return end
}

// SaveResponses stores answers by quiz question id. Unknown ids are refused.
func (s *Store) SaveResponses(ctx context.Context, resultID, studentID string, responses map[string]json.RawMessage) (Result, error) {
	var out Result
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		r, q, err := s.openAttempt(ctx, tx, resultID, studentID)
		if err != nil {
			return err
		}
		if s.now().Unix() > deadline(q, r) {
			return fmt.Errorf("time is up for result %s: %w", resultID, apperr.ErrConflict)
		}
		for qid, resp := range responses {
			it, ok := r.item(qid)
			if !ok {
				return apperr.NewValidationError(apperr.FieldError{Field: "responses." + qid, Message: "not a question of this quiz"})
			}
			if !json.Valid(resp) {
				return apperr.NewValidationError(apperr.FieldError{Field: "responses." + qid, Message: "invalid JSON"})
			}
			it.Response = resp
		}
		out = r
		return s.saveResult(ctx, tx, r)
	})
	return out, err
}

// Submit closes the attempt and auto-grades it. Items the engine cannot
// score are left NeedsManual for the evaluation service or a manager.
func (s *Store) Submit(ctx context.Context, resultID, studentID string) (Result, error) {
	var out Result
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		r, _, err := s.openAttempt(ctx, tx, resultID, studentID)
		if err != nil {
			return err
		}
		qs, err := s.questions(ctx, tx, r.QuizID, true)
		if err != nil {
			return err
		}
		byID := make(map[string]QuizQuestion, len(qs))
		for _, qq := range qs {
			byID[qq.ID] = qq
		}
		for i := range r.Items {
			it := &r.Items[i]
			qq := byID[it.QuestionID]
			var resp any
			if len(it.Response) > 0 {
				if err := json.Unmarshal(it.Response, &resp); err != nil {
					return err
				}
			}
			g, err := s.grader.Grade(ctx, grading.Q{Type: qq.Type, Points: qq.Points, AnswerKey: qq.AnswerKey}, resp)
			if err != nil {
				g = grading.Result{MaxPoints: qq.Points, Feedback: []string{err.Error()}}
			}
			it.AutoPoints = g.AutoPoints
			it.MaxPoints = g.MaxPoints
			it.NeedsManual = g.NeedsManual
			it.Feedback = g.Feedback
		}
		now := s.now().Unix()
		r.Status = ResultSubmitted
		r.SubmittedAt = &now
		r.recompute()
		out = r
		return s.saveResult(ctx, tx, r)
	})
	return out, err
}

// EditScore sets a manual score on one item. The result update and its
// ScoreEdit row commit together or not at all. When ch.Expected is set and
// no longer matches the stored points the edit is refused with ErrConflict,
// so a client that applied it optimistically rolls back.
func (s *Store) EditScore(ctx context.Context, resultID, questionID string, ch ScoreChange, editor string) (ScoreEdit, Result, error) {
	points := ch.Points
	var (
		edit ScoreEdit
		out  Result
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		r, err := s.getResult(ctx, tx, resultID)
		if err != nil {
			return err
		}
		if r.Status == ResultInProgress {
			return fmt.Errorf("result %s not submitted: %w", resultID, apperr.ErrConflict)
		}
		it, ok := r.item(questionID)
		if !ok {
			return fmt.Errorf("question %s in result: %w", questionID, apperr.ErrNotFound)
		}
		if ch.Expected != nil && *ch.Expected != it.Points() {
			return fmt.Errorf("item %s now has %g points: %w", questionID, it.Points(), apperr.ErrConflict)
		}
		if points < 0 || points > it.MaxPoints {
			return apperr.NewValidationError(apperr.FieldError{Field: "points", Message: fmt.Sprintf("must be between 0 and %g", it.MaxPoints)})
		}
		var seq int
		if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM score_edits WHERE result_id=$1 AND question_id=$2`,
			resultID, questionID); err != nil {
			return err
		}
		edit = ScoreEdit{
			ID:         uuid.NewString(),
			Seq:        seq + 1,
			ResultID:   resultID,
			QuestionID: questionID,
			PrevPoints: it.ManualPoints,
			NewPoints:  points,
			Editor:     editor,
			CreatedAt:  s.now().Unix(),
		}
		p := points
		it.ManualPoints = &p
		it.NeedsManual = false
		if len(ch.Feedback) > 0 {
			it.Feedback = ch.Feedback
		}
		r.recompute()
		if err := s.saveResult(ctx, tx, r); err != nil {
			return err
		}
		out = r
		_, err = tx.ExecContext(ctx, `INSERT INTO score_edits (id, result_id, question_id, seq, prev_points, new_points, editor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			edit.ID, edit.ResultID, edit.QuestionID, edit.Seq, edit.PrevPoints, edit.NewPoints, edit.Editor, edit.CreatedAt)
		return err
	})
	if err != nil {
		return ScoreEdit{}, Result{}, err
	}
	return edit, out, nil
}

// UndoScoreEdit restores the points an edit replaced. Only the latest live
// edit of an item can be undone.
func (s *Store) UndoScoreEdit(ctx context.Context, editID string) (ScoreEdit, Result, error) {
	var (
		edit ScoreEdit
		out  Result
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &edit, `SELECT * FROM score_edits WHERE id=$1`, editID)
		if db.IsNoRows(err) {
			return fmt.Errorf("score edit %s: %w", editID, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if edit.UndoneAt != nil {
			return fmt.Errorf("score edit %s already undone: %w", editID, apperr.ErrConflict)
		}
		var latest string
		if err := tx.GetContext(ctx, &latest, `SELECT id FROM score_edits
			WHERE result_id=$1 AND question_id=$2 AND undone_at IS NULL
			ORDER BY seq DESC LIMIT 1`, edit.ResultID, edit.QuestionID); err != nil {
			return err
		}
		if latest != editID {
			return fmt.Errorf("score edit %s was superseded: %w", editID, apperr.ErrConflict)
		}

		r, err := s.getResult(ctx, tx, edit.ResultID)
		if err != nil {
			return err
		}
		it, ok := r.item(edit.QuestionID)
		if !ok {
			return fmt.Errorf("question %s in result: %w", edit.QuestionID, apperr.ErrNotFound)
		}
		it.ManualPoints = edit.PrevPoints
		if edit.PrevPoints == nil {
			it.NeedsManual = grading.External(it.Type) && r.Status != ResultEvaluated
		}
		r.recompute()
		if err := s.saveResult(ctx, tx, r); err != nil {
			return err
		}
		now := s.now().Unix()
		edit.UndoneAt = &now
		out = r
		_, err = tx.ExecContext(ctx, `UPDATE score_edits SET undone_at=$1 WHERE id=$2`, now, editID)
		return err
	})
	if err != nil {
		return ScoreEdit{}, Result{}, err
	}
	return edit, out, nil
}

func (s *Store) ListEdits(ctx context.Context, resultID string) ([]ScoreEdit, error) {
	out := []ScoreEdit{}
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM score_edits WHERE result_id=$1 ORDER BY question_id, seq`, resultID)
	return out, err
}

func (s *Store) GetEdit(ctx context.Context, editID string) (ScoreEdit, error) {
	var e ScoreEdit
	err := s.db.GetContext(ctx, &e, `SELECT * FROM score_edits WHERE id=$1`, editID)
	if db.IsNoRows(err) {
		return ScoreEdit{}, fmt.Errorf("score edit %s: %w", editID, apperr.ErrNotFound)
	}
	return e, err
}

// ApplyExternalScores writes evaluation-service scores as automatic points.
// Manual overrides stay in place. Results still in progress are refused.
func (s *Store) ApplyExternalScores(ctx context.Context, quizID string, scores []ExternalScore) (int, error) {
	for i := range scores {
		if err := validate.Struct(scores[i]); err != nil {
			return 0, fmt.Errorf("scores[%d]: %w", i, err)
		}
	}
	applied := 0
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		touched := map[string]*Result{}
		for _, sc := range scores {
			r, ok := touched[sc.ResultID]
			if !ok {
				res, err := s.getResult(ctx, tx, sc.ResultID)
				if err != nil {
					return err
				}
				if res.QuizID != quizID {
					return fmt.Errorf("result %s: %w", sc.ResultID, apperr.ErrNotFound)
				}
				if res.Status == ResultInProgress {
					return fmt.Errorf("result %s not submitted: %w", sc.ResultID, apperr.ErrConflict)
				}
				r = &res
				touched[sc.ResultID] = r
			}
			it, ok := r.item(sc.QuestionID)
			if !ok {
				return fmt.Errorf("question %s in result %s: %w", sc.QuestionID, sc.ResultID, apperr.ErrNotFound)
			}
			if sc.Points > it.MaxPoints {
				return apperr.NewValidationError(apperr.FieldError{Field: "points", Message: fmt.Sprintf("must be between 0 and %g", it.MaxPoints)})
			}
			it.AutoPoints = sc.Points
			it.NeedsManual = false
			if len(sc.Feedback) > 0 {
				it.Feedback = sc.Feedback
			}
			applied++
		}
		for _, r := range touched {
			r.recompute()
			if err := s.saveResult(ctx, tx, *r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// MarkEvaluated moves every submitted result of a quiz to evaluated.
func (s *Store) MarkEvaluated(ctx context.Context, quizID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE results SET status='evaluated' WHERE quiz_id=$1 AND status='submitted'`, quizID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Scores returns the scores of finished attempts and the quiz's max score.
func (s *Store) Scores(ctx context.Context, quizID string) ([]float64, float64, error) {
	q, err := s.Get(ctx, quizID, false)
	if err != nil {
		return nil, 0, err
	}
	scores := []float64{}
	err = s.db.SelectContext(ctx, &scores, `SELECT score FROM results WHERE quiz_id=$1 AND status<>'in_progress' ORDER BY score`, quizID)
	return scores, q.MaxScore(), err
}
