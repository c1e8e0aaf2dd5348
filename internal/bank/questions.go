package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
)

// AddQuestions validates and stores all questions in one transaction.
// Editors and owners only.
func (s *Store) AddQuestions(ctx context.Context, bankID string, v Viewer, qs []Question) ([]Question, error) {
	if err := s.require(ctx, bankID, v, AccessEditor); err != nil {
		return nil, err
	}
	for i := range qs {
		if err := qs[i].Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	now := time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i := range qs {
			q := &qs[i]
			q.ID = uuid.NewString()
			q.BankID = bankID
			q.CreatedAt, q.UpdatedAt = now, now
			if _, err := tx.ExecContext(ctx, `INSERT INTO questions
				(id, bank_id, type, prompt, choices_json, answer_key_json, points, difficulty, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				q.ID, q.BankID, q.Type, q.Prompt, mustJSON(q.Choices), mustJSON(q.AnswerKey), q.Points, q.Difficulty,
				q.CreatedAt, q.UpdatedAt); err != nil {
				return err
			}
			if err := setTopics(ctx, tx, q.ID, q.Topics); err != nil {
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

func (s *Store) AddQuestion(ctx context.Context, bankID string, v Viewer, q Question) (Question, error) {
	out, err := s.AddQuestions(ctx, bankID, v, []Question{q})
	if err != nil {
		return Question{}, err
	}
	return out[0], nil
}

func (s *Store) UpdateQuestion(ctx context.Context, bankID string, v Viewer, q Question) (Question, error) {
	if err := s.require(ctx, bankID, v, AccessEditor); err != nil {
		return Question{}, err
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	q.BankID = bankID
	q.UpdatedAt = time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE questions SET type=$1, prompt=$2, choices_json=$3, answer_key_json=$4,
			points=$5, difficulty=$6, updated_at=$7 WHERE id=$8 AND bank_id=$9`,
			q.Type, q.Prompt, mustJSON(q.Choices), mustJSON(q.AnswerKey), q.Points, q.Difficulty, q.UpdatedAt, q.ID, bankID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("question %s: %w", q.ID, apperr.ErrNotFound)
		}
		return setTopics(ctx, tx, q.ID, q.Topics)
	})
	if err != nil {
		return Question{}, err
	}
	return s.getQuestion(ctx, q.ID)
}

func (s *Store) DeleteQuestion(ctx context.Context, bankID, questionID string, v Viewer) error {
	if err := s.require(ctx, bankID, v, AccessEditor); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1 AND bank_id=$2`, questionID, bankID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %s: %w", questionID, apperr.ErrNotFound)
	}
	return nil
}

// ListQuestions returns a bank's questions, optionally only those tagged
// with topic.
func (s *Store) ListQuestions(ctx context.Context, bankID string, v Viewer, topic string) ([]Question, error) {
	if err := s.require(ctx, bankID, v, AccessViewer); err != nil {
		return nil, err
	}
	var rows []questionRow
	var err error
	if t := NormalizeTopics([]string{topic}); len(t) == 1 {
		topic = t[0]
	} else {
		topic = ""
	}
	if topic == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM questions WHERE bank_id=$1 ORDER BY created_at, id`, bankID)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT q.* FROM questions q
			JOIN question_topics t ON t.question_id=q.id
			WHERE q.bank_id=$1 AND t.topic=$2 ORDER BY q.created_at, q.id`, bankID, topic)
	}
	if err != nil {
		return nil, err
	}
	return s.withTopics(ctx, rows)
}

// Questions loads the given questions for a viewer with at least viewer
// access to each containing bank.
func (s *Store) Questions(ctx context.Context, v Viewer, ids []string) ([]Question, error) {
	if len(ids) == 0 {
		return []Question{}, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string]questionRow, len(rows))
	checked := map[string]bool{}
	for _, r := range rows {
		if !checked[r.BankID] {
			if err := s.require(ctx, r.BankID, v, AccessViewer); err != nil {
				return nil, err
			}
			checked[r.BankID] = true
		}
		byID[r.ID] = r
	}
	ordered := make([]questionRow, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question %s: %w", id, apperr.ErrNotFound)
		}
		ordered = append(ordered, r)
	}
	return s.withTopics(ctx, ordered)
}

// Topics lists the distinct topics used in a bank with question counts.
func (s *Store) Topics(ctx context.Context, bankID string, v Viewer) ([]TopicCount, error) {
	if err := s.require(ctx, bankID, v, AccessViewer); err != nil {
		return nil, err
	}
	out := []TopicCount{}
	err := s.db.SelectContext(ctx, &out, `SELECT t.topic, COUNT(*) AS n FROM question_topics t
		JOIN questions q ON q.id=t.question_id WHERE q.bank_id=$1 GROUP BY t.topic ORDER BY t.topic`, bankID)
	return out, err
}

func (s *Store) getQuestion(ctx context.Context, id string) (Question, error) {
	var r questionRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM questions WHERE id=$1`, id)
	if db.IsNoRows(err) {
		return Question{}, fmt.Errorf("question %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Question{}, err
	}
	qs, err := s.withTopics(ctx, []questionRow{r})
	if err != nil {
		return Question{}, err
	}
	return qs[0], nil
}

func (s *Store) withTopics(ctx context.Context, rows []questionRow) ([]Question, error) {
	out := make([]Question, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	query, args, err := sqlx.In(`SELECT question_id, topic FROM question_topics WHERE question_id IN (?) ORDER BY topic`, ids)
	if err != nil {
		return nil, err
	}
	var tags []struct {
		QuestionID string `db:"question_id"`
		Topic      string `db:"topic"`
	}
	if err := s.db.SelectContext(ctx, &tags, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byQ := map[string][]string{}
	for _, t := range tags {
		byQ[t.QuestionID] = append(byQ[t.QuestionID], t.Topic)
	}
	for _, r := range rows {
		q := r.question()
		q.Topics = byQ[r.ID]
		out = append(out, q)
	}
	return out, nil
}

func setTopics(ctx context.Context, tx *sqlx.Tx, questionID string, topics []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM question_topics WHERE question_id=$1`, questionID); err != nil {
		return err
	}
	for _, t := range topics {
		if _, err := tx.ExecContext(ctx, `INSERT INTO question_topics (question_id, topic) VALUES ($1,$2)`, questionID, t); err != nil {
			return err
		}
	}
	return nil
}
