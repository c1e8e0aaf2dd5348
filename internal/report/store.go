package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(dbh *sqlx.DB) *Store { return &Store{db: dbh} }

// Save replaces the stored report of rep.QuizID.
func (s *Store) Save(ctx context.Context, rep QuizReport) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quiz_reports (quiz_id, report_json, generated_at) VALUES ($1,$2,$3)
		ON CONFLICT (quiz_id) DO UPDATE SET report_json=EXCLUDED.report_json, generated_at=EXCLUDED.generated_at`,
		rep.QuizID, string(b), rep.GeneratedAt)
	return err
}

func (s *Store) Get(ctx context.Context, quizID string) (QuizReport, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT report_json FROM quiz_reports WHERE quiz_id=$1`, quizID)
	if db.IsNoRows(err) {
		return QuizReport{}, fmt.Errorf("report for quiz %s: %w", quizID, apperr.ErrNotFound)
	}
	if err != nil {
		return QuizReport{}, err
	}
	var rep QuizReport
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return QuizReport{}, err
	}
	return rep, nil
}

// Delete drops the stored report of quizID. A missing report is not an error.
func (s *Store) Delete(ctx context.Context, quizID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quiz_reports WHERE quiz_id=$1`, quizID)
	return err
}
