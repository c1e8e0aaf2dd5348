package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mind-engage/quizdesk/internal/report"
)

type Resumer interface {
	Resume(ctx context.Context) (int, error)
}

type Closer interface {
	CloseExpired(ctx context.Context, now time.Time) ([]string, error)
}

type Recomputer interface {
	Recompute(ctx context.Context, quizID string) (report.QuizReport, error)
}

// ResumeEvaluations restarts status polls lost to a restart or to an
// unreachable evaluation service.
func ResumeEvaluations(r Resumer) JobFunc {
	return func(ctx context.Context) error {
		_, err := r.Resume(ctx)
		return err
	}
}

// CloseExpiredQuizzes closes published quizzes past their end and refreshes
// their reports.
func CloseExpiredQuizzes(c Closer, reports Recomputer, now func() time.Time, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		ids, err := c.CloseExpired(ctx, now())
		if err != nil {
			return err
		}
		for _, id := range ids {
			log.InfoContext(ctx, "quiz closed", "quiz", id)
			if reports == nil {
				continue
			}
			if _, err := reports.Recompute(ctx, id); err != nil {
				log.WarnContext(ctx, "recompute report", "quiz", id, "err", err)
			}
		}
		return nil
	}
}
