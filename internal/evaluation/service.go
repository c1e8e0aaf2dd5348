package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"
	"time"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/audit"
	"github.com/mind-engage/quizdesk/internal/notify"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/users"
)

type Quizzes interface {
	Get(ctx context.Context, id string, withKeys bool) (quiz.Quiz, error)
	SetEvalStatus(ctx context.Context, quizID, status, phase string) error
	ClaimEvaluation(ctx context.Context, quizID, status, phase string, busy ...string) (string, string, error)
	ListByEvalStatus(ctx context.Context, statuses ...string) ([]string, error)
	MarkEvaluated(ctx context.Context, quizID string) (int64, error)
}

type Reports interface {
	Recompute(ctx context.Context, quizID string) (report.QuizReport, error)
}

type Users interface {
	Get(ctx context.Context, id string) (users.User, error)
}

type Recorder interface {
	Record(ctx context.Context, typ, key string, data any) error
}

type Deps struct {
	Evaluator Evaluator
	Quizzes   Quizzes
	Reports   Reports
	Users     Users
	Notifier  notify.Notifier
	Audit     Recorder
	Log       *slog.Logger
}

// State is what the API shows for a quiz's evaluation.
type State struct {
	Progress
	Text    string `json:"phase_text"`
	Polling bool   `json:"polling"`
}

type Service struct {
	Deps
	poller *Poller

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(d Deps, interval time.Duration, maxErrors int) *Service {
	s := &Service{Deps: d, locks: map[string]*sync.Mutex{}}
	s.poller = NewPoller(d.Evaluator, s, interval, maxErrors, d.Log)
	return s
}

func quizKey(id string) string { return "quiz:" + id }

// lock serializes Start, Stop and Resume for one quiz.
func (s *Service) lock(quizID string) func() {
	s.mu.Lock()
	l, ok := s.locks[quizID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[quizID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

var activeStatuses = []string{string(StatusQueued), string(StatusEvaluating)}

// Start enqueues an evaluation job and begins polling it. The quiz is
// claimed as QUEUED before the job is enqueued, so concurrent starts (also
// from other instances) enqueue it once.
func (s *Service) Start(ctx context.Context, quizID, actor string) (State, error) {
	defer s.lock(quizID)()
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil {
		return State{}, err
	}
	if q.Status == quiz.StatusDraft {
		return State{}, fmt.Errorf("quiz %s is not published: %w", quizID, apperr.ErrConflict)
	}
	if s.poller.Running(quizID) {
		return State{}, fmt.Errorf("evaluation of quiz %s already running: %w", quizID, apperr.ErrConflict)
	}
	pr := Progress{JobStatus: StatusQueued}
	prev, prevPhase, err := s.Quizzes.ClaimEvaluation(ctx, quizID, string(pr.JobStatus), pr.PhaseText(), activeStatuses...)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return State{}, fmt.Errorf("evaluation of quiz %s already running: %w", quizID, apperr.ErrConflict)
		}
		return State{}, err
	}
	if err := s.Evaluator.Evaluate(ctx, quizID); err != nil {
		if rerr := s.Quizzes.SetEvalStatus(context.WithoutCancel(ctx), quizID, prev, prevPhase); rerr != nil {
			s.Log.ErrorContext(ctx, "release evaluation claim", "quiz", quizID, "err", rerr)
		}
		return State{}, fmt.Errorf("enqueue evaluation: %w", err)
	}
	s.audit(ctx, audit.TypeEvalStarted, quizID, map[string]string{"by": actor})
	s.poller.Start(quizID)
	s.Log.InfoContext(ctx, "evaluation started", "quiz", quizID, "by", actor)
	return State{Progress: pr, Text: pr.PhaseText(), Polling: true}, nil
}

// Status is the live status while a poll runs, otherwise the stored one.
func (s *Service) Status(ctx context.Context, quizID string) (State, error) {
	if pr, ok := s.poller.Last(quizID); ok && s.poller.Running(quizID) {
		return State{Progress: pr, Text: pr.PhaseText(), Polling: true}, nil
	}
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil {
		return State{}, err
	}
	pr := Progress{JobStatus: ParseStatus(q.EvalStatus)}
	text := q.EvalPhase
	if text == "" {
		text = pr.PhaseText()
	}
	return State{Progress: pr, Text: text, Polling: s.poller.Running(quizID)}, nil
}

// Stop cancels the local poll and the remote job. It waits for a poll that
// is finishing, and an evaluation that already ended gives ErrConflict. A
// service that no longer knows the job is not an error.
func (s *Service) Stop(ctx context.Context, quizID, actor string) (State, error) {
	defer s.lock(quizID)()
	s.poller.Stop(quizID)
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil {
		return State{}, err
	}
	if st := ParseStatus(q.EvalStatus); !st.Active() {
		return State{}, fmt.Errorf("evaluation of quiz %s is %s: %w", quizID, st, apperr.ErrConflict)
	}
	if err := s.Evaluator.Stop(ctx, quizID); err != nil && !isNoJob(err) {
		s.poller.Start(quizID)
		return State{}, fmt.Errorf("stop evaluation: %w", err)
	}

	pr := Progress{JobStatus: StatusFailed, Phase: "stopped"}
	if err := s.Quizzes.SetEvalStatus(ctx, quizID, string(pr.JobStatus), pr.PhaseText()); err != nil {
		return State{}, err
	}
	s.audit(ctx, audit.TypeEvalStopped, quizID, map[string]string{"by": actor})
	return State{Progress: pr, Text: pr.PhaseText()}, nil
}

// Resume restarts polls for quizzes whose stored status is still active,
// e.g. after a restart. It returns how many polls it started.
func (s *Service) Resume(ctx context.Context) (int, error) {
	ids, err := s.Quizzes.ListByEvalStatus(ctx, string(StatusQueued), string(StatusEvaluating))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if s.resume(ctx, id) {
			n++
		}
	}
	if n > 0 {
		s.Log.InfoContext(ctx, "evaluation polls resumed", "count", n)
	}
	return n, nil
}

// resume starts a poll for quizID if its stored status is still active.
func (s *Service) resume(ctx context.Context, quizID string) bool {
	defer s.lock(quizID)()
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil || !ParseStatus(q.EvalStatus).Active() {
		return false
	}
	return s.poller.Start(quizID)
}

// Wait blocks until running polls end; Close stops them.
func (s *Service) Wait()  { s.poller.Wait() }
func (s *Service) Close() { s.poller.Close() }

func (s *Service) Observe(ctx context.Context, quizID string, pr Progress) {
	if err := s.Quizzes.SetEvalStatus(ctx, quizID, string(pr.JobStatus), pr.PhaseText()); err != nil {
		s.Log.ErrorContext(ctx, "store evaluation status", "quiz", quizID, "err", err)
	}
}

// Finished runs once per poll. Polls that gave up leave the stored status
// active so the next Resume picks them up again.
func (s *Service) Finished(ctx context.Context, quizID string, pr Progress, err error) {
	if err != nil {
		s.Log.ErrorContext(ctx, "evaluation status unavailable", "quiz", quizID, "err", err)
		s.audit(ctx, audit.TypeEvalPollFailed, quizID, map[string]string{"error": err.Error()})
		return
	}
	if !pr.JobStatus.Terminal() {
		s.Log.WarnContext(ctx, "evaluation ended without a result", "quiz", quizID, "status", pr.JobStatus)
		return
	}

	data := map[string]any{"status": pr.JobStatus}
	if pr.JobStatus.Succeeded() {
		n, err := s.Quizzes.MarkEvaluated(ctx, quizID)
		if err != nil {
			s.Log.ErrorContext(ctx, "mark results evaluated", "quiz", quizID, "err", err)
		}
		data["results"] = n
		if rep, err := s.Reports.Recompute(ctx, quizID); err != nil {
			s.Log.ErrorContext(ctx, "recompute quiz report", "quiz", quizID, "err", err)
		} else {
			data["avg"] = rep.Avg
		}
		done := Progress{JobStatus: StatusEvaluated, Phase: fmt.Sprintf("%d results", n)}
		if err := s.Quizzes.SetEvalStatus(ctx, quizID, string(done.JobStatus), done.PhaseText()); err != nil {
			s.Log.ErrorContext(ctx, "store evaluation status", "quiz", quizID, "err", err)
		}
	}
	s.audit(ctx, audit.TypeEvalFinished, quizID, data)
	s.notifyCreator(ctx, quizID, pr)
}

func (s *Service) notifyCreator(ctx context.Context, quizID string, pr Progress) {
	if s.Notifier == nil || s.Users == nil {
		return
	}
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil {
		return
	}
	u, err := s.Users.Get(ctx, q.CreatedBy)
	if err != nil || u.Email == "" {
		return
	}
	outcome := "finished"
	if !pr.JobStatus.Succeeded() {
		outcome = "failed"
	}
	msg := notify.Message{
		To:      []mail.Address{{Name: u.Name, Address: u.Email}},
		Subject: fmt.Sprintf("Evaluation %s: %s", outcome, q.Title),
		Text:    fmt.Sprintf("The evaluation of %q %s.\nLast status: %s\n", q.Title, outcome, pr.PhaseText()),
	}
	if err := s.Notifier.Notify(ctx, msg); err != nil {
		s.Log.WarnContext(ctx, "notify quiz creator", "quiz", quizID, "err", err)
	}
}

func (s *Service) audit(ctx context.Context, typ, quizID string, data any) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, typ, quizKey(quizID), data); err != nil {
		s.Log.WarnContext(ctx, "audit", "type", typ, "err", err)
	}
}
