package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/logging"
	"github.com/mind-engage/quizdesk/internal/notify"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/remote"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/users"
)

type fakeQuizzes struct {
	mu        sync.Mutex
	quizzes   map[string]quiz.Quiz
	evaluated []string
}

func (f *fakeQuizzes) Get(_ context.Context, id string, _ bool) (quiz.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return quiz.Quiz{}, apperr.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuizzes) SetEvalStatus(_ context.Context, id, status, phase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quizzes[id]
	q.EvalStatus, q.EvalPhase = status, phase
	f.quizzes[id] = q
	return nil
}

func (f *fakeQuizzes) ClaimEvaluation(_ context.Context, id, status, phase string, busy ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return "", "", apperr.ErrNotFound
	}
	if slices.Contains(busy, q.EvalStatus) {
		return "", "", apperr.ErrConflict
	}
	prev, prevPhase := q.EvalStatus, q.EvalPhase
	q.EvalStatus, q.EvalPhase = status, phase
	f.quizzes[id] = q
	return prev, prevPhase, nil
}

func (f *fakeQuizzes) ListByEvalStatus(_ context.Context, statuses ...string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, q := range f.quizzes {
		for _, s := range statuses {
			if q.EvalStatus == s {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (f *fakeQuizzes) MarkEvaluated(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, id)
	return 2, nil
}

func (f *fakeQuizzes) stored(id string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quizzes[id].EvalStatus, f.quizzes[id].EvalPhase
}

// fakeReports counts recomputes. With gate set, Recompute signals entered
// and blocks until gate is closed.
type fakeReports struct {
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeReports) Recompute(_ context.Context, quizID string) (report.QuizReport, error) {
	f.calls.Add(1)
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	return report.QuizReport{QuizID: quizID, Count: 2, Avg: 7.5}, nil
}

type fakeUsers map[string]users.User

func (f fakeUsers) Get(_ context.Context, id string) (users.User, error) {
	u, ok := f[id]
	if !ok {
		return users.User{}, apperr.ErrNotFound
	}
	return u, nil
}

type memAudit struct {
	mu    sync.Mutex
	types []string
}

func (m *memAudit) Record(_ context.Context, typ, key string, _ any) error {
	m.mu.Lock()
	m.types = append(m.types, typ)
	m.mu.Unlock()
	return nil
}

// evalServer fakes the evaluation service. Jobs report EVALUATING until
// finish is set.
type evalServer struct {
	*httptest.Server
	finish   atomic.Bool
	final    JobStatus
	enqueued atomic.Int32
	stopped  atomic.Int32
	delay    atomic.Int64 // nanoseconds each enqueue takes
	reject   atomic.Bool
}

func newEvalServer(t *testing.T, final JobStatus) *evalServer {
	es := &evalServer{final: final}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/eval/evaluation/evaluate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "z1", body["quiz_id"])
		time.Sleep(time.Duration(es.delay.Load()))
		if es.reject.Load() {
			http.Error(w, "workers unavailable", http.StatusServiceUnavailable)
			return
		}
		es.enqueued.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /api/eval/evaluation/status/{quizID}", func(w http.ResponseWriter, r *http.Request) {
		p := Progress{JobStatus: StatusEvaluating, Phase: "grading", Current: 1, Total: 2, Remaining: 5}
		if es.finish.Load() {
			p = Progress{JobStatus: es.final, Current: 2, Total: 2}
		}
		json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("POST /api/eval/workers/jobs/stop/{quizID}", func(w http.ResponseWriter, r *http.Request) {
		es.stopped.Add(1)
		http.Error(w, "no such job", http.StatusNotFound)
	})
	es.Server = httptest.NewServer(mux)
	t.Cleanup(es.Close)
	return es
}

type harness struct {
	svc     *Service
	quizzes *fakeQuizzes
	reports *fakeReports
	mail    *notify.Recorder
	audit   *memAudit
}

func newHarness(t *testing.T, baseURL string) *harness {
	h := &harness{
		quizzes: &fakeQuizzes{quizzes: map[string]quiz.Quiz{
			"z1":    {ID: "z1", Title: "Cells", Status: quiz.StatusClosed, CreatedBy: "m1"},
			"draft": {ID: "draft", Status: quiz.StatusDraft},
		}},
		reports: &fakeReports{},
		mail:    &notify.Recorder{},
		audit:   &memAudit{},
	}
	h.svc = NewService(Deps{
		Evaluator: NewClient(remote.Config{BaseURL: baseURL, Timeout: time.Second}),
		Quizzes:   h.quizzes,
		Reports:   h.reports,
		Users:     fakeUsers{"m1": {ID: "m1", Name: "Ms M", Email: "m@school.test"}},
		Notifier:  h.mail,
		Audit:     h.audit,
		Log:       logging.Discard(),
	}, 2*time.Millisecond, 3)
	t.Cleanup(h.svc.Close)
	return h
}

func TestService_RunToCompletion(t *testing.T) {
	es := newEvalServer(t, StatusCompleted)
	h := newHarness(t, es.URL)
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "z1", "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, st.JobStatus)
	assert.True(t, st.Polling)
	assert.Equal(t, int32(1), es.enqueued.Load())

	_, err = h.svc.Start(ctx, "z1", "m1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = h.svc.Start(ctx, "draft", "m1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.Eventually(t, func() bool {
		st, err := h.svc.Status(ctx, "z1")
		return err == nil && st.JobStatus == StatusEvaluating && st.Polling
	}, time.Second, 2*time.Millisecond)
	st, err = h.svc.Status(ctx, "z1")
	require.NoError(t, err)
	assert.Equal(t, "Evaluating: grading (1/2, 50%) ~5s remaining", st.Text)

	es.finish.Store(true)
	require.Eventually(t, func() bool { return h.reports.calls.Load() == 1 }, time.Second, 2*time.Millisecond)
	h.svc.Wait()

	status, phase := h.quizzes.stored("z1")
	assert.Equal(t, string(StatusEvaluated), status)
	assert.Equal(t, "Evaluated: 2 results", phase)
	assert.Equal(t, []string{"z1"}, h.quizzes.evaluated)

	st, err = h.svc.Status(ctx, "z1")
	require.NoError(t, err)
	assert.False(t, st.Polling)
	assert.Equal(t, StatusEvaluated, st.JobStatus)

	require.Len(t, h.mail.Sent, 1)
	assert.Equal(t, "Evaluation finished: Cells", h.mail.Sent[0].Subject)
	assert.Equal(t, "m@school.test", h.mail.Sent[0].To[0].Address)
	assert.Equal(t, []string{"evaluation.started", "evaluation.finished"}, h.audit.types)
}

func TestService_FailedJobKeepsResults(t *testing.T) {
	es := newEvalServer(t, StatusFailed)
	es.finish.Store(true)
	h := newHarness(t, es.URL)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "z1", "m1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.audit.snapshot()) == 2 }, time.Second, 2*time.Millisecond)
	h.svc.Wait()

	status, _ := h.quizzes.stored("z1")
	assert.Equal(t, string(StatusFailed), status)
	assert.Empty(t, h.quizzes.evaluated)
	assert.Zero(t, h.reports.calls.Load())
	require.Len(t, h.mail.Sent, 1)
	assert.Equal(t, "Evaluation failed: Cells", h.mail.Sent[0].Subject)
}

func TestService_StopAndResume(t *testing.T) {
	es := newEvalServer(t, StatusCompleted)
	h := newHarness(t, es.URL)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "z1", "m1")
	require.NoError(t, err)

	st, err := h.svc.Stop(ctx, "z1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "Failed: stopped", st.Text)
	assert.Equal(t, int32(1), es.stopped.Load())
	assert.False(t, h.svc.poller.Running("z1"))

	_, err = h.svc.Stop(ctx, "missing", "m1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// a stored active status without a poll is picked up by Resume
	require.NoError(t, h.quizzes.SetEvalStatus(ctx, "z1", string(StatusEvaluating), ""))
	n, err := h.svc.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = h.svc.Resume(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	es.finish.Store(true)
	require.Eventually(t, func() bool { return h.reports.calls.Load() == 1 }, time.Second, 2*time.Millisecond)
	h.svc.Wait()
}

func (m *memAudit) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.types...)
}

func TestService_ConcurrentStartsEnqueueOnce(t *testing.T) {
	es := newEvalServer(t, StatusCompleted)
	es.delay.Store(int64(20 * time.Millisecond))
	h := newHarness(t, es.URL)
	// a second instance sharing the same quiz store
	other := NewService(h.svc.Deps, 2*time.Millisecond, 3)
	t.Cleanup(other.Close)
	ctx := context.Background()

	var (
		wg                 sync.WaitGroup
		started, conflicts atomic.Int32
	)
	for i := range 6 {
		svc := h.svc
		if i%2 == 1 {
			svc = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, "z1", "m1")
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, apperr.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("start: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(5), conflicts.Load())
	assert.Equal(t, int32(1), es.enqueued.Load())
}

func TestService_FailedEnqueueReleasesClaim(t *testing.T) {
	es := newEvalServer(t, StatusCompleted)
	es.reject.Store(true)
	h := newHarness(t, es.URL)
	ctx := context.Background()
	require.NoError(t, h.quizzes.SetEvalStatus(ctx, "z1", string(StatusFailed), "Failed: stopped"))

	_, err := h.svc.Start(ctx, "z1", "m1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
	status, phase := h.quizzes.stored("z1")
	assert.Equal(t, string(StatusFailed), status)
	assert.Equal(t, "Failed: stopped", phase)
	assert.False(t, h.svc.poller.Running("z1"))

	es.reject.Store(false)
	_, err = h.svc.Start(ctx, "z1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), es.enqueued.Load())
}

func TestService_StopWaitsForFinishingPoll(t *testing.T) {
	es := newEvalServer(t, StatusCompleted)
	es.finish.Store(true)
	h := newHarness(t, es.URL)
	h.reports.entered = make(chan struct{})
	h.reports.gate = make(chan struct{})
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "z1", "m1")
	require.NoError(t, err)
	select {
	case <-h.reports.entered:
	case <-time.After(time.Second):
		t.Fatal("evaluation never finished")
	}

	stopped := make(chan error, 1)
	go func() {
		_, err := h.svc.Stop(ctx, "z1", "m1")
		stopped <- err
	}()
	select {
	case err := <-stopped:
		t.Fatalf("Stop returned while the poll was finishing: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(h.reports.gate)

	assert.ErrorIs(t, <-stopped, apperr.ErrConflict)
	status, _ := h.quizzes.stored("z1")
	assert.Equal(t, string(StatusEvaluated), status)
	assert.Zero(t, es.stopped.Load())
	assert.Equal(t, []string{"evaluation.started", "evaluation.finished"}, h.audit.snapshot())
}
