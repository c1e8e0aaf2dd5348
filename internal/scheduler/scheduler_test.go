package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/logging"
	"github.com/mind-engage/quizdesk/internal/report"
)

type fakeJobs struct {
	resumed    int
	closedAt   time.Time
	recomputed []string
	err        error
}

func (f *fakeJobs) Resume(context.Context) (int, error) {
	f.resumed++
	return 1, f.err
}

func (f *fakeJobs) CloseExpired(_ context.Context, now time.Time) ([]string, error) {
	f.closedAt = now
	return []string{"q1", "q2"}, f.err
}

func (f *fakeJobs) Recompute(_ context.Context, id string) (report.QuizReport, error) {
	f.recomputed = append(f.recomputed, id)
	return report.QuizReport{QuizID: id}, nil
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	f := &fakeJobs{}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ResumeEvaluations(f)(ctx))
	assert.Equal(t, 1, f.resumed)

	require.NoError(t, CloseExpiredQuizzes(f, f, func() time.Time { return now }, logging.Discard())(ctx))
	assert.Equal(t, now, f.closedAt)
	assert.Equal(t, []string{"q1", "q2"}, f.recomputed)

	f.err = errors.New("db down")
	assert.Error(t, CloseExpiredQuizzes(f, nil, time.Now, logging.Discard())(ctx))
}

func TestScheduler(t *testing.T) {
	var buf bytes.Buffer
	log, _ := logging.New(logging.Options{Level: "debug", Output: &buf})
	s := New(log)

	assert.Error(t, s.Add("bad", "every minute", time.Second, nil))
	require.NoError(t, s.Add("resume", "@every 1m", time.Second, func(context.Context) error { return nil }))

	s.wrap("boom", time.Second, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return errors.New("exploded")
	})()
	assert.Contains(t, buf.String(), "job failed")
	assert.Contains(t, buf.String(), "exploded")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
