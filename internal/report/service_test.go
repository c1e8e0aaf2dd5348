package report_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/db/dbtest"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/logging"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/remote"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/storage"
	"github.com/mind-engage/quizdesk/internal/users"
)

func TestService_RecomputeAndClassReport(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	now := time.Now().Add(-time.Minute).Truncate(time.Second)

	users.BcryptCost = bcrypt.MinCost
	us := users.NewStore(dbh)
	stu, err := us.Create(ctx, "amina", "Amina K", "", users.RoleStudent, "pw")
	require.NoError(t, err)

	courses := course.NewStore(dbh)
	sem, err := courses.CreateSemester(ctx, course.Semester{Name: "S1"})
	require.NoError(t, err)
	c, err := courses.Create(ctx, course.Course{Code: "CH1", Name: "Chemistry", SemesterID: sem.ID, CreatedBy: "m1"})
	require.NoError(t, err)
	require.NoError(t, courses.EnrollStudents(ctx, c.ID, []string{stu.ID}, ""))

	quizzes := quiz.NewStore(dbh, quiz.WithClock(func() time.Time { return now }))
	q, err := quizzes.Create(ctx, quiz.Quiz{CourseID: c.ID, Title: "Acids", StartsAt: now.Unix(), EndsAt: now.Add(time.Hour).Unix(), CreatedBy: "m1"})
	require.NoError(t, err)
	_, err = quizzes.AddFromBank(ctx, q.ID, []bank.Question{
		{Type: grading.TypeTrueFalse, Prompt: "HCl is an acid", AnswerKey: []string{"true"}, Points: 4},
	})
	require.NoError(t, err)
	_, err = quizzes.Publish(ctx, q.ID)
	require.NoError(t, err)
	r, err := quizzes.Start(ctx, q.ID, stu.ID)
	require.NoError(t, err)
	_, err = quizzes.SaveResponses(ctx, r.ID, stu.ID, map[string]json.RawMessage{r.Items[0].QuestionID: json.RawMessage(`"true"`)})
	require.NoError(t, err)
	_, err = quizzes.Submit(ctx, r.ID, stu.ID)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/misc/class-report", r.URL.Path)
		var req report.ClassReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CH1", req.CourseCode)
		require.Len(t, req.Students, 1)
		assert.Equal(t, "amina", req.Students[0].Username)
		assert.Equal(t, 4.0, req.Students[0].Score)
		assert.Equal(t, 1, req.Summary.Count)
		w.Write([]byte("PK-fake-xlsx"))
	}))
	defer srv.Close()

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	svc := &report.Service{
		Store:     report.NewStore(dbh),
		Quizzes:   quizzes,
		Courses:   courses,
		Users:     us,
		Generator: report.NewClassReportClient(remote.Config{BaseURL: srv.URL}),
		Blobs:     blobs,
		Log:       logging.Discard(),
		Now:       func() time.Time { return now },
	}

	rep, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count)
	assert.Equal(t, 4.0, rep.Max)
	assert.Equal(t, 4.0, rep.MaxScore)

	stored, err := report.NewStore(dbh).Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, rep, stored)

	b, err := svc.ClassReport(ctx, q.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "PK-fake-xlsx", string(b))

	_, err = svc.ClassReport(ctx, q.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "second call served from cache")

	_, err = svc.ClassReport(ctx, q.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	require.NoError(t, svc.Invalidate(ctx, q.ID))
	_, err = report.NewStore(dbh).Get(ctx, q.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = blobs.Stat(ctx, "reports/"+q.ID+".xlsx")
	assert.Error(t, err)
	_, err = svc.ClassReport(ctx, q.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load(), "invalidated report is regenerated")
	require.NoError(t, svc.Invalidate(ctx, "missing"))

	_, err = svc.Get(ctx, "missing")
	assert.Error(t, err)
}
