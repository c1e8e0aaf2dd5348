package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/storage"
	"github.com/mind-engage/quizdesk/internal/users"
)

type Quizzes interface {
	Get(ctx context.Context, id string, withKeys bool) (quiz.Quiz, error)
	ListResults(ctx context.Context, quizID string) ([]quiz.Result, error)
	Scores(ctx context.Context, quizID string) ([]float64, float64, error)
}

type Generator interface {
	Generate(ctx context.Context, req ClassReportRequest) ([]byte, error)
}

type Courses interface {
	Get(ctx context.Context, id string) (course.Course, error)
}

type Users interface {
	Get(ctx context.Context, id string) (users.User, error)
}

type Service struct {
	Store     *Store
	Quizzes   Quizzes
	Courses   Courses
	Users     Users
	Generator Generator
	Blobs     storage.BlobStore
	Buckets   int
	Log       *slog.Logger
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Recompute rebuilds and stores the QuizReport from finished attempts.
func (s *Service) Recompute(ctx context.Context, quizID string) (QuizReport, error) {
	scores, maxScore, err := s.Quizzes.Scores(ctx, quizID)
	if err != nil {
		return QuizReport{}, err
	}
	rep := Compute(scores, maxScore, s.Buckets)
	rep.QuizID = quizID
	rep.GeneratedAt = s.now().Unix()
	if err := s.Store.Save(ctx, rep); err != nil {
		return QuizReport{}, fmt.Errorf("save report: %w", err)
	}
	return rep, nil
}

// Get returns the stored report, computing it on first use.
func (s *Service) Get(ctx context.Context, quizID string) (QuizReport, error) {
	rep, err := s.Store.Get(ctx, quizID)
	if errors.Is(err, apperr.ErrNotFound) {
		if _, err := s.Quizzes.Get(ctx, quizID, false); err != nil {
			return QuizReport{}, err
		}
		return s.Recompute(ctx, quizID)
	}
	return rep, err
}

func blobKey(quizID string) string { return "reports/" + quizID + ".xlsx" }

// Invalidate discards the stored report and the cached spreadsheet of quizID
// so the next read recomputes both from current scores.
func (s *Service) Invalidate(ctx context.Context, quizID string) error {
	if err := s.Store.Delete(ctx, quizID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if s.Blobs != nil {
		if err := s.Blobs.Delete(ctx, blobKey(quizID)); err != nil {
			return fmt.Errorf("delete class report: %w", err)
		}
	}
	return nil
}

// ClassReport returns the class spreadsheet. A cached copy is served unless
// refresh is set or the QuizReport changed after it was cached.
func (s *Service) ClassReport(ctx context.Context, quizID string, refresh bool) ([]byte, error) {
	rep, err := s.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	key := blobKey(quizID)
	if !refresh && s.Blobs != nil {
		if b, ok := s.cached(ctx, key, rep.GeneratedAt); ok {
			return b, nil
		}
	}

	req, err := s.request(ctx, quizID, rep)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.Generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.Blobs != nil {
		if _, err := s.Blobs.Put(ctx, key, bytes.NewReader(xlsx)); err != nil {
			s.Log.WarnContext(ctx, "cache class report", "quiz", quizID, "err", err)
		}
	}
	return xlsx, nil
}

func (s *Service) cached(ctx context.Context, key string, generatedAt int64) ([]byte, bool) {
	info, err := s.Blobs.Stat(ctx, key)
	if err != nil || info.ModTime.Unix() < generatedAt {
		return nil, false
	}
	rc, err := s.Blobs.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return b, err == nil
}

func (s *Service) request(ctx context.Context, quizID string, rep QuizReport) (ClassReportRequest, error) {
	q, err := s.Quizzes.Get(ctx, quizID, false)
	if err != nil {
		return ClassReportRequest{}, err
	}
	results, err := s.Quizzes.ListResults(ctx, quizID)
	if err != nil {
		return ClassReportRequest{}, err
	}
	req := ClassReportRequest{QuizID: q.ID, QuizTitle: q.Title, MaxScore: q.MaxScore(), Summary: rep, Students: []StudentScore{}}
	if c, err := s.Courses.Get(ctx, q.CourseID); err == nil {
		req.CourseCode, req.CourseName = c.Code, c.Name
	}
	for _, r := range results {
		if r.Status == quiz.ResultInProgress {
			continue
		}
		st := StudentScore{StudentID: r.StudentID, Status: r.Status, Score: r.Score}
		if u, err := s.Users.Get(ctx, r.StudentID); err == nil {
			st.Username, st.Name = u.Username, u.Name
		}
		for _, it := range r.Items {
			st.Items = append(st.Items, ItemScore{QuestionID: it.QuestionID, Points: it.Points(), MaxPoints: it.MaxPoints})
		}
		req.Students = append(req.Students, st)
	}
	return req, nil
}
