package report

import (
	"context"
	"net/http"

	"github.com/mind-engage/quizdesk/internal/remote"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ClassReportRequest is the payload of POST /misc/class-report.
type ClassReportRequest struct {
	QuizID     string         `json:"quiz_id"`
	QuizTitle  string         `json:"quiz_title"`
	CourseCode string         `json:"course_code"`
	CourseName string         `json:"course_name"`
	MaxScore   float64        `json:"max_score"`
	Students   []StudentScore `json:"students"`
	Summary    QuizReport     `json:"summary"`
}

type StudentScore struct {
	StudentID string      `json:"student_id"`
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	Score     float64     `json:"score"`
	Items     []ItemScore `json:"items"`
}

type ItemScore struct {
	QuestionID string  `json:"question_id"`
	Points     float64 `json:"points"`
	MaxPoints  float64 `json:"max_points"`
}

// ClassReportClient talks to the external spreadsheet generator.
type ClassReportClient struct {
	rc *remote.Client
}

func NewClassReportClient(cfg remote.Config) *ClassReportClient {
	return &ClassReportClient{rc: remote.New(cfg)}
}

// Generate returns the xlsx bytes for req.
func (c *ClassReportClient) Generate(ctx context.Context, req ClassReportRequest) ([]byte, error) {
	return c.rc.Do(ctx, "class report", http.MethodPost, "/misc/class-report", req, xlsxMIME)
}
