package evaluation

import (
	"fmt"
	"strings"
	"time"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "QUEUED"
	StatusEvaluating JobStatus = "EVALUATING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusEvaluated  JobStatus = "EVALUATED"

	// local only
	StatusIdle    JobStatus = "IDLE"
	StatusUnknown JobStatus = "UNKNOWN"
)

func ParseStatus(s string) JobStatus {
	switch st := JobStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusQueued, StatusEvaluating, StatusCompleted, StatusFailed, StatusEvaluated, StatusIdle:
		return st
	case "":
		return StatusIdle
	default:
		return StatusUnknown
	}
}

// Active reports whether the job is still moving; pollers keep ticking.
func (s JobStatus) Active() bool { return s == StatusQueued || s == StatusEvaluating }

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusEvaluated
}

// Succeeded is true for the terminal states that produced scores.
func (s JobStatus) Succeeded() bool { return s == StatusCompleted || s == StatusEvaluated }

func (s JobStatus) label() string {
	if s == "" {
		return "Idle"
	}
	l := strings.ToLower(string(s))
	return strings.ToUpper(l[:1]) + l[1:]
}

// Progress is the evaluation service's status document. Elapsed and
// Remaining are seconds, Rate is items per second and Progress a percentage.
type Progress struct {
	JobStatus JobStatus `json:"job_status"`
	Phase     string    `json:"phase,omitempty"`
	Progress  float64   `json:"progress"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Elapsed   float64   `json:"elapsed"`
	Rate      float64   `json:"rate"`
	Remaining float64   `json:"remaining"`
}

// PhaseText renders the status for people, e.g.
// "Evaluating: grading (12/40, 30%) ~2m remaining".
func (p Progress) PhaseText() string {
	var b strings.Builder
	b.WriteString(p.JobStatus.label())
	if p.Phase != "" {
		b.WriteString(": ")
		b.WriteString(p.Phase)
	}
	var parts []string
	if p.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", p.Current, p.Total))
	}
	if pct := p.percent(); pct > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%%", pct))
	}
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	if p.JobStatus.Active() && p.Remaining > 0 {
		b.WriteString(" ~" + humanSeconds(p.Remaining) + " remaining")
	}
	return b.String()
}

func (p Progress) percent() float64 {
	switch {
	case p.Progress > 0:
		return min(p.Progress, 100)
	case p.Total > 0:
		return float64(p.Current) * 100 / float64(p.Total)
	}
	return 0
}

func humanSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	d = d.Round(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	return fmt.Sprintf("%dh%02dm", h, int(d.Minutes())-h*60)
}
