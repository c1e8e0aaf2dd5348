package http

import (
	"context"
	nethttp "net/http"
	"strconv"

	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/report"
)

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// staleReport drops the cached report of quizID after its scores changed.
// Failures are logged, never returned.
func staleReport(ctx context.Context, reports *report.Service, quizID string) {
	if reports == nil {
		return
	}
	if err := reports.Invalidate(ctx, quizID); err != nil {
		loggerFrom(ctx).WarnContext(ctx, "invalidate report", "quiz", quizID, "err", err)
	}
}

// GET /quizzes/{quizID}/report
func GetReportHandler(reports *report.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, false); err != nil {
			writeError(w, r, err)
			return
		}
		rep, err := reports.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, rep)
	}
}

// POST /quizzes/{quizID}/report
func RecomputeReportHandler(reports *report.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		rep, err := reports.Recompute(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, rep)
	}
}

// GET /quizzes/{quizID}/class-report[?refresh=1] downloads the xlsx.
func ClassReportHandler(reports *report.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := reports.ClassReport(r.Context(), id, queryBool(r, "refresh"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", xlsxType)
		w.Header().Set("Content-Disposition", `attachment; filename="class-report-`+id+`.xlsx"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		_, _ = w.Write(b)
	}
}
