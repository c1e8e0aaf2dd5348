package http

import (
	nethttp "net/http"

	"github.com/mind-engage/quizdesk/internal/audit"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/evaluation"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/report"
)

// POST /quizzes/{quizID}/evaluation
func StartEvaluationHandler(ev *evaluation.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		st, err := ev.Start(r.Context(), id, principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusAccepted, st)
	}
}

// GET /quizzes/{quizID}/evaluation
func EvaluationStatusHandler(ev *evaluation.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		st, err := ev.Status(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, st)
	}
}

// DELETE /quizzes/{quizID}/evaluation
func StopEvaluationHandler(ev *evaluation.Service, quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		st, err := ev.Stop(r.Context(), id, principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, st)
	}
}

type externalScoresReq struct {
	Scores []quiz.ExternalScore `json:"scores" validate:"required,min=1,dive"`
}

// POST /quizzes/{quizID}/evaluation/scores is where the evaluation service
// (or a manager re-running it by hand) delivers per-item scores.
func ExternalScoresHandler(quizzes *quiz.Store, courses *course.Store, reports *report.Service, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req externalScoresReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		n, err := quizzes.ApplyExternalScores(r.Context(), id, req.Scores)
		if err != nil {
			writeError(w, r, err)
			return
		}
		staleReport(r.Context(), reports, id)
		record(r.Context(), log, audit.TypeScoresImported, "quiz:"+id, map[string]any{"by": principal(r).ID, "applied": n})
		writeJSON(w, nethttp.StatusOK, map[string]int{"applied": n})
	}
}
