package http

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/audit"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/rbac"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/validate"
)

func resultKey(id string) string { return "result:" + id }

// POST /quizzes/{quizID}/results starts (or resumes) the caller's attempt.
func StartResultHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, false); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := quizzes.Start(r.Context(), id, principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, res)
	}
}

// GET /quizzes/{quizID}/results
func ListResultsHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		list, err := quizzes.ListResults(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

// resultAccess loads a result for its student (result:view-own) or for a
// manager of the quiz's course (result:view-all, or grade when grading).
func resultAccess(r *nethttp.Request, quizzes *quiz.Store, courses *course.Store, resultID string, grade bool) (quiz.Result, error) {
	ctx := r.Context()
	res, err := quizzes.GetResult(ctx, resultID)
	if err != nil {
		return quiz.Result{}, err
	}
	p := principal(r)
	if !grade && res.StudentID == p.ID && rbac.Can(p.Role, "result:view-own") {
		return res, nil
	}
	perm := "result:view-all"
	if grade {
		perm = "result:grade"
	}
	if !rbac.Can(p.Role, perm) {
		return quiz.Result{}, fmt.Errorf("result %s: %w", resultID, apperr.ErrNotFound)
	}
	if _, err := quizAccess(ctx, quizzes, courses, courseViewer(r), res.QuizID, true); err != nil {
		return quiz.Result{}, err
	}
	return res, nil
}

func GetResultHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		res, err := resultAccess(r, quizzes, courses, param(r, "resultID"), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, res)
	}
}

// POST /results/{resultID}/responses  {"<question id>": <response>, ...}
func SaveResponsesHandler(quizzes *quiz.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var resp map[string]json.RawMessage
		if err := decodeJSON(r, &resp); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := quizzes.SaveResponses(r.Context(), param(r, "resultID"), principal(r).ID, resp)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, res)
	}
}

func SubmitResultHandler(quizzes *quiz.Store, reports *report.Service) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		res, err := quizzes.Submit(r.Context(), param(r, "resultID"), principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		staleReport(r.Context(), reports, res.QuizID)
		writeJSON(w, nethttp.StatusOK, res)
	}
}

// scoreEditReq is a manual score change. With a rubric the points are the
// sum of the awarded criteria and each criterion is added to the feedback.
type scoreEditReq struct {
	quiz.ScoreChange
	Rubric  *grading.Rubric    `json:"rubric,omitempty"`
	Awarded map[string]float64 `json:"awarded,omitempty"`
}

type scoreEditResp struct {
	Edit   quiz.ScoreEdit `json:"edit"`
	Result quiz.Result    `json:"result"`
}

// PATCH /results/{resultID}/items/{questionID}
// Clients apply the change optimistically and send the points they saw as
// "expected"; a 409 tells them to roll back.
func EditScoreHandler(quizzes *quiz.Store, courses *course.Store, reports *report.Service, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		resultID, questionID := param(r, "resultID"), param(r, "questionID")
		res, err := resultAccess(r, quizzes, courses, resultID, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req scoreEditReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ch := req.ScoreChange
		if req.Rubric != nil {
			if err := applyRubric(&ch, *req.Rubric, req.Awarded, res, questionID); err != nil {
				writeError(w, r, err)
				return
			}
		}
		edit, updated, err := quizzes.EditScore(r.Context(), resultID, questionID, ch, principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		staleReport(r.Context(), reports, updated.QuizID)
		record(r.Context(), log, audit.TypeScoreEdited, resultKey(resultID), edit)
		writeJSON(w, nethttp.StatusOK, scoreEditResp{Edit: edit, Result: updated})
	}
}

func applyRubric(ch *quiz.ScoreChange, rb grading.Rubric, awarded map[string]float64, res quiz.Result, questionID string) error {
	if err := validate.Struct(rb); err != nil {
		return err
	}
	limit := 0.0
	for _, it := range res.Items {
		if it.QuestionID == questionID {
			limit = it.MaxPoints
		}
	}
	total, notes := grading.ScoreRubric(rb, awarded, limit)
	ch.Points = total
	ch.Feedback = append(notes, ch.Feedback...)
	return nil
}

// POST /score-edits/{editID}/undo
func UndoScoreEditHandler(quizzes *quiz.Store, courses *course.Store, reports *report.Service, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		e, err := quizzes.GetEdit(r.Context(), param(r, "editID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := resultAccess(r, quizzes, courses, e.ResultID, true); err != nil {
			writeError(w, r, err)
			return
		}
		edit, updated, err := quizzes.UndoScoreEdit(r.Context(), e.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		staleReport(r.Context(), reports, updated.QuizID)
		record(r.Context(), log, audit.TypeScoreUndone, resultKey(edit.ResultID), map[string]any{"edit_id": edit.ID, "by": principal(r).ID})
		writeJSON(w, nethttp.StatusOK, scoreEditResp{Edit: edit, Result: updated})
	}
}

// GET /results/{resultID}/edits
func ListScoreEditsHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "resultID")
		if _, err := resultAccess(r, quizzes, courses, id, true); err != nil {
			writeError(w, r, err)
			return
		}
		list, err := quizzes.ListEdits(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}
