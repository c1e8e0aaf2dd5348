package http

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/quiz"
)

// quizAccess loads a quiz the caller may see. Drafts are hidden from
// everyone who cannot manage the course; managers get answer keys.
func quizAccess(ctx context.Context, quizzes *quiz.Store, courses *course.Store, v course.Viewer, quizID string, manage bool) (quiz.Quiz, error) {
	q, err := quizzes.Get(ctx, quizID, false)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if err := courseAccess(ctx, courses, v, q.CourseID, false); err != nil {
		return quiz.Quiz{}, err
	}
	managed, err := courses.CanManage(ctx, v, q.CourseID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	switch {
	case managed:
		return quizzes.Get(ctx, quizID, true)
	case q.Status == quiz.StatusDraft:
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, apperr.ErrNotFound)
	case manage:
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, apperr.ErrForbidden)
	}
	return q, nil
}

// GET /courses/{courseID}/quizzes
func ListCourseQuizzesHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		v := courseViewer(r)
		if err := courseAccess(r.Context(), courses, v, id, false); err != nil {
			writeError(w, r, err)
			return
		}
		managed, err := courses.CanManage(r.Context(), v, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		list, err := quizzes.ListByCourse(r.Context(), id, managed)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

// POST /courses/{courseID}/quizzes
func CreateQuizHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req quiz.Quiz
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.CourseID, req.CreatedBy = id, principal(r).ID
		q, err := quizzes.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, q)
	}
}

func GetQuizHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), param(r, "quizID"), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, q)
	}
}

func UpdateQuizHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var p quiz.Patch
		if err := decode(r, &p); err != nil {
			writeError(w, r, err)
			return
		}
		q, err := quizzes.Update(r.Context(), id, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, q)
	}
}

func DeleteQuizHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		if err := quizzes.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// QuizStatusHandler serves POST /quizzes/{quizID}/publish and /close.
func QuizStatusHandler(quizzes *quiz.Store, courses *course.Store, to string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var (
			q   quiz.Quiz
			err error
		)
		if to == quiz.StatusPublished {
			q, err = quizzes.Publish(r.Context(), id)
		} else {
			q, err = quizzes.Close(r.Context(), id)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, q)
	}
}

type addQuestionsReq struct {
	BankQuestionIDs []string       `json:"bank_question_ids"`
	Question        *bank.Question `json:"question"`
}

// POST /quizzes/{quizID}/questions copies bank questions the caller can read
// or adds one inline question.
func AddQuizQuestionsHandler(quizzes *quiz.Store, courses *course.Store, banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req addQuestionsReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		switch {
		case req.Question != nil && len(req.BankQuestionIDs) == 0:
			qq, err := quizzes.AddQuestion(r.Context(), id, *req.Question)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, nethttp.StatusCreated, []quiz.QuizQuestion{qq})
		case req.Question == nil && len(req.BankQuestionIDs) > 0:
			src, err := banks.Questions(r.Context(), bankViewer(r), req.BankQuestionIDs)
			if err != nil {
				writeError(w, r, err)
				return
			}
			added, err := quizzes.AddFromBank(r.Context(), id, src)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, nethttp.StatusCreated, added)
		default:
			writeError(w, r, fmt.Errorf("give either bank_question_ids or question: %w", apperr.ErrInvalid))
		}
	}
}

func RemoveQuizQuestionHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		if err := quizzes.RemoveQuestion(r.Context(), id, param(r, "questionID")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

type reorderReq struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// PUT /quizzes/{quizID}/questions/order  {"ids": [...]}
func ReorderQuizQuestionsHandler(quizzes *quiz.Store, courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "quizID")
		if _, err := quizAccess(r.Context(), quizzes, courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req reorderReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := quizzes.Reorder(r.Context(), id, req.IDs); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}
