package http

import (
	nethttp "net/http"
	"strings"

	"github.com/mind-engage/quizdesk/internal/course"
)

func ListSemestersHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := courses.ListSemesters(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

func CreateSemesterHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req course.Semester
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		sem, err := courses.CreateSemester(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, sem)
	}
}

// GET /courses?q=&semester_id=&limit=50&offset=0
// Admins see every course, managers the ones they manage, students the ones
// they are actively enrolled in.
func ListCoursesHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()
		list, err := courses.List(r.Context(), courseViewer(r), course.ListOpts{
			Q:          strings.TrimSpace(q.Get("q")),
			SemesterID: strings.TrimSpace(q.Get("semester_id")),
			Limit:      queryInt(r, "limit", 50, 200),
			Offset:     queryInt(r, "offset", 0, 0),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

func CreateCourseHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req course.Course
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.CreatedBy = principal(r).ID
		c, err := courses.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, c)
	}
}

func GetCourseHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, false); err != nil {
			writeError(w, r, err)
			return
		}
		c, err := courses.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, c)
	}
}

func UpdateCourseHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var p course.Patch
		if err := decode(r, &p); err != nil {
			writeError(w, r, err)
			return
		}
		c, err := courses.Update(r.Context(), id, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, c)
	}
}

func DeleteCourseHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		if err := courses.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

type membersReq struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,notblank"`
	Status  string   `json:"status" validate:"omitempty,oneof=active invited dropped"`
}

// POST /courses/{courseID}/managers  {"user_ids": [...]}
func AddManagersHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req membersReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := courses.AddManagers(r.Context(), id, req.UserIDs); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// POST /courses/{courseID}/students  {"user_ids": [...], "status": "active"}
func EnrollStudentsHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		var req membersReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := courses.EnrollStudents(r.Context(), id, req.UserIDs, req.Status); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func ListStudentsHandler(courses *course.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "courseID")
		if err := courseAccess(r.Context(), courses, courseViewer(r), id, true); err != nil {
			writeError(w, r, err)
			return
		}
		list, err := courses.ListStudents(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}
