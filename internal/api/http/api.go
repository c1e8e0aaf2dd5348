// Package http holds the JSON handlers of the admin and student API.
// Routes are assembled in NewRouter.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/quizdesk/internal/apperr"
	authmw "github.com/mind-engage/quizdesk/internal/auth/middleware"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/importer"
	"github.com/mind-engage/quizdesk/internal/users"
	"github.com/mind-engage/quizdesk/internal/validate"
)

const maxJSONBody = 2 << 20

type logKey struct{}

func withLogger(log *slog.Logger) func(nethttp.Handler) nethttp.Handler {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), logKey{}, log)))
		})
	}
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(logKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as 500 without detail.
func writeError(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, nethttp.StatusBadRequest, errorBody{Error: "validation failed", Errors: verr.Map()})
	case errors.Is(err, users.ErrBadCredentials):
		writeJSON(w, nethttp.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, nethttp.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, nethttp.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, nethttp.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, nethttp.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		loggerFrom(r.Context()).ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, nethttp.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// writeImportError answers rejected uploads with the row report.
func writeImportError(w nethttp.ResponseWriter, r *nethttp.Request, rep importer.Report, err error) {
	if errors.Is(err, importer.ErrRowErrors) {
		writeJSON(w, nethttp.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "report": rep})
		return
	}
	writeError(w, r, err)
}

// decode reads a JSON body into v and validates it.
func decode(r *nethttp.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// decodeJSON leaves validation to the store, for types that get defaults
// applied before they are checked.
func decodeJSON(r *nethttp.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", apperr.ErrInvalid)
	}
	return nil
}

func principal(r *nethttp.Request) authmw.Principal { return authmw.PrincipalFromContext(r.Context()) }

func courseViewer(r *nethttp.Request) course.Viewer {
	p := principal(r)
	return course.Viewer{ID: p.ID, Role: p.Role}
}

func bankViewer(r *nethttp.Request) bank.Viewer {
	p := principal(r)
	return bank.Viewer{ID: p.ID, Role: p.Role}
}

func queryInt(r *nethttp.Request, key string, def, maxV int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	if maxV > 0 && v > maxV {
		return maxV
	}
	return v
}

func queryBool(r *nethttp.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func param(r *nethttp.Request, key string) string { return chi.URLParam(r, key) }

// courseAccess checks the caller against a course. Callers who cannot even
// view it get ErrNotFound.
func courseAccess(ctx context.Context, courses *course.Store, v course.Viewer, courseID string, manage bool) error {
	ok, err := courses.CanView(ctx, v, courseID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := courses.Get(ctx, courseID); err != nil {
			return err
		}
		if !users.IsStaff(v.Role) {
			return fmt.Errorf("course %s: %w", courseID, apperr.ErrNotFound)
		}
	}
	if !manage && ok {
		return nil
	}
	ok, err = courses.CanManage(ctx, v, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("course %s: %w", courseID, apperr.ErrForbidden)
	}
	return nil
}
