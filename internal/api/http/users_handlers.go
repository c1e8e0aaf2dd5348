package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/users"
	"github.com/mind-engage/quizdesk/internal/validate"
)

// BulkUpsertUsersHandler accepts a JSON array body or a multipart file=
// holding either JSON or CSV.
func BulkUpsertUsersHandler(store *users.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var rows []users.Row
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, r, fmt.Errorf("file required: %w", apperr.ErrInvalid))
				return
			}
			defer f.Close()
			br := bufio.NewReader(f)
			first, err := br.Peek(1)
			if err != nil {
				writeError(w, r, fmt.Errorf("empty file: %w", apperr.ErrInvalid))
				return
			}
			if first[0] == '[' {
				err = json.NewDecoder(br).Decode(&rows)
			} else {
				rows, err = users.ParseCSV(br)
			}
			if err != nil {
				writeError(w, r, fmt.Errorf("bad upload: %v: %w", err, apperr.ErrInvalid))
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, r, fmt.Errorf("expected JSON array or multipart file: %w", apperr.ErrInvalid))
			return
		}
		for i := range rows {
			if err := validate.Struct(rows[i]); err != nil {
				writeError(w, r, fmt.Errorf("row %d: %w", i+1, err))
				return
			}
		}
		ins, upd, err := store.BulkUpsert(r.Context(), rows)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

func ListUsersHandler(store *users.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		role := r.URL.Query().Get("role")
		if role != "" && !users.ValidRole(role) {
			writeError(w, r, fmt.Errorf("unknown role %q: %w", role, apperr.ErrInvalid))
			return
		}
		list, err := store.List(r.Context(), role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

func ChangePasswordHandler(store *users.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req changePasswordReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := store.ChangePassword(r.Context(), principal(r).ID, req.OldPassword, req.NewPassword); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func MeHandler(store *users.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		u, err := store.Get(r.Context(), principal(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, u)
	}
}
