package http

import (
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/storage"
)

// MountUploads serves the raw import files kept for a bank:
// GET /banks/{bankID}/uploads/{name}
func MountUploads(r chi.Router, banks *bank.Store, bs storage.BlobStore) {
	r.Get("/{name}", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		bankID, name := param(r, "bankID"), param(r, "name")
		if _, err := banks.Get(r.Context(), bankID, bankViewer(r)); err != nil {
			writeError(w, r, err)
			return
		}
		if name != path.Base(name) || name == "." || name == ".." {
			writeError(w, r, fmt.Errorf("bad file name: %w", apperr.ErrInvalid))
			return
		}
		key := "imports/" + bankID + "/" + name
		info, err := bs.Stat(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		ct := "text/csv"
		if path.Ext(name) == ".xlsx" {
			ct = xlsxType
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		_, _ = io.Copy(w, rc)
	})
}
