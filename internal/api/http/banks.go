package http

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/audit"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/importer"
)

// record appends to the audit log; failures are logged, never returned.
func record(ctx context.Context, log *audit.Log, typ, key string, data any) {
	if log == nil {
		return
	}
	if err := log.Record(ctx, typ, key, data); err != nil {
		loggerFrom(ctx).WarnContext(ctx, "audit", "type", typ, "key", key, "err", err)
	}
}

func ListBanksHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := banks.List(r.Context(), bankViewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

func CreateBankHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req bank.Bank
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.CreatedBy = principal(r).ID
		b, err := banks.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, b)
	}
}

func GetBankHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		b, err := banks.Get(r.Context(), param(r, "bankID"), bankViewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, b)
	}
}

type bankPatch struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
}

func UpdateBankHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var p bankPatch
		if err := decode(r, &p); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := banks.Update(r.Context(), param(r, "bankID"), bankViewer(r), p.Name, p.Description)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, b)
	}
}

func DeleteBankHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := banks.Delete(r.Context(), param(r, "bankID"), bankViewer(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func ListSharesHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := banks.Shares(r.Context(), param(r, "bankID"), bankViewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

type shareReq struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,notblank"`
	Access  string   `json:"access" validate:"omitempty,oneof=viewer editor owner"`
}

// POST /banks/{bankID}/shares  {"user_ids": [...], "access": "editor"}
func ShareBankHandler(banks *bank.Store, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "bankID")
		var req shareReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Access == "" {
			req.Access = bank.AccessViewer
		}
		if err := banks.Share(r.Context(), id, bankViewer(r), req.UserIDs, req.Access); err != nil {
			writeError(w, r, err)
			return
		}
		record(r.Context(), log, audit.TypeBankShared, "bank:"+id, map[string]any{"by": principal(r).ID, "users": req.UserIDs, "access": req.Access})
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// DELETE /banks/{bankID}/shares  {"user_ids": [...]}
func UnshareBankHandler(banks *bank.Store, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "bankID")
		var req shareReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := banks.Unshare(r.Context(), id, bankViewer(r), req.UserIDs); err != nil {
			writeError(w, r, err)
			return
		}
		record(r.Context(), log, audit.TypeBankUnshared, "bank:"+id, map[string]any{"by": principal(r).ID, "users": req.UserIDs})
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// GET /banks/{bankID}/questions?topic=
func ListBankQuestionsHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := banks.ListQuestions(r.Context(), param(r, "bankID"), bankViewer(r), r.URL.Query().Get("topic"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

// POST /banks/{bankID}/questions takes one question or an array.
func AddBankQuestionsHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req oneOrMany[bank.Question]
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		qs, err := banks.AddQuestions(r.Context(), param(r, "bankID"), bankViewer(r), req.items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, qs)
	}
}

func UpdateBankQuestionHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var q bank.Question
		if err := decodeJSON(r, &q); err != nil {
			writeError(w, r, err)
			return
		}
		q.ID = param(r, "questionID")
		up, err := banks.UpdateQuestion(r.Context(), param(r, "bankID"), bankViewer(r), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, up)
	}
}

func DeleteBankQuestionHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := banks.DeleteQuestion(r.Context(), param(r, "bankID"), param(r, "questionID"), bankViewer(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func ListTopicsHandler(banks *bank.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := banks.Topics(r.Context(), param(r, "bankID"), bankViewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}

// POST /banks/{bankID}/import  multipart file=<xlsx|csv>, ?partial=1 keeps
// the valid rows of a file with errors.
func ImportQuestionsHandler(im *importer.Importer, log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := param(r, "bankID")
		r.Body = nethttp.MaxBytesReader(w, r.Body, importer.MaxUploadBytes+1<<20)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("file required: %w", apperr.ErrInvalid))
			return
		}
		defer f.Close()
		rep, err := im.Import(r.Context(), id, bankViewer(r), hdr.Filename, f, queryBool(r, "partial"))
		if err != nil {
			writeImportError(w, r, rep, err)
			return
		}
		record(r.Context(), log, audit.TypeQuestionsImport, "bank:"+id, map[string]any{
			"by": principal(r).ID, "file": hdr.Filename, "imported": rep.Imported, "errors": len(rep.Errors),
		})
		writeJSON(w, nethttp.StatusOK, rep)
	}
}
