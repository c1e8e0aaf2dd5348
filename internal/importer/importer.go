package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/storage"
)

// MaxUploadBytes caps a single import file.
const MaxUploadBytes = 10 << 20

// ErrRowErrors is returned with a Report whose rows failed validation and
// nothing was stored.
var ErrRowErrors = fmt.Errorf("import rejected: %w", apperr.ErrInvalid)

type Importer struct {
	Banks *bank.Store
	Blobs storage.BlobStore // optional; keeps the raw upload
	Log   *slog.Logger
}

// Import parses an upload and stores its questions in bankID. Row errors
// reject the whole file unless partial is set, in which case valid rows are
// stored and the errors are reported alongside.
func (im *Importer) Import(ctx context.Context, bankID string, v bank.Viewer, name string, r io.Reader, partial bool) (Report, error) {
	f, err := FormatFor(name)
	if err != nil {
		return Report{}, err
	}
	if _, err := im.Banks.AccessFor(ctx, bankID, v); err != nil {
		return Report{}, err
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return Report{}, err
	}
	if len(raw) > MaxUploadBytes {
		return Report{}, fmt.Errorf("file exceeds %d bytes: %w", MaxUploadBytes, apperr.ErrInvalid)
	}

	rep, err := Parse(bytes.NewReader(raw), f)
	if err != nil {
		return rep, err
	}
	if !rep.OK() && !partial {
		return rep, ErrRowErrors
	}
	if len(rep.Questions) > 0 {
		stored, err := im.Banks.AddQuestions(ctx, bankID, v, rep.Questions)
		if err != nil {
			return rep, err
		}
		rep.Questions = stored
		rep.Imported = len(stored)
	}

	if im.Blobs != nil {
		key := fmt.Sprintf("imports/%s/%s%s", bankID, uuid.NewString(), strings.ToLower(filepath.Ext(name)))
		if stored, err := im.Blobs.Put(ctx, key, bytes.NewReader(raw)); err != nil {
			if im.Log != nil {
				im.Log.WarnContext(ctx, "keep import upload", "bank", bankID, "err", err)
			}
		} else {
			rep.Upload = stored
		}
	}
	if im.Log != nil {
		im.Log.InfoContext(ctx, "questions imported", "bank", bankID, "by", v.ID, "imported", rep.Imported, "row_errors", len(rep.Errors))
	}
	return rep, nil
}
