package importer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/db/dbtest"
	"github.com/mind-engage/quizdesk/internal/grading"
	"github.com/mind-engage/quizdesk/internal/importer"
	"github.com/mind-engage/quizdesk/internal/logging"
	"github.com/mind-engage/quizdesk/internal/storage"
)

var hdr = []string{"Question", "Option A", "option_b", "option_c", "option_d", "Answer", "Points", "Topics", "Difficulty"}

func TestParseRows(t *testing.T) {
	rep, err := importer.ParseRows([][]string{
		hdr,
		{"Capital of France?", "Paris", "Rome", "", "", "a", "", "geography; Europe", "easy"},
		{"Primes?", "2", "3", "4", "", "A, B", "2", "", ""},
		{},
		{"", "x", "y", "", "", "A", "", "", ""},
		{"Gap", "x", "", "z", "", "A", "", "", ""},
		{"Bad answer", "x", "y", "", "", "D", "", "", ""},
		{"Bad points", "x", "y", "", "", "A", "-3", "", "trivial"},
	})
	require.NoError(t, err)

	require.Len(t, rep.Questions, 2)
	q := rep.Questions[0]
	assert.Equal(t, grading.TypeMCQSingle, q.Type)
	assert.Equal(t, []string{"Paris", "Rome"}, q.Choices)
	assert.Equal(t, []string{"A"}, q.AnswerKey)
	assert.Equal(t, 1.0, q.Points)
	assert.Equal(t, []string{"geography", "europe"}, q.Topics)
	assert.Equal(t, grading.TypeMCQMulti, rep.Questions[1].Type)
	assert.Equal(t, 2.0, rep.Questions[1].Points)

	assert.Equal(t, []importer.RowError{
		{Row: 5, Field: "question", Message: "question text is required"},
		{Row: 6, Field: "option_b", Message: "option is empty but a later option is set"},
		{Row: 7, Field: "answer", Message: `"D" does not name a filled option`},
		{Row: 8, Field: "points", Message: "points must be a positive number"},
		{Row: 8, Field: "difficulty", Message: "difficulty must be easy, medium or hard"},
	}, rep.Errors)
}

func TestParseRows_Header(t *testing.T) {
	_, err := importer.ParseRows([][]string{{"prompt", "option_a", "option_b"}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	assert.Contains(t, err.Error(), "question")

	_, err = importer.ParseRows(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func xlsxBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cells := make([]any, len(r))
		for j, c := range r {
			cells[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &cells))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_XLSXAndCSV(t *testing.T) {
	rows := [][]string{hdr, {"2+2?", "3", "4", "", "", "B", "1", "arith", "easy"}}

	rep, err := importer.Parse(bytes.NewReader(xlsxBytes(t, rows)), importer.FormatXLSX)
	require.NoError(t, err)
	require.Len(t, rep.Questions, 1)
	assert.Equal(t, []string{"B"}, rep.Questions[0].AnswerKey)

	csvBody := "\xef\xbb\xbf" + strings.Join(hdr, ",") + "\n2+2?,3,4,,,B,1,arith,easy\n"
	rep, err = importer.Parse(strings.NewReader(csvBody), importer.FormatCSV)
	require.NoError(t, err)
	require.Len(t, rep.Questions, 1)
	assert.Equal(t, "2+2?", rep.Questions[0].Prompt)

	_, err = importer.Parse(strings.NewReader("not a zip"), importer.FormatXLSX)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = importer.FormatFor("questions.pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestImporter_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	banks := bank.NewStore(dbtest.Open(t))
	owner := bank.Viewer{ID: "m1", Role: "manager"}
	b, err := banks.Create(ctx, bank.Bank{Name: "Imports", CreatedBy: owner.ID})
	require.NoError(t, err)
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	im := &importer.Importer{Banks: banks, Blobs: blobs, Log: logging.Discard()}

	file := xlsxBytes(t, [][]string{
		hdr,
		{"ok", "x", "y", "", "", "A", "", "", ""},
		{"broken", "x", "", "", "", "A", "", "", ""},
	})

	rep, err := im.Import(ctx, b.ID, owner, "mcq.xlsx", bytes.NewReader(file), false)
	assert.ErrorIs(t, err, importer.ErrRowErrors)
	assert.Len(t, rep.Errors, 1)
	assert.Zero(t, rep.Imported)
	stored, err := banks.ListQuestions(ctx, b.ID, owner, "")
	require.NoError(t, err)
	assert.Empty(t, stored)

	rep, err = im.Import(ctx, b.ID, owner, "mcq.xlsx", bytes.NewReader(file), true)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Imported)
	assert.Len(t, rep.Errors, 1)
	assert.True(t, strings.HasPrefix(rep.Upload, "imports/"+b.ID+"/"), rep.Upload)
	info, err := blobs.Stat(ctx, rep.Upload)
	require.NoError(t, err)
	assert.Equal(t, int64(len(file)), info.Size)
	stored, err = banks.ListQuestions(ctx, b.ID, owner, "")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	viewer := bank.Viewer{ID: "m9", Role: "manager"}
	require.NoError(t, banks.Share(ctx, b.ID, owner, []string{viewer.ID}, bank.AccessViewer))
	_, err = im.Import(ctx, b.ID, viewer, "mcq.xlsx", bytes.NewReader(file), true)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
