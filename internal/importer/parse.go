// Package importer turns MCQ spreadsheets into bank questions.
//
// The first row is a header. Recognized columns (case-insensitive):
// question, option_a..option_f, answer, points, topics, difficulty.
// answer holds option letters; several letters ("A,C") make the question
// mcq_multi. topics are separated by ';'.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/grading"
)

const maxOptions = 6

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFor picks the format from a file name.
func FormatFor(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported file type %q: %w", filepath.Ext(name), apperr.ErrInvalid)
}

// RowError points at a spreadsheet row (1-based, header is row 1).
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Report struct {
	Questions []bank.Question `json:"questions"`
	Errors    []RowError      `json:"errors"`
	Imported  int             `json:"imported"`
	Upload    string          `json:"upload,omitempty"` // blob key of the kept file
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// Parse reads the first sheet (xlsx) or the whole file (csv).
func Parse(r io.Reader, f Format) (Report, error) {
	var rows [][]string
	switch f {
	case FormatXLSX:
		x, err := excelize.OpenReader(r)
		if err != nil {
			return Report{}, fmt.Errorf("open workbook: %v: %w", err, apperr.ErrInvalid)
		}
		defer x.Close()
		sheets := x.GetSheetList()
		if len(sheets) == 0 {
			return Report{}, fmt.Errorf("workbook has no sheets: %w", apperr.ErrInvalid)
		}
		if rows, err = x.GetRows(sheets[0]); err != nil {
			return Report{}, err
		}
	case FormatCSV:
		b, err := io.ReadAll(r)
		if err != nil {
			return Report{}, err
		}
		cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))))
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		if rows, err = cr.ReadAll(); err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Report{}, fmt.Errorf("csv line %d: %v: %w", pe.Line, pe.Err, apperr.ErrInvalid)
			}
			return Report{}, err
		}
	default:
		return Report{}, fmt.Errorf("format %q: %w", f, apperr.ErrInvalid)
	}
	return ParseRows(rows)
}

type header struct {
	question, answer, points, topics, difficulty int
	options                                      []int
}

func readHeader(row []string) (header, error) {
	h := header{question: -1, answer: -1, points: -1, topics: -1, difficulty: -1}
	opts := make([]int, maxOptions)
	for i := range opts {
		opts[i] = -1
	}
	for i, c := range row {
		name := strings.ToLower(strings.TrimSpace(c))
		name = strings.ReplaceAll(name, " ", "_")
		switch name {
		case "question":
			h.question = i
		case "answer", "answers":
			h.answer = i
		case "points":
			h.points = i
		case "topics", "topic":
			h.topics = i
		case "difficulty":
			h.difficulty = i
		default:
			if letter, ok := strings.CutPrefix(name, "option_"); ok && len(letter) == 1 {
				if n := int(letter[0] - 'a'); n >= 0 && n < maxOptions {
					opts[n] = i
				}
			}
		}
	}
	var missing []string
	if h.question < 0 {
		missing = append(missing, "question")
	}
	if h.answer < 0 {
		missing = append(missing, "answer")
	}
	if opts[0] < 0 || opts[1] < 0 {
		missing = append(missing, "option_a", "option_b")
	}
	if len(missing) > 0 {
		return h, fmt.Errorf("missing columns: %s: %w", strings.Join(missing, ", "), apperr.ErrInvalid)
	}
	// options must be contiguous from A
	for i, c := range opts {
		if c < 0 {
			break
		}
		h.options = append(h.options, opts[i])
	}
	return h, nil
}

// ParseRows validates rows (header first) and collects every row error
// rather than stopping at the first.
func ParseRows(rows [][]string) (Report, error) {
	rep := Report{Questions: []bank.Question{}, Errors: []RowError{}}
	if len(rows) == 0 {
		return rep, fmt.Errorf("empty file: %w", apperr.ErrInvalid)
	}
	h, err := readHeader(rows[0])
	if err != nil {
		return rep, err
	}
	for i, rec := range rows[1:] {
		rowNum := i + 2
		if blank(rec) {
			continue
		}
		q, errs := h.row(rowNum, rec)
		if len(errs) > 0 {
			rep.Errors = append(rep.Errors, errs...)
			continue
		}
		rep.Questions = append(rep.Questions, q)
	}
	return rep, nil
}

func (h header) row(n int, rec []string) (bank.Question, []RowError) {
	cell := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var errs []RowError
	fail := func(field, msg string) { errs = append(errs, RowError{Row: n, Field: field, Message: msg}) }

	q := bank.Question{Prompt: cell(h.question), Points: 1}
	if q.Prompt == "" {
		fail("question", "question text is required")
	}

	// trailing empty options are allowed, gaps are not
	last := -1
	for i, col := range h.options {
		if cell(col) != "" {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		v := cell(h.options[i])
		if v == "" {
			fail("option_"+strings.ToLower(bank.ChoiceID(i)), "option is empty but a later option is set")
		}
		q.Choices = append(q.Choices, v)
	}
	if len(q.Choices) < 2 {
		fail("options", "at least 2 options are required")
	}

	seen := map[string]bool{}
	for _, a := range strings.FieldsFunc(strings.ToUpper(cell(h.answer)), func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '/'
	}) {
		if seen[a] {
			continue
		}
		seen[a] = true
		if len(a) != 1 || a[0] < 'A' || int(a[0]-'A') >= len(q.Choices) {
			fail("answer", fmt.Sprintf("%q does not name a filled option", a))
			continue
		}
		q.AnswerKey = append(q.AnswerKey, a)
	}
	if len(seen) == 0 {
		fail("answer", "answer is required")
	}
	q.Type = grading.TypeMCQSingle
	if len(q.AnswerKey) > 1 {
		q.Type = grading.TypeMCQMulti
	}

	if p := cell(h.points); p != "" {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			fail("points", "points must be a positive number")
		} else {
			q.Points = v
		}
	}

	switch d := strings.ToLower(cell(h.difficulty)); d {
	case "", "easy", "medium", "hard":
		q.Difficulty = d
	default:
		fail("difficulty", "difficulty must be easy, medium or hard")
	}

	if t := cell(h.topics); t != "" {
		q.Topics = bank.NormalizeTopics(strings.Split(t, ";"))
	}
	return q, errs
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
