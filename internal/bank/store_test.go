package bank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/db/dbtest"
	"github.com/mind-engage/quizdesk/internal/grading"
)

var (
	owner  = bank.Viewer{ID: "m1", Role: "manager"}
	editor = bank.Viewer{ID: "m2", Role: "manager"}
	viewer = bank.Viewer{ID: "m3", Role: "manager"}
	other  = bank.Viewer{ID: "m4", Role: "manager"}
	admin  = bank.Viewer{ID: "root", Role: "admin"}
)

func mcq(prompt string, topics ...string) bank.Question {
	return bank.Question{
		Type:      grading.TypeMCQSingle,
		Prompt:    prompt,
		Choices:   []string{"yes", "no"},
		AnswerKey: []string{"A"},
		Topics:    topics,
	}
}

func setup(t *testing.T) (*bank.Store, bank.Bank) {
	t.Helper()
	ctx := context.Background()
	s := bank.NewStore(dbtest.Open(t))
	b, err := s.Create(ctx, bank.Bank{Name: "Algebra", CreatedBy: owner.ID})
	require.NoError(t, err)
	require.NoError(t, s.Share(ctx, b.ID, owner, []string{editor.ID}, bank.AccessEditor))
	require.NoError(t, s.Share(ctx, b.ID, owner, []string{viewer.ID}, bank.AccessViewer))
	return s, b
}

func TestBank_AccessLevels(t *testing.T) {
	s, b := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		v    bank.Viewer
		want string
	}{
		{"owner", owner, bank.AccessOwner},
		{"editor", editor, bank.AccessEditor},
		{"viewer", viewer, bank.AccessViewer},
		{"stranger", other, bank.AccessNone},
		{"admin", admin, bank.AccessOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.AccessFor(ctx, b.ID, tc.v)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := s.AccessFor(ctx, "missing", owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Get(ctx, b.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.AddQuestion(ctx, b.ID, viewer, mcq("2+2=4?"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = s.AddQuestion(ctx, b.ID, editor, mcq("2+2=4?"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Share(ctx, b.ID, editor, []string{other.ID}, bank.AccessViewer), apperr.ErrForbidden)
	assert.ErrorIs(t, s.Delete(ctx, b.ID, editor), apperr.ErrForbidden)

	list, err := s.List(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bank.AccessViewer, list[0].Access)

	list, err = s.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBank_KeepsAnOwner(t *testing.T) {
	s, b := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Unshare(ctx, b.ID, owner, []string{owner.ID}), apperr.ErrConflict)
	assert.ErrorIs(t, s.Share(ctx, b.ID, owner, []string{owner.ID}, bank.AccessViewer), apperr.ErrConflict)

	require.NoError(t, s.Share(ctx, b.ID, owner, []string{editor.ID}, bank.AccessOwner))
	require.NoError(t, s.Unshare(ctx, b.ID, editor, []string{owner.ID}))

	shares, err := s.Shares(ctx, b.ID, editor)
	require.NoError(t, err)
	require.Len(t, shares, 2)

	assert.ErrorIs(t, s.Share(ctx, b.ID, editor, []string{"x"}, "superuser"), apperr.ErrInvalid)
}

func TestBank_QuestionsAndTopics(t *testing.T) {
	s, b := setup(t)
	ctx := context.Background()

	qs, err := s.AddQuestions(ctx, b.ID, owner, []bank.Question{
		mcq("Is 7 prime?", "Primes", " number theory "),
		mcq("Is 9 prime?", "primes"),
		{Type: grading.TypeNumeric, Prompt: "sqrt(16)?", AnswerKey: []string{"4"}, Points: 2, Difficulty: "easy"},
	})
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, []string{"primes", "number theory"}, qs[0].Topics)
	assert.Equal(t, 1.0, qs[0].Points)

	topics, err := s.Topics(ctx, b.ID, viewer)
	require.NoError(t, err)
	assert.Equal(t, []bank.TopicCount{{Topic: "number theory", Count: 1}, {Topic: "primes", Count: 2}}, topics)

	got, err := s.ListQuestions(ctx, b.ID, viewer, "PRIMES")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	q := qs[2]
	q.Points = 5
	q.Topics = []string{"roots"}
	up, err := s.UpdateQuestion(ctx, b.ID, editor, q)
	require.NoError(t, err)
	assert.Equal(t, 5.0, up.Points)
	assert.Equal(t, []string{"roots"}, up.Topics)

	picked, err := s.Questions(ctx, viewer, []string{qs[2].ID, qs[0].ID})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, qs[2].ID, picked[0].ID)

	_, err = s.Questions(ctx, other, []string{qs[0].ID})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.DeleteQuestion(ctx, b.ID, qs[1].ID, editor))
	assert.ErrorIs(t, s.DeleteQuestion(ctx, b.ID, qs[1].ID, editor), apperr.ErrNotFound)
}

func TestQuestion_Validate(t *testing.T) {
	cases := []struct {
		name string
		q    bank.Question
		ok   bool
	}{
		{"mcq ok", mcq("x"), true},
		{"bad type", bank.Question{Type: "matching", Prompt: "x"}, false},
		{"blank prompt", bank.Question{Type: grading.TypeEssay, Prompt: "  "}, false},
		{"one choice", bank.Question{Type: grading.TypeMCQSingle, Prompt: "x", Choices: []string{"a"}, AnswerKey: []string{"A"}}, false},
		{"single with two keys", bank.Question{Type: grading.TypeMCQSingle, Prompt: "x", Choices: []string{"a", "b"}, AnswerKey: []string{"A", "B"}}, false},
		{"multi with two keys", bank.Question{Type: grading.TypeMCQMulti, Prompt: "x", Choices: []string{"a", "b"}, AnswerKey: []string{"A", "B"}}, true},
		{"key out of range", bank.Question{Type: grading.TypeMCQSingle, Prompt: "x", Choices: []string{"a", "b"}, AnswerKey: []string{"C"}}, false},
		{"true false", bank.Question{Type: grading.TypeTrueFalse, Prompt: "x", AnswerKey: []string{"false"}}, true},
		{"true false bad", bank.Question{Type: grading.TypeTrueFalse, Prompt: "x", AnswerKey: []string{"yes"}}, false},
		{"coding no key", bank.Question{Type: grading.TypeCoding, Prompt: "write fizzbuzz", Points: 10}, true},
		{"negative points", bank.Question{Type: grading.TypeEssay, Prompt: "x", Points: -1}, false},
		{"bad difficulty", bank.Question{Type: grading.TypeEssay, Prompt: "x", Difficulty: "extreme"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalid)
			}
		})
	}
}
