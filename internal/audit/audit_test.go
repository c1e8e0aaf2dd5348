package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/db/dbtest"
)

func TestLog_RecordAndList(t *testing.T) {
	ctx := context.Background()
	l := NewLog(dbtest.Open(t), "")
	l.now = func() time.Time { return time.Unix(1_800_000_000, 0) }

	require.NoError(t, l.Record(ctx, TypeScoreEdited, "result:r1", map[string]any{"question_id": "q1", "points": 3}))
	require.NoError(t, l.Record(ctx, TypeEvalStarted, "quiz:z1", nil))
	require.NoError(t, l.Record(ctx, TypeScoreUndone, "result:r1", map[string]string{"edit_id": "e1"}))

	got, err := l.List(ctx, Filter{Key: "result:r1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypeScoreEdited, got[0].Type)
	assert.Equal(t, "local", got[0].SiteID)
	assert.Equal(t, int64(1_800_000_000), got[0].CreatedAt)
	assert.JSONEq(t, `{"question_id":"q1","points":3}`, string(got[0].Data))
	assert.Less(t, got[0].Seq, got[1].Seq)

	all, err := l.List(ctx, Filter{After: got[0].Seq, Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, TypeEvalStarted, all[0].Type)
	assert.JSONEq(t, `null`, string(all[0].Data))
}
