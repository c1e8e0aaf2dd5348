package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusEvaluating, ParseStatus(" evaluating"))
	assert.Equal(t, StatusIdle, ParseStatus(""))
	assert.Equal(t, StatusUnknown, ParseStatus("PAUSED"))

	assert.True(t, StatusQueued.Active())
	assert.False(t, StatusQueued.Terminal())
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusEvaluated} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Active(), s)
	}
	assert.False(t, StatusFailed.Succeeded())
	assert.False(t, StatusIdle.Terminal())
}

func TestPhaseText(t *testing.T) {
	cases := []struct {
		name string
		p    Progress
		want string
	}{
		{"full", Progress{JobStatus: StatusEvaluating, Phase: "grading", Current: 12, Total: 40, Progress: 30, Remaining: 120}, "Evaluating: grading (12/40, 30%) ~2m remaining"},
		{"derived percent", Progress{JobStatus: StatusEvaluating, Current: 1, Total: 4, Remaining: 9}, "Evaluating (1/4, 25%) ~9s remaining"},
		{"queued", Progress{JobStatus: StatusQueued}, "Queued"},
		{"done hides eta", Progress{JobStatus: StatusCompleted, Current: 40, Total: 40, Remaining: 3}, "Completed (40/40, 100%)"},
		{"hours", Progress{JobStatus: StatusEvaluating, Remaining: 3900}, "Evaluating ~1h05m remaining"},
		{"rounds up to the hour", Progress{JobStatus: StatusEvaluating, Remaining: 3590}, "Evaluating ~1h00m remaining"},
		{"rounds up to the minute", Progress{JobStatus: StatusEvaluating, Remaining: 59.6}, "Evaluating ~1m remaining"},
		{"stopped", Progress{JobStatus: StatusFailed, Phase: "stopped"}, "Failed: stopped"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.PhaseText())
		})
	}
}
