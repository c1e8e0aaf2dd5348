package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/apperr"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "reports/q1.xlsx")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	key, err := s.Put(ctx, "reports/q1.xlsx", strings.NewReader("xlsx-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "reports/q1.xlsx", key)

	info, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, len("xlsx-bytes"), info.Size)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "xlsx-bytes", string(b))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Stat(ctx, key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFSStore_KeysStayInsideBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewFSStore(base)
	require.NoError(t, err)

	_, err = s.Put(ctx, "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadKey)

	_, err = s.Put(ctx, "../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	p, err := s.path("../../escape.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, base))
}
