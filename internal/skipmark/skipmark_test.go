package skipmark

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/store"
)

const testKey = "_bylines_skip_backfill"

func setup(t *testing.T, ids ...ir.RecordID) (*store.Store, *Markers, *time.Time) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "skip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, id := range ids {
		require.NoError(t, s.PutRecord(context.Background(), ir.ContentRecord{ID: id, AuthorRef: 1, Type: "post", Status: "publish"}))
	}

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m, err := New(s, testKey, func() time.Time { return now })
	require.NoError(t, err)
	return s, m, &now
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(nil, "", nil)
	require.Error(t, err)
}

func TestMark_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, m, now := setup(t, 1)
	first := *now

	created, err := m.Mark(ctx, 1, ReasonAuthorNotFound)
	require.NoError(t, err)
	assert.True(t, created)

	*now = now.Add(time.Hour)
	created, err = m.Mark(ctx, 1, ReasonAuthorNotFound)
	require.NoError(t, err)
	assert.False(t, created)

	markers, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, ir.SkipMarker{RecordID: 1, Reason: ReasonAuthorNotFound, CreatedAt: first}, markers[0])
}

func TestMark_RejectsUnknownReason(t *testing.T) {
	_, m, _ := setup(t, 1)

	_, err := m.Mark(context.Background(), 1, "because")
	require.ErrorContains(t, err, "unknown reason")

	skipped, err := m.IsSkipped(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, skipped)
}

func TestIsSkipped(t *testing.T) {
	ctx := context.Background()
	_, m, _ := setup(t, 1, 2)

	_, err := m.Mark(ctx, 2, ReasonAuthorNotFound)
	require.NoError(t, err)

	skipped, err := m.IsSkipped(ctx, 1)
	require.NoError(t, err)
	assert.False(t, skipped)

	skipped, err = m.IsSkipped(ctx, 2)
	require.NoError(t, err)
	assert.True(t, skipped)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, m, _ := setup(t, 1, 2, 3)
	for _, id := range []ir.RecordID{1, 2, 3} {
		_, err := m.Mark(ctx, id, ReasonAuthorNotFound)
		require.NoError(t, err)
	}
	_, err := s.AddMeta(ctx, 1, "_other", "x", time.Now())
	require.NoError(t, err)

	n, err := m.Clear(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	markers, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, markers)

	has, err := s.HasMeta(ctx, 1, "_other")
	require.NoError(t, err)
	assert.True(t, has)
}
