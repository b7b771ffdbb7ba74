package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAssignsIDAndDefaults(t *testing.T) {
	j := openTemp(t)
	e, err := j.Record(context.Background(), Entry{Kind: KindUpdate, Mode: "TEMPLATE_MODE", Added: 3})
	require.NoError(t, err)

	_, err = uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, e.Outcome)
	assert.True(t, e.Succeeded())
	assert.False(t, e.StartedAt.IsZero())
}

func TestRecentNewestFirstAndFiltered(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := j.Record(ctx, Entry{Kind: KindEnvironment, StartedAt: base, Outcome: "dependency_install_failed", Message: "pip failed"})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Kind: KindUpdate, StartedAt: base.Add(time.Minute), Remote: "acme/app", Revision: "abc", DryRun: true})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Kind: KindUpdate, StartedAt: base.Add(2 * time.Minute), Remote: "acme/app", Removed: 2})
	require.NoError(t, err)

	all, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Removed)
	assert.True(t, all[1].DryRun)
	assert.Equal(t, base.Add(time.Minute), all[1].StartedAt)
	assert.False(t, all[2].Succeeded())

	updates, err := j.Recent(ctx, KindUpdate, 1)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, KindUpdate, updates[0].Kind)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	j, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Kind: KindUpdate})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	got, err := j.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}
