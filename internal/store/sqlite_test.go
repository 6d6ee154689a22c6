package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SaveAndGetCycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := testCycle("cycle-1", time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC))

	require.NoError(t, st.SaveCycle(ctx, c))

	got, err := st.GetCycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Result.ConsensusValue, got.Result.ConsensusValue)
	assert.Equal(t, c.Result.Reliability, got.Result.Reliability)
	require.Len(t, got.NewItems, 2)
	assert.Equal(t, "Volatility eases into the close", got.NewItems[0].Title)
	assert.Equal(t, 3, got.Metrics.TotalAttempts)

	n, err := st.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_GetCycle_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCycle(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_SaveCycle_ItemsSkippedOnConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveCycle(ctx, testCycle("c1", start)))
	require.NoError(t, st.SaveCycle(ctx, testCycle("c2", start.Add(time.Hour))))

	n, err := st.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "same items are stored once")
}

func TestSQLite_SaveCycle_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := testCycle("c1", time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC))

	require.NoError(t, st.SaveCycle(ctx, c))
	c.Summary = "calm session"
	require.NoError(t, st.SaveCycle(ctx, c))

	got, err := st.GetCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "calm session", got.Summary)

	list, err := st.ListCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_ListCycles_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3"} {
		c := testCycle(id, base.Add(time.Duration(i)*time.Hour))
		c.NewItems = nil
		require.NoError(t, st.SaveCycle(ctx, c))
	}

	list, err := st.ListCycles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c3", list[0].ID)
	assert.Equal(t, "c2", list[1].ID)
	assert.Equal(t, 2, list[0].SampleCount)
	assert.True(t, list[0].StartedAt.Equal(base.Add(2*time.Hour)))
}

func TestSQLite_ListCycles_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	list, err := st.ListCycles(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "o.db"), nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
}
