package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "psyche.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return NewStore(h)
}

func TestRecordAndListCycles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCycle(ctx, CycleRecord{
		Cycle:     1,
		StartedAt: "2026-08-23T10:00:00Z",
		EndedAt:   "2026-08-23T10:00:05Z",
		Action:    "idle",
	}))
	require.NoError(t, s.RecordCycle(ctx, CycleRecord{
		Cycle:      2,
		StartedAt:  "2026-08-23T10:00:30Z",
		EndedAt:    "2026-08-23T10:00:42Z",
		Action:     "dispatch",
		TaskID:     "task-1.2",
		Result:     "success",
		Audited:    true,
		Findings:   1,
		CostUSD:    0.07,
		DurationMS: 12000,
	}))

	got, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2, got[0].Cycle, "newest first")
	assert.Equal(t, "dispatch", got[0].Action)
	assert.Equal(t, "task-1.2", got[0].TaskID)
	assert.Equal(t, "success", got[0].Result)
	assert.True(t, got[0].Audited)
	assert.Equal(t, 1, got[0].Findings)
	assert.InDelta(t, 0.07, got[0].CostUSD, 1e-9)

	assert.Equal(t, 1, got[1].Cycle)
	assert.Empty(t, got[1].TaskID)
	assert.False(t, got[1].Audited)
}

func TestRecordCycleReplacesSameCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCycle(ctx, CycleRecord{Cycle: 7, Action: "idle"}))
	require.NoError(t, s.RecordCycle(ctx, CycleRecord{Cycle: 7, Action: "dispatch", TaskID: "task-3"}))

	got, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dispatch", got[0].Action)
	assert.Equal(t, "task-3", got[0].TaskID)
}

func TestListCyclesDefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 60; i++ {
		require.NoError(t, s.RecordCycle(ctx, CycleRecord{Cycle: i, Action: "idle"}))
	}

	got, err := s.ListCycles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 50)
	assert.Equal(t, 60, got[0].Cycle)
	assert.Equal(t, 11, got[49].Cycle)
}

func TestInsertEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEvent(ctx, Event{Cycle: 3, Type: "worker_turn", Message: "task-1 done"}))
	require.NoError(t, s.InsertEvent(ctx, Event{Cycle: 3, Type: "audit", Message: "clean", DataJSON: `{"findings":0}`}))

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE cycle = 3`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPruneKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		require.NoError(t, s.RecordCycle(ctx, CycleRecord{Cycle: i, Action: "idle"}))
		require.NoError(t, s.InsertEvent(ctx, Event{Cycle: i, Type: "cycle", Message: fmt.Sprintf("cycle %d", i)}))
	}

	require.NoError(t, s.Prune(ctx, 3))

	got, err := s.ListCycles(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 10, got[0].Cycle)
	assert.Equal(t, 8, got[2].Cycle)

	var orphaned int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE cycle < 8`).Scan(&orphaned))
	assert.Equal(t, 0, orphaned)
}

func TestPruneDisabledForNonPositiveKeep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.RecordCycle(ctx, CycleRecord{Cycle: i, Action: "idle"}))
	}

	require.NoError(t, s.Prune(ctx, 0))

	got, err := s.ListCycles(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}
