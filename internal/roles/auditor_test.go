package roles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/psyche/internal/escalation"
	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

func newTracker(t *testing.T) *escalation.Tracker {
	t.Helper()
	return escalation.NewTracker(filepath.Join(t.TempDir(), "escalations.json"), 50)
}

func TestAuditorRecordsFindings(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{
		ok(`{"findings":[{"severity":"warning","message":"plan drift"},{"severity":"info","message":"all quiet"}]}`),
	}}
	a := NewAuditor(store, l, session.Options{}, newTracker(t))

	report, err := a.Audit(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, report.Findings, 2)
	assert.Empty(t, report.Escalated)

	audit, err := store.Read(substrate.FileAudit)
	require.NoError(t, err)
	assert.Contains(t, audit, "warning: plan drift")
	assert.Contains(t, audit, "cycle=5")
}

func TestAuditorEscalatesRecurringCriticalFinding(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	reply := ok(`{"findings":[{"severity":"critical","message":"worker loops forever"}]}`)
	l := &fakeLauncher{results: []session.Result{reply, reply, reply}}
	tracker := newTracker(t)
	a := NewAuditor(store, l, session.Options{}, tracker)

	for cycle := 1; cycle <= 2; cycle++ {
		report, err := a.Audit(context.Background(), cycle)
		require.NoError(t, err)
		assert.Len(t, report.Findings, 1)
		assert.Empty(t, report.Escalated)
	}

	report, err := a.Audit(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, report.Findings, "escalated findings leave the ordinary stream")
	require.Len(t, report.Escalated, 1)
	assert.Equal(t, []int{1, 2, 3}, report.Escalated[0].Cycles)

	escalations, err := store.Read(substrate.FileEscalations)
	require.NoError(t, err)
	assert.Contains(t, escalations, `"signature"`)
	assert.Contains(t, escalations, "worker loops forever")

	audit, err := store.Read(substrate.FileAudit)
	require.NoError(t, err)
	assert.Contains(t, audit, "ESCALATED")

	// Cleared: the same occurrences cannot escalate twice.
	assert.Equal(t, 0, tracker.Len())
}

func TestAuditorWithoutTrackerSkipsEscalation(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	reply := ok(`{"findings":[{"severity":"critical","message":"recurring"}]}`)
	l := &fakeLauncher{results: []session.Result{reply, reply, reply, reply}}
	a := NewAuditor(store, l, session.Options{}, nil)

	for cycle := 1; cycle <= 4; cycle++ {
		report, err := a.Audit(context.Background(), cycle)
		require.NoError(t, err)
		assert.Len(t, report.Findings, 1)
		assert.Empty(t, report.Escalated)
	}
}

func TestAuditorNegativeCycleSkipsEscalation(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	reply := ok(`{"findings":[{"severity":"critical","message":"ad hoc"}]}`)
	l := &fakeLauncher{results: []session.Result{reply, reply, reply}}
	tracker := newTracker(t)
	a := NewAuditor(store, l, session.Options{}, tracker)

	for i := 0; i < 3; i++ {
		report, err := a.Audit(context.Background(), -1)
		require.NoError(t, err)
		assert.Empty(t, report.Escalated)
	}
	assert.Equal(t, 0, tracker.Len())
}

func TestAuditorAppliesApprovedProposals(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Write(substrate.FileProposals, "pending proposal text"))
	l := &fakeLauncher{results: []session.Result{
		ok(`{"findings":[],"approvals":[
			{"target":"plan","approved":true,"content":"## Tasks\n- [ ] approved work\n"},
			{"target":"progress","approved":true,"content":"sneaky"},
			{"target":"drives","approved":false,"reason":"off goal"}
		]}`),
	}}
	a := NewAuditor(store, l, session.Options{}, newTracker(t))

	report, err := a.Audit(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, report.Approvals, 3)

	// Approved and writable: applied.
	md, err := store.Read(substrate.FilePlan)
	require.NoError(t, err)
	assert.Contains(t, md, "approved work")

	// Approved but not writable by the auditor: refused, logged.
	_, err = store.Read(substrate.FileProgress)
	assert.ErrorIs(t, err, substrate.ErrNotFound)

	audit, err := store.Read(substrate.FileAudit)
	require.NoError(t, err)
	assert.Contains(t, audit, "not writable by auditor")
	assert.Contains(t, audit, "rejected: off goal")

	// All pending proposals were decided, so the file is cleared.
	proposals, err := store.Read(substrate.FileProposals)
	require.NoError(t, err)
	assert.Equal(t, "", proposals)
}

func TestAuditorLaunchFailureIsAnError(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{failed("down")}}
	a := NewAuditor(store, l, session.Options{}, newTracker(t))

	_, err := a.Audit(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}
