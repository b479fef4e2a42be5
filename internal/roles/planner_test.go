package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

const plannerTestPlan = `# Plan

## Current Goal

Keep the lights on.

## Tasks

- [x] done already
- [ ] next up
`

func TestPlannerDecidesIdleOnLaunchFailure(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{failed("backend unreachable")}}
	p := NewPlanner(store, l, session.Options{}, nil)

	decision := p.Decide(context.Background(), 1, nil, nil)
	assert.Equal(t, ActionIdle, decision.Action)
	assert.Contains(t, decision.Reason, "backend unreachable")
}

func TestPlannerDecidesIdleOnUnparseableReply(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{ok("I refuse to answer in JSON")}}
	p := NewPlanner(store, l, session.Options{}, nil)

	decision := p.Decide(context.Background(), 1, nil, nil)
	assert.Equal(t, ActionIdle, decision.Action)
}

func TestPlannerDecodesDispatchDecision(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Write(substrate.FilePlan, plannerTestPlan))
	l := &fakeLauncher{results: []session.Result{ok(`{"action":"dispatch","task_id":"task-2"}`)}}
	p := NewPlanner(store, l, session.Options{}, nil)

	decision := p.Decide(context.Background(), 3, []string{"user says hi"}, []string{"proposed goal"})
	assert.Equal(t, ActionDispatch, decision.Action)
	assert.Equal(t, "task-2", decision.TaskID)

	// Injected messages and drive goals surface in the prompt.
	require.Len(t, l.requests, 1)
	assert.Contains(t, l.requests[0].Message, "user says hi")
	assert.Contains(t, l.requests[0].Message, "proposed goal")
	assert.Contains(t, l.requests[0].Message, "task-2: next up")
}

func TestPlannerNextTask(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Write(substrate.FilePlan, plannerTestPlan))
	p := NewPlanner(store, &fakeLauncher{}, session.Options{}, nil)

	task, goal, hasTasks, err := p.NextTask()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "task-2", task.ID)
	assert.Equal(t, "Keep the lights on.", goal)
	assert.True(t, hasTasks)
}

func TestPlannerCompleteTask(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Write(substrate.FilePlan, plannerTestPlan))
	p := NewPlanner(store, &fakeLauncher{}, session.Options{}, nil)

	require.NoError(t, p.CompleteTask("task-2"))
	task, _, _, err := p.NextTask()
	require.NoError(t, err)
	assert.Nil(t, task, "plan exhausted after completion")

	// Completing again is a no-op, not an error.
	require.NoError(t, p.CompleteTask("task-2"))
}

func TestPlannerApplyRewritePlan(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p := NewPlanner(store, &fakeLauncher{}, session.Options{}, nil)

	require.Error(t, p.Apply(PlannerDecision{Action: ActionRewritePlan, Plan: "  "}),
		"an empty rewrite would wipe the plan")

	require.NoError(t, p.Apply(PlannerDecision{Action: ActionRewritePlan, Plan: "## Tasks\n- [ ] fresh\n"}))
	md, err := store.Read(substrate.FilePlan)
	require.NoError(t, err)
	assert.Contains(t, md, "- [ ] fresh")
}

func TestPlannerApplyLogEntry(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p := NewPlanner(store, &fakeLauncher{}, session.Options{}, nil)

	require.NoError(t, p.Apply(PlannerDecision{Action: ActionLogEntry, Entry: "thinking out loud"}))
	conv, err := store.Read(substrate.FileConversation)
	require.NoError(t, err)
	assert.Contains(t, conv, "planner: thinking out loud")
}

func TestPlannerConsumeInbox(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Write(substrate.FileInbox, "- first message\n\n- second message\n"))
	p := NewPlanner(store, &fakeLauncher{}, session.Options{}, nil)

	messages, err := p.ConsumeInbox()
	require.NoError(t, err)
	assert.Equal(t, []string{"first message", "second message"}, messages)

	content, err := store.Read(substrate.FileInbox)
	require.NoError(t, err)
	assert.Equal(t, "", content)

	messages, err = p.ConsumeInbox()
	require.NoError(t, err)
	assert.Nil(t, messages)
}
