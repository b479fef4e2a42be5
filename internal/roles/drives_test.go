package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metalagman/psyche/internal/session"
)

func TestDrivesProposesTrimmedGoals(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{
		ok(`{"goals":["  tidy the backlog  ","", "write release notes"]}`),
	}}
	d := NewDrives(store, l, session.Options{})

	goals := d.ProposeGoals(context.Background())
	assert.Equal(t, []string{"tidy the backlog", "write release notes"}, goals)
}

func TestDrivesLaunchFailureProposesNothing(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{failed("no backend")}}
	d := NewDrives(store, l, session.Options{})

	assert.Nil(t, d.ProposeGoals(context.Background()))
}

func TestDrivesMalformedReplyProposesNothing(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{ok(`{"plans":["wrong shape"]}`)}}
	d := NewDrives(store, l, session.Options{})

	assert.Nil(t, d.ProposeGoals(context.Background()))
}

func TestDrivesEmptyGoalListIsValid(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	l := &fakeLauncher{results: []session.Result{ok(`{"goals":[]}`)}}
	d := NewDrives(store, l, session.Options{})

	goals := d.ProposeGoals(context.Background())
	assert.Empty(t, goals)
}
