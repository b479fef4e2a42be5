package procwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSignaler struct {
	alive      map[int]bool
	terminated []int
}

func (f *fakeSignaler) Alive(pid int) bool {
	return f.alive[pid]
}

func (f *fakeSignaler) Terminate(pid int) error {
	f.terminated = append(f.terminated, pid)
	f.alive[pid] = false
	return nil
}

func newTestSupervisor(sig Signaler, now func() time.Time) *Supervisor {
	s := New(time.Minute, time.Second)
	s.sig = sig
	s.now = now
	return s
}

func TestReapSignalsOnlyExpiredAbandonedPids(t *testing.T) {
	clock := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	sig := &fakeSignaler{alive: map[int]bool{100: true, 200: true}}
	s := newTestSupervisor(sig, func() time.Time { return clock })

	s.Register(100)
	s.Register(200)
	s.Abandon(100)

	clock = clock.Add(30 * time.Second)
	s.Abandon(200)

	// 100 is 90s old, 200 only 60s: only 100 is past the minute grace.
	clock = clock.Add(time.Minute)
	s.Reap()

	assert.Equal(t, []int{100}, sig.terminated)
	active, abandoned := s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 1, abandoned)
}

func TestReapNeverSignalsTwice(t *testing.T) {
	clock := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	sig := &fakeSignaler{alive: map[int]bool{100: true}}
	s := newTestSupervisor(sig, func() time.Time { return clock })

	s.Register(100)
	s.Abandon(100)

	clock = clock.Add(2 * time.Minute)
	s.Reap()
	s.Reap()
	s.Reap()

	assert.Equal(t, []int{100}, sig.terminated, "expired pid is dropped after one signal")
}

func TestReapDropsDeadPidsWithoutSignaling(t *testing.T) {
	clock := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	sig := &fakeSignaler{alive: map[int]bool{100: false}}
	s := newTestSupervisor(sig, func() time.Time { return clock })

	s.Abandon(100)
	clock = clock.Add(2 * time.Minute)
	s.Reap()

	assert.Empty(t, sig.terminated)
	_, abandoned := s.Counts()
	assert.Equal(t, 0, abandoned)
}

func TestOnExitClearsTracking(t *testing.T) {
	sig := &fakeSignaler{alive: map[int]bool{}}
	s := newTestSupervisor(sig, time.Now)

	s.Register(7)
	s.OnExit(7)
	s.Abandon(8)
	s.OnExit(8)

	active, abandoned := s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, abandoned)
}

func TestReapLeavesActivePidsAlone(t *testing.T) {
	clock := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	sig := &fakeSignaler{alive: map[int]bool{42: true}}
	s := newTestSupervisor(sig, func() time.Time { return clock })

	s.Register(42)
	clock = clock.Add(time.Hour)
	s.Reap()

	assert.Empty(t, sig.terminated)
	active, _ := s.Counts()
	assert.Equal(t, 1, active)
}
