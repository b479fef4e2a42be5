// Package procwatch tracks backend subprocess pids across their active,
// abandoned and reaped lifecycle so a discarded launcher never leaks a child
// process.
package procwatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/logging"
)

// Signaler abstracts liveness probing and termination so the reaper can be
// exercised without real processes.
type Signaler interface {
	Alive(pid int) bool
	Terminate(pid int) error
}

// Supervisor tracks subprocess pids. Its sets are shared between the main
// loop (Register/OnExit/Abandon) and the reaper tick, so all access is
// mutex-guarded.
type Supervisor struct {
	mu        sync.Mutex
	active    map[int]struct{}
	abandoned map[int]time.Time

	grace    time.Duration
	interval time.Duration
	sig      Signaler
	now      func() time.Time
	logger   zerolog.Logger
}

// New constructs a supervisor with the given abandonment grace period and
// reaper tick interval.
func New(grace, interval time.Duration) *Supervisor {
	return &Supervisor{
		active:    make(map[int]struct{}),
		abandoned: make(map[int]time.Time),
		grace:     grace,
		interval:  interval,
		sig:       osSignaler{},
		now:       time.Now,
		logger:    logging.Component("procwatch"),
	}
}

// Register starts tracking a freshly spawned pid as active.
func (s *Supervisor) Register(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[pid] = struct{}{}
}

// OnExit stops tracking a pid that exited normally.
func (s *Supervisor) OnExit(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, pid)
	delete(s.abandoned, pid)
}

// Abandon marks a pid whose owner was discarded before the process exited.
// Abandoned pids are retained until the reaper confirms their exit or kills
// them after the grace period.
func (s *Supervisor) Abandon(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, pid)
	s.abandoned[pid] = s.now()
}

// Reap inspects abandoned pids once. Pids strictly older than the grace
// period are signaled if still alive and dropped from tracking either way, so
// no pid is ever signaled twice. Pids at or under the grace period are left
// untouched.
func (s *Supervisor) Reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.grace)
	for pid, abandonedAt := range s.abandoned {
		if !abandonedAt.Before(cutoff) {
			continue
		}
		if s.sig.Alive(pid) {
			if err := s.sig.Terminate(pid); err != nil {
				s.logger.Warn().Int("pid", pid).Err(err).Msg("terminate abandoned process")
			} else {
				s.logger.Info().Int("pid", pid).Msg("terminated abandoned process")
			}
		}
		delete(s.abandoned, pid)
	}
}

// Run ticks the reaper until the context is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap()
		}
	}
}

// Counts reports the tracked set sizes, for status surfaces.
func (s *Supervisor) Counts() (active, abandoned int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active), len(s.abandoned)
}
