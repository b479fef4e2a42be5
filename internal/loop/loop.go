// Package loop implements the cycle orchestrator: the state machine that
// sequences role turns, gates on rate-limit windows, and exposes lifecycle
// control.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/db"
	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/plan"
	"github.com/metalagman/psyche/internal/roles"
	"github.com/metalagman/psyche/internal/session"
)

// State is the loop's formal lifecycle state. A rate-limit window is an
// orthogonal attribute of RUNNING, not a state of its own.
type State string

// Loop states.
const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
)

// ErrConflict reports a lifecycle action invalid in the current state.
var ErrConflict = errors.New("conflicting loop transition")

// Status is the loop's externally visible condition.
type Status struct {
	State          State      `json:"state"`
	Cycle          int        `json:"cycle"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	RateLimitUntil *time.Time `json:"rate_limit_until,omitempty"`
}

type plannerRole interface {
	Decide(ctx context.Context, cycle int, messages, driveGoals []string) roles.PlannerDecision
	Apply(decision roles.PlannerDecision) error
	NextTask() (*plan.Task, string, bool, error)
	FindTask(taskID string) (*plan.Task, string, error)
	CompleteTask(taskID string) error
	ConsumeInbox() ([]string, error)
	NoteDriveGoals(goals []string) error
}

type workerRole interface {
	Execute(ctx context.Context, task *plan.Task, goal string) roles.WorkerOutcome
}

type auditorRole interface {
	Audit(ctx context.Context, cycle int) (roles.AuditReport, error)
}

type drivesRole interface {
	ProposeGoals(ctx context.Context) []string
}

// Metrics is the slice of the db store the loop records into. Nil disables
// metrics.
type Metrics interface {
	RecordCycle(ctx context.Context, rec db.CycleRecord) error
	InsertEvent(ctx context.Context, ev db.Event) error
	Prune(ctx context.Context, keepLast int) error
}

// Options configures a Loop.
type Options struct {
	Interval   time.Duration // pause between cycles
	AuditEvery int           // audit cadence in cycles; 0 disables periodic audits
	KeepLast   int           // metrics retention; 0 disables pruning
	StatePath  string        // loop.json bookkeeping; empty disables persistence
}

// Loop drives the society one cycle at a time. Exactly one role turn is in
// flight at any instant; lifecycle actions take effect at cycle boundaries.
type Loop struct {
	planner plannerRole
	worker  workerRole
	auditor auditorRole
	drives  drivesRole
	metrics Metrics
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	mu             sync.Mutex
	state          State
	rateLimitUntil time.Time
	cycle          int
	lastCycleAt    time.Time
	auditRequested bool
	restartPending bool
	messages       []string
	pendingGoals   []string
	pendingCost    float64
	wakeCh         chan struct{}
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// New assembles a stopped loop. Cycle bookkeeping is resumed from
// opts.StatePath when present.
func New(planner plannerRole, worker workerRole, auditor auditorRole, drives drivesRole, metrics Metrics, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	l := &Loop{
		planner: planner,
		worker:  worker,
		auditor: auditor,
		drives:  drives,
		metrics: metrics,
		opts:    opts,
		logger:  logging.Component("loop"),
		now:     time.Now,
		state:   StateStopped,
	}
	if st, ok := loadState(opts.StatePath); ok {
		l.cycle = st.Cycle
		l.lastCycleAt = st.LastCycleAt
	}
	return l
}

// Start spawns the run loop. Starting while running but rate-limited just
// clears the window; any other non-stopped start is a conflict. A start
// arriving while a stopped loop is still draining its final turn waits for
// that turn, so at most one role turn is ever in flight.
func (l *Loop) Start(ctx context.Context) error {
	for {
		l.mu.Lock()
		switch l.state {
		case StateRunning:
			if !l.rateLimitUntil.IsZero() {
				l.rateLimitUntil = time.Time{}
				l.signalWake()
				l.logger.Info().Msg("start cleared rate-limit window")
				l.mu.Unlock()
				return nil
			}
			l.mu.Unlock()
			return fmt.Errorf("already running: %w", ErrConflict)
		case StatePaused:
			l.mu.Unlock()
			return fmt.Errorf("paused, resume instead: %w", ErrConflict)
		}

		prev := l.doneCh
		if prev != nil {
			select {
			case <-prev:
				prev = nil
			default:
			}
		}
		if prev == nil {
			l.state = StateRunning
			l.wakeCh = make(chan struct{}, 1)
			l.stopCh = make(chan struct{})
			l.doneCh = make(chan struct{})
			go l.run(ctx, l.wakeCh, l.stopCh, l.doneCh)
			l.logger.Info().Int("cycle", l.cycle).Msg("loop started")
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		// The previous run goroutine has not exited yet; join it and
		// re-check the state, it may have been started by someone else.
		<-prev
	}
}

// Pause suspends cycle execution without stopping the run loop.
func (l *Loop) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return fmt.Errorf("pause requires a running loop: %w", ErrConflict)
	}
	l.state = StatePaused
	l.logger.Info().Msg("loop paused")
	return nil
}

// Resume continues a paused loop.
func (l *Loop) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StatePaused {
		return fmt.Errorf("resume requires a paused loop: %w", ErrConflict)
	}
	l.state = StateRunning
	l.signalWake()
	l.logger.Info().Msg("loop resumed")
	return nil
}

// Stop moves the loop to STOPPED from any state. An in-flight role turn is
// allowed to finish; Stop does not wait for it.
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return nil
	}
	l.state = StateStopped
	close(l.stopCh)
	l.logger.Info().Msg("loop stopping")
	return nil
}

// Wait blocks until the run loop has exited. Returns immediately when the
// loop was never started.
func (l *Loop) Wait() {
	l.mu.Lock()
	done := l.doneCh
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Restart asks the running loop to discard pending goals and rate-limit
// gating at the next safe point. An optional message is queued for the
// planner.
func (l *Loop) Restart(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return fmt.Errorf("restart requires a live loop: %w", ErrConflict)
	}
	l.restartPending = true
	if message != "" {
		l.messages = append(l.messages, message)
	}
	l.signalWake()
	return nil
}

// RequestAudit asks for an audit at the next safe point.
func (l *Loop) RequestAudit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return fmt.Errorf("audit request requires a live loop: %w", ErrConflict)
	}
	l.auditRequested = true
	l.signalWake()
	return nil
}

// Wake clears an active rate-limit window early without changing the formal
// state.
func (l *Loop) Wake() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rateLimitUntil = time.Time{}
	l.signalWake()
}

// InjectMessage queues a user message for the planner's next turn.
func (l *Loop) InjectMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
	l.signalWake()
}

// Status reports the loop's current condition.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{State: l.state, Cycle: l.cycle}
	if !l.lastCycleAt.IsZero() {
		t := l.lastCycleAt
		st.LastCycleAt = &t
	}
	if !l.rateLimitUntil.IsZero() {
		t := l.rateLimitUntil
		st.RateLimitUntil = &t
	}
	return st
}

// Observe inspects a finished session result: its cost accrues to the current
// cycle's metrics, and rate-limit notices open a gating window. It is wired
// as the launcher's result observer.
func (l *Loop) Observe(res session.Result) {
	until, ok := session.ParseResetTime(res.RawOutput+"\n"+res.Stderr, l.now())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pendingCost += res.CostUSD
	if ok && until.After(l.rateLimitUntil) {
		l.rateLimitUntil = until
		l.logger.Warn().Time("until", until).Msg("rate-limit window detected, gating cycles")
	}
}

// signalWake nudges the run loop without blocking. Called with the mutex held.
func (l *Loop) signalWake() {
	if l.wakeCh == nil {
		return
	}
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context, wake <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = l.Stop()
			return
		case <-wake:
		case <-timer.C:
		}

		switch l.gate() {
		case gateStop:
			return
		case gateSkip:
			timer.Reset(l.opts.Interval)
			continue
		}

		l.runCycle(ctx)
		timer.Reset(l.opts.Interval)
	}
}

type gateVerdict int

const (
	gateGo gateVerdict = iota
	gateSkip
	gateStop
)

// gate decides whether the next cycle may run. Rate-limit windows and pauses
// skip cycles without erroring.
func (l *Loop) gate() gateVerdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.state == StateStopped:
		return gateStop
	case l.state == StatePaused:
		return gateSkip
	case !l.rateLimitUntil.IsZero():
		if l.now().Before(l.rateLimitUntil) {
			return gateSkip
		}
		l.rateLimitUntil = time.Time{}
	}
	return gateGo
}

func (l *Loop) runCycle(ctx context.Context) {
	l.mu.Lock()
	l.cycle++
	cycle := l.cycle
	messages := l.messages
	l.messages = nil
	goals := l.pendingGoals
	l.pendingGoals = nil
	if l.restartPending {
		l.restartPending = false
		l.rateLimitUntil = time.Time{}
		goals = nil
		l.logger.Info().Int("cycle", cycle).Msg("restart honored, pending goals discarded")
	}
	auditNow := l.auditRequested
	l.auditRequested = false
	l.mu.Unlock()

	started := l.now().UTC()
	rec := db.CycleRecord{Cycle: cycle, StartedAt: started.Format(time.RFC3339)}

	if inbox, err := l.planner.ConsumeInbox(); err != nil {
		l.logger.Warn().Err(err).Msg("consume inbox failed")
	} else {
		messages = append(messages, inbox...)
	}

	decision := l.planner.Decide(ctx, cycle, messages, goals)
	rec.Action = string(decision.Action)
	if err := l.planner.Apply(decision); err != nil {
		l.logger.Error().Err(err).Str("action", string(decision.Action)).Msg("apply planner decision failed")
		l.recordEvent(ctx, cycle, "planner_apply_failed", err.Error())
	}

	switch decision.Action {
	case roles.ActionDispatch:
		rec.TaskID, rec.Result = l.dispatch(ctx, cycle, decision.TaskID)
	case roles.ActionIdle:
		proposed := l.drives.ProposeGoals(ctx)
		if err := l.planner.NoteDriveGoals(proposed); err != nil {
			l.logger.Warn().Err(err).Msg("record drive goals failed")
		}
		l.mu.Lock()
		l.pendingGoals = proposed
		l.mu.Unlock()
	}

	if auditNow || (l.opts.AuditEvery > 0 && cycle%l.opts.AuditEvery == 0) {
		rec.Audited = true
		report, err := l.auditor.Audit(ctx, cycle)
		if err != nil {
			l.logger.Error().Err(err).Int("cycle", cycle).Msg("audit failed")
			l.recordEvent(ctx, cycle, "audit_failed", err.Error())
		} else {
			rec.Findings = len(report.Findings)
			rec.Escalations = len(report.Escalated)
		}
	}

	ended := l.now().UTC()
	rec.EndedAt = ended.Format(time.RFC3339)
	rec.DurationMS = ended.Sub(started).Milliseconds()

	l.mu.Lock()
	rec.CostUSD = l.pendingCost
	l.pendingCost = 0
	l.lastCycleAt = ended
	l.mu.Unlock()

	l.recordCycle(ctx, rec)
	saveState(l.opts.StatePath, persistedState{Cycle: cycle, LastCycleAt: ended})
}

// dispatch resolves the planner's chosen task and runs one worker turn.
// Completion is withheld when the reconsideration pass forces reassessment.
func (l *Loop) dispatch(ctx context.Context, cycle int, taskID string) (string, string) {
	task, goal, err := l.resolveTask(taskID)
	if err != nil {
		l.logger.Warn().Err(err).Str("task_id", taskID).Msg("resolve dispatched task failed")
		return taskID, ""
	}
	if task == nil {
		l.logger.Warn().Str("task_id", taskID).Msg("nothing actionable to dispatch")
		return taskID, ""
	}

	outcome := l.worker.Execute(ctx, task, goal)
	l.recordEvent(ctx, cycle, "worker_turn", fmt.Sprintf("task %s: %s", task.ID, outcome.Summary))

	if outcome.Result == roles.ResultSuccess && !outcome.NeedsReassessment {
		if err := l.planner.CompleteTask(task.ID); err != nil {
			l.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark task complete failed")
		}
	} else if outcome.NeedsReassessment {
		l.recordEvent(ctx, cycle, "reassessment", fmt.Sprintf("task %s held open after reconsideration", task.ID))
	}
	return task.ID, outcome.Result
}

// resolveTask prefers the planner's chosen id and falls back to the next
// actionable task when the id does not resolve.
func (l *Loop) resolveTask(taskID string) (*plan.Task, string, error) {
	if taskID != "" {
		task, goal, err := l.planner.FindTask(taskID)
		if err != nil {
			return nil, "", err
		}
		if task != nil {
			return task, goal, nil
		}
	}
	task, goal, _, err := l.planner.NextTask()
	return task, goal, err
}

func (l *Loop) recordCycle(ctx context.Context, rec db.CycleRecord) {
	if l.metrics == nil {
		return
	}
	if err := l.metrics.RecordCycle(ctx, rec); err != nil {
		l.logger.Warn().Err(err).Int("cycle", rec.Cycle).Msg("record cycle metrics failed")
	}
	if l.opts.KeepLast > 0 && rec.Cycle%pruneEvery == 0 {
		if err := l.metrics.Prune(ctx, l.opts.KeepLast); err != nil {
			l.logger.Warn().Err(err).Msg("prune cycle metrics failed")
		}
	}
}

const pruneEvery = 50

func (l *Loop) recordEvent(ctx context.Context, cycle int, typ, message string) {
	if l.metrics == nil {
		return
	}
	if err := l.metrics.InsertEvent(ctx, db.Event{Cycle: cycle, Type: typ, Message: message}); err != nil {
		l.logger.Warn().Err(err).Str("type", typ).Msg("record event failed")
	}
}
