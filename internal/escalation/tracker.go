package escalation

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/substrate"
)

// DefaultGapCeiling is the largest cycle gap between consecutive occurrences
// that still counts as "recurring". It distinguishes an issue recurring every
// audit from one that happened once, vanished and came back much later.
const DefaultGapCeiling = 50

// Info describes a finding's escalation state.
type Info struct {
	Signature  string   `json:"signature"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Cycles     []int    `json:"cycles"`
	FirstCycle int      `json:"first_cycle"`
	LastCycle  int      `json:"last_cycle"`
}

// Tracker records finding occurrences by signature and decides when a
// recurring finding should escalate. State is durable JSON on disk; a missing
// or unreadable file degrades to an empty history, never a startup failure.
type Tracker struct {
	mu         sync.Mutex
	path       string
	gapCeiling int
	history    map[string][]int
	logger     zerolog.Logger
}

// NewTracker loads (or initializes) the tracker persisted at path. A
// gapCeiling below 1 selects the default.
func NewTracker(path string, gapCeiling int) *Tracker {
	if gapCeiling < 1 {
		gapCeiling = DefaultGapCeiling
	}
	t := &Tracker{
		path:       path,
		gapCeiling: gapCeiling,
		history:    make(map[string][]int),
		logger:     logging.Component("escalation"),
	}
	t.load()
	return t
}

// Track records one occurrence of f at the given cycle and reports whether it
// should escalate now: critical severity, at least three occurrences, and the
// three most recent ones no further apart than the gap ceiling. Callers are
// expected to Clear the signature after acting on an escalation so the same
// occurrences cannot escalate twice.
func (t *Tracker) Track(f Finding, cycle int) bool {
	if f.Severity != SeverityCritical {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sig := Signature(f)
	t.history[sig] = append(t.history[sig], cycle)
	t.save()

	h := t.history[sig]
	if len(h) < 3 {
		return false
	}
	recent := append([]int(nil), h[len(h)-3:]...)
	sort.Ints(recent)
	return recent[1]-recent[0] <= t.gapCeiling && recent[2]-recent[1] <= t.gapCeiling
}

// EscalationInfo returns the recorded state for f, or nil when f has no
// history.
func (t *Tracker) EscalationInfo(f Finding) *Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	sig := Signature(f)
	h := t.history[sig]
	if len(h) == 0 {
		return nil
	}
	cycles := append([]int(nil), h...)
	return &Info{
		Signature:  sig,
		Severity:   f.Severity,
		Message:    f.Message,
		Cycles:     cycles,
		FirstCycle: cycles[0],
		LastCycle:  cycles[len(cycles)-1],
	}
}

// Clear forgets a signature's history. A future occurrence restarts counting
// from zero.
func (t *Tracker) Clear(signature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, signature)
	t.save()
}

// Len reports how many signatures are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn().Err(err).Str("path", t.path).Msg("read escalation state, starting empty")
		}
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.logger.Warn().Err(err).Str("path", t.path).Msg("corrupt escalation state, starting empty")
		return
	}

	// Well-formed JSON of the wrong shape (non-numeric entries) is treated as
	// empty without complaint.
	history := make(map[string][]int, len(raw))
	for sig, v := range raw {
		items, ok := v.([]any)
		if !ok {
			return
		}
		cycles := make([]int, 0, len(items))
		for _, item := range items {
			n, ok := item.(float64)
			if !ok {
				return
			}
			cycles = append(cycles, int(n))
		}
		history[sig] = cycles
	}
	t.history = history
}

// save persists the history atomically. Called with the mutex held.
func (t *Tracker) save() {
	data, err := json.MarshalIndent(t.history, "", "  ")
	if err != nil {
		t.logger.Error().Err(err).Msg("encode escalation state")
		return
	}
	if err := substrate.AtomicWriteFile(t.path, data); err != nil {
		t.logger.Error().Err(err).Str("path", t.path).Msg("persist escalation state")
	}
}
