package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/permission"
	"github.com/metalagman/psyche/internal/plan"
	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

// PlannerAction is the single move a planner turn selects.
type PlannerAction string

// Planner actions.
const (
	ActionDispatch    PlannerAction = "dispatch"
	ActionRewritePlan PlannerAction = "rewrite_plan"
	ActionLogEntry    PlannerAction = "log_entry"
	ActionIdle        PlannerAction = "idle"
)

// PlannerDecision is one planner turn's outcome.
type PlannerDecision struct {
	Action PlannerAction `json:"action"`
	TaskID string        `json:"task_id,omitempty"`
	Plan   string        `json:"plan,omitempty"`
	Entry  string        `json:"entry,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Planner reads the plan and decides what the society does this cycle. On any
// launch or parse failure it decides idle with the failure as reason; it
// never guesses a destructive action on uncertainty.
type Planner struct {
	store    *permission.Guarded
	launcher launcher
	opts     session.Options
	eval     plan.TriggerEvaluator
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPlanner constructs the planner role. The evaluator may be nil, in which
// case deferred tasks stay deferred.
func NewPlanner(store substrate.Store, l launcher, opts session.Options, eval plan.TriggerEvaluator) *Planner {
	return &Planner{
		store:    permission.Guard(permission.RolePlanner, store),
		launcher: l,
		opts:     opts,
		eval:     eval,
		logger:   logging.Component("planner"),
		now:      time.Now,
	}
}

// NextTask parses the plan fresh and returns the next actionable task, the
// current goal, and whether the plan holds any tasks at all.
func (p *Planner) NextTask() (*plan.Task, string, bool, error) {
	md, err := p.store.Read(substrate.FilePlan)
	if err != nil {
		return nil, "", false, err
	}
	tasks := plan.Parse(md)
	return plan.NextActionable(tasks, p.eval), plan.CurrentGoal(md), !plan.IsEmpty(tasks), nil
}

// FindTask resolves a task id against a fresh parse of the plan, together
// with the current goal. A nil task means the id does not exist.
func (p *Planner) FindTask(taskID string) (*plan.Task, string, error) {
	md, err := p.store.Read(substrate.FilePlan)
	if err != nil {
		return nil, "", err
	}
	return plan.Find(plan.Parse(md), taskID), plan.CurrentGoal(md), nil
}

// CompleteTask rewrites the plan with the identified task checked off.
func (p *Planner) CompleteTask(taskID string) error {
	md, err := p.store.Read(substrate.FilePlan)
	if err != nil {
		return err
	}
	updated, err := plan.MarkComplete(md, taskID)
	if err != nil {
		return err
	}
	if updated == md {
		return nil
	}
	return p.store.Write(substrate.FilePlan, updated)
}

// Decide runs one planner turn. User messages injected since the last turn
// and goals proposed by the drive generator are surfaced in the prompt.
func (p *Planner) Decide(ctx context.Context, cycle int, messages, driveGoals []string) PlannerDecision {
	idle := func(reason string) PlannerDecision {
		p.logger.Info().Int("cycle", cycle).Str("reason", reason).Msg("planner idling")
		return PlannerDecision{Action: ActionIdle, Reason: reason}
	}

	files, err := p.store.ReadAll()
	if err != nil {
		return idle(fmt.Sprintf("gather context: %v", err))
	}

	var b strings.Builder
	b.WriteString(contextSection(substrate.FilePlan, files[substrate.FilePlan]))
	b.WriteString(contextSection(substrate.FileDrives, files[substrate.FileDrives]))
	b.WriteString(contextSection(substrate.FileProgress, tail(files[substrate.FileProgress], 40)))
	b.WriteString(contextSection(substrate.FileConversation, tail(files[substrate.FileConversation], 40)))
	b.WriteString(contextSection(substrate.FileAudit, tail(files[substrate.FileAudit], 20)))
	if len(messages) > 0 {
		b.WriteString("### user messages\n")
		for _, m := range messages {
			b.WriteString("- " + m + "\n")
		}
	}
	if len(driveGoals) > 0 {
		b.WriteString("### proposed goals\n")
		for _, g := range driveGoals {
			b.WriteString("- " + g + "\n")
		}
	}
	if next, _, _, err := p.NextTask(); err == nil && next != nil {
		fmt.Fprintf(&b, "### next actionable task\n%s: %s\n", next.ID, next.Title)
	}

	res := p.launcher.Launch(ctx, session.Request{
		SystemPrompt: plannerPrompt(),
		Message:      b.String(),
	}, p.opts)
	if !res.Success {
		return idle(fmt.Sprintf("session launch failed: %s", res.Err))
	}

	var decision PlannerDecision
	if err := decodeReply(res.RawOutput, plannerSchema, &decision); err != nil {
		return idle(err.Error())
	}

	p.logger.Info().
		Int("cycle", cycle).
		Str("action", string(decision.Action)).
		Str("task_id", decision.TaskID).
		Dur("duration", res.Duration).
		Msg("planner decided")
	return decision
}

// Apply carries out the substrate effects of a decision. Dispatch is handled
// by the orchestrator, which owns the worker.
func (p *Planner) Apply(decision PlannerDecision) error {
	switch decision.Action {
	case ActionRewritePlan:
		if strings.TrimSpace(decision.Plan) == "" {
			return fmt.Errorf("rewrite_plan decision carries no plan text")
		}
		return p.store.Write(substrate.FilePlan, decision.Plan)
	case ActionLogEntry:
		if strings.TrimSpace(decision.Entry) == "" {
			return nil
		}
		entry := fmt.Sprintf("- %s planner: %s", logTimestamp(p.now()), decision.Entry)
		return p.store.Append(substrate.FileConversation, entry)
	default:
		return nil
	}
}

// ConsumeInbox reads pending user messages and clears the inbox, returning
// one message per non-empty line.
func (p *Planner) ConsumeInbox() ([]string, error) {
	content, err := p.store.Read(substrate.FileInbox)
	if err != nil {
		return nil, err
	}
	var messages []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			messages = append(messages, line)
		}
	}
	if len(messages) == 0 {
		return nil, nil
	}
	if err := p.store.Write(substrate.FileInbox, ""); err != nil {
		return nil, err
	}
	return messages, nil
}

// NoteDriveGoals records goals proposed by the drive generator so they
// survive until the planner adopts or discards them.
func (p *Planner) NoteDriveGoals(goals []string) error {
	if len(goals) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Proposed %s\n", logTimestamp(p.now()))
	for _, g := range goals {
		b.WriteString("- " + g + "\n")
	}
	return p.store.Write(substrate.FileDrives, b.String())
}
