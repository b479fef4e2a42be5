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

// Worker result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Proposal is a change to a file the proposing role cannot write itself.
type Proposal struct {
	Target  string `json:"target"`
	Content string `json:"content"`
	Reason  string `json:"reason,omitempty"`
}

// Reconsideration is the worker's self-score of just-completed work. It is
// untrusted input: the hard consistency rules applied on top of it live in
// code, not in the model.
type Reconsideration struct {
	MetIntent    bool   `json:"met_intent"`
	QualityScore int    `json:"quality_score"`
	Notes        string `json:"notes,omitempty"`
}

// WorkerOutcome is one worker turn's result.
type WorkerOutcome struct {
	Result        string            `json:"result"`
	Summary       string            `json:"summary"`
	ProgressEntry string            `json:"progress_entry,omitempty"`
	FileUpdates   map[string]string `json:"file_updates,omitempty"`
	Proposals     []Proposal        `json:"proposals,omitempty"`

	// Filled by the reconsideration pass; not part of the model reply.
	Reconsidered      *Reconsideration `json:"-"`
	NeedsReassessment bool             `json:"-"`
}

// Worker executes one dispatched task per turn. A launch failure or an
// unparseable reply yields a failure outcome embedding the cause; the task is
// never silently dropped.
type Worker struct {
	store      *permission.Guarded
	launcher   launcher
	opts       session.Options
	reconsider bool
	threshold  int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewWorker constructs the worker role. threshold is the quality score below
// which a claimed-successful turn is forced into reassessment.
func NewWorker(store substrate.Store, l launcher, opts session.Options, reconsider bool, threshold int) *Worker {
	return &Worker{
		store:      permission.Guard(permission.RoleWorker, store),
		launcher:   l,
		opts:       opts,
		reconsider: reconsider,
		threshold:  threshold,
		logger:     logging.Component("worker"),
		now:        time.Now,
	}
}

// Execute runs one worker turn against the dispatched task.
func (w *Worker) Execute(ctx context.Context, task *plan.Task, goal string) WorkerOutcome {
	failure := func(cause string) WorkerOutcome {
		w.logger.Warn().Str("task_id", task.ID).Str("cause", cause).Msg("worker turn failed")
		return WorkerOutcome{
			Result:  ResultFailure,
			Summary: fmt.Sprintf("task %s not completed: %s", task.ID, cause),
		}
	}

	files, err := w.store.ReadAll()
	if err != nil {
		return failure(fmt.Sprintf("gather context: %v", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### dispatched task\n%s: %s\n", task.ID, task.Title)
	if goal != "" {
		fmt.Fprintf(&b, "### current goal\n%s\n", goal)
	}
	b.WriteString(contextSection(substrate.FilePlan, files[substrate.FilePlan]))
	b.WriteString(contextSection(substrate.FileProgress, tail(files[substrate.FileProgress], 40)))
	b.WriteString(contextSection(substrate.FileConversation, tail(files[substrate.FileConversation], 20)))

	res := w.launcher.Launch(ctx, session.Request{
		SystemPrompt: workerPrompt(),
		Message:      b.String(),
	}, w.opts)
	if !res.Success {
		return failure(fmt.Sprintf("session launch failed: %s", res.Err))
	}

	var outcome WorkerOutcome
	if err := decodeReply(res.RawOutput, workerSchema, &outcome); err != nil {
		return failure(err.Error())
	}

	if err := w.apply(task, &outcome); err != nil {
		return failure(fmt.Sprintf("apply outcome: %v", err))
	}

	if w.reconsider && outcome.Result == ResultSuccess {
		w.reconsiderOutcome(ctx, task, &outcome)
	}

	w.logger.Info().
		Str("task_id", task.ID).
		Str("result", outcome.Result).
		Bool("needs_reassessment", outcome.NeedsReassessment).
		Dur("duration", res.Duration).
		Msg("worker turn finished")
	return outcome
}

// apply writes the turn's substrate effects: the progress entry, permitted
// file updates, and proposals for everything the worker may not touch.
func (w *Worker) apply(task *plan.Task, outcome *WorkerOutcome) error {
	if strings.TrimSpace(outcome.ProgressEntry) != "" {
		entry := fmt.Sprintf("- %s %s: %s", logTimestamp(w.now()), task.ID, outcome.ProgressEntry)
		if err := w.store.Append(substrate.FileProgress, entry); err != nil {
			return err
		}
	}

	for name, content := range outcome.FileUpdates {
		ft := substrate.FileType(name)
		if !ft.Valid() {
			w.logger.Warn().Str("file", name).Msg("worker update targets unknown file, skipping")
			continue
		}
		if !permission.CanWrite(permission.RoleWorker, ft) {
			// Restricted file: route through the proposal channel instead of
			// tripping the permission assertion on model output.
			outcome.Proposals = append(outcome.Proposals, Proposal{
				Target:  name,
				Content: content,
				Reason:  fmt.Sprintf("worker update for %s from task %s", name, task.ID),
			})
			continue
		}
		if err := w.store.Write(ft, content); err != nil {
			return err
		}
	}

	for _, proposal := range outcome.Proposals {
		entry := fmt.Sprintf("- %s %s target=%s reason=%q\n```\n%s\n```",
			logTimestamp(w.now()), task.ID, proposal.Target, proposal.Reason, proposal.Content)
		if err := w.store.Append(substrate.FileProposals, entry); err != nil {
			return err
		}
	}
	return nil
}

// reconsiderOutcome runs the optional self-score pass and applies the hard
// consistency rules: a zero quality score always forces reassessment, and a
// claim of met intent paired with a score below the threshold always forces
// reassessment.
func (w *Worker) reconsiderOutcome(ctx context.Context, task *plan.Task, outcome *WorkerOutcome) {
	var b strings.Builder
	fmt.Fprintf(&b, "### task\n%s: %s\n", task.ID, task.Title)
	fmt.Fprintf(&b, "### reported result\n%s\n", outcome.Result)
	fmt.Fprintf(&b, "### reported summary\n%s\n", outcome.Summary)

	res := w.launcher.Launch(ctx, session.Request{
		SystemPrompt: reconsiderPrompt(),
		Message:      b.String(),
	}, w.opts)
	if !res.Success {
		w.logger.Warn().Str("task_id", task.ID).Str("error", res.Err).Msg("reconsideration launch failed, keeping outcome")
		return
	}

	var rec Reconsideration
	if err := decodeReply(res.RawOutput, reconsiderSchema, &rec); err != nil {
		w.logger.Warn().Str("task_id", task.ID).Err(err).Msg("reconsideration reply unusable, keeping outcome")
		return
	}

	outcome.Reconsidered = &rec
	if rec.QualityScore == 0 {
		outcome.NeedsReassessment = true
	}
	if rec.MetIntent && rec.QualityScore < w.threshold {
		outcome.NeedsReassessment = true
	}
}
