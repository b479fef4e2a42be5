package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/escalation"
	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/permission"
	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

// ProposalDecision is the auditor's verdict on one pending proposal.
type ProposalDecision struct {
	Target   string `json:"target"`
	Content  string `json:"content,omitempty"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// AuditReport is one auditor turn's outcome. Findings that escalated are
// removed from Findings and reported separately.
type AuditReport struct {
	Findings  []escalation.Finding `json:"findings"`
	Approvals []ProposalDecision   `json:"approvals,omitempty"`
	Escalated []escalation.Info    `json:"-"`
}

type auditorReply struct {
	Findings  []escalation.Finding `json:"findings"`
	Approvals []ProposalDecision   `json:"approvals"`
}

// Auditor reviews the substrate, routes recurring critical findings through
// the escalation tracker, and decides pending proposals.
type Auditor struct {
	store    *permission.Guarded
	launcher launcher
	opts     session.Options
	tracker  *escalation.Tracker
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAuditor constructs the auditor role. The tracker may be nil; ad hoc
// audits then skip escalation entirely.
func NewAuditor(store substrate.Store, l launcher, opts session.Options, tracker *escalation.Tracker) *Auditor {
	return &Auditor{
		store:    permission.Guard(permission.RoleAuditor, store),
		launcher: l,
		opts:     opts,
		tracker:  tracker,
		logger:   logging.Component("auditor"),
		now:      time.Now,
	}
}

// Audit runs one auditor turn. A cycle below zero, or a nil tracker, skips
// escalation tracking while still reporting findings.
func (a *Auditor) Audit(ctx context.Context, cycle int) (AuditReport, error) {
	files, err := a.store.ReadAll()
	if err != nil {
		return AuditReport{}, fmt.Errorf("gather audit context: %w", err)
	}

	var b strings.Builder
	for _, f := range permission.Readable(permission.RoleAuditor) {
		content := files[f]
		switch f {
		case substrate.FileProgress, substrate.FileConversation, substrate.FileAudit:
			content = tail(content, 60)
		}
		b.WriteString(contextSection(f, content))
	}

	res := a.launcher.Launch(ctx, session.Request{
		SystemPrompt: auditorPrompt(),
		Message:      b.String(),
	}, a.opts)
	if !res.Success {
		return AuditReport{}, fmt.Errorf("audit session launch failed: %s", res.Err)
	}

	var reply auditorReply
	if err := decodeReply(res.RawOutput, auditorSchema, &reply); err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{Approvals: reply.Approvals}
	for _, finding := range reply.Findings {
		if a.tracker != nil && cycle >= 0 && a.tracker.Track(finding, cycle) {
			info := a.tracker.EscalationInfo(finding)
			if info == nil {
				// Cleared concurrently; treat as a normal finding.
				report.Findings = append(report.Findings, finding)
				continue
			}
			if err := a.escalate(*info); err != nil {
				return report, err
			}
			a.tracker.Clear(info.Signature)
			report.Escalated = append(report.Escalated, *info)
			continue
		}
		report.Findings = append(report.Findings, finding)
	}

	if err := a.recordFindings(cycle, report.Findings); err != nil {
		return report, err
	}
	if err := a.applyApprovals(report.Approvals); err != nil {
		return report, err
	}

	a.logger.Info().
		Int("cycle", cycle).
		Int("findings", len(report.Findings)).
		Int("escalated", len(report.Escalated)).
		Int("approvals", len(report.Approvals)).
		Dur("duration", res.Duration).
		Msg("audit finished")
	return report, nil
}

// escalate appends the structured notice to the escalation channel and a
// short note to the audit log.
func (a *Auditor) escalate(info escalation.Info) error {
	notice, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode escalation notice: %w", err)
	}
	if err := a.store.Append(substrate.FileEscalations, string(notice)); err != nil {
		return err
	}
	note := fmt.Sprintf("- %s ESCALATED %s (cycles %d-%d, %dx): %s",
		logTimestamp(a.now()), info.Signature, info.FirstCycle, info.LastCycle, len(info.Cycles), info.Message)
	return a.store.Append(substrate.FileAudit, note)
}

func (a *Auditor) recordFindings(cycle int, findings []escalation.Finding) error {
	for _, f := range findings {
		entry := fmt.Sprintf("- %s cycle=%d %s: %s", logTimestamp(a.now()), cycle, f.Severity, f.Message)
		if err := a.store.Append(substrate.FileAudit, entry); err != nil {
			return err
		}
	}
	return nil
}

// applyApprovals writes approved proposals to their targets and logs
// rejections with the stated reason. Targets outside the auditor's write
// grants are rejected rather than tripping the permission assertion on model
// output.
func (a *Auditor) applyApprovals(decisions []ProposalDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	for _, d := range decisions {
		ft := substrate.FileType(d.Target)
		switch {
		case !d.Approved:
			entry := fmt.Sprintf("- %s proposal for %s rejected: %s", logTimestamp(a.now()), d.Target, d.Reason)
			if err := a.store.Append(substrate.FileAudit, entry); err != nil {
				return err
			}
		case !ft.Valid() || !permission.CanWrite(permission.RoleAuditor, ft):
			entry := fmt.Sprintf("- %s proposal for %s not applied: target not writable by auditor", logTimestamp(a.now()), d.Target)
			if err := a.store.Append(substrate.FileAudit, entry); err != nil {
				return err
			}
		default:
			if err := a.store.Write(ft, d.Content); err != nil {
				return err
			}
			entry := fmt.Sprintf("- %s proposal for %s applied", logTimestamp(a.now()), d.Target)
			if err := a.store.Append(substrate.FileAudit, entry); err != nil {
				return err
			}
		}
	}
	// All pending proposals were decided this turn.
	return a.store.Write(substrate.FileProposals, "")
}
