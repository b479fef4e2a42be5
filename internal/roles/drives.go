package roles

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/permission"
	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

// Drives is the idle-detection role: when the plan has nothing actionable it
// proposes fresh goals. It is read-only and failure-proof: any launch or
// parse failure yields an empty goal list, because idleness detection must
// never be the thing that crashes the loop.
type Drives struct {
	store    *permission.Guarded
	launcher launcher
	opts     session.Options
	logger   zerolog.Logger
}

// NewDrives constructs the drive generator role.
func NewDrives(store substrate.Store, l launcher, opts session.Options) *Drives {
	return &Drives{
		store:    permission.Guard(permission.RoleDrives, store),
		launcher: l,
		opts:     opts,
		logger:   logging.Component("drives"),
	}
}

// ProposeGoals runs one drive-generator turn.
func (d *Drives) ProposeGoals(ctx context.Context) []string {
	files, err := d.store.ReadAll()
	if err != nil {
		d.logger.Warn().Err(err).Msg("gather drives context failed, proposing nothing")
		return nil
	}

	var b strings.Builder
	b.WriteString(contextSection(substrate.FilePlan, files[substrate.FilePlan]))
	b.WriteString(contextSection(substrate.FileDrives, files[substrate.FileDrives]))
	b.WriteString(contextSection(substrate.FileProgress, tail(files[substrate.FileProgress], 40)))

	res := d.launcher.Launch(ctx, session.Request{
		SystemPrompt: drivesPrompt(),
		Message:      b.String(),
	}, d.opts)
	if !res.Success {
		d.logger.Warn().Str("error", res.Err).Msg("drives launch failed, proposing nothing")
		return nil
	}

	var reply struct {
		Goals []string `json:"goals"`
	}
	if err := decodeReply(res.RawOutput, drivesSchema, &reply); err != nil {
		d.logger.Warn().Err(err).Msg("drives reply unusable, proposing nothing")
		return nil
	}

	goals := make([]string, 0, len(reply.Goals))
	for _, g := range reply.Goals {
		if g = strings.TrimSpace(g); g != "" {
			goals = append(goals, g)
		}
	}
	d.logger.Info().Int("goals", len(goals)).Msg("drives proposed goals")
	return goals
}
