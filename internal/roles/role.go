package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

// launcher is the slice of the session layer a role needs. Satisfied by
// *session.Launcher.
type launcher interface {
	Launch(ctx context.Context, req session.Request, opts session.Options) session.Result
}

// contextSection renders one substrate file as a prompt section, flagging
// empty documents explicitly so the model does not invent contents.
func contextSection(name substrate.FileType, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", name)
	content = strings.TrimSpace(content)
	if content == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// tail returns at most n trailing lines of a log-shaped document, so prompts
// stay bounded as append-only files grow.
func tail(content string, n int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= n {
		return content
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// logTimestamp formats entries appended to substrate logs.
func logTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
