// Package backend invokes the external reasoning backend, either as a spawned
// CLI subprocess or as a request to a local OpenAI-compatible model server.
// One Run call corresponds to exactly one launch attempt; retry policy lives
// in the session layer.
package backend

import (
	"context"
	"fmt"

	"github.com/metalagman/psyche/internal/config"
)

// Invocation is one backend call.
type Invocation struct {
	SystemPrompt string
	Message      string
	Dir          string

	// OnStdoutChunk receives incremental stdout as it arrives, before the
	// process exits. Used by the session layer's streaming parser.
	OnStdoutChunk func(chunk string)

	// OnStart receives the subprocess pid as soon as it is known, so the
	// process supervisor can begin tracking it. HTTP backends never call it.
	OnStart func(pid int)
}

// RunResult is the raw outcome of one attempt. A non-zero exit code is a
// result, not an error; errors are reserved for transport failures where the
// backend never produced an exit status.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes backend invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (RunResult, error)
	Describe() Info
}

// Info describes how a backend is invoked.
type Info struct {
	Type  string
	Cmd   []string
	Model string
}

// New constructs a runner for the given backend config.
func New(cfg config.BackendConfig) (Runner, error) {
	switch cfg.Type {
	case "openai":
		return NewHTTPRunner(cfg)
	case "claude", "codex", "gemini", "exec":
		return NewCLIRunner(cfg)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
