package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/metalagman/psyche/internal/backend"
	"github.com/metalagman/psyche/internal/logging"
	"github.com/metalagman/psyche/internal/procwatch"
)

// Request is one role turn's prompt.
type Request struct {
	SystemPrompt string
	Message      string
}

// Options control a single launch.
type Options struct {
	// MaxRetries is the total number of attempts; values below 1 mean one
	// attempt, i.e. no retry.
	MaxRetries int
	// RetryDelay is slept between attempts, never before the first.
	RetryDelay time.Duration
	Dir        string
	OnLogEntry func(Entry)
}

// Result is the outcome of the final attempt of a launch. One Result exists
// per attempt; retrying launches discard all but the last.
type Result struct {
	RawOutput string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Success   bool
	Err       string
	CostUSD   float64
}

// Launcher runs backend invocations with retry and streaming parse. Attempts
// are strictly sequential.
type Launcher struct {
	backend  backend.Runner
	watcher  *procwatch.Supervisor
	observer func(Result)
	logger   zerolog.Logger
	sleep    func(time.Duration)
}

// NewLauncher constructs a launcher. The supervisor and observer may be nil;
// the observer sees every attempt's result and is how the orchestrator
// detects rate-limit windows without coupling this layer to loop control.
func NewLauncher(b backend.Runner, watcher *procwatch.Supervisor, observer func(Result)) *Launcher {
	return &Launcher{
		backend:  b,
		watcher:  watcher,
		observer: observer,
		logger:   logging.Component("session"),
		sleep:    time.Sleep,
	}
}

// Launch runs up to MaxRetries attempts and returns the first success or the
// last failure.
func (l *Launcher) Launch(ctx context.Context, req Request, opts Options) Result {
	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var res Result
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			l.sleep(delay)
		}
		res = l.attempt(ctx, req, opts)
		if res.Success {
			break
		}
		l.logger.Warn().
			Int("attempt", attempt).
			Int("max_retries", attempts).
			Int("exit_code", res.ExitCode).
			Str("error", res.Err).
			Msg("session attempt failed")
	}

	if l.observer != nil {
		l.observer(res)
	}
	return res
}

func (l *Launcher) attempt(ctx context.Context, req Request, opts Options) Result {
	parser := NewStreamParser(opts.OnLogEntry)
	started := time.Now()

	var pid int
	out, err := l.backend.Run(ctx, backend.Invocation{
		SystemPrompt:  req.SystemPrompt,
		Message:       req.Message,
		Dir:           opts.Dir,
		OnStdoutChunk: parser.Feed,
		OnStart: func(p int) {
			pid = p
			if l.watcher != nil {
				l.watcher.Register(p)
			}
		},
	})
	parser.Flush()
	duration := time.Since(started)

	if err != nil {
		// Transport failure: the child, if one was spawned, may still be
		// lingering. Hand it to the reaper rather than assuming it exited.
		if pid != 0 && l.watcher != nil {
			l.watcher.Abandon(pid)
		}
		return Result{
			ExitCode: -1,
			Duration: duration,
			Err:      err.Error(),
		}
	}
	if pid != 0 && l.watcher != nil {
		l.watcher.OnExit(pid)
	}

	raw := parser.FinalText()
	if raw == "" {
		// Plain-text backends produce no parseable events.
		raw = strings.TrimSpace(out.Stdout)
	}

	res := Result{
		RawOutput: raw,
		Stderr:    out.Stderr,
		ExitCode:  out.ExitCode,
		Duration:  duration,
		Success:   out.ExitCode == 0,
		CostUSD:   parser.CostUSD(),
	}
	if !res.Success {
		res.Err = strings.TrimSpace(out.Stderr)
		if res.Err == "" {
			res.Err = fmt.Sprintf("backend exited with code %d", out.ExitCode)
		}
	}
	return res
}
