package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/psyche/internal/backend"
)

// scriptedRunner replays one RunResult (or error) per invocation.
type scriptedRunner struct {
	calls   int
	results []backend.RunResult
	errs    []error
	pid     int
}

func (r *scriptedRunner) Run(ctx context.Context, inv backend.Invocation) (backend.RunResult, error) {
	i := r.calls
	r.calls++
	if r.pid != 0 && inv.OnStart != nil {
		inv.OnStart(r.pid)
	}
	res := r.results[i]
	if inv.OnStdoutChunk != nil && res.Stdout != "" {
		inv.OnStdoutChunk(res.Stdout)
	}
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return res, err
}

func (r *scriptedRunner) Describe() backend.Info {
	return backend.Info{Type: "exec"}
}

func newTestLauncher(r backend.Runner, observer func(Result)) *Launcher {
	l := NewLauncher(r, nil, observer)
	l.sleep = func(time.Duration) {}
	return l
}

func TestLaunchSucceedsFirstAttempt(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{{Stdout: `{"type":"result","result":"done","total_cost_usd":0.01}` + "\n"}},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{Message: "go"}, Options{MaxRetries: 3})
	assert.True(t, res.Success)
	assert.Equal(t, "done", res.RawOutput)
	assert.InDelta(t, 0.01, res.CostUSD, 1e-9)
	assert.Equal(t, 1, runner.calls, "success must not be retried")
}

func TestLaunchRetriesUntilSuccess(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{
			{ExitCode: 1, Stderr: "boom"},
			{ExitCode: 1, Stderr: "boom again"},
			{Stdout: `{"type":"result","result":"third time"}` + "\n"},
		},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{Message: "go"}, Options{MaxRetries: 3})
	assert.True(t, res.Success)
	assert.Equal(t, "third time", res.RawOutput)
	assert.Equal(t, 3, runner.calls)
}

func TestLaunchStopsAtMaxRetries(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{
			{ExitCode: 2, Stderr: "first"},
			{ExitCode: 2, Stderr: "second"},
			{Stdout: "never reached"},
		},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{Message: "go"}, Options{MaxRetries: 2})
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "second", res.Err)
	assert.Equal(t, 2, runner.calls, "exactly MaxRetries attempts")
}

func TestLaunchZeroRetriesMeansOneAttempt(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{{ExitCode: 1}},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{}, Options{MaxRetries: 0})
	assert.False(t, res.Success)
	assert.Equal(t, "backend exited with code 1", res.Err)
	assert.Equal(t, 1, runner.calls)
}

func TestLaunchTransportErrorYieldsFailureResult(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{{}},
		errs:    []error{errors.New("spawn failed")},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{}, Options{MaxRetries: 1})
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "spawn failed", res.Err)
}

func TestLaunchObserverSeesFinalResult(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{
			{ExitCode: 1, Stderr: "resets 7pm (UTC)"},
			{ExitCode: 1, Stderr: "resets 7pm (UTC)"},
		},
	}
	var observed []Result
	l := newTestLauncher(runner, func(r Result) { observed = append(observed, r) })

	res := l.Launch(context.Background(), Request{}, Options{MaxRetries: 2})
	assert.False(t, res.Success)
	require.Len(t, observed, 1, "observer sees the final result once per launch")
	assert.Equal(t, res, observed[0])
	assert.Contains(t, observed[0].Stderr, "resets 7pm (UTC)")
}

func TestLaunchFallsBackToPlainStdout(t *testing.T) {
	runner := &scriptedRunner{
		results: []backend.RunResult{{Stdout: "  plain text answer \n"}},
	}
	l := newTestLauncher(runner, nil)

	res := l.Launch(context.Background(), Request{}, Options{})
	assert.True(t, res.Success)
	assert.Equal(t, "plain text answer", res.RawOutput)
}
