package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
)

// fakeLauncher replays one canned result per Launch call, recording requests.
type fakeLauncher struct {
	results  []session.Result
	requests []session.Request
}

func (f *fakeLauncher) Launch(ctx context.Context, req session.Request, opts session.Options) session.Result {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func ok(raw string) session.Result {
	return session.Result{Success: true, RawOutput: raw, ExitCode: 0}
}

func failed(errMsg string) session.Result {
	return session.Result{Success: false, Err: errMsg, ExitCode: 1}
}

func newStore(t *testing.T) *substrate.Dir {
	t.Helper()
	dir, err := substrate.NewDir(t.TempDir())
	require.NoError(t, err)
	return dir
}
