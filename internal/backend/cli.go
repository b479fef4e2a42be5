package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/metalagman/psyche/internal/config"
)

type agentSpec struct {
	extraFlags       []string
	systemPromptFlag string
}

var agentSpecs = map[string]agentSpec{
	"claude": {
		extraFlags:       []string{"--print", "--verbose", "--output-format", "stream-json", "--dangerously-skip-permissions"},
		systemPromptFlag: "--append-system-prompt",
	},
	"codex": {
		extraFlags: []string{"exec", "--full-auto", "--skip-git-repo-check"},
	},
	"gemini": {
		extraFlags: []string{"--output-format", "text", "--approval-mode", "yolo"},
	},
}

// CLIRunner spawns the backend as a subprocess and streams its stdout.
type CLIRunner struct {
	cfg  config.BackendConfig
	cmd  []string
	spec agentSpec
	info Info
}

// NewCLIRunner constructs a subprocess-backed runner.
func NewCLIRunner(cfg config.BackendConfig) (*CLIRunner, error) {
	var cmd []string
	var spec agentSpec

	if cfg.Type == "exec" {
		if len(cfg.Cmd) == 0 {
			return nil, fmt.Errorf("exec backend requires cmd")
		}
		cmd = cfg.Cmd
	} else {
		s, ok := agentSpecs[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
		}
		spec = s
		cmd = []string{cfg.Type}
		if cfg.Model != "" {
			cmd = append(cmd, "--model", cfg.Model)
		}
		cmd = append(cmd, s.extraFlags...)
	}

	return &CLIRunner{
		cfg:  cfg,
		cmd:  cmd,
		spec: spec,
		info: Info{Type: cfg.Type, Cmd: cmd, Model: cfg.Model},
	}, nil
}

// Describe returns invocation info.
func (r *CLIRunner) Describe() Info {
	return r.info
}

// Run spawns the subprocess, feeding the prompt on stdin and streaming stdout
// chunks to the invocation observer.
func (r *CLIRunner) Run(ctx context.Context, inv Invocation) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	argv := append([]string(nil), r.cmd...)
	message := inv.Message
	if inv.SystemPrompt != "" {
		if r.spec.systemPromptFlag != "" {
			argv = append(argv, r.spec.systemPromptFlag, inv.SystemPrompt)
		} else {
			// No dedicated flag: fold the system prompt into the message.
			message = "[System Instructions]\n" + inv.SystemPrompt + "\n\n[Request]\n" + inv.Message
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdin = strings.NewReader(message)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("start backend %s: %w", argv[0], err)
	}
	if inv.OnStart != nil {
		inv.OnStart(cmd.Process.Pid)
	}

	var stdout strings.Builder
	buf := make([]byte, 4096)
	for {
		n, readErr := stdoutPipe.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			stdout.WriteString(chunk)
			if inv.OnStdoutChunk != nil {
				inv.OnStdoutChunk(chunk)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrClosedPipe) {
				_ = cmd.Wait()
				return RunResult{}, fmt.Errorf("read backend stdout: %w", readErr)
			}
			break
		}
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return RunResult{Stderr: stderr.String()}, fmt.Errorf("wait for backend: %w", err)
		}
	}

	return RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
