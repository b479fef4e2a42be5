package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/metalagman/psyche/internal/config"
)

const defaultAPIKeyEnv = "OPENAI_API_KEY"

// HTTPRunner calls an OpenAI-compatible model server, typically one running
// locally. Replies are normalized into a single result event line so the
// session layer parses both transports identically.
type HTTPRunner struct {
	cfg    config.BackendConfig
	client openai.Client
	info   Info
}

// NewHTTPRunner constructs an HTTP-backed runner.
func NewHTTPRunner(cfg config.BackendConfig) (*HTTPRunner, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openai backend requires model")
	}

	envKey := strings.TrimSpace(cfg.APIKeyEnv)
	if envKey == "" {
		envKey = defaultAPIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(envKey))
	if apiKey == "" {
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai api key is required (set %s or base_url for a local server)", envKey)
		}
		// Local servers accept any token.
		apiKey = "psyche-local"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(cfg.Timeout()),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &HTTPRunner{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		info:   Info{Type: cfg.Type, Model: model},
	}, nil
}

// Describe returns invocation info.
func (r *HTTPRunner) Describe() Info {
	return r.info
}

// Run executes a single Responses API request.
func (r *HTTPRunner) Run(ctx context.Context, inv Invocation) (RunResult, error) {
	resp, err := r.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        r.cfg.Model,
		Instructions: openai.String(inv.SystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(inv.Message),
		},
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("model server responses.create: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return RunResult{Stderr: msg, ExitCode: 1}, nil
	}

	text := strings.TrimSpace(resp.OutputText())
	line, err := json.Marshal(map[string]any{"type": "result", "result": text})
	if err != nil {
		return RunResult{}, fmt.Errorf("encode result event: %w", err)
	}
	stdout := string(line) + "\n"
	if inv.OnStdoutChunk != nil {
		inv.OnStdoutChunk(stdout)
	}

	return RunResult{Stdout: stdout}, nil
}
