package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

// Usage reports the token accounting for one completion call; callers
// store InputTokens+OutputTokens as the discovery cost of what it produced.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Executor is the black-box LM completion call every other component
// depends on: give it a model id and a prompt, get back text. Mirrors
// the teacher's Brain interface shape (internal/engine/brain.go) but
// collapses Respond/Stream into a single blocking call, since nothing
// in this system streams a response to a terminal.
type Executor interface {
	Complete(ctx context.Context, model, prompt string) (text string, usage Usage, err error)
}

// Options configures the executors NewExecutor builds.
type Options struct {
	Mode    string // "auto", "http", "cli"
	APIKey  string
	BaseURL string
	CLIPath string
}

// NewExecutor selects an Executor implementation from opts.Mode. "auto"
// tries the HTTP client first and falls back to the CLI subprocess on
// any error; "http" and "cli" use exactly one path and surface its
// errors directly.
func NewExecutor(opts Options) Executor {
	httpExec := &httpExecutor{apiKey: opts.APIKey, baseURL: opts.BaseURL}
	cliExec := &cliExecutor{path: opts.CLIPath}

	switch opts.Mode {
	case "http":
		return httpExec
	case "cli":
		return cliExec
	default:
		return &autoExecutor{http: httpExec, cli: cliExec}
	}
}

// autoExecutor tries HTTP first and falls back to the CLI subprocess
// on any failure, per the degraded-mode behavior of spec.md §6: a
// missing API key or network outage should not stop memory capture
// from working when a local CLI is available.
type autoExecutor struct {
	http Executor
	cli  Executor
}

func (a *autoExecutor) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	text, usage, err := a.http.Complete(ctx, model, prompt)
	if err == nil {
		return text, usage, nil
	}
	return a.cli.Complete(ctx, model, prompt)
}

// httpExecutor dispatches to the Anthropic or OpenAI SDK based on the
// model id shape: "claude-" prefixed ids go to anthropic-sdk-go,
// everything else goes to openai-go (covers OpenAI models and any
// OpenAI-compatible gateway reachable via baseURL).
type httpExecutor struct {
	apiKey  string
	baseURL string
}

func (h *httpExecutor) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	if strings.HasPrefix(model, "claude-") {
		return h.completeAnthropic(ctx, model, prompt)
	}
	return h.completeOpenAI(ctx, model, prompt)
}

func (h *httpExecutor) completeAnthropic(ctx context.Context, model, prompt string) (string, Usage, error) {
	opts := []option.RequestOption{option.WithAPIKey(h.apiKey)}
	if h.baseURL != "" {
		opts = append(opts, option.WithBaseURL(h.baseURL))
	}
	client := anthropic.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

func (h *httpExecutor) completeOpenAI(ctx context.Context, model, prompt string) (string, Usage, error) {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(h.apiKey)}
	if h.baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(h.baseURL))
	}
	client := openai.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("openai completion: empty choices")
	}
	return resp.Choices[0].Message.Content, Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// cliExecutor spawns the configured CLI binary with the prompt on
// stdin and reads its stdout as the completion text. Grounded on the
// teacher's os/exec idiom in cmd/goclaw/main.go (execCommand/
// newExecCommand): a thin wrapper so the spawn call itself can be
// substituted in tests.
type cliExecutor struct {
	path    string
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func (c *cliExecutor) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	path := c.path
	if path == "" {
		path = "claude"
	}
	spawn := c.command
	if spawn == nil {
		spawn = exec.CommandContext
	}

	cmd := spawn(ctx, path, "--model", model, "-p")
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", Usage{}, fmt.Errorf("cli completion (%s): %w: %s", path, err, stderr.String())
	}

	text := strings.TrimSpace(stdout.String())
	return text, Usage{
		InputTokens:  int64(EstimateTokens(prompt)),
		OutputTokens: int64(EstimateTokens(text)),
	}, nil
}
