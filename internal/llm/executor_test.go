package llm

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

type stubExecutor struct {
	text  string
	usage Usage
	err   error
}

func (s *stubExecutor) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	return s.text, s.usage, s.err
}

func TestAutoExecutorPrefersHTTP(t *testing.T) {
	a := &autoExecutor{
		http: &stubExecutor{text: "from http"},
		cli:  &stubExecutor{text: "from cli"},
	}
	text, _, err := a.Complete(context.Background(), "claude-haiku-4-5-20251001", "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "from http" {
		t.Fatalf("expected http response, got %q", text)
	}
}

func TestAutoExecutorFallsBackToCLIOnError(t *testing.T) {
	a := &autoExecutor{
		http: &stubExecutor{err: errors.New("network down")},
		cli:  &stubExecutor{text: "from cli"},
	}
	text, _, err := a.Complete(context.Background(), "claude-haiku-4-5-20251001", "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "from cli" {
		t.Fatalf("expected cli fallback, got %q", text)
	}
}

func TestAutoExecutorSurfacesCLIErrorWhenBothFail(t *testing.T) {
	a := &autoExecutor{
		http: &stubExecutor{err: errors.New("network down")},
		cli:  &stubExecutor{err: errors.New("cli missing")},
	}
	_, _, err := a.Complete(context.Background(), "claude-haiku-4-5-20251001", "hi")
	if err == nil {
		t.Fatal("expected error when both executors fail")
	}
}

func TestNewExecutorModeSelection(t *testing.T) {
	if _, ok := NewExecutor(Options{Mode: "http"}).(*httpExecutor); !ok {
		t.Fatal("mode http should select httpExecutor")
	}
	if _, ok := NewExecutor(Options{Mode: "cli"}).(*cliExecutor); !ok {
		t.Fatal("mode cli should select cliExecutor")
	}
	if _, ok := NewExecutor(Options{Mode: "auto"}).(*autoExecutor); !ok {
		t.Fatal("mode auto should select autoExecutor")
	}
	if _, ok := NewExecutor(Options{Mode: ""}).(*autoExecutor); !ok {
		t.Fatal("empty mode should default to autoExecutor")
	}
}

// fakeCLISuccess and fakeCLIFailure build fake command injection funcs
// that run `echo` and `false` instead of spawning a real CLI.
func fakeCLISuccess() func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "echo", "fake cli reply")
	}
}

func fakeCLIFailure() func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	}
}

func TestCLIExecutorRunsConfiguredBinary(t *testing.T) {
	c := &cliExecutor{path: "claude", command: fakeCLISuccess()}
	text, usage, err := c.Complete(context.Background(), "claude-haiku-4-5-20251001", "summarize this")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if strings.TrimSpace(text) != "fake cli reply" {
		t.Fatalf("unexpected cli output: %q", text)
	}
	if usage.InputTokens == 0 {
		t.Fatal("expected non-zero estimated input tokens")
	}
}

func TestCLIExecutorReturnsErrorOnNonZeroExit(t *testing.T) {
	c := &cliExecutor{path: "claude", command: fakeCLIFailure()}
	if _, _, err := c.Complete(context.Background(), "claude-haiku-4-5-20251001", "hi"); err == nil {
		t.Fatal("expected error on nonzero exit")
	}
}

func TestCLIExecutorDefaultsPathWhenUnset(t *testing.T) {
	c := &cliExecutor{command: fakeCLISuccess()}
	if _, _, err := c.Complete(context.Background(), "claude-haiku-4-5-20251001", "hi"); err != nil {
		t.Fatalf("complete: %v", err)
	}
}
