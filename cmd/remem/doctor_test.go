package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/remem/internal/config"
)

func TestCheckDataDirWritablePass(t *testing.T) {
	cfg := config.Config{HomeDir: t.TempDir()}
	r := checkDataDirWritable(cfg)
	if r.Status != "PASS" {
		t.Fatalf("expected PASS, got %+v", r)
	}
}

func TestCheckDataDirWritableFail(t *testing.T) {
	cfg := config.Config{HomeDir: filepath.Join(t.TempDir(), "does", "not", "exist")}
	r := checkDataDirWritable(cfg)
	if r.Status != "FAIL" {
		t.Fatalf("expected FAIL for a nonexistent directory, got %+v", r)
	}
}

func TestCheckDatabasePass(t *testing.T) {
	cfg := config.Config{HomeDir: t.TempDir()}
	r := checkDatabase(context.Background(), cfg)
	if r.Status != "PASS" {
		t.Fatalf("expected PASS, got %+v", r)
	}
}

func TestCheckEnvironmentRedactsSecretLookingKeys(t *testing.T) {
	t.Setenv("REMEM_API_KEY", "sk-super-secret")
	t.Setenv("REMEM_EXECUTOR", "http")

	r := checkEnvironment()
	if r.Status != "PASS" {
		t.Fatalf("expected PASS, got %+v", r)
	}
	if strings.Contains(r.Message, "sk-super-secret") {
		t.Fatalf("expected REMEM_API_KEY value to be redacted, got %q", r.Message)
	}
	if !strings.Contains(r.Message, "REMEM_EXECUTOR=http") {
		t.Fatalf("expected non-secret REMEM_EXECUTOR to appear verbatim, got %q", r.Message)
	}
}

func TestCheckExecutorModes(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	cases := []struct {
		cfg    config.Config
		status string
	}{
		{config.Config{Executor: "http", APIKey: "sk-test"}, "PASS"},
		{config.Config{Executor: "http"}, "FAIL"},
		{config.Config{Executor: "cli", CLIPath: "/usr/bin/claude"}, "PASS"},
		{config.Config{Executor: "bogus"}, "FAIL"},
	}
	for _, c := range cases {
		r := checkExecutor(c.cfg)
		if r.Status != c.status {
			t.Fatalf("executor=%q apiKey=%q cliPath=%q: expected %s, got %+v", c.cfg.Executor, c.cfg.APIKey, c.cfg.CLIPath, c.status, r)
		}
	}
}
