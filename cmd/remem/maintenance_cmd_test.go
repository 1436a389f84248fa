package main

import (
	"context"
	"testing"
)

func TestCleanupCommandRunsAgainstFreshStore(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REMEM_HOME", home)

	if code := runCleanupCommand(context.Background(), nil); code != 0 {
		t.Fatalf("cleanup exited %d", code)
	}
}

func TestFlushCommandRequiresProjectFlag(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REMEM_HOME", home)

	if code := runFlushCommand(context.Background(), nil); code != 2 {
		t.Fatalf("expected exit 2 when --project is missing, got %d", code)
	}
}

func TestFlushCommandWithNoStaleSessionsSucceeds(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REMEM_HOME", home)

	if code := runFlushCommand(context.Background(), []string{"--project", "acme/api"}); code != 0 {
		t.Fatalf("flush exited %d", code)
	}
}
