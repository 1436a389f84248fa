package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// defaultSettingsPath mirrors the host's own default hook settings
// location; overridable with --settings for hosts that keep it
// elsewhere or for tests.
func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".claude", "settings.json")
}

// hookWiring is the event -> subcommand table installed into the host
// settings file. A package var, not control flow, matching the
// teacher's style of declaring this kind of table as data.
var hookWiring = []struct {
	event     string
	subcmd    string
	extraArgs string
}{
	{"SessionStart", "context", ` --cwd "$CLAUDE_PROJECT_DIR" --session-id "$CLAUDE_SESSION_ID"`},
	{"UserPromptSubmit", "session-init", ""},
	{"PostToolUse", "observe", ""},
	{"Stop", "summarize", ""},
}

func runInstallCommand(args []string) int {
	fs := flag.NewFlagSet("remem install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	settingsPath := fs.String("settings", defaultSettingsPath(), "path to the host's hook settings file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	binary, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem install: resolve binary path: %v\n", err)
		return 1
	}

	raw, err := loadSettings(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem install: %v\n", err)
		return 1
	}

	hooks, _ := raw["hooks"].(map[string]any)
	if hooks == nil {
		hooks = make(map[string]any)
	}

	for _, w := range hookWiring {
		command := fmt.Sprintf("%s %s%s", binary, w.subcmd, w.extraArgs)
		hooks[w.event] = upsertHookCommand(hooks[w.event], command)
	}
	raw["hooks"] = hooks

	if err := saveSettings(*settingsPath, raw); err != nil {
		fmt.Fprintf(os.Stderr, "remem install: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "installed hooks into %s\n", *settingsPath)
	return 0
}

func runUninstallCommand(args []string) int {
	fs := flag.NewFlagSet("remem uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	settingsPath := fs.String("settings", defaultSettingsPath(), "path to the host's hook settings file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	binary, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem uninstall: resolve binary path: %v\n", err)
		return 1
	}

	raw, err := loadSettings(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem uninstall: %v\n", err)
		return 1
	}

	hooks, _ := raw["hooks"].(map[string]any)
	if hooks == nil {
		fmt.Fprintln(os.Stdout, "no hooks installed")
		return 0
	}

	for _, w := range hookWiring {
		hooks[w.event] = removeHookCommandsForBinary(hooks[w.event], binary)
	}
	raw["hooks"] = hooks

	if err := saveSettings(*settingsPath, raw); err != nil {
		fmt.Fprintf(os.Stderr, "remem uninstall: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "removed hooks from %s\n", *settingsPath)
	return 0
}

func loadSettings(path string) (map[string]any, error) {
	raw := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return raw, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if len(data) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	return raw, nil
}

func saveSettings(path string, raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir settings dir: %w", err)
	}
	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings file: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// upsertHookCommand adds command to the event's hook-group list if no
// group already runs it, decoding/re-encoding through the loosely
// typed JSON shape rather than a fixed struct so unrelated keys the
// host (or another tool) wrote survive untouched.
func upsertHookCommand(existing any, command string) []any {
	groups, _ := existing.([]any)
	for _, g := range groups {
		gm, ok := g.(map[string]any)
		if !ok {
			continue
		}
		entries, _ := gm["hooks"].([]any)
		for _, e := range entries {
			em, ok := e.(map[string]any)
			if ok && em["command"] == command {
				return groups
			}
		}
	}
	return append(groups, map[string]any{
		"hooks": []any{map[string]any{"type": "command", "command": command}},
	})
}

// removeHookCommandsForBinary drops any hook entry whose command
// starts with binary, leaving groups belonging to other tools intact.
func removeHookCommandsForBinary(existing any, binary string) []any {
	groups, _ := existing.([]any)
	var kept []any
	for _, g := range groups {
		gm, ok := g.(map[string]any)
		if !ok {
			kept = append(kept, g)
			continue
		}
		entries, _ := gm["hooks"].([]any)
		var keptEntries []any
		for _, e := range entries {
			em, ok := e.(map[string]any)
			if ok {
				if cmd, _ := em["command"].(string); len(cmd) >= len(binary) && cmd[:len(binary)] == binary {
					continue
				}
			}
			keptEntries = append(keptEntries, e)
		}
		if len(keptEntries) > 0 {
			gm["hooks"] = keptEntries
			kept = append(kept, gm)
		}
	}
	return kept
}
