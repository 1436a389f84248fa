package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/shared"
	"github.com/basket/remem/internal/store"
)

// remembEnvVars is the set of environment overrides config.Load reads,
// used by checkEnvironment to report what's actually set without
// leaking secret values.
var remembEnvVars = []string{
	"REMEM_HOME",
	"REMEM_EXECUTOR",
	"REMEM_API_KEY",
	"REMEM_BASE_URL",
	"REMEM_CLI_PATH",
	"REMEM_DISTILL_MODEL",
	"REMEM_SUMMARIZE_MODEL",
	"REMEM_DEBUG",
	"REMEM_MAINTENANCE_INTERVAL_MINUTES",
	"REMEM_TOTAL_MEMORIES",
	"REMEM_FULL_COUNT",
	"REMEM_SESSION_COUNT",
	"REMEM_KINDS",
	"REMEM_FULL_FIELD",
	"REMEM_SHOW_READ_TOKENS",
	"REMEM_SHOW_WORK_TOKENS",
	"REMEM_SHOW_LAST_SUMMARY",
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // PASS, FAIL, WARN
	Message string `json:"message"`
}

type diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	Go        string        `json:"go_version"`
	Version   string        `json:"version"`
	Results   []checkResult `json:"results"`
}

func runDoctorCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	jsonOutput := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	d := diagnosis{Timestamp: time.Now().UTC(), Go: runtime.Version(), Version: Version}
	d.Results = append(d.Results, checkConfig(cfg, err))
	d.Results = append(d.Results, checkDataDirWritable(cfg))
	d.Results = append(d.Results, checkDatabase(ctx, cfg))
	d.Results = append(d.Results, checkExecutor(cfg))
	d.Results = append(d.Results, checkEnvironment())

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			fmt.Fprintf(os.Stderr, "remem doctor: encode json: %v\n", err)
			return 1
		}
	} else {
		fmt.Printf("remem doctor (%s)\n---\n", d.Timestamp.Format(time.RFC3339))
		for _, r := range d.Results {
			fmt.Printf("%-10s %-20s %s\n", r.Status, r.Name, r.Message)
		}
	}

	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return 1
		}
	}
	return 0
}

func checkConfig(cfg config.Config, loadErr error) checkResult {
	if loadErr != nil {
		return checkResult{Name: "Config", Status: "FAIL", Message: loadErr.Error()}
	}
	return checkResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("loaded from %s", cfg.HomeDir)}
}

func checkDataDirWritable(cfg config.Config) checkResult {
	testFile := cfg.HomeDir + "/.write_test"
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return checkResult{Name: "Data directory", Status: "FAIL", Message: fmt.Sprintf("%s unwritable: %v", cfg.HomeDir, err)}
	}
	_ = os.Remove(testFile)
	return checkResult{Name: "Data directory", Status: "PASS", Message: fmt.Sprintf("%s writable", cfg.HomeDir)}
}

func checkDatabase(ctx context.Context, cfg config.Config) checkResult {
	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		return checkResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("open failed: %v", err)}
	}
	defer s.Close()

	if _, err := s.ListProjects(ctx); err != nil {
		return checkResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("query failed: %v", err)}
	}
	return checkResult{Name: "Database", Status: "PASS", Message: "connection and schema valid"}
}

// checkEnvironment reports which REMEM_* overrides are set, redacting
// any value whose key name looks secret so `doctor -json` output is
// safe to paste into a bug report.
func checkEnvironment() checkResult {
	var set []string
	for _, key := range remembEnvVars {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		set = append(set, fmt.Sprintf("%s=%s", key, shared.RedactEnvValue(key, v)))
	}
	if len(set) == 0 {
		return checkResult{Name: "Environment", Status: "PASS", Message: "no REMEM_* overrides set, using defaults"}
	}
	return checkResult{Name: "Environment", Status: "PASS", Message: strings.Join(set, ", ")}
}

func checkExecutor(cfg config.Config) checkResult {
	switch cfg.Executor {
	case "http", "auto":
		if cfg.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
			status := "WARN"
			if cfg.Executor == "http" {
				status = "FAIL"
			}
			return checkResult{Name: "LM executor", Status: status, Message: "no API key set for http executor"}
		}
		return checkResult{Name: "LM executor", Status: "PASS", Message: fmt.Sprintf("mode=%s", cfg.Executor)}
	case "cli":
		if cfg.CLIPath == "" {
			return checkResult{Name: "LM executor", Status: "WARN", Message: "cli mode set but REMEM_CLI_PATH is empty, will use \"claude\" from PATH"}
		}
		return checkResult{Name: "LM executor", Status: "PASS", Message: fmt.Sprintf("cli_path=%s", cfg.CLIPath)}
	default:
		return checkResult{Name: "LM executor", Status: "FAIL", Message: fmt.Sprintf("unknown executor mode %q", cfg.Executor)}
	}
}
