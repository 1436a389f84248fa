// Command remem is the single binary that implements every host-facing
// surface: the four lifecycle hooks, the long-lived query server, and
// operator subcommands (install/uninstall/flush/cleanup/doctor).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/basket/remem/internal/audit"
	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/shared"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

HOOK SUBCOMMANDS (invoked by the host, always exit 0):
  %s context --cwd <dir> --session-id <id>   Print markdown context to stdout
  %s session-init                             Read {sessionId, cwd} JSON from stdin
  %s observe                                  Read a tool-use event JSON from stdin
  %s summarize                                Read an end-of-turn JSON from stdin

SERVER:
  %s mcp                                       Run the long-lived query server on stdin/stdout

OPERATOR SUBCOMMANDS:
  %s install [--settings <path>]               Install hooks into the host settings file
  %s uninstall [--settings <path>]             Remove hooks from the host settings file
  %s flush --project <name>                    Force stale-pending recovery for a project
  %s cleanup                                   Run one maintenance pass now
  %s doctor [-json]                            Run diagnostic checks

ENVIRONMENT VARIABLES:
  REMEM_HOME                     Data directory (default: ~/.remem)
  REMEM_EXECUTOR                 auto | http | cli (default: auto)
  REMEM_API_KEY, REMEM_BASE_URL  HTTP executor configuration
  REMEM_CLI_PATH                 CLI executor fallback binary
  REMEM_DISTILL_MODEL, REMEM_SUMMARIZE_MODEL   Model aliases or full ids
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cmd := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	// Hook subcommands never fail host-visibly: §7 requires exit 0 even
	// when the internal work errors, so failures are logged and
	// swallowed rather than propagated as a process exit code.
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "context":
		os.Exit(runContextCommand(ctx, rest))
	case "session-init":
		os.Exit(runSessionInitCommand(ctx, rest))
	case "observe":
		os.Exit(runObserveCommand(ctx, rest))
	case "summarize":
		os.Exit(runSummarizeCommand(ctx, rest))
	case "__worker-summarize":
		os.Exit(runWorkerSummarizeCommand(ctx, rest))
	case "mcp":
		os.Exit(runMCPCommand(ctx, rest))
	case "install":
		os.Exit(runInstallCommand(rest))
	case "uninstall":
		os.Exit(runUninstallCommand(rest))
	case "flush":
		os.Exit(runFlushCommand(ctx, rest))
	case "cleanup":
		os.Exit(runCleanupCommand(ctx, rest))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, rest))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

// loadConfigAndLogger loads config, points audit at the data dir, mints
// a trace_id for this invocation, and builds a slog.Logger writing to
// the data dir's log file — the same order the teacher's main.go uses
// (audit before logger, so a logger init failure is itself audited).
// The returned context carries the trace_id so every store/distill/llm
// call downstream can be correlated back to this one process run, the
// way the teacher stamps trace_id onto every gateway and engine request.
func loadConfigAndLogger(ctx context.Context, component string) (context.Context, config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, cfg, nil, func() {}, fmt.Errorf("load config: %w", err)
	}
	if err := audit.Init(cfg.HomeDir); err != nil {
		return ctx, cfg, nil, func() {}, fmt.Errorf("init audit: %w", err)
	}

	traceID := shared.NewTraceID()
	ctx = shared.WithTraceID(ctx, traceID)

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logFile, err := os.OpenFile(cfg.HomeDir+"/remem.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		audit.Record("logger_init", "", "failed", err.Error(), "")
		_ = audit.Close()
		return ctx, cfg, nil, func() {}, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})).With("component", component, "trace_id", traceID)

	cleanup := func() {
		_ = audit.Close()
		_ = logFile.Close()
	}
	return ctx, cfg, logger, cleanup, nil
}
