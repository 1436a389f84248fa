package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/basket/remem/internal/audit"
	"github.com/basket/remem/internal/capture"
	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/distill"
	"github.com/basket/remem/internal/llm"
	"github.com/basket/remem/internal/shared"
	"github.com/basket/remem/internal/store"
	"github.com/basket/remem/internal/summarize"
)

func newExecutor(cfg config.Config) llm.Executor {
	return llm.NewExecutor(llm.Options{
		Mode:    cfg.Executor,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		CLIPath: cfg.CLIPath,
	})
}

type sessionInitPayload struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
}

// runSessionInitCommand reads {sessionId, cwd} from stdin and triggers
// synchronous stale-pending recovery for the project: low-activity
// sessions that never accumulate enough events for their own distill
// batch don't leak pending rows indefinitely.
func runSessionInitCommand(ctx context.Context, args []string) int {
	var payload sessionInitPayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "remem session-init: decode stdin: %v\n", err)
		return 0
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "session-init")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem session-init: %v\n", err)
		return 0
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 0
	}
	defer s.Close()

	project := shared.ProjectFromDir(payload.Cwd)
	if payload.SessionID != "" {
		if _, _, err := s.GetOrCreateSession(ctx, payload.SessionID, project); err != nil {
			logger.Warn("get or create session", "error", err)
		}
	}

	d, err := distill.New(s, newExecutor(cfg), config.ResolveModel(cfg.DistillModel))
	if err != nil {
		logger.Error("build distiller", "error", err)
		return 0
	}
	if err := summarize.RecoverStalePending(ctx, d, project); err != nil {
		logger.Warn("recover stale pending", "project", project, "error", err)
	}
	return 0
}

type observePayload struct {
	SessionID    string          `json:"session_id"`
	Cwd          string          `json:"cwd"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
}

// runObserveCommand reads one tool-use event from stdin and enqueues it
// if it survives the write-tool/read-only-Bash filter. This is the hot
// path fired on every host tool call, so it does one store insert and
// no LM calls.
func runObserveCommand(ctx context.Context, args []string) int {
	var payload observePayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "remem observe: decode stdin: %v\n", err)
		return 0
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "observe")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem observe: %v\n", err)
		return 0
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 0
	}
	defer s.Close()

	project := shared.ProjectFromDir(payload.Cwd)
	memoryID, _, err := s.GetOrCreateSession(ctx, payload.SessionID, project)
	if err != nil {
		logger.Warn("get or create session", "error", err)
		return 0
	}

	captured, err := capture.Capture(ctx, s, capture.Record{
		SessionID:    memoryID,
		WorkingDir:   payload.Cwd,
		ToolName:     payload.ToolName,
		ToolInput:    string(payload.ToolInput),
		ToolResponse: string(payload.ToolResponse),
	})
	if err != nil {
		logger.Warn("capture event", "error", err)
		return 0
	}
	logger.Debug("observe", "captured", captured, "tool", payload.ToolName)
	return 0
}

type summarizePayload struct {
	SessionID    string `json:"session_id"`
	Cwd          string `json:"cwd"`
	FinalMessage string `json:"final_message"`
}

// runSummarizeCommand is the session-stop hook: it evaluates the two
// gates and, if both look likely to pass, detaches a worker and
// returns immediately. It never itself calls the LM.
func runSummarizeCommand(ctx context.Context, args []string) int {
	var payload summarizePayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "remem summarize: decode stdin: %v\n", err)
		return 0
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "summarize")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem summarize: %v\n", err)
		return 0
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 0
	}
	defer s.Close()

	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}

	project := shared.ProjectFromDir(payload.Cwd)
	dp := &summarize.Dispatcher{Store: s, WorkerBinary: binary}
	outcome, err := dp.Evaluate(ctx, payload.SessionID, project, payload.FinalMessage)
	if err != nil {
		logger.Warn("evaluate gates", "error", err)
		audit.Record("summarize", project, "error", err.Error(), "")
		return 0
	}
	if outcome != summarize.GatePassed {
		audit.Record("summarize", project, "skipped", string(outcome), "")
	} else {
		audit.Record("summarize", project, string(outcome), "", "worker spawned")
	}
	return 0
}

// runWorkerSummarizeCommand is the hidden entry point the dispatcher
// re-invokes as a detached, session-leader process. It re-verifies the
// cooldown, runs the distiller, and produces a session summary, all
// within a 180s wall-clock ceiling enforced two ways: context.WithTimeout
// cancels the in-flight LM call gracefully, and a time.AfterFunc
// self-kill backstops any call that ignores context cancellation.
func runWorkerSummarizeCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem __worker-summarize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	sessionID := fs.String("session", "", "memory session id")
	project := fs.String("project", "", "project key")
	hash := fs.String("hash", "", "final-message hash")
	if err := fs.Parse(args); err != nil {
		return 0
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "worker-summarize")
	if err != nil {
		return 0
	}
	defer cleanup()

	selfKill := time.AfterFunc(180*time.Second, func() {
		logger.Error("worker hard timeout, self-killing")
		os.Exit(1)
	})
	defer selfKill.Stop()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 0
	}
	defer s.Close()

	executor := newExecutor(cfg)
	d, err := distill.New(s, executor, config.ResolveModel(cfg.DistillModel))
	if err != nil {
		logger.Error("build distiller", "error", err)
		return 0
	}
	w, err := summarize.NewWorker(s, d, executor, config.ResolveModel(cfg.SummarizeModel))
	if err != nil {
		logger.Error("build worker", "error", err)
		return 0
	}

	runCtx, cancel := context.WithTimeout(ctx, 180*time.Second)
	defer cancel()

	if err := w.Run(runCtx, *sessionID, *project, *hash); err != nil {
		logger.Error("worker run", "project", *project, "error", err)
		audit.Record("worker_summarize", *project, "error", err.Error(), "")
		return 0
	}
	audit.Record("worker_summarize", *project, "completed", "", "")
	return 0
}
