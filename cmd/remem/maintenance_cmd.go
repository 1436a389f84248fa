package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/distill"
	"github.com/basket/remem/internal/store"
	"github.com/basket/remem/internal/summarize"
)

// runFlushCommand forces stale-pending recovery for one project,
// useful for operators who don't want to wait for the maintenance
// scheduler's next tick.
func runFlushCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem flush", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	project := fs.String("project", "", "project key to flush")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *project == "" {
		fmt.Fprintln(os.Stderr, "remem flush: --project is required")
		return 2
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "flush")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem flush: %v\n", err)
		return 1
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}
	defer s.Close()

	d, err := distill.New(s, newExecutor(cfg), config.ResolveModel(cfg.DistillModel))
	if err != nil {
		logger.Error("build distiller", "error", err)
		return 1
	}
	if err := summarize.RecoverStalePending(ctx, d, *project); err != nil {
		logger.Error("recover stale pending", "project", *project, "error", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "flushed stale pending for %s\n", *project)
	return 0
}

// runCleanupCommand runs one maintenance cleanup pass immediately,
// outside of the query server's scheduler.
func runCleanupCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "cleanup")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem cleanup: %v\n", err)
		return 1
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}
	defer s.Close()

	result, err := s.Cleanup(ctx, time.Now().Unix())
	if err != nil {
		logger.Error("cleanup", "error", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "orphan summaries deleted: %d\nstale pending deleted: %d\ncompressed deleted: %d\n",
		result.OrphanSummariesDeleted, result.StalePendingDeleted, result.CompressedDeleted)
	return 0
}
