package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/distill"
	"github.com/basket/remem/internal/maintenance"
	"github.com/basket/remem/internal/queryserver"
	"github.com/basket/remem/internal/store"
)

// runMCPCommand runs the long-lived query server on stdin/stdout. This
// is the one long-lived process in the architecture, so it also owns
// the maintenance scheduler — hook processes are too short-lived to
// host a background loop.
func runMCPCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem mcp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem mcp: %v\n", err)
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

	sched := maintenance.NewScheduler(maintenance.Config{
		Store:     s,
		Distiller: d,
		Logger:    logger,
		Interval:  time.Duration(cfg.MaintenanceIntervalMinutes) * time.Minute,
	})
	sched.Start(ctx)
	defer sched.Stop()

	srv := &queryserver.Server{Store: s, Logger: logger}
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("query server", "error", err)
		return 1
	}
	return 0
}
