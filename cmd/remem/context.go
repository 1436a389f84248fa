package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/render"
	"github.com/basket/remem/internal/shared"
	"github.com/basket/remem/internal/store"
)

// runContextCommand implements `remem context --cwd <dir> --session-id <id>`:
// prints the rendered markdown context document to stdout. Per §7, any
// internal failure is logged (if a logger could be built at all) and
// the command still exits 0 so the host never blocks on it.
func runContextCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remem context", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cwd := fs.String("cwd", ".", "working directory to derive the project key from")
	sessionID := fs.String("session-id", "", "host content session id")
	if err := fs.Parse(args); err != nil {
		return 0
	}

	ctx, cfg, logger, cleanup, err := loadConfigAndLogger(ctx, "context")
	if err != nil {
		fmt.Fprintf(os.Stderr, "remem context: %v\n", err)
		return 0
	}
	defer cleanup()

	s, err := store.Open(config.DBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open store", "error", err)
		return 0
	}
	defer s.Close()

	project := shared.ProjectFromDir(*cwd)
	if *sessionID != "" {
		if _, _, err := s.GetOrCreateSession(ctx, *sessionID, project); err != nil {
			logger.Warn("get or create session", "error", err)
		}
	}

	out, err := render.Render(ctx, s, project, cfg.Render)
	if err != nil {
		logger.Error("render context", "error", err)
		return 0
	}
	fmt.Fprint(os.Stdout, out)
	return 0
}
