package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/contexta-kb/internal/app"
	"github.com/markdave123-py/contexta-kb/internal/cli"
	"github.com/markdave123-py/contexta-kb/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	// The CLI reports indexing results, so it always indexes inline.
	cfg.Pipeline.BackgroundIndexing = false

	application, err := app.NewApp(ctx, cfg, cfg.Logger())
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	cli.SetServices(application.DocSvc, application.ChatSvc)
	cli.SetDefaults(cfg.DefaultEmbeddingKey(), cfg.JWTSecret)

	err = cli.Execute(ctx)
	application.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
