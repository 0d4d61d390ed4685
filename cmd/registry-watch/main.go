package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dbregistry/internal/config"
	"dbregistry/internal/listener"
	"dbregistry/internal/logging"
	"dbregistry/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := listener.NewFromConfig(ctx, db, cfg, log)
	must(err)
	log.Info().Int("intervalSec", cfg.WatchIntervalSec).Bool("mail", cfg.WatchMailFetch).Bool("publish", cfg.WatchPublish).Msg("watching inputs")
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
