package main

import (
	"fmt"
	"os"

	"chainsign/internal/config"
	"chainsign/internal/infra/db"
	httpinfra "chainsign/internal/infra/http"
	"chainsign/internal/infra/logging"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	srv := httpinfra.NewServer(cfg, store, logger)
	defer func() { _ = srv.Close() }()
	if err := srv.Run(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
