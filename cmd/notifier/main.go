package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/database"
	"github.com/qs3c/pixelchat_server/internal/pkg/email"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/queue"
	"github.com/qs3c/pixelchat_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log, "notifier")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect redis")
	}
	defer rdb.Close()

	if cfg.Email.SMTPHost == "" {
		log.Warn().Msg("SMTP host not configured, notices will fail to deliver")
	}

	processor := worker.NewProcessor(queue.NewQueue(rdb, cfg.Notice.Queue), email.NewService(&cfg.Email))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.Notice.Queue).Int("workers", cfg.Notice.Workers).Msg("Notifier started")
	if err := processor.Run(ctx, cfg.Notice.Workers); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Notifier exited with error")
	}
	log.Info().Msg("Notifier shutdown complete")
}
