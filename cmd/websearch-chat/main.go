package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/app"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a yaml config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", logger.Err(err))
	}

	if err := runMain(*configPath); err != nil {
		slog.Error("Shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func runMain(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(
		slog.New(
			logger.NewHandler(
				os.Stderr, &logger.Options{
					Level:      logger.ParseLevel(cfg.Log.Level),
					TimeFormat: logger.DefaultOptions.TimeFormat,
					AddSource:  cfg.Log.AddSource,
					NoColor:    cfg.Log.NoColor,
				},
			),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, cfg)
}
