package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nabuvoice/wake-satellite/internal/config"
	"github.com/nabuvoice/wake-satellite/internal/observe"
	"github.com/nabuvoice/wake-satellite/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{EnvFilePath: ".env", Args: os.Args[1:]}.Load()
	if err != nil {
		observe.NewLogger("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observe.NewLogger(cfg.LogLevel)
	logger.Info("starting wake-word satellite",
		"version", version,
		"device_id", cfg.DeviceID,
		"selected_model", cfg.SelectedModel,
		"server_port", cfg.ServerPort,
		"vad_mode", cfg.VADMode,
	)

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		logger.Error("failed to construct supervisor", "error", err)
		os.Exit(1)
	}

	go func() {
		for event := range sup.Events() {
			if event.Err != nil {
				logger.Error("lifecycle event", "kind", event.Kind, "error", event.Err)
				continue
			}
			logger.Info("lifecycle event", "kind", event.Kind)
		}
	}()

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("satellite stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("satellite stopped")
}
