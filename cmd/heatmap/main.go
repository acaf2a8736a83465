package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/particle-spectra/cmd/heatmap/app"
)

func run(args []string, logger *slog.Logger) error {
	config, err := app.NewConfigFromCLI(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, config, logger.With(slog.Int64("product", config.ProductID)))
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], logger); err != nil {
		logger.Error("heatmap failed", slog.Any("error", err))
		os.Exit(1)
	}
}
