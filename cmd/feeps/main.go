package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/particle-spectra/cmd/feeps/app"
)

var (
	configPath string
	logLevel   slog.LevelVar
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	config      *app.Config
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "feeps",
	Short: "Energetic particle spectra from FEEPS sensor exports",
	Long: `Imports per-eye particle flux exports into a local store and derives
omni-directional energy spectra and pitch-angle distributions from them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	rootCmd.AddCommand(importCmd, datasetsCmd, productsCmd, omniCmd, padCmd, batchCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	config = app.DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = app.LoadConfig(configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
			return err
		}
	}

	logLevel.Set(config.Settings.LogLevel)

	var err error
	if application, err = app.New(config, logger); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
