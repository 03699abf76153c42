package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/config"
	"github.com/marmos91/sensord/pkg/measure"
	"github.com/marmos91/sensord/pkg/server"
	"github.com/spf13/cobra"
)

func startEntry() *cobra.Command {
	var configPath string
	var envFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sensor server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath, envFile)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/sensord/config.yaml)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file with SENSORD_* overrides")

	return cmd
}

func runStart(configPath, envFile string) error {
	// A missing .env is normal; anything else is a startup error
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := configureLogging(&cfg.Logging); err != nil {
		return err
	}

	fmt.Printf("sensord %s - remote sensor configuration server\n", version)
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg, reg.Healthy)

	srv := server.New(reg, cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, metricsResult.SensorMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	loop := measure.New(measure.Config{}, reg.Settings(), reg.Data(), metricsResult.MeasureMetrics)
	if err := srv.AddService("measure", loop.Run); err != nil {
		return err
	}

	archiver, err := config.CreateArchiver(ctx, &cfg.Archive, reg.Data(), metricsResult.ArchiveMetrics)
	if err != nil {
		return err
	}
	if archiver != nil {
		if err := srv.AddService("archive", archiver.Run); err != nil {
			return err
		}
	}

	if metricsResult.Server != nil {
		if err := srv.AddService("metrics", metricsResult.Server.Start); err != nil {
			return err
		}
	}

	if watchPath := resolvedConfigPath(configPath); watchPath != "" {
		if err := config.Watch(watchPath, func(newCfg *config.Config) {
			logger.SetLevel(newCfg.Logging.Level)
			logger.Info("Log level changed to %s", newCfg.Logging.Level)
		}); err != nil {
			logger.Warn("Config hot reload disabled: %v", err)
		}
	}

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", cfg.Adapters.Sensor.Port)

	if err := srv.Serve(ctx); err != nil {
		logger.Error("Server stopped with error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func configureLogging(cfg *config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}
	return nil
}

// resolvedConfigPath returns the file to watch, or "" when running on
// defaults only.
func resolvedConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if config.ConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
