package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"qaforge/internal/config"
	"qaforge/internal/logging"
	"qaforge/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "qagen",
		Short:        "Generate flashcard questions from study material",
		SilenceUsage: true,
	}
	root.AddCommand(generateCMD(), submitCMD(), cancelCMD(), statusCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *zap.Logger, error) {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openDB(ctx context.Context, cfg config.Config) (*storage.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dialTemporal(cfg config.Config, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   logging.NewTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	return c, nil
}
