// ====================================
// File: cmd/watcher/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/app"
	"github.com/rovshanmuradov/walletwatch/internal/config"
	"github.com/rovshanmuradov/walletwatch/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (yaml or json)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting walletwatch",
		zap.String("rpc", cfg.RPCURL),
		zap.Duration("refresh_interval", cfg.RefreshInterval),
		zap.Bool("redis", cfg.RedisURL != ""))

	runner, err := app.NewRunner(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Error("Watcher stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Watcher stopped gracefully")
}
