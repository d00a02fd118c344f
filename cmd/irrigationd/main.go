package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbattiston/SNRv9-sub001/internal/config"
	"github.com/rbattiston/SNRv9-sub001/internal/logger"
	"github.com/rbattiston/SNRv9-sub001/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "daemon config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "irrigationd")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Config loaded",
		zap.String("path", *configPath),
		zap.String("io_config", cfg.IO.ConfigPath),
		zap.String("hardware", cfg.Hardware.Backend))

	lifecycle, err := system.NewLifecycleManager(cfg, zlog, system.Options{})
	if err != nil {
		zlog.Fatal("Failed to initialise system", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		zlog.Error("Failed to start system", zap.Error(err))
		lifecycle.Shutdown(context.Background())
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := lifecycle.Reload(); err != nil {
				zlog.Error("Reload failed", zap.Error(err))
			}
			continue
		}

		zlog.Info("Shutdown signal received", zap.String("signal", sig.String()))
		break
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(ctx); err != nil {
		zlog.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	zlog.Info("irrigationd stopped")
}
