package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/bootstrap"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logger.New(cfg.LogLevel).With("component", "api")
	bootstrap.ConfigureTracing(cfg.Tracing, appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("build components", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	if err := bootstrap.Run(ctx, cfg, components, appLog); err != nil {
		appLog.Error("server error", "error", err)
		os.Exit(1)
	}
}
