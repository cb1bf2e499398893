package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/bootstrap"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/email"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/service/reconcile"
	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	workerLog := logger.New(cfg.LogLevel).With("component", "worker")
	if err := bootstrap.ValidateWorker(cfg); err != nil {
		workerLog.Error("invalid worker config", "error", err)
		os.Exit(1)
	}
	bootstrap.ConfigureTracing(cfg.Tracing, workerLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, workerLog)
	if err != nil {
		workerLog.Error("build components", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	reconciler := reconcile.NewReconciler(components.Inventory, components.Ledger, cfg.Worker.RepairDrift, workerLog)
	emailSender := email.NewSender(workerLog)

	var wg sync.WaitGroup

	if len(cfg.Kafka.Brokers) > 0 {
		obligations := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ReleaseObligationTopic, workerLog)
		defer obligations.Close()

		notifications := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications", cfg.Kafka.NotificationsTopic, workerLog)
		defer notifications.Close()

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := obligations.Consume(ctx, reconciler.HandleObligation); err != nil && !errors.Is(err, context.Canceled) {
				workerLog.Error("obligation consumer stopped", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := notifications.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
				var event kafka.BookingEvent
				if err := json.Unmarshal(msg.Value, &event); err != nil {
					return domain.Wrap(domain.KindInvalidInput, "worker.notification", err)
				}
				return emailSender.Send(ctx, event)
			}); err != nil && !errors.Is(err, context.Canceled) {
				workerLog.Error("notification consumer stopped", "error", err)
			}
		}()
	} else {
		workerLog.Warn("no kafka brokers configured, only the drift sweep runs")
	}

	interval := time.Duration(cfg.Worker.ReconcileIntervalSeconds) * time.Second
	workerLog.Info("worker started", "reconcile_interval", interval.String(), "repair_drift", cfg.Worker.RepairDrift)
	reconciler.Run(ctx, interval)

	wg.Wait()
	workerLog.Info("worker stopped")
}
