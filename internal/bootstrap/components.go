package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/cache"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/ledger"
	"github.com/Domenick1991/railbooking/internal/pnr"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Components is everything the API and the worker share, built once from config.
type Components struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Producer  *kafka.Producer
	Inventory inventory.Store
	Ledger    ledger.Ledger
	Catalog   *catalog.CatalogService
	Bookings  *booking.BookingService
	Payments  *repository.PGPaymentRepository

	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.Pool = pool
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	var catalogCache catalog.Cache
	if cfg.Redis.Addr != "" {
		c.Redis = cache.NewRedisClient(cfg.Redis)
		c.closers = append(c.closers, c.Redis.Close)
		catalogCache = cache.NewRedisCache(c.Redis, cfg.Booking.CatalogCacheTTL())
	}

	if c.Ledger, err = c.newLedger(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	if c.Inventory, err = newInventory(cfg.Booking, pool, c.Redis); err != nil {
		c.Close()
		return nil, err
	}

	generator, err := pnr.NewGenerator(cfg.Booking.PNRPrefix)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Catalog = catalog.NewCatalogService(repository.NewTrainClassRepository(pool), catalogCache, log, catalog.WithInventory(c.Inventory))
	c.Payments = repository.NewPaymentRepository(pool)

	opts := []booking.BookingServiceOption{
		booking.WithUserDirectory(repository.NewUserRepository(pool)),
		booking.WithLogger(log),
		booking.WithLocation(cfg.Booking.Location()),
		booking.WithPNRAttempts(cfg.Booking.PNRAttempts),
		booking.WithReleasePolicy(cfg.Booking.ReleaseAttempts, cfg.Booking.ReleaseBackoff(), 0),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		c.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		c.closers = append(c.closers, c.Producer.Close)
		opts = append(opts, booking.WithProducer(c.Producer, cfg.Kafka.BookingEventsTopic, cfg.Kafka.NotificationsTopic, cfg.Kafka.ReleaseObligationTopic))
	} else {
		log.Warn("no kafka brokers configured, booking events and release obligations are disabled")
	}

	c.Bookings = booking.NewBookingService(c.Inventory, c.Ledger, generator, c.Catalog, opts...)
	return c, nil
}

func (c *Components) newLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Booking.LedgerBackend {
	case "postgres":
		db, err := ledger.Open(ctx, cfg.Database.DSN(), cfg.Tracing.XRay)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		return ledger.NewPostgresLedger(db), nil
	case "memory":
		return ledger.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Booking.LedgerBackend)
	}
}

func newInventory(cfg config.BookingConfig, pool *pgxpool.Pool, rdb *redis.Client) (inventory.Store, error) {
	switch cfg.InventoryBackend {
	case "postgres":
		if pool == nil {
			return nil, errors.New("postgres inventory needs a database pool")
		}
		return inventory.NewPostgresStore(pool, cfg.LockTimeout()), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis inventory needs redis.addr")
		}
		return inventory.NewRedisStore(rdb, cfg.LockTimeout()), nil
	case "memory":
		return inventory.NewMemoryStore(cfg.LockTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", cfg.InventoryBackend)
	}
}

// HealthChecks pings every external dependency that was configured.
func (c *Components) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"postgres": c.Pool.Ping,
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	if c.Producer != nil {
		checks["kafka"] = c.Producer.CheckConnection
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// ConfigureTracing points the X-Ray SDK at the daemon, falling back to defaults.
func ConfigureTracing(cfg config.TracingConfig, log *slog.Logger) {
	if !cfg.XRay {
		return
	}
	if err := xray.Configure(xray.Config{DaemonAddr: cfg.DaemonAddr, ServiceVersion: "1.0.0"}); err != nil {
		log.Warn("x-ray configuration failed, using defaults", "error", err)
		if err := xray.Configure(xray.Config{}); err != nil {
			log.Error("x-ray default configuration failed", "error", err)
		}
	}
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
}

// ValidateWorker rejects configs whose stores live in process memory: the
// worker would sweep and release against its own empty copy, not the API's.
func ValidateWorker(cfg *config.Config) error {
	if cfg.Booking.InventoryBackend == "memory" {
		return fmt.Errorf("worker needs a shared inventory backend, got %q", cfg.Booking.InventoryBackend)
	}
	if cfg.Booking.LedgerBackend == "memory" {
		return fmt.Errorf("worker needs a shared ledger backend, got %q", cfg.Booking.LedgerBackend)
	}
	return nil
}
