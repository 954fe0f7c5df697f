package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/lock"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/conversion"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/migrations"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the commands should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// Runtime holds the process-wide connections shared by the API and worker.
type Runtime struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// Open connects to Postgres and Redis and, when MIGRATIONS_AUTO is set, applies
// pending migrations before returning.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	if cfg.MigrationsAuto {
		if err := db.MigrateUp(migrations.FS, cfg.PGDSN, logger); err != nil {
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	rdb, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   rdb,
		Metrics: observability.NewMetrics(),
	}, nil
}

// Close releases the connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

// AsynqRedisOpt returns the asynq connection options for the configured Redis.
func (c *Config) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Services is the wired domain layer.
type Services struct {
	Credit      *credit.Engine
	Customers   *customers.Service
	Products    *products.Service
	Suppliers   *suppliers.Service
	Sales       *orders.Service
	Quotations  *quotations.Service
	Conversion  *conversion.Service
	Procurement *procurement.Service
	Payments    *payments.Ledger
	Keys        *shared.IdempotencyStore
}

// BuildServices wires repositories and services against the runtime pool.
func (rt *Runtime) BuildServices() *Services {
	logger := rt.Logger
	recorder := rt.Metrics.Ledger()

	engine := credit.NewEngine(credit.NewRepository(rt.Pool), recorder, logger)
	sales := orders.NewService(orders.NewRepository(rt.Pool), engine, logger)
	locker := lock.New(rt.Redis, rt.Config.LedgerLockTTL, logger)

	return &Services{
		Credit:      engine,
		Customers:   customers.NewService(customers.NewRepository(rt.Pool), logger),
		Products:    products.NewService(products.NewRepository(rt.Pool)),
		Suppliers:   suppliers.NewService(suppliers.NewRepository(rt.Pool), logger),
		Sales:       sales,
		Quotations:  quotations.NewService(quotations.NewRepository(rt.Pool), logger),
		Conversion:  conversion.NewService(conversion.NewRepository(rt.Pool), sales, logger),
		Procurement: procurement.NewService(procurement.NewRepository(rt.Pool), logger),
		Payments:    payments.NewLedger(payments.NewRepository(rt.Pool), engine, locker, recorder, logger),
		Keys:        shared.NewIdempotencyStore(rt.Pool),
	}
}
