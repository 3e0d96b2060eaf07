package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

type resources struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	jobs  *cli.JobsCLI
}

func (r *resources) close() {
	if r.jobs != nil {
		_ = r.jobs.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := &resources{}
	defer res.close()

	open := func(ctx context.Context) (*cli.Env, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger := app.NewLoggerTo(os.Stderr, cfg)

		res.pool, err = db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
		if err != nil {
			return nil, err
		}
		res.redis, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, import lock disabled", slog.Any("error", err))
		}
		res.jobs, err = cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		ledger := app.NewLedger(app.LedgerDeps{
			Pool:   res.pool,
			Redis:  res.redis,
			Config: cfg,
			Logger: logger,
		})
		return &cli.Env{CoA: ledger.CoA, Integrity: ledger.Integrity, Jobs: res.jobs}, nil
	}

	if err := cli.NewRootCommand(open).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrFindings) {
			fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		}
		res.close()
		os.Exit(1)
	}
}
