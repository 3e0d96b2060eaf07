package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/events"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	"github.com/odyssey-erp/ledger/internal/shared"
	"github.com/odyssey-erp/ledger/jobs"
)

// LedgerDeps are the process-wide collaborators of the ledger services.
// Redis, Metrics, JobMetrics and Publisher may be nil.
type LedgerDeps struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Config     *Config
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics
	Publisher  events.Publisher
}

// Ledger bundles the wired services shared by the API server, the worker
// and ledgerctl.
type Ledger struct {
	Accounts    *accounts.Service
	CoA         *coa.Service
	Journals    *journals.Service
	Integrity   *jobs.GLIntegrityJob
	Idempotency *shared.IdempotencyStore
	KeyCleanup  *jobs.IdempotencyCleanupJob
}

// NewLedger wires repositories and services on top of the pool.
func NewLedger(deps LedgerDeps) *Ledger {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := shared.NewAuditLogger(deps.Pool)
	accountRepo := accounts.NewRepository(deps.Pool)
	journalRepo := journals.NewRepository(deps.Pool)

	coaOpts := coa.Options{
		Audit:     auditLogger,
		Publisher: deps.Publisher,
		Metrics:   deps.Metrics.Ledger(),
		Logger:    logger,
	}
	if deps.Redis != nil {
		ttl := deps.Config.ImportLockTTL
		coaOpts.Locker = cache.NewLocker(deps.Redis, ttl)
	}

	accountService := accounts.NewService(accountRepo, auditLogger, logger)
	journalService := journals.NewService(journalRepo, journals.Options{
		Audit:     auditLogger,
		Publisher: deps.Publisher,
		Metrics:   deps.Metrics.Ledger(),
		Logger:    logger,
	})
	idempotency := shared.NewIdempotencyStore(deps.Pool)
	return &Ledger{
		Accounts:    accountService,
		CoA:         coa.NewService(accountRepo, coaOpts),
		Journals:    journalService,
		Integrity:   jobs.NewGLIntegrityJob(journalService, accountService, logger, deps.JobMetrics),
		Idempotency: idempotency,
		KeyCleanup:  jobs.NewIdempotencyCleanupJob(idempotency, deps.Config.IdempotencyRetention, logger, deps.JobMetrics),
	}
}

// NewPublisher returns the Kafka publisher when brokers are configured and a
// no-op publisher otherwise. The close func is always safe to call.
func NewPublisher(cfg *Config, logger *slog.Logger) (events.Publisher, func() error) {
	if !cfg.EventsEnabled() || InTestMode() {
		return events.Nop{}, func() error { return nil }
	}
	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if logger != nil {
		logger.Info("publishing domain events to kafka",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic))
	}
	return publisher, publisher.Close
}
