package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// tenantConcurrency bounds how many tenants are audited at once.
const tenantConcurrency = 4

// EntryAuditor is the journal side of the integrity check.
type EntryAuditor interface {
	ClientIDs(ctx context.Context) ([]int64, error)
	AuditBalances(ctx context.Context, clientID int64) (journals.IntegrityReport, error)
}

// TreeReader materialises a tenant's chart of accounts.
type TreeReader interface {
	GetTree(ctx context.Context, clientID int64) (accounts.Forest, error)
}

// TenantResult is the integrity outcome for one tenant.
type TenantResult struct {
	ClientID  int64                    `json:"clientId"`
	Entries   journals.IntegrityReport `json:"entries"`
	Anomalies []accounts.Anomaly       `json:"anomalies"`
}

// Clean reports whether the tenant produced no findings.
func (r TenantResult) Clean() bool {
	return len(r.Entries.Findings) == 0 && len(r.Anomalies) == 0
}

// GLIntegrityJob sweeps tenants looking for posted entries that no longer
// balance and for account trees the forest builder had to repair.
type GLIntegrityJob struct {
	Entries EntryAuditor
	Trees   TreeReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob initialises the integrity handler.
func NewGLIntegrityJob(entries EntryAuditor, trees TreeReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Entries: entries,
		Trees:   trees,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes TaskGLIntegrity.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.ClientIDs)
	return err
}

// Run audits the given tenants, or every known tenant when clientIDs is
// empty. Results follow the order of the tenant list.
func (j *GLIntegrityJob) Run(ctx context.Context, clientIDs []int64) (results []TenantResult, err error) {
	if j == nil || j.Entries == nil || j.Trees == nil {
		return nil, errors.New("gl integrity: handler not configured")
	}
	start := j.now()
	tracker := j.metrics().Track(TaskGLIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	if len(clientIDs) == 0 {
		clientIDs, err = j.Entries.ClientIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("gl integrity: list tenants: %w", err)
		}
	}
	logger := j.logger().With(slog.Int("tenants", len(clientIDs)))
	logger.Info("starting gl integrity check")

	results = make([]TenantResult, len(clientIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tenantConcurrency)
	for i, clientID := range clientIDs {
		g.Go(func() error {
			res, err := j.auditTenant(gctx, clientID)
			if err != nil {
				return fmt.Errorf("gl integrity: client %d: %w", clientID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		logger.Error("gl integrity check failed", slog.Any("error", err))
		return nil, err
	}

	var findings int
	for _, res := range results {
		findings += j.report(res)
	}
	logger.Info("gl integrity check finished",
		slog.Int("findings", findings),
		slog.Duration("duration", j.now().Sub(start)))
	return results, nil
}

func (j *GLIntegrityJob) auditTenant(ctx context.Context, clientID int64) (TenantResult, error) {
	report, err := j.Entries.AuditBalances(ctx, clientID)
	if err != nil {
		return TenantResult{}, err
	}
	forest, err := j.Trees.GetTree(ctx, clientID)
	if err != nil {
		return TenantResult{}, err
	}
	anomalies := forest.Anomalies
	if anomalies == nil {
		anomalies = []accounts.Anomaly{}
	}
	return TenantResult{ClientID: clientID, Entries: report, Anomalies: anomalies}, nil
}

// report logs and counts one tenant's findings and returns how many there were.
func (j *GLIntegrityJob) report(res TenantResult) int {
	logger := j.logger().With(slog.Int64("client_id", res.ClientID))
	byKind := map[string]int{}
	for _, f := range res.Entries.Findings {
		logger.Warn("posted entry failed integrity check",
			slog.String("entry_id", f.EntryID.String()),
			slog.Int64("entity_id", f.EntityID),
			slog.Int64("number", f.Number),
			slog.String("kind", string(f.Kind)),
			slog.String("detail", f.Detail))
		byKind[string(f.Kind)]++
	}
	for _, a := range res.Anomalies {
		byKind[string(a.Kind)]++
	}
	for kind, n := range byKind {
		j.metrics().AddIntegrityFindings(kind, res.ClientID, n)
	}
	return len(res.Entries.Findings) + len(res.Anomalies)
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
