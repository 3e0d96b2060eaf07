package coa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// TenantLocker serialises imports per tenant across processes.
type TenantLocker interface {
	Acquire(ctx context.Context, key string) (*cache.Lease, error)
}

// AuditPort records audit trail entries after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Recorder receives import outcomes.
type Recorder interface {
	ImportFinished(result string, created, updated, retired, skipped int)
}

// Options wires optional collaborators. Nil members are skipped.
type Options struct {
	Locker    TenantLocker
	Audit     AuditPort
	Publisher events.Publisher
	Metrics   Recorder
	Logger    *slog.Logger
}

// Service reconciles bulk CoA files against the account store.
type Service struct {
	repo      accounts.Repository
	locker    TenantLocker
	audit     AuditPort
	publisher events.Publisher
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the reconciler service.
func NewService(repo accounts.Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		locker:    opts.Locker,
		audit:     opts.Audit,
		publisher: publisher,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ImportOptions controls one import run.
type ImportOptions struct {
	DryRun     bool
	SkipRetire bool
	ActorID    int64
}

// Summary is returned to the caller after an import.
type Summary struct {
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Retired   int               `json:"retired"`
	Unchanged int               `json:"unchanged"`
	Skipped   int               `json:"skipped"`
	Warnings  []shared.RowIssue `json:"warnings"`
	DryRun    bool              `json:"dryRun"`
}

func summarize(p Plan, dryRun bool) Summary {
	warnings := p.Warnings
	if warnings == nil {
		warnings = []shared.RowIssue{}
	}
	return Summary{
		Created:   len(p.Creates),
		Updated:   len(p.Updates),
		Retired:   len(p.Retires),
		Unchanged: p.Unchanged,
		Skipped:   p.Skipped,
		Warnings:  warnings,
		DryRun:    dryRun,
	}
}

// Import reconciles set against the tenant chart in one transaction. A
// structural problem rejects the file before anything is written; any
// failure while applying rolls the whole import back.
func (s *Service) Import(ctx context.Context, clientID int64, set RowSet, opts ImportOptions) (Summary, error) {
	summary, err := s.importRows(ctx, clientID, set, opts)
	s.observe(summary, opts.DryRun, err)
	if err != nil {
		return Summary{}, fmt.Errorf("import chart of accounts: %w", err)
	}
	if opts.DryRun {
		return summary, nil
	}
	for _, w := range summary.Warnings {
		s.logger.Warn("coa import warning",
			slog.Int64("client_id", clientID),
			slog.Int("row", w.Row),
			slog.String("account_code", w.Code),
			slog.String("message", w.Message))
	}
	s.afterImport(ctx, clientID, opts.ActorID, events.TypeCoAImported, summary)
	return summary, nil
}

func (s *Service) importRows(ctx context.Context, clientID int64, set RowSet, opts ImportOptions) (Summary, error) {
	if s.locker != nil && !opts.DryRun {
		lease, err := s.locker.Acquire(ctx, internalShared.CoAImportLockKey(clientID))
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return Summary{}, fmt.Errorf("%w: another import is running for this client", shared.ErrConflict)
			}
			return Summary{}, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release import lock", slog.Any("error", err))
			}
		}()
	}

	var summary Summary
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		if err := tx.LockChart(ctx, clientID); err != nil {
			return err
		}
		existing, err := tx.ListAccounts(ctx, clientID, accounts.ListFilter{})
		if err != nil {
			return err
		}
		posted, err := tx.AccountsWithPostings(ctx, clientID)
		if err != nil {
			return err
		}
		plan, err := BuildPlan(clientID, existing, posted, set, PlanOptions{SkipRetire: opts.SkipRetire})
		if err != nil {
			return err
		}
		summary = summarize(plan, opts.DryRun)
		if opts.DryRun {
			return nil
		}
		return applyPlan(ctx, tx, clientID, plan)
	})
	return summary, err
}

// applyPlan writes creates with no parent first so that rows may point at
// accounts created later in the same file, then links parents, then updates
// and retirements.
func applyPlan(ctx context.Context, tx accounts.TxRepository, clientID int64, plan Plan) error {
	for _, a := range plan.Creates {
		insert := a
		insert.ParentID = nil
		if _, err := tx.InsertAccount(ctx, insert); err != nil {
			return fmt.Errorf("create %s: %w", a.Code, err)
		}
	}
	for _, a := range plan.Creates {
		if a.ParentID == nil {
			continue
		}
		if _, err := tx.UpdateAccount(ctx, a); err != nil {
			return fmt.Errorf("link %s: %w", a.Code, err)
		}
	}
	for _, u := range plan.Updates {
		if _, err := tx.UpdateAccount(ctx, u.After); err != nil {
			return fmt.Errorf("update %s: %w", u.After.Code, err)
		}
	}
	for _, a := range plan.Retires {
		if err := tx.SetAccountActive(ctx, clientID, a.ID, false); err != nil {
			return fmt.Errorf("retire %s: %w", a.Code, err)
		}
	}
	return nil
}

// Export renders the tenant chart, retired accounts included, in the import
// layout so that re-importing it changes nothing.
func (s *Service) Export(ctx context.Context, clientID int64) (RowSet, error) {
	list, err := s.repo.ListAccounts(ctx, clientID, accounts.ListFilter{})
	if err != nil {
		return RowSet{}, fmt.Errorf("export chart of accounts: %w", err)
	}
	return ExportRows(list), nil
}

// ExportRows builds the export set from accounts, sorted by code.
func ExportRows(list []accounts.Account) RowSet {
	codes := make(map[uuid.UUID]string, len(list))
	for _, a := range list {
		codes[a.ID] = a.Code
	}
	sorted := append([]accounts.Account(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	set := RowSet{Columns: make(map[Column]bool, len(exportOrder))}
	for _, c := range exportOrder {
		set.Columns[c] = true
	}
	for i, a := range sorted {
		row := Row{
			Line:                    i + 2,
			Code:                    a.Code,
			Name:                    a.Name,
			Type:                    string(a.Type),
			Subtype:                 a.Subtype,
			Description:             a.Description,
			FSLIBucket:              a.FSLIBucket,
			InternalReportingBucket: a.InternalReportingBucket,
			Item:                    a.Item,
			Active:                  fmt.Sprintf("%t", a.IsActive),
		}
		if a.ParentID != nil {
			row.ParentCode = codes[*a.ParentID]
		}
		set.Rows = append(set.Rows, row)
	}
	return set
}

// SeedStandardChart loads a template into an empty tenant chart.
func (s *Service) SeedStandardChart(ctx context.Context, clientID int64, template string, actorID int64) (Summary, error) {
	tpl, err := LoadTemplate(template)
	if err != nil {
		return Summary{}, err
	}
	existing, err := s.repo.ListAccounts(ctx, clientID, accounts.ListFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("seed chart of accounts: %w", err)
	}
	if len(existing) > 0 {
		return Summary{}, fmt.Errorf("%w: client %d has %d accounts", shared.ErrAlreadySeeded, clientID, len(existing))
	}
	summary, err := s.importRows(ctx, clientID, tpl.RowSet(), ImportOptions{SkipRetire: true, ActorID: actorID})
	s.observe(summary, false, err)
	if err != nil {
		return Summary{}, fmt.Errorf("seed chart of accounts: %w", err)
	}
	s.afterImport(ctx, clientID, actorID, events.TypeCoASeeded, summary)
	return summary, nil
}

func (s *Service) observe(summary Summary, dryRun bool, err error) {
	if s.metrics == nil {
		return
	}
	var importErr *shared.ImportError
	result := "applied"
	switch {
	case errors.As(err, &importErr):
		result = "rejected"
	case errors.Is(err, shared.ErrConflict):
		result = "conflict"
	case err != nil:
		result = "failed"
	case dryRun:
		result = "dry_run"
	}
	if err != nil || dryRun {
		s.metrics.ImportFinished(result, 0, 0, 0, 0)
		return
	}
	s.metrics.ImportFinished(result, summary.Created, summary.Updated, summary.Retired, summary.Skipped)
}

func (s *Service) afterImport(ctx context.Context, clientID, actorID int64, eventType string, summary Summary) {
	meta := map[string]any{
		"created":   summary.Created,
		"updated":   summary.Updated,
		"retired":   summary.Retired,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"warnings":  len(summary.Warnings),
	}
	at := s.now()
	if s.audit != nil {
		err := s.audit.Record(ctx, internalShared.AuditLog{
			ClientID: clientID,
			ActorID:  actorID,
			Action:   eventType,
			Entity:   "chart_of_accounts",
			EntityID: fmt.Sprintf("%d", clientID),
			Meta:     meta,
			At:       at,
		})
		if err != nil {
			s.logger.Warn("audit record", slog.String("action", eventType), slog.Any("error", err))
		}
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:        eventType,
		ClientID:    clientID,
		AggregateID: fmt.Sprintf("%d", clientID),
		ActorID:     actorID,
		OccurredAt:  at,
		Data:        meta,
	})
	if err != nil {
		s.logger.Warn("publish event", slog.String("type", eventType), slog.Any("error", err))
	}
}
