package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// AuditPort records audit trail entries after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service implements the account store.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the account store. audit may be nil.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListAccounts returns the tenant's accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, clientID int64, filter ListFilter) ([]Account, error) {
	return s.repo.ListAccounts(ctx, clientID, filter)
}

// GetAccount loads one account within the tenant.
func (s *Service) GetAccount(ctx context.Context, clientID int64, id uuid.UUID) (Account, error) {
	return s.repo.GetAccount(ctx, clientID, id)
}

// GetTree materialises the tenant forest. Anomalies are logged and returned,
// they never fail the call.
func (s *Service) GetTree(ctx context.Context, clientID int64) (Forest, error) {
	accounts, err := s.repo.ListAccounts(ctx, clientID, ListFilter{})
	if err != nil {
		return Forest{}, fmt.Errorf("get tree: %w", err)
	}
	forest := BuildForest(accounts)
	for _, a := range forest.Anomalies {
		s.logger.Warn("coa tree anomaly",
			slog.Int64("client_id", clientID),
			slog.String("account_code", a.Code),
			slog.String("kind", string(a.Kind)))
	}
	return forest, nil
}

// CreateAccount inserts a new active account.
func (s *Service) CreateAccount(ctx context.Context, clientID int64, in CreateInput) (Account, error) {
	in.Code = NormalizeCode(in.Code)
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockChart(ctx, clientID); err != nil {
			return err
		}
		if err := ensureCodeFree(ctx, tx, clientID, in.Code, uuid.Nil); err != nil {
			return err
		}
		if in.ParentID != nil {
			if err := ensureParent(ctx, tx, clientID, *in.ParentID); err != nil {
				return err
			}
		}
		inserted, err := tx.InsertAccount(ctx, Account{
			ID:                      uuid.New(),
			ClientID:                clientID,
			Code:                    in.Code,
			Name:                    in.Name,
			Type:                    in.Type,
			Subtype:                 in.Subtype,
			Description:             in.Description,
			FSLIBucket:              in.FSLIBucket,
			InternalReportingBucket: in.InternalReportingBucket,
			Item:                    in.Item,
			ParentID:                in.ParentID,
			IsActive:                true,
		})
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	s.record(ctx, clientID, in.ActorID, "account.create", created, map[string]any{"code": created.Code})
	return created, nil
}

// UpdateAccount applies a patch, rejecting cycles, duplicate codes and type
// changes on accounts that journal lines already reference.
func (s *Service) UpdateAccount(ctx context.Context, clientID int64, id uuid.UUID, in UpdateInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockChart(ctx, clientID); err != nil {
			return err
		}
		current, err := tx.GetAccountForUpdate(ctx, clientID, id)
		if err != nil {
			return err
		}
		next, err := in.apply(current)
		if err != nil {
			return err
		}
		if next.Code != current.Code {
			if err := ensureCodeFree(ctx, tx, clientID, next.Code, id); err != nil {
				return err
			}
		}
		if next.Type != current.Type {
			posted, err := tx.HasPostings(ctx, clientID, id)
			if err != nil {
				return err
			}
			if posted {
				return shared.ErrAccountTypeInUse
			}
		}
		if !SameParent(next.ParentID, current.ParentID) && next.ParentID != nil {
			if err := ensureParent(ctx, tx, clientID, *next.ParentID); err != nil {
				return err
			}
			all, err := tx.ListAccounts(ctx, clientID, ListFilter{})
			if err != nil {
				return err
			}
			if CreatesCycle(ParentIndex(all), id, *next.ParentID) {
				return shared.ErrCycle
			}
		}
		saved, err := tx.UpdateAccount(ctx, next)
		if err != nil {
			return err
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	s.record(ctx, clientID, in.ActorID, "account.update", updated, nil)
	return updated, nil
}

// DeactivateAccount retires the account. It never checks dependents.
func (s *Service) DeactivateAccount(ctx context.Context, clientID int64, id uuid.UUID, actorID int64) (Account, error) {
	var acct Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.SetAccountActive(ctx, clientID, id, false); err != nil {
			return err
		}
		loaded, err := tx.GetAccountForUpdate(ctx, clientID, id)
		if err != nil {
			return err
		}
		acct = loaded
		return nil
	})
	if err != nil {
		return Account{}, fmt.Errorf("deactivate account: %w", err)
	}
	s.record(ctx, clientID, actorID, "account.deactivate", acct, nil)
	return acct, nil
}

// DeleteAccount hard deletes an account with no children and no journal lines.
func (s *Service) DeleteAccount(ctx context.Context, clientID int64, id uuid.UUID, actorID int64) error {
	var acct Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockChart(ctx, clientID); err != nil {
			return err
		}
		current, err := tx.GetAccountForUpdate(ctx, clientID, id)
		if err != nil {
			return err
		}
		children, err := tx.CountChildren(ctx, clientID, id)
		if err != nil {
			return err
		}
		refs, err := tx.CountLineReferences(ctx, clientID, id)
		if err != nil {
			return err
		}
		if children > 0 || refs > 0 {
			return fmt.Errorf("%w: %d children, %d journal lines", shared.ErrHasDependents, children, refs)
		}
		acct = current
		return tx.DeleteAccount(ctx, clientID, id)
	})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.record(ctx, clientID, actorID, "account.delete", acct, map[string]any{"code": acct.Code})
	return nil
}

func (s *Service) record(ctx context.Context, clientID, actorID int64, action string, a Account, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, internalShared.AuditLog{
		ClientID: clientID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: a.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func ensureCodeFree(ctx context.Context, tx TxRepository, clientID int64, code string, self uuid.UUID) error {
	existing, err := tx.GetAccountByCode(ctx, clientID, code)
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == self:
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrDuplicateCode, code)
}

func ensureParent(ctx context.Context, tx TxRepository, clientID int64, parentID uuid.UUID) error {
	if _, err := tx.GetAccountForUpdate(ctx, clientID, parentID); err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", shared.ErrParentNotFound, parentID)
		}
		return err
	}
	return nil
}
