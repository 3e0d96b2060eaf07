package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// Repository exposes read paths and the transactional boundary for CoA writes.
type Repository interface {
	ListAccounts(ctx context.Context, clientID int64, filter ListFilter) ([]Account, error)
	GetAccount(ctx context.Context, clientID int64, id uuid.UUID) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// LockChart serialises writers of one tenant's chart until the tx ends.
	LockChart(ctx context.Context, clientID int64) error
	ListAccounts(ctx context.Context, clientID int64, filter ListFilter) ([]Account, error)
	GetAccountForUpdate(ctx context.Context, clientID int64, id uuid.UUID) (Account, error)
	GetAccountByCode(ctx context.Context, clientID int64, code string) (Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	UpdateAccount(ctx context.Context, a Account) (Account, error)
	SetAccountActive(ctx context.Context, clientID int64, id uuid.UUID, active bool) error
	DeleteAccount(ctx context.Context, clientID int64, id uuid.UUID) error
	CountChildren(ctx context.Context, clientID int64, id uuid.UUID) (int, error)
	CountLineReferences(ctx context.Context, clientID int64, id uuid.UUID) (int, error)
	// HasPostings reports whether a posted or void journal line references id.
	HasPostings(ctx context.Context, clientID int64, id uuid.UUID) (bool, error)
	// AccountsWithPostings returns ids referenced by at least one posted or
	// void journal line.
	AccountsWithPostings(ctx context.Context, clientID int64) (map[uuid.UUID]bool, error)
}

const accountColumns = `id, client_id, code, name, type, subtype, description, fsli_bucket,
internal_reporting_bucket, item, parent_id, is_active, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListAccounts(ctx context.Context, clientID int64, filter ListFilter) ([]Account, error) {
	return listAccounts(ctx, r.pool, clientID, filter)
}

func (r *repository) GetAccount(ctx context.Context, clientID int64, id uuid.UUID) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND id=$2`, clientID, id)
	return scanAccount(row)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return MapTxError(err)
}

// MapTxError turns driver errors into accounting sentinels.
func MapTxError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "uq_accounts_client_code"):
		return fmt.Errorf("%w: %v", shared.ErrDuplicateCode, err)
	case db.IsRetryable(err):
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listAccounts(ctx context.Context, q querier, clientID int64, filter ListFilter) ([]Account, error) {
	sql := `SELECT ` + accountColumns + ` FROM accounts WHERE client_id=$1`
	args := []any{clientID}
	if filter.Active != nil {
		sql += ` AND is_active=$2`
		args = append(args, *filter.Active)
	}
	rows, err := q.Query(ctx, sql+` ORDER BY code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.ClientID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.Description, &a.FSLIBucket,
		&a.InternalReportingBucket, &a.Item, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction, for callers that compose
// account writes with their own statements.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockChart(ctx context.Context, clientID int64) error {
	return db.AdvisoryXactLock(ctx, r.tx, internalShared.CoAWriteLockKey(clientID))
}

func (r *txRepository) ListAccounts(ctx context.Context, clientID int64, filter ListFilter) ([]Account, error) {
	return listAccounts(ctx, r.tx, clientID, filter)
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, clientID int64, id uuid.UUID) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND id=$2 FOR UPDATE`, clientID, id)
	return scanAccount(row)
}

func (r *txRepository) GetAccountByCode(ctx context.Context, clientID int64, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND code=$2`, clientID, code)
	return scanAccount(row)
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (id, client_id, code, name, type, subtype, description, fsli_bucket,
internal_reporting_bucket, item, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.Code, a.Name, a.Type, a.Subtype, a.Description, a.FSLIBucket,
		a.InternalReportingBucket, a.Item, a.ParentID, a.IsActive)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET code=$3, name=$4, type=$5, subtype=$6, description=$7, fsli_bucket=$8,
internal_reporting_bucket=$9, item=$10, parent_id=$11, is_active=$12, updated_at=NOW()
WHERE client_id=$1 AND id=$2 RETURNING updated_at`,
		a.ClientID, a.ID, a.Code, a.Name, a.Type, a.Subtype, a.Description, a.FSLIBucket,
		a.InternalReportingBucket, a.Item, a.ParentID, a.IsActive)
	if err := row.Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) SetAccountActive(ctx context.Context, clientID int64, id uuid.UUID, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE client_id=$1 AND id=$2`, clientID, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, clientID int64, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE client_id=$1 AND id=$2`, clientID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrHasDependents
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) CountChildren(ctx context.Context, clientID int64, id uuid.UUID) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE client_id=$1 AND parent_id=$2`, clientID, id).Scan(&n)
	return n, err
}

func (r *txRepository) CountLineReferences(ctx context.Context, clientID int64, id uuid.UUID) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines l
JOIN journal_entries e ON e.client_id = l.client_id AND e.id = l.entry_id
WHERE e.client_id=$1 AND l.account_id=$2`, clientID, id).Scan(&n)
	return n, err
}

func (r *txRepository) HasPostings(ctx context.Context, clientID int64, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines l
JOIN journal_entries e ON e.client_id = l.client_id AND e.id = l.entry_id
WHERE e.client_id=$1 AND l.account_id=$2 AND e.status <> 'DRAFT')`, clientID, id).Scan(&ok)
	return ok, err
}

func (r *txRepository) AccountsWithPostings(ctx context.Context, clientID int64) (map[uuid.UUID]bool, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT l.account_id FROM journal_lines l
JOIN journal_entries e ON e.client_id = l.client_id AND e.id = l.entry_id
WHERE e.client_id=$1 AND e.status <> 'DRAFT'`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// NormalizeCode trims surrounding whitespace; codes are otherwise compared verbatim.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}
