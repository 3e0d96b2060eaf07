package journals

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

// Repository encapsulates DB operations for journals.
type Repository interface {
	GetEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID) (Entry, error)
	ListEntries(ctx context.Context, clientID int64, filter ListFilter) ([]Entry, int, error)
	// PostedEntries loads every posted entry of the tenant with its lines.
	PostedEntries(ctx context.Context, clientID int64) ([]Entry, error)
	// ClientIDs lists tenants that own accounts or entries.
	ClientIDs(ctx context.Context) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// LockEntity serialises numbering and reference checks of one entity.
	LockEntity(ctx context.Context, clientID, entityID int64) error
	NextNumber(ctx context.Context, clientID, entityID int64) (int64, error)
	GetEntryForUpdate(ctx context.Context, clientID, entityID int64, id uuid.UUID) (Entry, error)
	// AccountStates maps each requested account id found in the tenant to its active flag.
	AccountStates(ctx context.Context, clientID int64, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	ReferenceInUse(ctx context.Context, clientID, entityID int64, ref string, exclude uuid.UUID) (bool, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	InsertLines(ctx context.Context, clientID int64, lines []Line) error
	UpdateLines(ctx context.Context, lines []Line) error
	DeleteLines(ctx context.Context, entryID uuid.UUID, ids []uuid.UUID) error
	Referrers(ctx context.Context, clientID int64, id uuid.UUID) ([]Referrer, error)
	DeleteEntry(ctx context.Context, clientID int64, id uuid.UUID) error
}

const entryColumns = `id, client_id, entity_id, number, date, description, reference_number, journal_type, status,
reversal_date, reversal_of, created_by, posted_by, posted_at, voided_by, voided_at, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *repository) GetEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID) (Entry, error) {
	return getEntry(ctx, r.pool, clientID, entityID, id, false)
}

func (r *repository) ListEntries(ctx context.Context, clientID int64, filter ListFilter) ([]Entry, int, error) {
	where := []string{"client_id=$1"}
	args := []any{clientID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.EntityID > 0 {
		add("entity_id=$%d", filter.EntityID)
	}
	if filter.From != nil {
		add("date>=$%d", *filter.From)
	}
	if filter.To != nil {
		add("date<=$%d", *filter.To)
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := filter.Page, filter.PerPage
	args = append(args, perPage, internalShared.Offset(page, perPage))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM journal_entries WHERE %s
ORDER BY date DESC, number DESC LIMIT $%d OFFSET $%d`, entryColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) PostedEntries(ctx context.Context, clientID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE client_id=$1 AND status='POSTED' ORDER BY entity_id, number`, clientID)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lineRows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.client_id=$1 AND e.status='POSTED' ORDER BY l.entry_id, l.line_no`, clientID)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		l, err := scanLine(lineRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[l.EntryID]; ok {
			entries[i].Lines = append(entries[i].Lines, l)
		}
	}
	return entries, lineRows.Err()
}

func (r *repository) ClientIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT client_id FROM accounts UNION SELECT client_id FROM journal_entries ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsRetryable(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

const lineColumns = `l.id, l.entry_id, l.line_no, l.account_id, l.entity_code, l.side, l.amount, l.description`

func getEntry(ctx context.Context, q querier, clientID, entityID int64, id uuid.UUID, lock bool) (Entry, error) {
	sql := `SELECT ` + entryColumns + ` FROM journal_entries WHERE client_id=$1 AND entity_id=$2 AND id=$3`
	if lock {
		sql += ` FOR UPDATE`
	}
	e, err := scanEntry(q.QueryRow(ctx, sql, clientID, entityID, id))
	if err != nil {
		return Entry{}, err
	}
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_lines l WHERE l.entry_id=$1 ORDER BY l.line_no`, e.ID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e                           Entry
		createdBy, postedBy, voided *int64
	)
	err := row.Scan(&e.ID, &e.ClientID, &e.EntityID, &e.Number, &e.Date, &e.Description, &e.ReferenceNumber, &e.JournalType,
		&e.Status, &e.ReversalDate, &e.ReversalOf, &createdBy, &postedBy, &e.PostedAt, &voided, &e.VoidedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	e.CreatedBy, e.PostedBy, e.VoidedBy = deref(createdBy), deref(postedBy), deref(voided)
	return e, nil
}

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.EntityCode, &l.Side, &l.Amount, &l.Description)
	return l, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockEntity(ctx context.Context, clientID, entityID int64) error {
	return db.AdvisoryXactLock(ctx, r.tx, internalShared.EntryNumberLockKey(clientID, entityID))
}

func (r *txRepository) NextNumber(ctx context.Context, clientID, entityID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM journal_entries WHERE client_id=$1 AND entity_id=$2`, clientID, entityID).Scan(&n)
	return n, err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, clientID, entityID int64, id uuid.UUID) (Entry, error) {
	return getEntry(ctx, r.tx, clientID, entityID, id, true)
}

func (r *txRepository) AccountStates(ctx context.Context, clientID int64, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, is_active FROM accounts WHERE client_id=$1 AND id = ANY($2) FOR SHARE`, clientID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var (
			id     uuid.UUID
			active bool
		)
		if err := rows.Scan(&id, &active); err != nil {
			return nil, err
		}
		out[id] = active
	}
	return out, rows.Err()
}

func (r *txRepository) ReferenceInUse(ctx context.Context, clientID, entityID int64, ref string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries
WHERE client_id=$1 AND entity_id=$2 AND reference_number=$3 AND id<>$4 AND status<>'VOID')`, clientID, entityID, ref, exclude).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (id, client_id, entity_id, number, date, description, reference_number,
journal_type, status, reversal_date, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING created_at, updated_at`,
		e.ID, e.ClientID, e.EntityID, e.Number, e.Date, e.Description, e.ReferenceNumber,
		e.JournalType, e.Status, e.ReversalDate, e.ReversalOf, nullInt(e.CreatedBy))
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) UpdateEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE journal_entries SET date=$3, description=$4, reference_number=$5, journal_type=$6,
status=$7, reversal_date=$8, posted_by=$9, posted_at=$10, voided_by=$11, voided_at=$12, updated_at=NOW()
WHERE client_id=$1 AND id=$2 RETURNING updated_at`,
		e.ClientID, e.ID, e.Date, e.Description, e.ReferenceNumber, e.JournalType,
		e.Status, e.ReversalDate, nullInt(e.PostedBy), e.PostedAt, nullInt(e.VoidedBy), e.VoidedAt)
	if err := row.Scan(&e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, clientID int64, lines []Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO journal_lines (id, entry_id, client_id, line_no, account_id, entity_code, side, amount, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, l.ID, l.EntryID, clientID, l.LineNo, l.AccountID, l.EntityCode, l.Side, l.Amount, l.Description)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) UpdateLines(ctx context.Context, lines []Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`UPDATE journal_lines SET line_no=$3, account_id=$4, entity_code=$5, side=$6, amount=$7, description=$8
WHERE entry_id=$1 AND id=$2`, l.EntryID, l.ID, l.LineNo, l.AccountID, l.EntityCode, l.Side, l.Amount, l.Description)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) DeleteLines(ctx context.Context, entryID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1 AND id = ANY($2)`, entryID, ids)
	return err
}

func (r *txRepository) Referrers(ctx context.Context, clientID int64, id uuid.UUID) ([]Referrer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, number, status FROM journal_entries WHERE client_id=$1 AND reversal_of=$2 ORDER BY number`, clientID, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Referrer
	for rows.Next() {
		var ref Referrer
		if err := rows.Scan(&ref.ID, &ref.Number, &ref.Status); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteEntry(ctx context.Context, clientID int64, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE client_id=$1 AND id=$2`, clientID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrReferenced
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
