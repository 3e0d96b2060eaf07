package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed request keys per tenant.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyNotFound means the key is not stored.
	ErrIdempotencyNotFound = errors.New("idempotency key not found")
)

// CheckAndInsert ensures key uniqueness per tenant and module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, clientID int64, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (client_id, key, module, created_at) VALUES ($1, $2, $3, $4)`, clientID, key, module, s.now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Complete stores the response served for key so repeats can replay it.
func (s *IdempotencyStore) Complete(ctx context.Context, clientID int64, key string, response []byte) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET response=$3 WHERE client_id=$1 AND key=$2`, clientID, key, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyNotFound
	}
	return nil
}

// Lookup returns the stored response for key. A nil response with a nil
// error means the first request is still in flight.
func (s *IdempotencyStore) Lookup(ctx context.Context, clientID int64, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("idempotency store not initialised")
	}
	var response []byte
	err := s.pool.QueryRow(ctx, `SELECT response FROM idempotency_keys WHERE client_id=$1 AND key=$2`, clientID, key).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIdempotencyNotFound
	}
	return response, err
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, clientID int64, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE client_id=$1 AND key=$2`, clientID, key)
	return err
}
