// Package accountstest provides an in-memory accounts.Repository with
// transaction rollback, for tests of packages built on the account store.
package accountstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Memory keeps accounts in maps. WithTx holds a global lock, so transactions
// are serial, and restores a snapshot when fn fails.
type Memory struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]accounts.Account
	refs     map[uuid.UUID]int
	posted   map[uuid.UUID]bool

	// Fail, when set, is consulted before every write; a non-nil result aborts it.
	Fail func(op string, a accounts.Account) error
	// Locks counts LockChart calls.
	Locks int
	Now   func() time.Time
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		accounts: make(map[uuid.UUID]accounts.Account),
		refs:     make(map[uuid.UUID]int),
		posted:   make(map[uuid.UUID]bool),
		Now:      time.Now,
	}
}

// Seed inserts accounts directly, assigning ids when missing.
func (m *Memory) Seed(list ...accounts.Account) []accounts.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accounts.Account, 0, len(list))
	for _, a := range list {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		m.accounts[a.ID] = a
		out = append(out, a)
	}
	return out
}

// AddPosting records a journal line against id; posted marks it non-draft.
func (m *Memory) AddPosting(id uuid.UUID, posted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[id]++
	if posted {
		m.posted[id] = true
	}
}

// ByCode returns the stored account for (clientID, code).
func (m *Memory) ByCode(clientID int64, code string) (accounts.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCode(clientID, code)
}

// Len counts all stored accounts.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func (m *Memory) ListAccounts(_ context.Context, clientID int64, filter accounts.ListFilter) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(clientID, filter), nil
}

func (m *Memory) GetAccount(_ context.Context, clientID int64, id uuid.UUID) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(clientID, id)
}

func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[uuid.UUID]accounts.Account, len(m.accounts))
	for k, v := range m.accounts {
		snapshot[k] = v
	}
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.accounts = snapshot
		return err
	}
	return nil
}

func (m *Memory) list(clientID int64, filter accounts.ListFilter) []accounts.Account {
	var out []accounts.Account
	for _, a := range m.accounts {
		if a.ClientID != clientID {
			continue
		}
		if filter.Active != nil && a.IsActive != *filter.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (m *Memory) get(clientID int64, id uuid.UUID) (accounts.Account, error) {
	a, ok := m.accounts[id]
	if !ok || a.ClientID != clientID {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (m *Memory) byCode(clientID int64, code string) (accounts.Account, bool) {
	for _, a := range m.accounts {
		if a.ClientID == clientID && a.Code == code {
			return a, true
		}
	}
	return accounts.Account{}, false
}

func (m *Memory) fail(op string, a accounts.Account) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, a)
}

var _ accounts.Repository = (*Memory)(nil)

type memTx struct {
	m *Memory
}

func (t *memTx) LockChart(context.Context, int64) error {
	t.m.Locks++
	return nil
}

func (t *memTx) ListAccounts(_ context.Context, clientID int64, filter accounts.ListFilter) ([]accounts.Account, error) {
	return t.m.list(clientID, filter), nil
}

func (t *memTx) GetAccountForUpdate(_ context.Context, clientID int64, id uuid.UUID) (accounts.Account, error) {
	return t.m.get(clientID, id)
}

func (t *memTx) GetAccountByCode(_ context.Context, clientID int64, code string) (accounts.Account, error) {
	a, ok := t.m.byCode(clientID, code)
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) InsertAccount(_ context.Context, a accounts.Account) (accounts.Account, error) {
	if err := t.m.fail("insert", a); err != nil {
		return accounts.Account{}, err
	}
	if _, dup := t.m.byCode(a.ClientID, a.Code); dup {
		return accounts.Account{}, shared.ErrDuplicateCode
	}
	if a.ParentID != nil {
		if _, err := t.m.get(a.ClientID, *a.ParentID); err != nil {
			return accounts.Account{}, shared.ErrParentNotFound
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := t.m.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	t.m.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) UpdateAccount(_ context.Context, a accounts.Account) (accounts.Account, error) {
	if err := t.m.fail("update", a); err != nil {
		return accounts.Account{}, err
	}
	current, err := t.m.get(a.ClientID, a.ID)
	if err != nil {
		return accounts.Account{}, err
	}
	if other, dup := t.m.byCode(a.ClientID, a.Code); dup && other.ID != a.ID {
		return accounts.Account{}, shared.ErrDuplicateCode
	}
	a.CreatedAt = current.CreatedAt
	a.UpdatedAt = t.m.Now()
	t.m.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) SetAccountActive(_ context.Context, clientID int64, id uuid.UUID, active bool) error {
	a, err := t.m.get(clientID, id)
	if err != nil {
		return err
	}
	if err := t.m.fail("set_active", a); err != nil {
		return err
	}
	a.IsActive = active
	a.UpdatedAt = t.m.Now()
	t.m.accounts[id] = a
	return nil
}

func (t *memTx) DeleteAccount(_ context.Context, clientID int64, id uuid.UUID) error {
	a, err := t.m.get(clientID, id)
	if err != nil {
		return err
	}
	if err := t.m.fail("delete", a); err != nil {
		return err
	}
	delete(t.m.accounts, id)
	return nil
}

func (t *memTx) CountChildren(_ context.Context, clientID int64, id uuid.UUID) (int, error) {
	n := 0
	for _, a := range t.m.accounts {
		if a.ClientID == clientID && a.ParentID != nil && *a.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountLineReferences(_ context.Context, _ int64, id uuid.UUID) (int, error) {
	return t.m.refs[id], nil
}

func (t *memTx) HasPostings(_ context.Context, clientID int64, id uuid.UUID) (bool, error) {
	a, ok := t.m.accounts[id]
	return ok && a.ClientID == clientID && t.m.posted[id], nil
}

func (t *memTx) AccountsWithPostings(_ context.Context, clientID int64) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	for id := range t.m.posted {
		if a, ok := t.m.accounts[id]; ok && a.ClientID == clientID {
			out[id] = true
		}
	}
	return out, nil
}
