// Package journalstest provides an in-memory journals.Repository with
// transaction rollback.
package journalstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

type accountKey struct {
	clientID int64
	id       uuid.UUID
}

// Memory keeps entries, lines included, keyed by id. WithTx is serial and
// restores a snapshot when fn fails.
type Memory struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]journals.Entry
	accounts map[accountKey]bool

	// Fail, when set, is consulted before every write; a non-nil result aborts it.
	Fail func(op string) error
	Now  func() time.Time
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		entries:  make(map[uuid.UUID]journals.Entry),
		accounts: make(map[accountKey]bool),
		Now:      time.Now,
	}
}

// SetAccount registers an account id for the tenant.
func (m *Memory) SetAccount(clientID int64, id uuid.UUID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountKey{clientID, id}] = active
}

// Put stores e as is, bypassing validation.
func (m *Memory) Put(e journals.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = clone(e)
}

// Len counts stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) GetEntry(_ context.Context, clientID, entityID int64, id uuid.UUID) (journals.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(clientID, entityID, id)
}

func (m *Memory) ListEntries(_ context.Context, clientID int64, f journals.ListFilter) ([]journals.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journals.Entry
	for _, e := range m.entries {
		switch {
		case e.ClientID != clientID,
			f.EntityID > 0 && e.EntityID != f.EntityID,
			f.From != nil && e.Date.Before(*f.From),
			f.To != nil && e.Date.After(*f.To),
			f.Status != "" && e.Status != f.Status:
			continue
		}
		e.Lines = nil
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Number > out[j].Number
	})
	total := len(out)
	start := (f.Page - 1) * f.PerPage
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *Memory) PostedEntries(_ context.Context, clientID int64) ([]journals.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journals.Entry
	for _, e := range m.entries {
		if e.ClientID == clientID && e.Status == journals.StatusPosted {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *Memory) ClientIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]bool{}
	for k := range m.accounts {
		seen[k.clientID] = true
	}
	for _, e := range m.entries {
		seen[e.ClientID] = true
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[uuid.UUID]journals.Entry, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = clone(v)
	}
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.entries = snapshot
		return err
	}
	return nil
}

func (m *Memory) get(clientID, entityID int64, id uuid.UUID) (journals.Entry, error) {
	e, ok := m.entries[id]
	if !ok || e.ClientID != clientID || e.EntityID != entityID {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	return clone(e), nil
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func clone(e journals.Entry) journals.Entry {
	e.Lines = append([]journals.Line(nil), e.Lines...)
	e.Warnings = nil
	return e
}

var _ journals.Repository = (*Memory)(nil)

type memTx struct {
	m *Memory
}

func (t *memTx) LockEntity(context.Context, int64, int64) error { return nil }

func (t *memTx) NextNumber(_ context.Context, clientID, entityID int64) (int64, error) {
	var n int64
	for _, e := range t.m.entries {
		if e.ClientID == clientID && e.EntityID == entityID && e.Number > n {
			n = e.Number
		}
	}
	return n + 1, nil
}

func (t *memTx) GetEntryForUpdate(_ context.Context, clientID, entityID int64, id uuid.UUID) (journals.Entry, error) {
	return t.m.get(clientID, entityID, id)
}

func (t *memTx) AccountStates(_ context.Context, clientID int64, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if active, ok := t.m.accounts[accountKey{clientID, id}]; ok {
			out[id] = active
		}
	}
	return out, nil
}

func (t *memTx) ReferenceInUse(_ context.Context, clientID, entityID int64, ref string, exclude uuid.UUID) (bool, error) {
	for _, e := range t.m.entries {
		if e.ClientID == clientID && e.EntityID == entityID && e.ReferenceNumber == ref && e.ID != exclude && e.Status != journals.StatusVoid {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertEntry(_ context.Context, e journals.Entry) (journals.Entry, error) {
	if err := t.m.fail("insert_entry"); err != nil {
		return journals.Entry{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := t.m.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	e.Lines = nil
	t.m.entries[e.ID] = e
	return e, nil
}

func (t *memTx) UpdateEntry(_ context.Context, e journals.Entry) (journals.Entry, error) {
	if err := t.m.fail("update_entry"); err != nil {
		return journals.Entry{}, err
	}
	current, ok := t.m.entries[e.ID]
	if !ok || current.ClientID != e.ClientID {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = t.m.Now()
	stored := e
	stored.Lines = current.Lines
	stored.Warnings = nil
	t.m.entries[e.ID] = stored
	return e, nil
}

func (t *memTx) InsertLines(_ context.Context, _ int64, lines []journals.Line) error {
	if len(lines) == 0 {
		return nil
	}
	if err := t.m.fail("insert_lines"); err != nil {
		return err
	}
	for _, l := range lines {
		e := t.m.entries[l.EntryID]
		e.Lines = append(e.Lines, l)
		t.m.entries[l.EntryID] = e
	}
	t.sortLines(lines)
	return nil
}

func (t *memTx) UpdateLines(_ context.Context, lines []journals.Line) error {
	if len(lines) == 0 {
		return nil
	}
	if err := t.m.fail("update_lines"); err != nil {
		return err
	}
	for _, l := range lines {
		e := t.m.entries[l.EntryID]
		for i := range e.Lines {
			if e.Lines[i].ID == l.ID {
				e.Lines[i] = l
			}
		}
		t.m.entries[l.EntryID] = e
	}
	t.sortLines(lines)
	return nil
}

func (t *memTx) DeleteLines(_ context.Context, entryID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := t.m.fail("delete_lines"); err != nil {
		return err
	}
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	e := t.m.entries[entryID]
	kept := e.Lines[:0:0]
	for _, l := range e.Lines {
		if !drop[l.ID] {
			kept = append(kept, l)
		}
	}
	e.Lines = kept
	t.m.entries[entryID] = e
	return nil
}

func (t *memTx) Referrers(_ context.Context, clientID int64, id uuid.UUID) ([]journals.Referrer, error) {
	var out []journals.Referrer
	for _, e := range t.m.entries {
		if e.ClientID == clientID && e.ReversalOf != nil && *e.ReversalOf == id {
			out = append(out, journals.Referrer{ID: e.ID, Number: e.Number, Status: e.Status})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (t *memTx) DeleteEntry(_ context.Context, clientID int64, id uuid.UUID) error {
	if err := t.m.fail("delete_entry"); err != nil {
		return err
	}
	e, ok := t.m.entries[id]
	if !ok || e.ClientID != clientID {
		return shared.ErrJournalNotFound
	}
	delete(t.m.entries, id)
	return nil
}

func (t *memTx) sortLines(lines []journals.Line) {
	touched := map[uuid.UUID]bool{}
	for _, l := range lines {
		touched[l.EntryID] = true
	}
	for id := range touched {
		e := t.m.entries[id]
		sort.Slice(e.Lines, func(i, j int) bool { return e.Lines[i].LineNo < e.Lines[j].LineNo })
		t.m.entries[id] = e
	}
}
