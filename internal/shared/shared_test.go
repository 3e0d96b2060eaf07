package shared

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageFromQuery(t *testing.T) {
	page, per := PageFromQuery(url.Values{"page": {"3"}, "per_page": {"20"}})
	assert.Equal(t, 3, page)
	assert.Equal(t, 20, per)
	assert.Equal(t, 40, Offset(page, per))

	page, per = PageFromQuery(url.Values{"page": {"x"}, "per_page": {"100000"}})
	assert.Equal(t, 1, page)
	assert.Equal(t, maxPerPage, per)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.Page)
}

func TestActorContext(t *testing.T) {
	assert.Zero(t, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), 42)
	assert.Equal(t, int64(42), ActorFromContext(ctx))
}

func TestAuditLogValidate(t *testing.T) {
	assert.Error(t, AuditLog{Action: "a", Entity: "e", EntityID: "1"}.validate())
	assert.Error(t, AuditLog{ClientID: 1, Entity: "e", EntityID: "1"}.validate())
	assert.NoError(t, AuditLog{ClientID: 1, Action: "a", Entity: "e", EntityID: "1"}.validate())
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "ledger:client:7:coa:import", CoAImportLockKey(7))
	assert.Equal(t, "ledger:client:7:coa", CoAWriteLockKey(7))
	assert.Equal(t, "ledger:client:7:entity:3:journal", EntryNumberLockKey(7, 3))
}
