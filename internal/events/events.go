// Package events publishes ledger domain events after commit.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeAccountCreated = "ledger.account.created"
	TypeAccountUpdated = "ledger.account.updated"
	TypeCoAImported    = "ledger.coa.imported"
	TypeCoASeeded      = "ledger.coa.seeded"
	TypeEntryCreated   = "ledger.entry.created"
	TypeEntryPosted    = "ledger.entry.posted"
	TypeEntryVoided    = "ledger.entry.voided"
	TypeEntryDeleted   = "ledger.entry.deleted"
	TypeEntryReversed  = "ledger.entry.reversed"
)

// Event is the envelope written to the bus.
type Event struct {
	Type        string         `json:"type"`
	ClientID    int64          `json:"clientId"`
	EntityID    int64          `json:"entityId,omitempty"`
	AggregateID string         `json:"aggregateId"`
	ActorID     int64          `json:"actorId,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Data        map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

// Recorder keeps events in memory, for tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.Events = append(r.Events, events...)
	return nil
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
