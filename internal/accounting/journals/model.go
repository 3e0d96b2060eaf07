package journals

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusDraft, StatusPosted, StatusVoid:
		return s, true
	}
	return "", false
}

// Side marks a line as debit or credit.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// ParseSide accepts any letter case.
func ParseSide(raw string) (Side, bool) {
	s := Side(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case SideDebit, SideCredit:
		return s, true
	}
	return "", false
}

// Opposite swaps debit and credit.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// AmountScale is the number of fractional digits stored for line amounts.
const AmountScale = 4

// JournalTypeStandard is the default classifier; reversals use JournalTypeReversal.
const (
	JournalTypeStandard = "standard"
	JournalTypeReversal = "reversal"
)

// Entry captures a journal entry header and its ordered lines.
type Entry struct {
	ID              uuid.UUID  `json:"id"`
	ClientID        int64      `json:"clientId"`
	EntityID        int64      `json:"entityId"`
	Number          int64      `json:"number"`
	Date            time.Time  `json:"date"`
	Description     string     `json:"description"`
	ReferenceNumber string     `json:"referenceNumber,omitempty"`
	JournalType     string     `json:"journalType"`
	Status          Status     `json:"status"`
	ReversalDate    *time.Time `json:"reversalDate,omitempty"`
	ReversalOf      *uuid.UUID `json:"reversalOf,omitempty"`
	CreatedBy       int64      `json:"createdBy,omitempty"`
	PostedBy        int64      `json:"postedBy,omitempty"`
	PostedAt        *time.Time `json:"postedAt,omitempty"`
	VoidedBy        int64      `json:"voidedBy,omitempty"`
	VoidedAt        *time.Time `json:"voidedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Lines           []Line     `json:"lines,omitempty"`
	// Warnings carries advisory findings of the last write; it is not stored.
	Warnings []string `json:"warnings,omitempty"`
}

// Line stores one side of a posting.
type Line struct {
	ID          uuid.UUID       `json:"id"`
	EntryID     uuid.UUID       `json:"entryId"`
	LineNo      int             `json:"lineNo"`
	AccountID   uuid.UUID       `json:"accountId"`
	EntityCode  string          `json:"entityCode,omitempty"`
	Side        Side            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// Debit returns the amount when the line is a debit, else zero.
func (l Line) Debit() decimal.Decimal {
	if l.Side == SideDebit {
		return l.Amount
	}
	return decimal.Zero
}

// Credit returns the amount when the line is a credit, else zero.
func (l Line) Credit() decimal.Decimal {
	if l.Side == SideCredit {
		return l.Amount
	}
	return decimal.Zero
}

// LineInput is a proposed line. ID is set when an update keeps an existing line.
type LineInput struct {
	ID          *uuid.UUID
	AccountID   uuid.UUID
	EntityCode  string
	Side        Side
	Amount      decimal.Decimal
	Description string
}

// EntryInput is a proposed entry for create and for re-validation.
type EntryInput struct {
	ClientID        int64
	EntityID        int64
	Date            time.Time
	Description     string
	ReferenceNumber string
	JournalType     string
	ReversalDate    *time.Time
	ActorID         int64
	Lines           []LineInput
}

// UpdateInput patches an entry. Nil members are left unchanged; Lines, when
// set, replaces the whole line set.
type UpdateInput struct {
	Date            *time.Time
	Description     *string
	ReferenceNumber *string
	JournalType     *string
	ReversalDate    *time.Time
	ClearReversal   bool
	Lines           *[]LineInput
	ActorID         int64
}

// touchesOnlyMetadata reports whether the patch edits nothing but the fields
// a posted entry still accepts.
func (in UpdateInput) touchesOnlyMetadata() bool {
	return in.Date == nil && in.JournalType == nil && in.ReversalDate == nil && !in.ClearReversal && in.Lines == nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	ActorID int64
	Reason  string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	ActorID     int64
	Description string
	Date        *time.Time
}

// ListFilter narrows ListEntries. EntityID zero lists every entity of the tenant.
type ListFilter struct {
	EntityID int64
	From     *time.Time
	To       *time.Time
	Status   Status
	Page     int
	PerPage  int
}

// Referrer is an entry pointing at another through reversalOf.
type Referrer struct {
	ID     uuid.UUID
	Number int64
	Status Status
}

func (e Entry) input() EntryInput {
	lines := make([]LineInput, 0, len(e.Lines))
	for _, l := range e.Lines {
		id := l.ID
		lines = append(lines, LineInput{
			ID:          &id,
			AccountID:   l.AccountID,
			EntityCode:  l.EntityCode,
			Side:        l.Side,
			Amount:      l.Amount,
			Description: l.Description,
		})
	}
	return EntryInput{
		ClientID:        e.ClientID,
		EntityID:        e.EntityID,
		Date:            e.Date,
		Description:     e.Description,
		ReferenceNumber: e.ReferenceNumber,
		JournalType:     e.JournalType,
		ReversalDate:    e.ReversalDate,
		Lines:           lines,
	}
}
