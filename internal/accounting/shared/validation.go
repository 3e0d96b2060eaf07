package shared

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationKind classifies journal validation failures.
type ValidationKind string

const (
	KindUnbalanced        ValidationKind = "unbalanced"
	KindEntityUnbalanced  ValidationKind = "entity_unbalanced"
	KindIncomplete        ValidationKind = "incomplete"
	KindInvalidTransition ValidationKind = "invalid_transition"
	KindInvalidAccount    ValidationKind = "invalid_account"
)

// EntityImbalance reports the totals of one unbalanced entity slice.
type EntityImbalance struct {
	EntityCode  string          `json:"entityCode"`
	DebitTotal  decimal.Decimal `json:"debitTotal"`
	CreditTotal decimal.Decimal `json:"creditTotal"`
	Delta       decimal.Decimal `json:"delta"`
}

// ValidationError is the structured rejection returned before any journal write.
type ValidationError struct {
	Kind        ValidationKind    `json:"kind"`
	DebitTotal  *decimal.Decimal  `json:"debitTotal,omitempty"`
	CreditTotal *decimal.Decimal  `json:"creditTotal,omitempty"`
	Delta       *decimal.Decimal  `json:"delta,omitempty"`
	Entities    []EntityImbalance `json:"entities,omitempty"`
	Fields      []string          `json:"fields,omitempty"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindUnbalanced:
		return fmt.Sprintf("%s: debits %s, credits %s", ErrUnbalanced, e.DebitTotal, e.CreditTotal)
	case KindEntityUnbalanced:
		codes := make([]string, 0, len(e.Entities))
		for _, ent := range e.Entities {
			codes = append(codes, ent.EntityCode)
		}
		return fmt.Sprintf("%s: %s", ErrEntityUnbalanced, strings.Join(codes, ", "))
	case KindIncomplete:
		return fmt.Sprintf("%s: %s", ErrIncomplete, strings.Join(e.Fields, ", "))
	case KindInvalidTransition:
		return fmt.Sprintf("%s: %s -> %s", ErrInvalidStatus, e.From, e.To)
	case KindInvalidAccount:
		return fmt.Sprintf("%s: %s", ErrInvalidAccount, strings.Join(e.Fields, ", "))
	default:
		return "accounting: validation failed"
	}
}

// Unwrap exposes the sentinel matching the kind so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	switch e.Kind {
	case KindUnbalanced:
		return ErrUnbalanced
	case KindEntityUnbalanced:
		return ErrEntityUnbalanced
	case KindIncomplete:
		return ErrIncomplete
	case KindInvalidTransition:
		return ErrInvalidStatus
	case KindInvalidAccount:
		return ErrInvalidAccount
	default:
		return nil
	}
}

// Unbalanced builds a KindUnbalanced error from computed totals.
func Unbalanced(debit, credit decimal.Decimal) *ValidationError {
	delta := debit.Sub(credit)
	return &ValidationError{Kind: KindUnbalanced, DebitTotal: &debit, CreditTotal: &credit, Delta: &delta}
}

// Incomplete builds a KindIncomplete error listing offending field paths.
func Incomplete(fields ...string) *ValidationError {
	return &ValidationError{Kind: KindIncomplete, Fields: fields}
}

// InvalidTransition builds a KindInvalidTransition error.
func InvalidTransition(from, to string) *ValidationError {
	return &ValidationError{Kind: KindInvalidTransition, From: from, To: to}
}
