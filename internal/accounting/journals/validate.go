package journals

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/shopspring/decimal"
)

// Balance is the outcome of ValidateBalance.
type Balance struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	// Delta is debits minus credits.
	Delta decimal.Decimal
}

// Balanced reports exact fixed-point equality of both sides.
func (b Balance) Balanced() bool {
	return b.Delta.IsZero()
}

// ValidateBalance sums both sides of lines.
func ValidateBalance(lines []LineInput) Balance {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		switch l.Side {
		case SideDebit:
			debit = debit.Add(l.Amount)
		case SideCredit:
			credit = credit.Add(l.Amount)
		}
	}
	return Balance{DebitTotal: debit, CreditTotal: credit, Delta: debit.Sub(credit)}
}

// ValidateEntityBalances groups lines by entity code and returns every group
// that does not balance, ordered by code. An entry touching a single entity
// code has nothing to report beyond the entry-wide check.
func ValidateEntityBalances(lines []LineInput) []shared.EntityImbalance {
	groups := make(map[string][]LineInput)
	for _, l := range lines {
		groups[l.EntityCode] = append(groups[l.EntityCode], l)
	}
	if len(groups) < 2 {
		return nil
	}
	var out []shared.EntityImbalance
	for code, group := range groups {
		b := ValidateBalance(group)
		if b.Balanced() {
			continue
		}
		out = append(out, shared.EntityImbalance{
			EntityCode:  code,
			DebitTotal:  b.DebitTotal,
			CreditTotal: b.CreditTotal,
			Delta:       b.Delta,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityCode < out[j].EntityCode })
	return out
}

// ValidateCompleteness checks header fields and that every line names an
// account, one side and a positive amount of at most AmountScale digits.
func ValidateCompleteness(in EntryInput) error {
	var fields []string
	if in.ClientID <= 0 {
		fields = append(fields, "clientId")
	}
	if in.EntityID <= 0 {
		fields = append(fields, "entityId")
	}
	if in.Date.IsZero() {
		fields = append(fields, "date")
	}
	if in.Description == "" {
		fields = append(fields, "description")
	}
	if len(in.Lines) == 0 {
		fields = append(fields, "lines")
	}
	for i, l := range in.Lines {
		if l.AccountID == uuid.Nil {
			fields = append(fields, fmt.Sprintf("lines[%d].accountId", i))
		}
		if l.Side != SideDebit && l.Side != SideCredit {
			fields = append(fields, fmt.Sprintf("lines[%d].type", i))
		}
		if !l.Amount.IsPositive() || !l.Amount.Equal(l.Amount.Truncate(AmountScale)) {
			fields = append(fields, fmt.Sprintf("lines[%d].amount", i))
		}
	}
	if len(fields) > 0 {
		return shared.Incomplete(fields...)
	}
	return nil
}

// Validate runs completeness, then the entry-wide balance, then the
// per-entity balance. The first failing check is returned.
func Validate(in EntryInput) error {
	if err := ValidateCompleteness(in); err != nil {
		return err
	}
	if b := ValidateBalance(in.Lines); !b.Balanced() {
		return shared.Unbalanced(b.DebitTotal, b.CreditTotal)
	}
	if groups := ValidateEntityBalances(in.Lines); len(groups) > 0 {
		return &shared.ValidationError{Kind: shared.KindEntityUnbalanced, Entities: groups}
	}
	return nil
}
