package journals

import "github.com/odyssey-erp/ledger/internal/accounting/shared"

// transitions lists every allowed move. Draft to draft is an edit; void is terminal.
var transitions = map[Status]map[Status]bool{
	StatusDraft:  {StatusDraft: true, StatusPosted: true},
	StatusPosted: {StatusVoid: true},
	StatusVoid:   {},
}

// ValidateTransition rejects any move outside the lifecycle table.
func ValidateTransition(current, requested Status) error {
	if transitions[current][requested] {
		return nil
	}
	return shared.InvalidTransition(string(current), string(requested))
}
