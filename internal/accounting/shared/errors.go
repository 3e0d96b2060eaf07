package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrEntityUnbalanced indicates an intercompany slice does not balance.
	ErrEntityUnbalanced = errors.New("accounting: entity lines must balance")
	// ErrIncomplete indicates missing or malformed entry fields.
	ErrIncomplete = errors.New("accounting: journal entry incomplete")
	// ErrInvalidAccount indicates a line references a missing or inactive account.
	ErrInvalidAccount = errors.New("accounting: invalid account reference")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrEntryLocked indicates an edit that the entry status does not allow.
	ErrEntryLocked = errors.New("accounting: journal entry is not editable")
	// ErrMustVoid indicates a hard delete on a non-draft entry.
	ErrMustVoid = errors.New("accounting: only draft entries can be deleted, void it instead")
	// ErrReferenced indicates another entry points at this one.
	ErrReferenced = errors.New("accounting: journal entry is referenced by another entry")
	// ErrAlreadyReversed indicates a live reversal already exists for the entry.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")

	// ErrAccountNotFound indicates a missing account within the tenant.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrDuplicateCode indicates (client, code) is already taken.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrParentNotFound indicates parent id does not resolve within the tenant.
	ErrParentNotFound = errors.New("accounting: parent account not found")
	// ErrCycle indicates the parent assignment would make an account its own ancestor.
	ErrCycle = errors.New("accounting: parent assignment creates a cycle")
	// ErrHasDependents indicates children or journal lines still reference the account.
	ErrHasDependents = errors.New("accounting: account has dependents, deactivate it instead")
	// ErrInvalidAccountType indicates an unknown account type.
	ErrInvalidAccountType = errors.New("accounting: invalid account type")
	// ErrAccountTypeInUse indicates a type change on an account that already has postings.
	ErrAccountTypeInUse = errors.New("accounting: account type cannot change once it has postings")
	// ErrInvalidAccountInput indicates missing account fields.
	ErrInvalidAccountInput = errors.New("accounting: invalid account input")

	// ErrInvalidImport indicates an import-blocking structural problem.
	ErrInvalidImport = errors.New("accounting: import rejected")
	// ErrAlreadySeeded indicates the tenant chart of accounts is not empty.
	ErrAlreadySeeded = errors.New("accounting: chart of accounts already populated")
	// ErrUnknownTemplate indicates a missing chart template.
	ErrUnknownTemplate = errors.New("accounting: unknown chart template")

	// ErrConflict indicates a concurrent writer won; the caller may retry.
	ErrConflict = errors.New("accounting: conflict, retry")
)
