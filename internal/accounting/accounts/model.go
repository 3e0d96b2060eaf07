package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists the closed set in statement order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// Valid reports whether t is one of the known types.
func (t AccountType) Valid() bool {
	for _, known := range AccountTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAccountType accepts any casing, e.g. "Asset" or "asset".
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, raw)
	}
	return t, nil
}

// Account models a chart of accounts node.
type Account struct {
	ID                      uuid.UUID   `json:"id"`
	ClientID                int64       `json:"clientId"`
	Code                    string      `json:"code"`
	Name                    string      `json:"name"`
	Type                    AccountType `json:"type"`
	Subtype                 string      `json:"subtype,omitempty"`
	Description             string      `json:"description,omitempty"`
	FSLIBucket              string      `json:"fsliBucket,omitempty"`
	InternalReportingBucket string      `json:"internalReportingBucket,omitempty"`
	Item                    string      `json:"item,omitempty"`
	ParentID                *uuid.UUID  `json:"parentId,omitempty"`
	IsActive                bool        `json:"active"`
	CreatedAt               time.Time   `json:"createdAt"`
	UpdatedAt               time.Time   `json:"updatedAt"`
}

// CreateInput carries fields for a new account.
type CreateInput struct {
	Code                    string
	Name                    string
	Type                    AccountType
	Subtype                 string
	Description             string
	FSLIBucket              string
	InternalReportingBucket string
	Item                    string
	ParentID                *uuid.UUID
	ActorID                 int64
}

// Validate checks required fields.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: code required", shared.ErrInvalidAccountInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", shared.ErrInvalidAccountInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, in.Type)
	}
	return nil
}

// UpdateInput is a patch; nil fields are left untouched. ClearParent makes
// the account a root and wins over ParentID.
type UpdateInput struct {
	Code                    *string
	Name                    *string
	Type                    *AccountType
	Subtype                 *string
	Description             *string
	FSLIBucket              *string
	InternalReportingBucket *string
	Item                    *string
	ParentID                *uuid.UUID
	ClearParent             bool
	ActorID                 int64
}

// apply returns a copy of a with the patch applied.
func (in UpdateInput) apply(a Account) (Account, error) {
	if in.Code != nil {
		code := strings.TrimSpace(*in.Code)
		if code == "" {
			return a, fmt.Errorf("%w: code required", shared.ErrInvalidAccountInput)
		}
		a.Code = code
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return a, fmt.Errorf("%w: name required", shared.ErrInvalidAccountInput)
		}
		a.Name = name
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return a, fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, *in.Type)
		}
		a.Type = *in.Type
	}
	setString(&a.Subtype, in.Subtype)
	setString(&a.Description, in.Description)
	setString(&a.FSLIBucket, in.FSLIBucket)
	setString(&a.InternalReportingBucket, in.InternalReportingBucket)
	setString(&a.Item, in.Item)
	switch {
	case in.ClearParent:
		a.ParentID = nil
	case in.ParentID != nil:
		parent := *in.ParentID
		a.ParentID = &parent
	}
	return a, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// ListFilter narrows ListAccounts. Nil Active returns both.
type ListFilter struct {
	Active *bool
}

// SameParent compares two optional parent ids.
func SameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
