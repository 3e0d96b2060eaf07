package coa

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Update pairs the stored and desired state of one account.
type Update struct {
	Line   int
	Before accounts.Account
	After  accounts.Account
	Fields []string
}

// Plan is the full set of mutations for one import. Building it never
// touches storage.
type Plan struct {
	Creates   []accounts.Account
	Updates   []Update
	Retires   []accounts.Account
	Unchanged int
	Skipped   int
	Warnings  []shared.RowIssue
}

// PlanOptions tunes BuildPlan.
type PlanOptions struct {
	// SkipRetire keeps accounts the file does not mention. Used by seeding.
	SkipRetire bool
}

// parentRef is the tagged parent state of a placed row before pass 2.
type parentRef struct {
	keep    bool   // column absent: keep the stored parent
	pending string // code to resolve; empty with keep=false means root
}

type placement struct {
	row     Row
	before  *accounts.Account
	desired accounts.Account
	parent  parentRef
}

// BuildPlan reconciles an import file against the tenant's stored accounts.
// withPostings holds ids referenced by non-draft journal lines.
func BuildPlan(clientID int64, existing []accounts.Account, withPostings map[uuid.UUID]bool, set RowSet, opts PlanOptions) (Plan, error) {
	parsed, err := validateRows(set)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	stored := make(map[string]accounts.Account, len(existing))
	for _, a := range existing {
		stored[a.Code] = a
	}

	// Pass 1: place every row. New rows get their id now so later rows can
	// point at them; parents stay unresolved.
	codeToID := make(map[string]uuid.UUID, len(existing)+len(parsed))
	for _, a := range existing {
		codeToID[a.Code] = a.ID
	}
	placements := make([]*placement, 0, len(parsed))
	for _, pr := range parsed {
		p := &placement{row: pr.row}
		if cur, ok := stored[pr.row.Code]; ok {
			before := cur
			p.before = &before
			p.desired = cur
			if cur.Type != pr.accountType && withPostings[cur.ID] {
				plan.Skipped++
				plan.Warnings = append(plan.Warnings, shared.RowIssue{
					Row: pr.row.Line, Code: pr.row.Code, Field: string(ColumnType),
					Message: fmt.Sprintf("type change %s -> %s blocked: account has postings; row skipped", cur.Type, pr.accountType),
				})
				continue
			}
		} else {
			p.desired = accounts.Account{ID: uuid.New(), ClientID: clientID, Code: pr.row.Code}
			codeToID[pr.row.Code] = p.desired.ID
		}
		applyRow(&p.desired, pr, set)
		if set.Has(ColumnParentCode) {
			p.parent = parentRef{pending: pr.row.ParentCode}
		} else {
			p.parent = parentRef{keep: true}
		}
		placements = append(placements, p)
	}

	// Pass 2: resolve every parent code against stored plus batch codes, then
	// check the final tree. Links this file changed that sit on a loop go back
	// to their stored parent.
	parentOf := accounts.ParentIndex(existing)
	for _, p := range placements {
		if p.before == nil {
			parentOf[p.desired.ID] = nil
		}
	}
	retiring := make(map[string]bool)
	if !opts.SkipRetire {
		inFile := make(map[string]bool, len(parsed))
		for _, pr := range parsed {
			inFile[pr.row.Code] = true
		}
		for _, a := range existing {
			if !inFile[a.Code] && a.IsActive {
				retiring[a.Code] = true
			}
		}
	}
	unresolved := make(map[uuid.UUID]bool)
	relinked := make(map[uuid.UUID]*placement)
	for _, p := range placements {
		if p.parent.keep {
			continue
		}
		var target *uuid.UUID
		if code := p.parent.pending; code != "" {
			if pid, ok := codeToID[code]; ok {
				target = &pid
			} else {
				unresolved[p.desired.ID] = true
			}
		}
		parentOf[p.desired.ID] = target
		if !accounts.SameParent(target, storedParent(p)) {
			relinked[p.desired.ID] = p
		}
	}
	reverted := make(map[uuid.UUID]bool)
	for {
		changed := false
		for _, loop := range accounts.Loops(parentOf) {
			for _, id := range loop {
				if p, ok := relinked[id]; ok && !reverted[id] {
					parentOf[id] = storedParent(p)
					reverted[id] = true
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	for _, p := range placements {
		if p.parent.keep {
			continue
		}
		code := p.parent.pending
		var msg string
		switch {
		case unresolved[p.desired.ID]:
			msg = fmt.Sprintf("parent code %s not found; account left without parent", code)
		case reverted[p.desired.ID]:
			msg = fmt.Sprintf("parent code %s would create a cycle; parent left unchanged", code)
		case retiring[code]:
			msg = fmt.Sprintf("parent code %s is absent from the file and will be retired", code)
		}
		if msg != "" {
			plan.Warnings = append(plan.Warnings, shared.RowIssue{
				Row: p.row.Line, Code: p.row.Code, Field: string(ColumnParentCode), Message: msg,
			})
		}
		p.desired.ParentID = parentOf[p.desired.ID]
	}

	// Classify.
	for _, p := range placements {
		if p.before == nil {
			plan.Creates = append(plan.Creates, p.desired)
			continue
		}
		fields := diff(*p.before, p.desired)
		if len(fields) == 0 {
			plan.Unchanged++
			continue
		}
		plan.Updates = append(plan.Updates, Update{Line: p.row.Line, Before: *p.before, After: p.desired, Fields: fields})
	}

	for _, a := range existing {
		if retiring[a.Code] {
			plan.Retires = append(plan.Retires, a)
		}
	}
	return plan, nil
}

func storedParent(p *placement) *uuid.UUID {
	if p.before == nil {
		return nil
	}
	return p.before.ParentID
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Retires) == 0
}

type parsedRow struct {
	row         Row
	accountType accounts.AccountType
	active      bool
}

// validateRows enforces the import-blocking rules: required fields, a known
// type, a readable active flag and codes unique within the file.
func validateRows(set RowSet) ([]parsedRow, error) {
	var issues []shared.RowIssue
	if len(set.Rows) == 0 {
		issues = append(issues, shared.RowIssue{Message: "file contains no account rows"})
	}
	seen := make(map[string]int, len(set.Rows))
	out := make([]parsedRow, 0, len(set.Rows))
	for _, row := range set.Rows {
		pr := parsedRow{row: row, active: true}
		ok := true
		for _, col := range requiredColumns {
			if row.get(col) == "" {
				issues = append(issues, shared.RowIssue{Row: row.Line, Code: row.Code, Field: string(col), Message: "required field missing"})
				ok = false
			}
		}
		if row.Type != "" {
			t, err := accounts.ParseAccountType(row.Type)
			if err != nil {
				issues = append(issues, shared.RowIssue{Row: row.Line, Code: row.Code, Field: string(ColumnType), Message: fmt.Sprintf("invalid account type %q", row.Type)})
				ok = false
			}
			pr.accountType = t
		}
		if set.Has(ColumnActive) {
			active, err := parseActive(row.Active)
			if err != nil {
				issues = append(issues, shared.RowIssue{Row: row.Line, Code: row.Code, Field: string(ColumnActive), Message: err.Error()})
				ok = false
			}
			pr.active = active
		}
		if row.Code != "" {
			if first, dup := seen[row.Code]; dup {
				issues = append(issues, shared.RowIssue{Row: row.Line, Code: row.Code, Field: string(ColumnCode), Message: fmt.Sprintf("duplicate code, first seen on row %d", first)})
				ok = false
			} else {
				seen[row.Code] = row.Line
			}
		}
		if ok {
			out = append(out, pr)
		}
	}
	if len(issues) > 0 {
		return nil, &shared.ImportError{Issues: issues}
	}
	return out, nil
}

// applyRow copies file values onto dst. Optional columns the file did not
// carry keep the stored value.
func applyRow(dst *accounts.Account, pr parsedRow, set RowSet) {
	dst.Name = pr.row.Name
	dst.Type = pr.accountType
	dst.IsActive = pr.active
	optional := []struct {
		col Column
		dst *string
		val string
	}{
		{ColumnSubtype, &dst.Subtype, pr.row.Subtype},
		{ColumnDescription, &dst.Description, pr.row.Description},
		{ColumnFSLIBucket, &dst.FSLIBucket, pr.row.FSLIBucket},
		{ColumnInternalReportingBucket, &dst.InternalReportingBucket, pr.row.InternalReportingBucket},
		{ColumnItem, &dst.Item, pr.row.Item},
	}
	for _, o := range optional {
		if set.Has(o.col) {
			*o.dst = o.val
		}
	}
}

func diff(before, after accounts.Account) []string {
	var fields []string
	check := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	check("name", before.Name != after.Name)
	check("type", before.Type != after.Type)
	check("subtype", before.Subtype != after.Subtype)
	check("description", before.Description != after.Description)
	check("fsliBucket", before.FSLIBucket != after.FSLIBucket)
	check("internalReportingBucket", before.InternalReportingBucket != after.InternalReportingBucket)
	check("item", before.Item != after.Item)
	check("parent", !accounts.SameParent(before.ParentID, after.ParentID))
	check("active", before.IsActive != after.IsActive)
	return fields
}
