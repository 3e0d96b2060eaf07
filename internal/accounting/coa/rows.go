package coa

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"golang.org/x/text/cases"
)

// Column identifies a logical import column.
type Column string

const (
	ColumnCode                    Column = "code"
	ColumnName                    Column = "name"
	ColumnType                    Column = "type"
	ColumnParentCode              Column = "parentCode"
	ColumnSubtype                 Column = "subtype"
	ColumnDescription             Column = "description"
	ColumnFSLIBucket              Column = "fsliBucket"
	ColumnInternalReportingBucket Column = "internalReportingBucket"
	ColumnItem                    Column = "item"
	ColumnActive                  Column = "active"
)

// exportOrder is the column layout written by Export.
var exportOrder = []Column{
	ColumnCode, ColumnName, ColumnType, ColumnParentCode, ColumnSubtype, ColumnDescription,
	ColumnFSLIBucket, ColumnInternalReportingBucket, ColumnItem, ColumnActive,
}

var exportHeaders = map[Column]string{
	ColumnCode:                    "AccountNumber",
	ColumnName:                    "AccountName",
	ColumnType:                    "AccountType",
	ColumnParentCode:              "ParentAccountNumber",
	ColumnSubtype:                 "Subtype",
	ColumnDescription:             "Description",
	ColumnFSLIBucket:              "FSLIBucket",
	ColumnInternalReportingBucket: "InternalReportingBucket",
	ColumnItem:                    "Item",
	ColumnActive:                  "Active",
}

// headerAliases is keyed by folded header text with separators removed.
var headerAliases = map[string]Column{
	"accountnumber":           ColumnCode,
	"accountcode":             ColumnCode,
	"accountno":               ColumnCode,
	"code":                    ColumnCode,
	"accountname":             ColumnName,
	"name":                    ColumnName,
	"accounttype":             ColumnType,
	"type":                    ColumnType,
	"parentaccountnumber":     ColumnParentCode,
	"parentaccountcode":       ColumnParentCode,
	"parentcode":              ColumnParentCode,
	"parent":                  ColumnParentCode,
	"subtype":                 ColumnSubtype,
	"accountsubtype":          ColumnSubtype,
	"description":             ColumnDescription,
	"fslibucket":              ColumnFSLIBucket,
	"fsli":                    ColumnFSLIBucket,
	"internalreportingbucket": ColumnInternalReportingBucket,
	"item":                    ColumnItem,
	"active":                  ColumnActive,
	"isactive":                ColumnActive,
}

var requiredColumns = []Column{ColumnCode, ColumnName, ColumnType}

// normalizeHeader folds case (Casers are stateful, so one per call) and drops spaces, underscores, dashes and a BOM.
func normalizeHeader(h string) string {
	h = cases.Fold().String(strings.TrimPrefix(h, "\ufeff"))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, h)
}

// Row is one account line from an import file. Line is the 1-based file
// line, the header being line 1.
type Row struct {
	Line                    int
	Code                    string
	Name                    string
	Type                    string
	ParentCode              string
	Subtype                 string
	Description             string
	FSLIBucket              string
	InternalReportingBucket string
	Item                    string
	Active                  string
}

func (r Row) get(c Column) string {
	switch c {
	case ColumnCode:
		return r.Code
	case ColumnName:
		return r.Name
	case ColumnType:
		return r.Type
	case ColumnParentCode:
		return r.ParentCode
	case ColumnSubtype:
		return r.Subtype
	case ColumnDescription:
		return r.Description
	case ColumnFSLIBucket:
		return r.FSLIBucket
	case ColumnInternalReportingBucket:
		return r.InternalReportingBucket
	case ColumnItem:
		return r.Item
	case ColumnActive:
		return r.Active
	}
	return ""
}

func (r *Row) set(c Column, v string) {
	v = strings.TrimSpace(v)
	switch c {
	case ColumnCode:
		r.Code = v
	case ColumnName:
		r.Name = v
	case ColumnType:
		r.Type = v
	case ColumnParentCode:
		r.ParentCode = v
	case ColumnSubtype:
		r.Subtype = v
	case ColumnDescription:
		r.Description = v
	case ColumnFSLIBucket:
		r.FSLIBucket = v
	case ColumnInternalReportingBucket:
		r.InternalReportingBucket = v
	case ColumnItem:
		r.Item = v
	case ColumnActive:
		r.Active = v
	}
}

// RowSet is a parsed import file. Columns records which optional columns the
// file carried: an absent column leaves the stored value alone.
type RowSet struct {
	Rows    []Row
	Columns map[Column]bool
	// Ignored lists headers that matched no known column.
	Ignored []string
}

// Has reports whether the file carried column c.
func (s RowSet) Has(c Column) bool {
	return s.Columns[c]
}

// FromRecords maps a header row plus data records onto a RowSet. Blank
// records are skipped; line numbers still count them.
func FromRecords(records [][]string) (RowSet, error) {
	if len(records) == 0 {
		return RowSet{}, &shared.ImportError{Issues: []shared.RowIssue{{Message: "file is empty"}}}
	}
	set := RowSet{Columns: make(map[Column]bool)}
	layout := make([]Column, len(records[0]))
	var issues []shared.RowIssue
	for i, h := range records[0] {
		col, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			if strings.TrimSpace(h) != "" {
				set.Ignored = append(set.Ignored, h)
			}
			continue
		}
		if set.Columns[col] {
			issues = append(issues, shared.RowIssue{Row: 1, Field: string(col), Message: fmt.Sprintf("column %q appears more than once", h)})
			continue
		}
		set.Columns[col] = true
		layout[i] = col
	}
	for _, col := range requiredColumns {
		if !set.Columns[col] {
			issues = append(issues, shared.RowIssue{Row: 1, Field: string(col), Message: "required column missing"})
		}
	}
	if len(issues) > 0 {
		return RowSet{}, &shared.ImportError{Issues: issues}
	}
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := Row{Line: n + 2}
		for i, v := range rec {
			if i < len(layout) && layout[i] != "" {
				row.set(layout[i], v)
			}
		}
		set.Rows = append(set.Rows, row)
	}
	return set, nil
}

// Records renders the set with the export column layout.
func (s RowSet) Records() [][]string {
	out := make([][]string, 0, len(s.Rows)+1)
	header := make([]string, 0, len(exportOrder))
	for _, c := range exportOrder {
		header = append(header, exportHeaders[c])
	}
	out = append(out, header)
	for _, r := range s.Rows {
		rec := make([]string, 0, len(exportOrder))
		for _, c := range exportOrder {
			rec = append(rec, r.get(c))
		}
		out = append(out, rec)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseActive accepts the usual spreadsheet spellings. Empty means active.
func parseActive(raw string) (bool, error) {
	switch normalizeHeader(raw) {
	case "", "true", "yes", "y", "1", "active":
		return true, nil
	case "false", "no", "n", "0", "inactive", "retired":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised active value %q", raw)
}
