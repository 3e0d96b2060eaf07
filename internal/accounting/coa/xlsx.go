package coa

import (
	"fmt"
	"io"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Chart of Accounts"

// ReadXLSX parses the first worksheet of a workbook.
func ReadXLSX(r io.Reader) (RowSet, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return RowSet{}, &shared.ImportError{Issues: []shared.RowIssue{{Message: fmt.Sprintf("unreadable workbook: %v", err)}}}
	}
	defer book.Close()
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return RowSet{}, &shared.ImportError{Issues: []shared.RowIssue{{Message: "workbook has no sheets"}}}
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return RowSet{}, fmt.Errorf("read xlsx: %w", err)
	}
	return FromRecords(records)
}

// WriteXLSX writes the set as a single-sheet workbook.
func WriteXLSX(w io.Writer, set RowSet) error {
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetSheetName(book.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	for i, rec := range set.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := book.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
