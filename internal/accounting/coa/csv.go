package coa

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// ReadCSV parses a comma separated CoA file.
func ReadCSV(r io.Reader) (RowSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return RowSet{}, &shared.ImportError{Issues: []shared.RowIssue{{Row: perr.Line, Message: perr.Err.Error()}}}
		}
		return RowSet{}, fmt.Errorf("read csv: %w", err)
	}
	return FromRecords(records)
}

// WriteCSV writes the set with export headers.
func WriteCSV(w io.Writer, set RowSet) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(set.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
