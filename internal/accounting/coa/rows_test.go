package coa

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMatchingIsCaseInsensitive(t *testing.T) {
	set := mustCSV(t, "\ufeffaccount number,ACCOUNT_NAME,Account-Type,parent_account_number,FSLI Bucket,Notes\n"+
		"1110,Cash,Asset,1100,Cash,ignored\n")

	require.Len(t, set.Rows, 1)
	row := set.Rows[0]
	assert.Equal(t, "1110", row.Code)
	assert.Equal(t, "Cash", row.Name)
	assert.Equal(t, "Asset", row.Type)
	assert.Equal(t, "1100", row.ParentCode)
	assert.Equal(t, "Cash", row.FSLIBucket)
	assert.True(t, set.Has(ColumnFSLIBucket))
	assert.False(t, set.Has(ColumnSubtype))
	assert.Equal(t, []string{"Notes"}, set.Ignored)
}

func TestFromRecordsStructuralErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("code,name\n1,Cash\n"))
	var importErr *shared.ImportError
	require.True(t, errors.As(err, &importErr))
	require.Len(t, importErr.Issues, 1)
	assert.Equal(t, "type", importErr.Issues[0].Field)

	_, err = ReadCSV(strings.NewReader("code,AccountNumber,name,type\n"))
	require.ErrorAs(t, err, &importErr)
	assert.Contains(t, importErr.Issues[0].Message, "more than once")

	_, err = ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, shared.ErrInvalidImport)
}

func TestFromRecordsSkipsBlankLinesButKeepsLineNumbers(t *testing.T) {
	set := mustCSV(t, "code,name,type\n1000,Assets,ASSET\n,,\n2000,Liabilities,LIABILITY\n")
	require.Len(t, set.Rows, 2)
	assert.Equal(t, 2, set.Rows[0].Line)
	assert.Equal(t, 4, set.Rows[1].Line)
}

func TestXLSXRoundTrip(t *testing.T) {
	in := mustCSV(t, "AccountNumber,AccountName,AccountType,ParentAccountNumber,Active\n"+
		"0100,Assets,ASSET,,true\n"+
		"0110,Cash,ASSET,0100,false\n")

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, in))

	out, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "0100", out.Rows[0].Code, "leading zeros survive")
	assert.Equal(t, "0100", out.Rows[1].ParentCode)
	assert.Equal(t, "false", out.Rows[1].Active)
	assert.True(t, out.Has(ColumnInternalReportingBucket))
}

func TestReadXLSXRejectsGarbage(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("not a workbook"))
	assert.ErrorIs(t, err, shared.ErrInvalidImport)
}

func TestParseActive(t *testing.T) {
	for raw, want := range map[string]bool{"": true, "TRUE": true, "Yes": true, "1": true, "false": false, "No": false, "inactive": false} {
		got, err := parseActive(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseActive("maybe")
	assert.Error(t, err)
}

func TestLoadTemplate(t *testing.T) {
	assert.Contains(t, TemplateNames(), "standard")

	tpl, err := LoadTemplate("standard")
	require.NoError(t, err)
	require.NotEmpty(t, tpl.Accounts)

	plan, err := BuildPlan(1, nil, nil, tpl.RowSet(), PlanOptions{SkipRetire: true})
	require.NoError(t, err)
	assert.Len(t, plan.Creates, len(tpl.Accounts))
	assert.Empty(t, plan.Warnings, "every template parent resolves")

	_, err = LoadTemplate("missing")
	assert.ErrorIs(t, err, shared.ErrUnknownTemplate)
}
