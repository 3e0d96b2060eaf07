package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts/accountstest"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/journals/journalstest"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/jobs"
)

type fixture struct {
	chart   *accountstest.Memory
	entries *journalstest.Memory
	env     *cli.Env
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chart := accountstest.New()
	entries := journalstest.New()
	return &fixture{
		chart:   chart,
		entries: entries,
		env: &cli.Env{
			CoA: coa.NewService(chart, coa.Options{Logger: logger}),
			Integrity: jobs.NewGLIntegrityJob(
				journals.NewService(entries, journals.Options{Logger: logger}),
				accounts.NewService(chart, nil, logger),
				logger,
				jobmetrics.NewMetrics(prometheus.NewRegistry()),
			),
		},
	}
}

func (f *fixture) run(args ...string) (string, error) {
	cmd := cli.NewRootCommand(func(context.Context) (*cli.Env, error) { return f.env, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const chartCSV = "AccountNumber,AccountName,AccountType,ParentAccountNumber\n" +
	"1000,Assets,ASSET,\n" +
	"1100,Cash,ASSET,1000\n" +
	"1200,Receivables,ASSET,9999\n"

func TestImportDryRunJSON(t *testing.T) {
	f := newFixture()
	path := writeFile(t, "chart.csv", chartCSV)

	out, err := f.run("coa", "import", path, "--client", "1", "--dry-run", "--json")
	require.NoError(t, err)

	var summary coa.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.DryRun)
	assert.Equal(t, 3, summary.Created)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "1200", summary.Warnings[0].Code)
	assert.Zero(t, f.chart.Len())
}

func TestImportThenExport(t *testing.T) {
	f := newFixture()
	path := writeFile(t, "chart.csv", chartCSV)

	out, err := f.run("coa", "import", path, "--client", "1", "--actor", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "applied: created=3")
	assert.Contains(t, out, "warning: row 4 (1200)")
	assert.Equal(t, 3, f.chart.Len())

	out, err = f.run("coa", "export", "--client", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1100,Cash,ASSET,1000")

	dest := filepath.Join(t.TempDir(), "chart.xlsx")
	_, err = f.run("coa", "export", "--client", "1", "--format", "xlsx", "-o", dest)
	require.NoError(t, err)
	file, err := os.Open(dest)
	require.NoError(t, err)
	defer file.Close()
	set, err := coa.ReadXLSX(file)
	require.NoError(t, err)
	assert.Len(t, set.Rows, 3)

	_, err = f.run("coa", "export", "--client", "1", "--format", "pdf")
	assert.Error(t, err)
}

func TestSeedRequiresClient(t *testing.T) {
	f := newFixture()
	_, err := f.run("coa", "seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--client")

	out, err := f.run("coa", "seed", "--client", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
	assert.Positive(t, f.chart.Len())
}

func postedEntry(clientID int64, debit, credit string) journals.Entry {
	id := uuid.New()
	return journals.Entry{
		ID:          id,
		ClientID:    clientID,
		EntityID:    10,
		Number:      1,
		Date:        time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Description: "March sales",
		JournalType: journals.JournalTypeStandard,
		Status:      journals.StatusPosted,
		Lines: []journals.Line{
			{ID: uuid.New(), EntryID: id, LineNo: 1, AccountID: uuid.New(), Side: journals.SideDebit, Amount: decimal.RequireFromString(debit)},
			{ID: uuid.New(), EntryID: id, LineNo: 2, AccountID: uuid.New(), Side: journals.SideCredit, Amount: decimal.RequireFromString(credit)},
		},
	}
}

func TestCheckReportsFindings(t *testing.T) {
	f := newFixture()
	f.entries.Put(postedEntry(1, "100", "100"))
	f.entries.Put(postedEntry(2, "100", "90"))

	out, err := f.run("check")
	require.ErrorIs(t, err, cli.ErrFindings)
	assert.Contains(t, out, "client 1: ok (1 posted entries)")
	assert.Contains(t, out, "entity 10 JE #1 unbalanced")

	out, err = f.run("check", "--client", "1", "--json")
	require.NoError(t, err)
	var results []jobs.TenantResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Clean())
}
