package coa_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts/accountstest"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	results []string
}

func (r *recorder) ImportFinished(result string, _, _, _, _ int) {
	r.results = append(r.results, result)
}

type fixture struct {
	svc     *coa.Service
	repo    *accountstest.Memory
	bus     *events.Recorder
	metrics *recorder
	locker  *cache.Locker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := fixture{
		repo:    accountstest.New(),
		bus:     &events.Recorder{},
		metrics: &recorder{},
		locker:  cache.NewLocker(client, time.Minute),
	}
	f.svc = coa.NewService(f.repo, coa.Options{Locker: f.locker, Publisher: f.bus, Metrics: f.metrics})
	return f
}

func readCSV(t *testing.T, body string) coa.RowSet {
	t.Helper()
	set, err := coa.ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	return set
}

func seedScenario(t *testing.T, repo *accountstest.Memory) (parent, cash, ar accounts.Account) {
	t.Helper()
	parent = repo.Seed(accounts.Account{ClientID: 1, Code: "1100", Name: "Current Assets", Type: accounts.AccountTypeAsset, IsActive: true})[0]
	cash = repo.Seed(accounts.Account{ClientID: 1, Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, ParentID: &parent.ID, IsActive: true})[0]
	ar = repo.Seed(accounts.Account{ClientID: 1, Code: "1120", Name: "AR", Type: accounts.AccountTypeAsset, ParentID: &parent.ID, IsActive: true})[0]
	return parent, cash, ar
}

func TestImportUpdatesAndRetires(t *testing.T) {
	f := newFixture(t)
	_, cash, ar := seedScenario(t, f.repo)
	f.repo.AddPosting(ar.ID, true)

	summary, err := f.svc.Import(context.Background(), 1, readCSV(t,
		"AccountNumber,AccountName,AccountType,ParentAccountNumber\n"+
			"1100,Current Assets,Asset,\n"+
			"1110,Cash and Bank,Asset,1100\n"), coa.ImportOptions{ActorID: 9})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, 1, summary.Unchanged)

	got, ok := f.repo.ByCode(1, "1110")
	require.True(t, ok)
	assert.Equal(t, cash.ID, got.ID)
	assert.Equal(t, "Cash and Bank", got.Name)

	retired, ok := f.repo.ByCode(1, "1120")
	require.True(t, ok, "retired accounts are kept")
	assert.False(t, retired.IsActive)

	assert.Equal(t, []string{events.TypeCoAImported}, f.bus.Types())
	assert.Equal(t, int64(9), f.bus.Events[0].ActorID)
	assert.Equal(t, []string{"applied"}, f.metrics.results)
}

func TestImportRestructuresParentAndChild(t *testing.T) {
	f := newFixture(t)
	parent, cash, _ := seedScenario(t, f.repo)

	summary, err := f.svc.Import(context.Background(), 1, readCSV(t,
		"code,name,type,parentCode\n"+
			"1100,Current Assets,Asset,1110\n"+
			"1110,Cash,Asset,\n"+
			"1120,AR,Asset,1100\n"), coa.ImportOptions{})
	require.NoError(t, err)
	assert.Empty(t, summary.Warnings)
	assert.Equal(t, 2, summary.Updated)

	list, err := f.repo.ListAccounts(context.Background(), 1, accounts.ListFilter{})
	require.NoError(t, err)
	forest := accounts.BuildForest(list)
	assert.Empty(t, forest.Anomalies)
	require.Len(t, forest.Roots, 1)
	assert.Equal(t, cash.ID, forest.Roots[0].Account.ID)

	got, _ := f.repo.ByCode(1, "1100")
	require.NotNil(t, got.ParentID)
	assert.Equal(t, cash.ID, *got.ParentID)
	assert.Equal(t, parent.ID, got.ID)
}

func TestImportIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.repo)
	before := f.repo.Len()

	_, err := f.svc.Import(context.Background(), 1, readCSV(t,
		"code,name,type\n1100,Current Assets,ASSET\n1200,New,ASSET\n1300,Broken,NOPE\n"), coa.ImportOptions{})
	require.ErrorIs(t, err, shared.ErrInvalidImport)
	assert.Equal(t, before, f.repo.Len())
	_, created := f.repo.ByCode(1, "1200")
	assert.False(t, created)
	assert.Equal(t, []string{"rejected"}, f.metrics.results)
	assert.Empty(t, f.bus.Events)
}

func TestImportRollsBackMidApplyFailure(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.repo)
	f.repo.Fail = func(op string, a accounts.Account) error {
		if op == "insert" && a.Code == "1400" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.svc.Import(context.Background(), 1, readCSV(t,
		"code,name,type\n1100,Renamed,ASSET\n1300,Created,ASSET\n1400,Fails,ASSET\n"), coa.ImportOptions{})
	require.Error(t, err)

	parent, _ := f.repo.ByCode(1, "1100")
	assert.Equal(t, "Current Assets", parent.Name)
	_, created := f.repo.ByCode(1, "1300")
	assert.False(t, created)
	cash, _ := f.repo.ByCode(1, "1110")
	assert.True(t, cash.IsActive, "retirement rolled back too")
	assert.Equal(t, []string{"failed"}, f.metrics.results)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.repo)

	summary, err := f.svc.Import(context.Background(), 1, readCSV(t, "code,name,type\n9000,New,EXPENSE\n"), coa.ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 3, summary.Retired)

	_, created := f.repo.ByCode(1, "9000")
	assert.False(t, created)
	assert.Empty(t, f.bus.Events)
}

func TestImportRejectsConcurrentImport(t *testing.T) {
	f := newFixture(t)
	lease, err := f.locker.Acquire(context.Background(), internalShared.CoAImportLockKey(1))
	require.NoError(t, err)
	defer lease.Release(context.Background())

	_, err = f.svc.Import(context.Background(), 1, readCSV(t, "code,name,type\n1,A,ASSET\n"), coa.ImportOptions{})
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, []string{"conflict"}, f.metrics.results)

	_, err = f.svc.Import(context.Background(), 2, readCSV(t, "code,name,type\n1,A,ASSET\n"), coa.ImportOptions{})
	require.NoError(t, err, "other tenants are not blocked")
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SeedStandardChart(ctx, 1, "standard", 0)
	require.NoError(t, err)
	_, err = f.svc.Import(ctx, 1, readCSV(t, "code,name,type,parentCode\n1110,Cash,ASSET,1100\n"), coa.ImportOptions{SkipRetire: true})
	require.NoError(t, err)
	tail, _ := f.repo.ByCode(1, "6900")
	require.True(t, tail.IsActive)

	exported, err := f.svc.Export(ctx, 1)
	require.NoError(t, err)
	var buf strings.Builder
	require.NoError(t, coa.WriteCSV(&buf, exported))

	summary, err := f.svc.Import(ctx, 1, readCSV(t, buf.String()), coa.ImportOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Created)
	assert.Zero(t, summary.Updated)
	assert.Zero(t, summary.Retired)
	assert.Equal(t, len(exported.Rows), summary.Unchanged)
}

func TestSeedStandardChart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.SeedStandardChart(ctx, 5, "standard", 1)
	require.NoError(t, err)
	assert.Positive(t, summary.Created)
	assert.Empty(t, summary.Warnings)

	cash, ok := f.repo.ByCode(5, "1110")
	require.True(t, ok)
	parent, ok := f.repo.ByCode(5, "1100")
	require.True(t, ok)
	require.NotNil(t, cash.ParentID)
	assert.Equal(t, parent.ID, *cash.ParentID)

	_, err = f.svc.SeedStandardChart(ctx, 5, "standard", 1)
	assert.ErrorIs(t, err, shared.ErrAlreadySeeded)
	_, err = f.svc.SeedStandardChart(ctx, 6, "nope", 1)
	assert.ErrorIs(t, err, shared.ErrUnknownTemplate)
	assert.Equal(t, []string{events.TypeCoASeeded}, f.bus.Types())
}
