package coa

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCSV(t *testing.T, body string) RowSet {
	t.Helper()
	set, err := ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	return set
}

func stored(code, name string, typ accounts.AccountType, parent *accounts.Account) accounts.Account {
	a := accounts.Account{ID: uuid.New(), ClientID: 1, Code: code, Name: name, Type: typ, IsActive: true}
	if parent != nil {
		pid := parent.ID
		a.ParentID = &pid
	}
	return a
}

func TestBuildPlanRenameAndRetire(t *testing.T) {
	parent := stored("1100", "Current Assets", accounts.AccountTypeAsset, nil)
	cash := stored("1110", "Cash", accounts.AccountTypeAsset, &parent)
	ar := stored("1120", "AR", accounts.AccountTypeAsset, &parent)

	set := mustCSV(t, "AccountNumber,AccountName,AccountType,ParentAccountNumber\n"+
		"1100,Current Assets,Asset,\n"+
		"1110,Cash and Bank,Asset,1100\n")

	plan, err := BuildPlan(1, []accounts.Account{parent, cash, ar}, nil, set, PlanOptions{})
	require.NoError(t, err)

	assert.Empty(t, plan.Creates)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "1110", plan.Updates[0].After.Code)
	assert.Equal(t, "Cash and Bank", plan.Updates[0].After.Name)
	assert.Equal(t, []string{"name"}, plan.Updates[0].Fields)
	require.Len(t, plan.Retires, 1)
	assert.Equal(t, ar.ID, plan.Retires[0].ID)
	assert.Equal(t, 1, plan.Unchanged)
	assert.Empty(t, plan.Warnings)
}

func TestBuildPlanExportRoundTripIsNoop(t *testing.T) {
	root := stored("1000", "Assets", accounts.AccountTypeAsset, nil)
	cash := stored("1110", "Cash", accounts.AccountTypeAsset, &root)
	cash.FSLIBucket = "Cash and cash equivalents"
	cash.Description = "Operating account, main bank"
	old := stored("1190", "Old Clearing", accounts.AccountTypeAsset, &root)
	old.IsActive = false
	rev := stored("4000", "Revenue", accounts.AccountTypeRevenue, nil)
	existing := []accounts.Account{rev, old, cash, root}

	var buf strings.Builder
	require.NoError(t, WriteCSV(&buf, ExportRows(existing)))

	plan, err := BuildPlan(1, existing, nil, mustCSV(t, buf.String()), PlanOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 4, plan.Unchanged)
	assert.Empty(t, plan.Warnings)
}

func TestBuildPlanForwardParentReference(t *testing.T) {
	set := mustCSV(t, "code,name,type,parentCode\n"+
		"1110,Cash,asset,1100\n"+
		"1100,Current Assets,asset,1000\n"+
		"1000,Assets,asset,\n")

	plan, err := BuildPlan(1, nil, nil, set, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Creates, 3)

	ids := map[string]uuid.UUID{}
	for _, a := range plan.Creates {
		ids[a.Code] = a.ID
	}
	byCode := map[string]accounts.Account{}
	for _, a := range plan.Creates {
		byCode[a.Code] = a
	}
	require.NotNil(t, byCode["1110"].ParentID)
	assert.Equal(t, ids["1100"], *byCode["1110"].ParentID)
	assert.Equal(t, ids["1000"], *byCode["1100"].ParentID)
	assert.Nil(t, byCode["1000"].ParentID)
	assert.True(t, byCode["1000"].IsActive)
}

func TestBuildPlanUnresolvedParentWarns(t *testing.T) {
	set := mustCSV(t, "code,name,type,parent\n1500,Deposits,ASSET,9999\n")
	plan, err := BuildPlan(1, nil, nil, set, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Creates, 1)
	assert.Nil(t, plan.Creates[0].ParentID)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, 2, plan.Warnings[0].Row)
	assert.Contains(t, plan.Warnings[0].Message, "9999")
}

func TestBuildPlanCycleInFileWarns(t *testing.T) {
	a := stored("1000", "A", accounts.AccountTypeAsset, nil)
	b := stored("1100", "B", accounts.AccountTypeAsset, &a)
	set := mustCSV(t, "code,name,type,parentCode\n1000,A,ASSET,1100\n1100,B,ASSET,1000\n")

	plan, err := BuildPlan(1, []accounts.Account{a, b}, nil, set, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0].Message, "cycle")
	assert.True(t, plan.Empty())
	assert.Equal(t, 2, plan.Unchanged)
}

func TestBuildPlanSwapsParentAndChild(t *testing.T) {
	a := stored("1000", "A", accounts.AccountTypeAsset, nil)
	b := stored("1100", "B", accounts.AccountTypeAsset, &a)
	// Row 1000 is checked against a tree where 1100 still sits under 1000.
	set := mustCSV(t, "code,name,type,parentCode\n"+
		"1000,A,ASSET,1100\n"+
		"1100,B,ASSET,\n")

	plan, err := BuildPlan(1, []accounts.Account{a, b}, nil, set, PlanOptions{})
	require.NoError(t, err)
	assert.Empty(t, plan.Warnings)
	require.Len(t, plan.Updates, 2)
	byCode := map[string]Update{}
	for _, u := range plan.Updates {
		byCode[u.After.Code] = u
	}
	require.NotNil(t, byCode["1000"].After.ParentID)
	assert.Equal(t, b.ID, *byCode["1000"].After.ParentID)
	assert.Nil(t, byCode["1100"].After.ParentID)
	assert.Equal(t, []string{"parent"}, byCode["1100"].Fields)
}

func TestBuildPlanRevertsOnlyLinksOnALoop(t *testing.T) {
	a := stored("1000", "A", accounts.AccountTypeAsset, nil)
	b := stored("1100", "B", accounts.AccountTypeAsset, nil)
	c := stored("1200", "C", accounts.AccountTypeAsset, nil)
	set := mustCSV(t, "code,name,type,parentCode\n"+
		"1000,A,ASSET,1300\n"+ // 1000 -> 1300 -> 1000 loops
		"1100,B,ASSET,1000\n"+
		"1200,C,ASSET,1100\n"+
		"1300,D,ASSET,1000\n")

	plan, err := BuildPlan(1, []accounts.Account{a, b, c}, nil, set, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 2)
	assert.Equal(t, "1000", plan.Warnings[0].Code)
	assert.Equal(t, "1300", plan.Warnings[1].Code)
	for _, w := range plan.Warnings {
		assert.Contains(t, w.Message, "cycle")
	}

	require.Len(t, plan.Creates, 1)
	assert.Nil(t, plan.Creates[0].ParentID, "new account falls back to root")
	byCode := map[string]Update{}
	for _, u := range plan.Updates {
		byCode[u.After.Code] = u
	}
	_, touched := byCode["1000"]
	assert.False(t, touched, "1000 keeps its stored root position")
	require.NotNil(t, byCode["1100"].After.ParentID)
	assert.Equal(t, a.ID, *byCode["1100"].After.ParentID)
	require.NotNil(t, byCode["1200"].After.ParentID)
	assert.Equal(t, b.ID, *byCode["1200"].After.ParentID)
}

func TestBuildPlanTypeChangeOnPostedAccountSkipsRow(t *testing.T) {
	used := stored("4000", "Sales", accounts.AccountTypeRevenue, nil)
	free := stored("5000", "COGS", accounts.AccountTypeRevenue, nil)
	set := mustCSV(t, "code,name,type\n4000,Sales renamed,Expense\n5000,COGS,Expense\n")

	plan, err := BuildPlan(1, []accounts.Account{used, free}, map[uuid.UUID]bool{used.ID: true}, set, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Skipped)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "5000", plan.Updates[0].After.Code)
	assert.Equal(t, []string{"type"}, plan.Updates[0].Fields)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, "4000", plan.Warnings[0].Code)
	assert.Empty(t, plan.Retires, "a skipped row is still present in the file")
}

func TestBuildPlanRejectsStructuralErrors(t *testing.T) {
	set := mustCSV(t, "code,name,type\n"+
		"1000,Assets,ASSET\n"+
		"1000,Dup,ASSET\n"+
		",Nameless code,ASSET\n"+
		"2000,Bad type,Cash\n")
	_, err := BuildPlan(1, nil, nil, set, PlanOptions{})

	var importErr *shared.ImportError
	require.True(t, errors.As(err, &importErr))
	rows := map[int]string{}
	for _, issue := range importErr.Issues {
		rows[issue.Row] = issue.Field
	}
	assert.Equal(t, map[int]string{3: "code", 4: "code", 5: "type"}, rows)
}

func TestBuildPlanAbsentColumnsKeepStoredValues(t *testing.T) {
	root := stored("1000", "Assets", accounts.AccountTypeAsset, nil)
	child := stored("1100", "Cash", accounts.AccountTypeAsset, &root)
	child.FSLIBucket = "Cash"
	child.IsActive = false

	set := mustCSV(t, "code,name,type\n1000,Assets,ASSET\n1100,Cash,ASSET\n")
	plan, err := BuildPlan(1, []accounts.Account{root, child}, nil, set, PlanOptions{})
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	after := plan.Updates[0].After
	assert.Equal(t, []string{"active"}, plan.Updates[0].Fields, "a listed row reactivates a retired account")
	assert.Equal(t, "Cash", after.FSLIBucket)
	require.NotNil(t, after.ParentID)
	assert.Equal(t, root.ID, *after.ParentID)
}

func TestBuildPlanSkipRetireAndEmptyFile(t *testing.T) {
	a := stored("1000", "Assets", accounts.AccountTypeAsset, nil)
	set := mustCSV(t, "code,name,type\n2000,Liabilities,LIABILITY\n")
	plan, err := BuildPlan(1, []accounts.Account{a}, nil, set, PlanOptions{SkipRetire: true})
	require.NoError(t, err)
	assert.Empty(t, plan.Retires)
	assert.Len(t, plan.Creates, 1)

	_, err = BuildPlan(1, []accounts.Account{a}, nil, mustCSV(t, "code,name,type\n"), PlanOptions{})
	assert.ErrorIs(t, err, shared.ErrInvalidImport)
}

func TestBuildPlanWarnsWhenParentIsRetiring(t *testing.T) {
	old := stored("1000", "Assets", accounts.AccountTypeAsset, nil)
	set := mustCSV(t, "code,name,type,parentCode\n1100,Cash,ASSET,1000\n")
	plan, err := BuildPlan(1, []accounts.Account{old}, nil, set, PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Retires, 1)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0].Message, "retired")
	require.NotNil(t, plan.Creates[0].ParentID)
	assert.Equal(t, old.ID, *plan.Creates[0].ParentID)
}
