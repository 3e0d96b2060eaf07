// Command seed loads a demo tenant: the standard chart plus a few posted
// journal entries, one of them reversed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

const (
	seedActor  = 1
	seedEntity = 1
)

func main() {
	clientID := int64(1)
	if raw := os.Getenv("SEED_CLIENT_ID"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			log.Fatalf("SEED_CLIENT_ID must be a positive integer, got %q", raw)
		}
		clientID = v
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	ledger := app.NewLedger(app.LedgerDeps{Pool: pool, Config: cfg, Logger: app.NewLogger(cfg)})

	fmt.Println("→ Seeding chart of accounts...")
	summary, err := ledger.CoA.SeedStandardChart(ctx, clientID, cfg.CoATemplate, seedActor)
	switch {
	case errors.Is(err, shared.ErrAlreadySeeded):
		fmt.Println("  chart already present, skipping")
	case err != nil:
		log.Fatalf("seed chart: %v", err)
	default:
		fmt.Printf("  created %d accounts\n", summary.Created)
	}

	fmt.Println("→ Seeding journal entries...")
	if err := seedEntries(ctx, ledger, clientID); err != nil {
		log.Fatalf("seed entries: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedEntries(ctx context.Context, ledger *app.Ledger, clientID int64) error {
	existing, page, err := ledger.Journals.ListEntries(ctx, clientID, journals.ListFilter{EntityID: seedEntity, PerPage: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		fmt.Printf("  %d entries already present, skipping\n", page.Total)
		return nil
	}

	chart, err := ledger.Accounts.ListAccounts(ctx, clientID, accounts.ListFilter{})
	if err != nil {
		return err
	}
	byCode := make(map[string]accounts.Account, len(chart))
	for _, a := range chart {
		byCode[a.Code] = a
	}

	samples := []struct {
		date    string
		memo    string
		ref     string
		debit   string
		credit  string
		amount  string
		reverse bool
	}{
		{"2024-01-02", "Owner capital injection", "CAP-001", "1110", "3100", "50000.00", false},
		{"2024-01-15", "January rent", "INV-RENT-01", "6200", "1110", "2500.00", false},
		{"2024-01-31", "Invoice 1001 services", "INV-1001", "1120", "4200", "8750.50", false},
		{"2024-01-31", "Accrued professional fees", "ACC-01", "6500", "2120", "1200.00", true},
	}
	for _, s := range samples {
		date, err := time.Parse("2006-01-02", s.date)
		if err != nil {
			return err
		}
		debit, ok := byCode[s.debit]
		if !ok {
			return fmt.Errorf("account %s missing from chart", s.debit)
		}
		credit, ok := byCode[s.credit]
		if !ok {
			return fmt.Errorf("account %s missing from chart", s.credit)
		}
		amount := decimal.RequireFromString(s.amount)
		entry, err := ledger.Journals.CreateEntry(ctx, journals.EntryInput{
			ClientID:        clientID,
			EntityID:        seedEntity,
			Date:            date,
			Description:     s.memo,
			ReferenceNumber: s.ref,
			ActorID:         seedActor,
			Lines: []journals.LineInput{
				{AccountID: debit.ID, Side: journals.SideDebit, Amount: amount},
				{AccountID: credit.ID, Side: journals.SideCredit, Amount: amount},
			},
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", s.ref, err)
		}
		if _, err := ledger.Journals.PostEntry(ctx, clientID, seedEntity, entry.ID, seedActor); err != nil {
			return fmt.Errorf("post %s: %w", s.ref, err)
		}
		fmt.Printf("  JE #%d %s posted\n", entry.Number, s.ref)
		if !s.reverse {
			continue
		}
		reversal, err := ledger.Journals.ReverseEntry(ctx, clientID, seedEntity, entry.ID, journals.ReverseInput{ActorID: seedActor})
		if err != nil {
			return fmt.Errorf("reverse %s: %w", s.ref, err)
		}
		fmt.Printf("  JE #%d drafted as reversal of #%d\n", reversal.Number, entry.Number)
	}
	return nil
}
