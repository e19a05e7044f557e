// Command seed loads a demo chart of accounts, the default account mappings
// and a handful of postings for one tenant.
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

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const seedActor = 1

func main() {
	tenantID := int64(1)
	if len(os.Args) > 1 {
		parsed, err := strconv.ParseInt(os.Args[1], 10, 64)
		if err != nil || parsed <= 0 {
			log.Fatalf("invalid tenant %q", os.Args[1])
		}
		tenantID = parsed
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StoreDriver != app.DriverPostgres {
		log.Fatalf("seed needs STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	backend := app.PostgresBackend(pool)
	services, err := app.NewServices(cfg, backend, nil, nil, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}

	fmt.Println("→ Seeding chart of accounts...")
	if err := seedAccounts(ctx, services.Accounts, tenantID); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding account mappings...")
	written, err := services.SeedMappings(ctx, tenantID, cfg.MappingsFile)
	if err != nil {
		log.Fatalf("seed mappings: %v", err)
	}
	fmt.Printf("  %d mappings written\n", written)

	fmt.Println("→ Seeding postings...")
	if err := seedPostings(ctx, services, backend.Accounts, tenantID); err != nil {
		log.Fatalf("seed postings: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func seedAccounts(ctx context.Context, svc *accounts.Service, tenantID int64) error {
	chart := []struct {
		code, name string
		typ        accounts.AccountType
		category   string
	}{
		{"1110", "Kas", accounts.AccountTypeAsset, "cash"},
		{"1120", "Bank", accounts.AccountTypeAsset, "cash"},
		{"1130", "Piutang Usaha", accounts.AccountTypeAsset, "receivable"},
		{"1140", "Persediaan", accounts.AccountTypeAsset, "inventory"},
		{"2110", "Utang Usaha", accounts.AccountTypeLiability, "payable"},
		{"2130", "PPN Keluaran", accounts.AccountTypeLiability, "tax"},
		{"3100", "Modal Disetor", accounts.AccountTypeEquity, ""},
		{"3200", "Laba Ditahan", accounts.AccountTypeEquity, "retained_earnings"},
		{"4100", "Pendapatan Penjualan", accounts.AccountTypeRevenue, ""},
		{"5100", "Beban Pokok dan Operasional", accounts.AccountTypeExpense, ""},
		{"5200", "Beban Gaji", accounts.AccountTypeExpense, "payroll"},
		{"5300", "Selisih Persediaan", accounts.AccountTypeExpense, ""},
	}
	for _, acc := range chart {
		_, err := svc.Create(ctx, accounts.CreateInput{
			TenantID: tenantID,
			ActorID:  seedActor,
			Code:     acc.code,
			Name:     acc.name,
			Type:     acc.typ,
			Category: acc.category,
		})
		if errors.Is(err, shared.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return fmt.Errorf("account %s: %w", acc.code, err)
		}
	}
	return nil
}

// =============================================================================
// POSTINGS
// =============================================================================

func seedPostings(ctx context.Context, services *app.Services, lookup app.AccountStore, tenantID int64) error {
	start := time.Date(time.Now().Year(), time.January, 2, 0, 0, 0, 0, time.UTC)

	bank, err := lookup.GetByCode(ctx, tenantID, "1120")
	if err != nil {
		return err
	}
	capital, err := lookup.GetByCode(ctx, tenantID, "3100")
	if err != nil {
		return err
	}
	opening := accounting.PostingInput{
		TenantID:    tenantID,
		ActorID:     seedActor,
		Number:      "SEED-JV-001",
		Date:        start,
		Type:        accounting.TypeManualJournal,
		Description: "Setoran modal awal",
		Lines: []accounting.PostingLineInput{
			{AccountID: bank.ID, Debit: decimal.NewFromInt(250_000_000)},
			{AccountID: capital.ID, Credit: decimal.NewFromInt(250_000_000)},
		},
	}
	if err := skipDuplicate(services.Ledger.PostTransaction(ctx, opening)); err != nil {
		return fmt.Errorf("opening capital: %w", err)
	}

	sale := integration.SaleEvent{
		TenantID:    tenantID,
		ActorID:     seedActor,
		Reference:   "SEED-SO-001",
		Date:        start.AddDate(0, 0, 7),
		Description: "Penjualan tunai",
		Method:      "CASH",
		Items: []integration.Item{
			{Description: "Paket layanan", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(1_500_000)},
		},
		Tax: decimal.NewFromInt(495_000),
	}
	if err := skipDuplicate(services.Integration.PostSale(ctx, sale)); err != nil {
		return fmt.Errorf("sale: %w", err)
	}

	expense := integration.ExpenseEvent{
		TenantID:    tenantID,
		ActorID:     seedActor,
		Reference:   "SEED-EXP-001",
		Date:        start.AddDate(0, 0, 14),
		Description: "Sewa kantor",
		Amount:      decimal.NewFromInt(4_000_000),
		Method:      "BANK",
	}
	if err := skipDuplicate(services.Integration.PostExpense(ctx, expense)); err != nil {
		return fmt.Errorf("expense: %w", err)
	}
	return nil
}

func skipDuplicate(_ accounting.Posting, err error) error {
	if errors.Is(err, shared.ErrDuplicatePosting) {
		return nil
	}
	return err
}
