// Package integration turns operational business events into balanced ledger
// postings using the tenant's account mappings.
package integration

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Ledger exposes posting operations required by integrations.
type Ledger interface {
	PostTransaction(ctx context.Context, in accounting.PostingInput) (accounting.Posting, error)
}

// AccountResolver resolves mapped accounts.
type AccountResolver interface {
	Account(ctx context.Context, tenantID int64, module, key, category string) (int64, error)
	Control(ctx context.Context, tenantID int64, module string) (int64, error)
	Cash(ctx context.Context, tenantID int64, method string) (int64, error)
}

// Service maps business events onto ledger postings.
type Service struct {
	ledger   Ledger
	resolver AccountResolver
}

// NewService constructs the integration service.
func NewService(ledger Ledger, resolver AccountResolver) *Service {
	return &Service{ledger: ledger, resolver: resolver}
}

// PostSale posts a sales invoice.
func (s *Service) PostSale(ctx context.Context, evt SaleEvent) (accounting.Posting, error) {
	in, err := s.SaleInput(ctx, evt)
	if err != nil {
		return accounting.Posting{}, err
	}
	return s.ledger.PostTransaction(ctx, in)
}

// PostPurchase posts a supplier invoice.
func (s *Service) PostPurchase(ctx context.Context, evt PurchaseEvent) (accounting.Posting, error) {
	in, err := s.PurchaseInput(ctx, evt)
	if err != nil {
		return accounting.Posting{}, err
	}
	return s.ledger.PostTransaction(ctx, in)
}

// PostExpense posts a paid expense.
func (s *Service) PostExpense(ctx context.Context, evt ExpenseEvent) (accounting.Posting, error) {
	in, err := s.ExpenseInput(ctx, evt)
	if err != nil {
		return accounting.Posting{}, err
	}
	return s.ledger.PostTransaction(ctx, in)
}

// PostStockAdjustment posts an inventory count difference.
func (s *Service) PostStockAdjustment(ctx context.Context, evt StockAdjustmentEvent) (accounting.Posting, error) {
	in, err := s.StockAdjustmentInput(ctx, evt)
	if err != nil {
		return accounting.Posting{}, err
	}
	return s.ledger.PostTransaction(ctx, in)
}

// SaleInput builds the posting for a sale: debit AR (or cash for a cash
// sale), credit revenue and output tax.
func (s *Service) SaleInput(ctx context.Context, evt SaleEvent) (accounting.PostingInput, error) {
	if err := checkHeader(evt.TenantID, evt.Reference, evt.Date.IsZero()); err != nil {
		return accounting.PostingInput{}, err
	}
	if evt.Tax.IsNegative() {
		return accounting.PostingInput{}, fmt.Errorf("%w: tax cannot be negative", shared.ErrValidation)
	}
	revenue, err := s.resolver.Account(ctx, evt.TenantID, mappings.ModuleSales, mappings.KeyRevenue, "")
	if err != nil {
		return accounting.PostingInput{}, err
	}
	subtotal, items := itemsTotal(evt.Items, revenue)
	if !subtotal.IsPositive() {
		return accounting.PostingInput{}, fmt.Errorf("%w: sale total must be positive", shared.ErrValidation)
	}
	tax := shared.Round2(evt.Tax)
	total := subtotal.Add(tax)

	in := accounting.PostingInput{
		TenantID:    evt.TenantID,
		ActorID:     evt.ActorID,
		Number:      accounting.DerivedNumber("SALE", evt.TenantID, evt.Reference),
		Date:        evt.Date,
		Type:        accounting.TypeSale,
		Description: describe(evt.Description, "Sale", evt.Reference),
		Reference:   evt.Reference,
		Items:       items,
	}
	var debitAccount int64
	if evt.CustomerID != nil {
		if debitAccount, err = s.resolver.Control(ctx, evt.TenantID, mappings.ModuleAR); err != nil {
			return accounting.PostingInput{}, err
		}
		in.Counterparty = &accounting.CounterpartyRef{ID: *evt.CustomerID, DueDate: evt.DueDate}
	} else if debitAccount, err = s.resolver.Cash(ctx, evt.TenantID, evt.Method); err != nil {
		return accounting.PostingInput{}, err
	}
	in.Lines = append(in.Lines,
		debit(debitAccount, total, evt.Reference),
		credit(revenue, subtotal, "revenue"),
	)
	if tax.IsPositive() {
		taxAccount, err := s.resolver.Account(ctx, evt.TenantID, mappings.ModuleSales, mappings.KeyTax, "")
		if err != nil {
			return accounting.PostingInput{}, err
		}
		in.Lines = append(in.Lines, credit(taxAccount, tax, "output tax"))
	}
	return in, nil
}

// PurchaseInput builds the posting for a supplier invoice: debit inventory
// or expense, credit AP.
func (s *Service) PurchaseInput(ctx context.Context, evt PurchaseEvent) (accounting.PostingInput, error) {
	if err := checkHeader(evt.TenantID, evt.Reference, evt.Date.IsZero()); err != nil {
		return accounting.PostingInput{}, err
	}
	if evt.SupplierID <= 0 {
		return accounting.PostingInput{}, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	key := mappings.KeyExpense
	if evt.Inventory {
		key = mappings.KeyInventory
	}
	debitAccount, err := s.resolver.Account(ctx, evt.TenantID, mappings.ModulePurchase, key, "")
	if err != nil {
		return accounting.PostingInput{}, err
	}
	apAccount, err := s.resolver.Control(ctx, evt.TenantID, mappings.ModuleAP)
	if err != nil {
		return accounting.PostingInput{}, err
	}
	total, items := itemsTotal(evt.Items, debitAccount)
	if !total.IsPositive() {
		return accounting.PostingInput{}, fmt.Errorf("%w: purchase total must be positive", shared.ErrValidation)
	}
	return accounting.PostingInput{
		TenantID:     evt.TenantID,
		ActorID:      evt.ActorID,
		Number:       accounting.DerivedNumber("PURCHASE", evt.TenantID, evt.Reference),
		Date:         evt.Date,
		Type:         accounting.TypePurchase,
		Description:  describe(evt.Description, "Purchase", evt.Reference),
		Reference:    evt.Reference,
		Items:        items,
		Counterparty: &accounting.CounterpartyRef{ID: evt.SupplierID, DueDate: evt.DueDate},
		Lines: []accounting.PostingLineInput{
			debit(debitAccount, total, key),
			credit(apAccount, total, evt.Reference),
		},
	}, nil
}

// ExpenseInput builds the posting for a paid expense: debit expense, credit
// cash.
func (s *Service) ExpenseInput(ctx context.Context, evt ExpenseEvent) (accounting.PostingInput, error) {
	if err := checkHeader(evt.TenantID, evt.Reference, evt.Date.IsZero()); err != nil {
		return accounting.PostingInput{}, err
	}
	amount := shared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return accounting.PostingInput{}, fmt.Errorf("%w: expense amount must be positive", shared.ErrValidation)
	}
	var expenseAccount int64
	var err error
	if evt.AccountID != nil {
		expenseAccount = *evt.AccountID
	} else if expenseAccount, err = s.resolver.Account(ctx, evt.TenantID, mappings.ModulePurchase, mappings.KeyExpense, ""); err != nil {
		return accounting.PostingInput{}, err
	}
	cashAccount, err := s.resolver.Cash(ctx, evt.TenantID, evt.Method)
	if err != nil {
		return accounting.PostingInput{}, err
	}
	kind, prefix, label := accounting.TypeExpense, "EXPENSE", "Expense"
	if evt.Payroll {
		kind, prefix, label = accounting.TypePayroll, "PAYROLL", "Payroll"
	}
	return accounting.PostingInput{
		TenantID:    evt.TenantID,
		ActorID:     evt.ActorID,
		Number:      accounting.DerivedNumber(prefix, evt.TenantID, evt.Reference),
		Date:        evt.Date,
		Type:        kind,
		Description: describe(evt.Description, label, evt.Reference),
		Reference:   evt.Reference,
		Lines: []accounting.PostingLineInput{
			debit(expenseAccount, amount, evt.Description),
			credit(cashAccount, amount, strings.ToLower(evt.Method)),
		},
	}, nil
}

// StockAdjustmentInput builds the posting for a stock count difference. A
// gain debits inventory against the adjustment account; a loss reverses it.
func (s *Service) StockAdjustmentInput(ctx context.Context, evt StockAdjustmentEvent) (accounting.PostingInput, error) {
	if err := checkHeader(evt.TenantID, evt.Reference, evt.Date.IsZero()); err != nil {
		return accounting.PostingInput{}, err
	}
	if evt.UnitCost.IsNegative() {
		return accounting.PostingInput{}, fmt.Errorf("%w: unit cost cannot be negative", shared.ErrValidation)
	}
	amount := monetary(evt.Quantity.Abs(), evt.UnitCost)
	if amount.IsZero() {
		return accounting.PostingInput{}, fmt.Errorf("%w: adjustment has no value", shared.ErrValidation)
	}
	inventoryAccount, err := s.resolver.Account(ctx, evt.TenantID, mappings.ModuleStock, mappings.KeyInventory, "")
	if err != nil {
		return accounting.PostingInput{}, err
	}
	adjustmentAccount, err := s.resolver.Account(ctx, evt.TenantID, mappings.ModuleStock, mappings.KeyAdjustment, "")
	if err != nil {
		return accounting.PostingInput{}, err
	}
	memo := evt.Memo
	if memo == "" {
		memo = fmt.Sprintf("Stock adjustment %s", evt.Reference)
	}
	lines := []accounting.PostingLineInput{
		debit(inventoryAccount, amount, memo),
		credit(adjustmentAccount, amount, memo),
	}
	if evt.Quantity.IsNegative() {
		lines = []accounting.PostingLineInput{
			debit(adjustmentAccount, amount, memo),
			credit(inventoryAccount, amount, memo),
		}
	}
	return accounting.PostingInput{
		TenantID:    evt.TenantID,
		ActorID:     evt.ActorID,
		Number:      accounting.DerivedNumber("STOCK", evt.TenantID, evt.Reference, evt.ProductID),
		Date:        evt.Date,
		Type:        accounting.TypeStockMovement,
		Description: memo,
		Reference:   evt.Reference,
		Lines:       lines,
	}, nil
}

func checkHeader(tenantID int64, reference string, missingDate bool) error {
	if tenantID <= 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if strings.TrimSpace(reference) == "" {
		return fmt.Errorf("%w: reference required", shared.ErrValidation)
	}
	if missingDate {
		return fmt.Errorf("%w: date required", shared.ErrValidation)
	}
	return nil
}

func describe(description, label, reference string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return fmt.Sprintf("%s %s", label, reference)
}
