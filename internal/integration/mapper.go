package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func monetary(qty, unitCost decimal.Decimal) decimal.Decimal {
	return shared.Round2(qty.Mul(unitCost))
}

// itemsTotal sums the extended amount of every item and returns the display
// items alongside.
func itemsTotal(items []Item, accountID int64) (decimal.Decimal, []accounting.ItemInput) {
	total := decimal.Zero
	out := make([]accounting.ItemInput, 0, len(items))
	for _, item := range items {
		id := accountID
		display := accounting.ItemInput{
			AccountID:   &id,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
		}
		total = total.Add(display.Subtotal())
		out = append(out, display)
	}
	return shared.Round2(total), out
}

func debit(accountID int64, amount decimal.Decimal, memo string) accounting.PostingLineInput {
	return accounting.PostingLineInput{AccountID: accountID, Debit: amount, Memo: memo}
}

func credit(accountID int64, amount decimal.Decimal, memo string) accounting.PostingLineInput {
	return accounting.PostingLineInput{AccountID: accountID, Credit: amount, Memo: memo}
}
