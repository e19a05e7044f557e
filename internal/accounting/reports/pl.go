package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss is the income statement for a range.
type ProfitAndLoss struct {
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Revenue   ProfitAndLossSection `json:"revenue"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetIncome decimal.Decimal      `json:"net_income"`
}

// BuildProfitAndLoss aggregates the range movement of revenue and expense
// accounts. Opening balances are ignored.
func BuildProfitAndLoss(balances []AccountBalance) ProfitAndLoss {
	revenue := ProfitAndLossSection{Label: "Revenue", Accounts: []ProfitAndLossAccount{}}
	expense := ProfitAndLossSection{Label: "Expense", Accounts: []ProfitAndLossAccount{}}

	for _, acc := range balances {
		row := ProfitAndLossAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Amount:    acc.sectionSigned(acc.Movement()),
		}
		switch acc.Type {
		case accounts.AccountTypeRevenue:
			revenue.Accounts = append(revenue.Accounts, row)
			revenue.Total = revenue.Total.Add(row.Amount)
		case accounts.AccountTypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	sort.Slice(revenue.Accounts, func(i, j int) bool { return revenue.Accounts[i].Code < revenue.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		Revenue:   revenue,
		Expense:   expense,
		NetIncome: revenue.Total.Sub(expense.Total),
	}
}

// earnings returns revenue minus expense of balances, using closing amounts
// when withOpening is set and range movement otherwise.
func earnings(balances []AccountBalance, withOpening bool) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range balances {
		raw := acc.Movement()
		if withOpening {
			raw = acc.Closing()
		}
		switch acc.Type {
		case accounts.AccountTypeRevenue:
			total = total.Add(acc.sectionSigned(raw))
		case accounts.AccountTypeExpense:
			total = total.Sub(acc.sectionSigned(raw))
		}
	}
	return total
}
