package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Synthetic equity lines.
const (
	RetainedEarningsLabel = "Retained Earnings"
	CurrentEarningsLabel  = "Current Earnings"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
// Synthetic rows carry no account id.
type BalanceSheetAccount struct {
	AccountID int64           `json:"account_id,omitempty"`
	Code      string          `json:"code,omitempty"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Synthetic bool            `json:"synthetic,omitempty"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	AsOf                      time.Time           `json:"as_of"`
	FiscalYearStart           time.Time           `json:"fiscal_year_start"`
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
	Balanced                  bool                `json:"balanced"`
}

// BuildBalanceSheet aggregates closing balances into assets, liabilities and
// equity. current holds the movement since the fiscal-year start and becomes
// the Current Earnings line; earlier profit and loss becomes Retained Earnings.
func BuildBalanceSheet(closing, current []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets", Accounts: []BalanceSheetAccount{}}
	liabilities := BalanceSheetSection{Label: "Liabilities", Accounts: []BalanceSheetAccount{}}
	equity := BalanceSheetSection{Label: "Equity", Accounts: []BalanceSheetAccount{}}

	for _, acc := range closing {
		row := BalanceSheetAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Balance:   acc.sectionSigned(acc.Closing()),
		}
		switch acc.Type {
		case accounts.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.AccountTypeLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.AccountTypeEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	currentEarnings := earnings(current, false)
	retained := earnings(closing, true).Sub(currentEarnings)
	if !retained.IsZero() {
		equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Name: RetainedEarningsLabel, Balance: retained, Synthetic: true})
		equity.Total = equity.Total.Add(retained)
	}
	equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Name: CurrentEarningsLabel, Balance: currentEarnings, Synthetic: true})
	equity.Total = equity.Total.Add(currentEarnings)

	total := liabilities.Total.Add(equity.Total)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		TotalLiabilitiesAndEquity: total,
		Balanced:                  shared.Balanced(assets.Total, total),
	}
}

// FiscalYearStart returns the first day of the fiscal year containing asOf.
func FiscalYearStart(asOf time.Time, startMonth time.Month) time.Time {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	year := asOf.Year()
	if asOf.Month() < startMonth {
		year--
	}
	return time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
}
