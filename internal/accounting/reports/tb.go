package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Range bounds a report. A zero From means since inception.
type Range struct {
	From time.Time
	To   time.Time
}

// AccountBalance models a postable account aggregated over a range. Opening
// is the raw balance carried into the range; Debit and Credit sum the posted
// ledger lines dated inside it.
type AccountBalance struct {
	AccountID  int64                `json:"account_id"`
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
	NormalSide shared.Side          `json:"normal_side"`
	Opening    decimal.Decimal      `json:"opening"`
	Debit      decimal.Decimal      `json:"debit"`
	Credit     decimal.Decimal      `json:"credit"`
}

// Movement is the raw effect of the range's lines.
func (a AccountBalance) Movement() decimal.Decimal {
	return shared.PostingEffect(a.Debit, a.Credit)
}

// Closing computes the raw closing balance for the account.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening.Add(a.Movement())
}

// sectionSigned presents raw on the side of the account type so contra
// accounts reduce their section total.
func (a AccountBalance) sectionSigned(raw decimal.Decimal) decimal.Decimal {
	return shared.SignedBalance(a.Type.NormalSide(), raw)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group. The
// closing balance is split into debit and credit columns.
type TrialBalanceAccount struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Opening       decimal.Decimal `json:"opening"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key           string                `json:"key"`
	Accounts      []TrialBalanceAccount `json:"accounts"`
	Opening       decimal.Decimal       `json:"opening"`
	Debit         decimal.Decimal       `json:"debit"`
	Credit        decimal.Decimal       `json:"credit"`
	ClosingDebit  decimal.Decimal       `json:"closing_debit"`
	ClosingCredit decimal.Decimal       `json:"closing_credit"`
}

// TrialBalance lists every postable account as of a date.
type TrialBalance struct {
	AsOf               time.Time           `json:"as_of"`
	Groups             []TrialBalanceGroup `json:"groups"`
	TotalOpening       decimal.Decimal     `json:"total_opening"`
	TotalDebit         decimal.Decimal     `json:"total_debit"`
	TotalCredit        decimal.Decimal     `json:"total_credit"`
	TotalClosingDebit  decimal.Decimal     `json:"total_closing_debit"`
	TotalClosingCredit decimal.Decimal     `json:"total_closing_credit"`
	Balanced           bool                `json:"balanced"`
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range balances {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Opening:   acc.Opening,
			Debit:     acc.Debit,
			Credit:    acc.Credit,
		}
		if closing := acc.Closing(); closing.IsPositive() {
			row.ClosingDebit = closing
		} else {
			row.ClosingCredit = closing.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = grp.Opening.Add(row.Opening)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.ClosingDebit = grp.ClosingDebit.Add(row.ClosingDebit)
		grp.ClosingCredit = grp.ClosingCredit.Add(row.ClosingCredit)
	}

	sort.Strings(keys)
	result := TrialBalance{Groups: make([]TrialBalanceGroup, 0, len(keys))}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = result.TotalOpening.Add(grp.Opening)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalClosingDebit = result.TotalClosingDebit.Add(grp.ClosingDebit)
		result.TotalClosingCredit = result.TotalClosingCredit.Add(grp.ClosingCredit)
	}
	result.Balanced = shared.Balanced(result.TotalDebit, result.TotalCredit) &&
		shared.Balanced(result.TotalClosingDebit, result.TotalClosingCredit)
	return result
}
