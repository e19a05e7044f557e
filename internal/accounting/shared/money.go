package shared

import "github.com/shopspring/decimal"

// Side is the normal balance side of an account.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Epsilon is the tolerance used when comparing debit and credit totals.
var Epsilon = decimal.RequireFromString("0.01")

// PostingEffect is the raw ledger effect of a line on an account's running
// balance. Registry updates, voids and reports all derive from it.
func PostingEffect(debit, credit decimal.Decimal) decimal.Decimal {
	return debit.Sub(credit)
}

// SignedBalance presents a raw debit-minus-credit amount on the account's
// normal side.
func SignedBalance(side Side, raw decimal.Decimal) decimal.Decimal {
	if side == SideCredit {
		return raw.Neg()
	}
	return raw
}

// Balanced reports whether two totals agree within Epsilon.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThan(Epsilon)
}

// Round2 rounds to two decimal places.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// CentPrecise reports whether v has no digits beyond the second decimal
// place.
func CentPrecise(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}
