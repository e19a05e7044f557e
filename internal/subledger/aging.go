package subledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BuildAging buckets the remaining amount of open documents by days past
// due as of asOf. Documents not yet due land in Current.
func BuildAging(kind DocumentKind, asOf time.Time, docs []Document, names map[int64]string) AgingReport {
	report := AgingReport{Kind: kind, AsOf: asOf}
	rows := make(map[int64]*AgingRow)
	asOfDay := day(asOf)
	for _, doc := range docs {
		if doc.Kind != kind || !doc.Status.Open() || !doc.Remaining.IsPositive() {
			continue
		}
		row, ok := rows[doc.CounterpartyID]
		if !ok {
			row = &AgingRow{CounterpartyID: doc.CounterpartyID, Name: names[doc.CounterpartyID]}
			rows[doc.CounterpartyID] = row
		}
		days := int(asOfDay.Sub(day(doc.DueDate)).Hours() / 24)
		add(row, days, doc.Remaining)
		add(&report.Totals, days, doc.Remaining)
	}
	report.Rows = make([]AgingRow, 0, len(rows))
	for _, row := range rows {
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		if report.Rows[i].Name != report.Rows[j].Name {
			return report.Rows[i].Name < report.Rows[j].Name
		}
		return report.Rows[i].CounterpartyID < report.Rows[j].CounterpartyID
	})
	return report
}

// PaidAsOf sums the live payments dated on or before asOf.
func PaidAsOf(payments []Payment, asOf time.Time) decimal.Decimal {
	cutoff := day(asOf)
	paid := decimal.Zero
	for _, p := range payments {
		if p.VoidedAt != nil || day(p.Date).After(cutoff) {
			continue
		}
		paid = paid.Add(p.Amount)
	}
	return paid
}

func add(row *AgingRow, days int, amount decimal.Decimal) {
	switch {
	case days <= 0:
		row.Current = row.Current.Add(amount)
	case days <= 30:
		row.Days1To30 = row.Days1To30.Add(amount)
	case days <= 60:
		row.Days31To60 = row.Days31To60.Add(amount)
	case days <= 90:
		row.Days61To90 = row.Days61To90.Add(amount)
	default:
		row.Over90 = row.Over90.Add(amount)
	}
	row.Total = row.Total.Add(amount)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
