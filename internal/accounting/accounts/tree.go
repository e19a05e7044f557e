package accounts

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// BuildTree orders accounts for display. A type filter or Flatten returns the
// filtered list sorted by code; otherwise raw balances are summed from the
// leaves upward, presented on each row's normal side, and rows are emitted
// depth-first by code.
func BuildTree(list []Account, filter TreeFilter) []TreeRow {
	if filter.Type != "" || filter.Flatten {
		return flatRows(list, filter)
	}

	byID := make(map[int64]Account, len(list))
	for _, acc := range list {
		if filter.ActiveOnly && !acc.IsActive {
			continue
		}
		byID[acc.ID] = acc
	}
	children := make(map[int64][]int64)
	var roots []int64
	for id, acc := range byID {
		if acc.ParentID != nil {
			if _, ok := byID[*acc.ParentID]; ok && *acc.ParentID != id {
				children[*acc.ParentID] = append(children[*acc.ParentID], id)
				continue
			}
		}
		roots = append(roots, id)
	}
	byCode := func(ids []int64) {
		sort.Slice(ids, func(i, j int) bool { return byID[ids[i]].Code < byID[ids[j]].Code })
	}
	byCode(roots)
	for parent := range children {
		byCode(children[parent])
	}

	totals := make(map[int64]decimal.Decimal, len(byID))
	visiting := make(map[int64]bool)
	var total func(id int64) decimal.Decimal
	total = func(id int64) decimal.Decimal {
		if sum, ok := totals[id]; ok {
			return sum
		}
		if visiting[id] {
			return decimal.Zero
		}
		visiting[id] = true
		acc := byID[id]
		sum := decimal.Zero
		if !acc.IsHeader {
			sum = acc.Balance
		}
		for _, child := range children[id] {
			sum = sum.Add(total(child))
		}
		totals[id] = sum
		return sum
	}
	for _, id := range roots {
		total(id)
	}

	rows := make([]TreeRow, 0, len(byID))
	emitted := make(map[int64]bool, len(byID))
	var walk func(id int64, depth int)
	walk = func(id int64, depth int) {
		if emitted[id] {
			return
		}
		emitted[id] = true
		rows = append(rows, TreeRow{
			Account:      byID[id],
			Depth:        depth,
			HasChildren:  len(children[id]) > 0,
			TotalBalance: shared.SignedBalance(byID[id].side(), totals[id]),
		})
		for _, child := range children[id] {
			walk(child, depth+1)
		}
	}
	for _, id := range roots {
		walk(id, 0)
	}
	return rows
}

func flatRows(list []Account, filter TreeFilter) []TreeRow {
	rows := make([]TreeRow, 0, len(list))
	for _, acc := range list {
		if filter.Type != "" && acc.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !acc.IsActive {
			continue
		}
		rows = append(rows, TreeRow{Account: acc, TotalBalance: acc.NormalBalance()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows
}

// ResolveLevel returns the depth of a new account under parent.
func ResolveLevel(parent *Account) int {
	if parent == nil {
		return 1
	}
	return parent.Level + 1
}
