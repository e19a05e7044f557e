package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// IntegrityChecker runs the ledger integrity queries for a tenant.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, tenantID int64) (accounting.IntegrityReport, error)
}

// TenantLister enumerates tenants with ledger data.
type TenantLister interface {
	Tenants(ctx context.Context) ([]int64, error)
}

// IntegrityOptions defines flags for the integrity command. A zero TenantID
// checks every tenant.
type IntegrityOptions struct {
	TenantID   int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegrityCommand reports unbalanced vouchers and drifted balances. It exits
// 10 when violations exist.
func IntegrityCommand(ctx context.Context, checker IntegrityChecker, tenants TenantLister, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	ids := []int64{opts.TenantID}
	if opts.TenantID <= 0 {
		if tenants == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "integrity: tenant lister not configured")
			return 1
		}
		var err error
		if ids, err = tenants.Tenants(ctx); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: list tenants: %v\n", err)
			return 1
		}
	}

	results := make([]accounting.IntegrityReport, 0, len(ids))
	failing := 0
	for _, id := range ids {
		report, err := checker.CheckIntegrity(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: tenant %d: %v\n", id, err)
			return 1
		}
		if !report.OK() {
			failing++
		}
		results = append(results, report)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(results); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrity(opts.Stdout, results)
	}
	if failing > 0 {
		return 10
	}
	return 0
}

func renderIntegrity(out io.Writer, results []accounting.IntegrityReport) {
	for _, r := range results {
		if r.OK() {
			_, _ = fmt.Fprintf(out, "tenant %d: ok\n", r.TenantID)
			continue
		}
		_, _ = fmt.Fprintf(out, "tenant %d: %d unbalanced voucher(s), %d drifted account(s)\n", r.TenantID, len(r.Unbalanced), len(r.Drift))
		for _, v := range r.Unbalanced {
			_, _ = fmt.Fprintf(out, " - voucher %s debit %s credit %s\n", v.Number, v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2))
		}
		for _, d := range r.Drift {
			_, _ = fmt.Fprintf(out, " - account %s stored %s expected %s\n", d.Code, d.Stored.StringFixed(2), d.Expected.StringFixed(2))
		}
	}
}
