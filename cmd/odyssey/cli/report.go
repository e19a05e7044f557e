package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

// TrialBalancer builds a trial balance for a tenant.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) (reports.TrialBalance, error)
}

// ReportCLI prints ledger reports to a terminal.
type ReportCLI struct {
	reports TrialBalancer
	now     func() time.Time
}

// NewReportCLI constructs the report helper.
func NewReportCLI(reports TrialBalancer) *ReportCLI {
	return &ReportCLI{reports: reports, now: time.Now}
}

// TrialBalanceOptions defines available flags for the trial-balance command.
type TrialBalanceOptions struct {
	TenantID   int64
	AsOf       string
	Locale     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TrialBalanceCommand prints the trial balance. It exits 10 when the report
// does not balance.
func (c *ReportCLI) TrialBalanceCommand(ctx context.Context, opts TrialBalanceOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "trial-balance: tenant is required and must be positive")
		return 1
	}
	asOf := c.now().UTC()
	if raw := strings.TrimSpace(opts.AsOf); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "trial-balance: invalid date %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return 1
		}
		asOf = parsed
	}
	tag, err := language.Parse(defaultString(opts.Locale, "en"))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "trial-balance: invalid locale %q\n", opts.Locale)
		return 1
	}

	tb, err := c.reports.TrialBalance(ctx, opts.TenantID, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "trial-balance: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(tb); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "trial-balance: encode json: %v\n", err)
			return 1
		}
	} else {
		renderTrialBalance(opts.Stdout, message.NewPrinter(tag), opts.TenantID, tb)
	}
	if !tb.Balanced {
		return 10
	}
	return 0
}

func renderTrialBalance(out io.Writer, p *message.Printer, tenantID int64, tb reports.TrialBalance) {
	_, _ = fmt.Fprintf(out, "Trial balance for tenant %d as of %s\n", tenantID, tb.AsOf.Format("2006-01-02"))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "Code\tName\tOpening\tDebit\tCredit\tClosing Dr\tClosing Cr\t")
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", acc.Code, acc.Name,
				amount(p, acc.Opening), amount(p, acc.Debit), amount(p, acc.Credit),
				amount(p, acc.ClosingDebit), amount(p, acc.ClosingCredit))
		}
	}
	_, _ = fmt.Fprintf(tw, "\tTotal\t%s\t%s\t%s\t%s\t%s\t\n",
		amount(p, tb.TotalOpening), amount(p, tb.TotalDebit), amount(p, tb.TotalCredit),
		amount(p, tb.TotalClosingDebit), amount(p, tb.TotalClosingCredit))
	_ = tw.Flush()
	if tb.Balanced {
		_, _ = fmt.Fprintln(out, "Balanced.")
	} else {
		_, _ = fmt.Fprintln(out, "NOT BALANCED.")
	}
}

// amount formats d with locale grouping and two decimals.
func amount(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
