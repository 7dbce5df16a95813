package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/billing"
)

// BillingOps is the billing surface driven from the command line.
type BillingOps interface {
	RecomputeAll(ctx context.Context, period billing.Period) (billing.BatchResult, error)
	RehomeManualItems(ctx context.Context) (billing.RehomeResult, error)
	ComputeInvoice(ctx context.Context, userID string, period billing.Period) (billing.Invoice, error)
}

// BillingOpsCLI offers operator helpers around invoice maintenance.
type BillingOpsCLI struct {
	ops BillingOps
}

// NewBillingOpsCLI constructs a new helper instance.
func NewBillingOpsCLI(ops BillingOps) (*BillingOpsCLI, error) {
	if ops == nil {
		return nil, fmt.Errorf("billing cli: service required")
	}
	return &BillingOpsCLI{ops: ops}, nil
}

// CommandOptions carries output settings shared by commands.
type CommandOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *CommandOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// RecomputeCommand recomputes every billable invoice of period. The exit code
// is 0 on full success, 10 when some users failed and 1 on errors.
func (c *BillingOpsCLI) RecomputeCommand(ctx context.Context, period string, opts CommandOptions) int {
	opts.defaults()
	p, err := billing.ParsePeriod(period)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "recompute: invalid period %q (expected YYYY-MM)\n", period)
		return 1
	}
	result, err := c.ops.RecomputeAll(ctx, p)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "recompute: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recompute: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "Recomputed %s: %d of %d invoice(s) succeeded\n", result.Period, result.Succeeded, result.Total)
		for _, f := range result.Failures {
			_, _ = fmt.Fprintf(opts.Stdout, " - %s: %s\n", f.UserID, f.Message)
		}
	}
	if len(result.Failures) > 0 {
		return 10
	}
	return 0
}

// RehomeCommand moves manual items onto the invoice of their service period.
func (c *BillingOpsCLI) RehomeCommand(ctx context.Context, opts CommandOptions) int {
	opts.defaults()
	result, err := c.ops.RehomeManualItems(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rehome: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rehome: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Moved %d manual item(s) across %d invoice(s)\n", result.Moved, len(result.Invoices))
	return 0
}

// InvoiceCommand recomputes and prints one invoice.
func (c *BillingOpsCLI) InvoiceCommand(ctx context.Context, userID, period string, opts CommandOptions) int {
	opts.defaults()
	p, err := billing.ParsePeriod(period)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "invoice: invalid period %q (expected YYYY-MM)\n", period)
		return 1
	}
	invoice, err := c.ops.ComputeInvoice(ctx, userID, p)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "invoice: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(invoice); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "invoice: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Invoice %s / %s (due %s)\n", invoice.UserID, invoice.Period, invoice.DueDate.Format(time.DateOnly))
	for _, item := range invoice.Items {
		_, _ = fmt.Fprintf(opts.Stdout, " - [%s] %s x%d = %s\n", item.Type, item.Description, item.Quantity, item.TotalPrice.StringFixed(2))
	}
	for _, w := range invoice.Warnings {
		_, _ = fmt.Fprintf(opts.Stdout, " ! no catalog price for %s\n", w.Type)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Total: %s\n", invoice.Total.StringFixed(2))
	return 0
}
