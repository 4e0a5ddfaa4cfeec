package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// CSVWriter writes the payment history as CSV.
type CSVWriter struct {
	// IncludeSummary prepends per-client totals as comment rows.
	IncludeSummary bool
}

// WriteToFile writes the payment history to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(ctx context.Context, store Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(ctx, store, f)
}

// Write writes the payment history in CSV format to the given writer.
func (w *CSVWriter) Write(ctx context.Context, store Store, out io.Writer) error {
	payments, err := store.ListPayments(ctx)
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	writer := csv.NewWriter(out)
	defer writer.Flush()

	if w.IncludeSummary {
		summaries, err := store.ClientSummaries(ctx)
		if err != nil {
			return fmt.Errorf("load client summaries: %w", err)
		}
		for _, s := range summaries {
			writer.Write([]string{"# " + s.FIO,
				"remaining " + s.RemainingDebt.StringFixed(2)})
		}
	}

	header := []string{"Client", "Amount", "Date", "Bank", "Entry"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range payments {
		if err := writer.Write(paymentRecord(p)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}

func paymentRecord(p models.PaymentRow) []string {
	entry := "Auto"
	if p.IsManual {
		entry = "Manual"
	}
	return []string{p.FIO, p.Amount.StringFixed(2), p.PaymentDate, p.BankName, entry}
}
