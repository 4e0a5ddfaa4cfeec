// Package report renders the ledger into downloadable files: an Excel
// workbook for the operator and a CSV export of the payment history.
package report

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// Store is the slice of the ledger the report needs.
type Store interface {
	ClientSummaries(ctx context.Context) ([]models.ClientSummary, error)
	ListPayments(ctx context.Context) ([]models.PaymentRow, error)
}

const (
	sheetClients  = "Clients"
	sheetPayments = "Payment History"
)

// moneyFmt shows two decimals with a thousands separator.
const moneyFmt = "#,##0.00"

// WriteExcel renders the full ledger as an .xlsx workbook: one sheet with
// per-client balances, one with every payment.
func WriteExcel(ctx context.Context, store Store, out io.Writer) error {
	summaries, err := store.ClientSummaries(ctx)
	if err != nil {
		return fmt.Errorf("load client summaries: %w", err)
	}
	payments, err := store.ListPayments(ctx)
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return err
	}
	customFmt := moneyFmt
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &customFmt})
	if err != nil {
		return err
	}

	if err := writeClientsSheet(f, summaries, header, money); err != nil {
		return err
	}
	if err := writePaymentsSheet(f, payments, header, money); err != nil {
		return err
	}

	// The workbook starts with a default sheet we do not use.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(sheetClients)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	_, err = f.WriteTo(out)
	return err
}

// WriteExcelFile renders the workbook to a file on disk.
func WriteExcelFile(ctx context.Context, store Store, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file %q: %w", path, err)
	}
	defer out.Close()
	return WriteExcel(ctx, store, out)
}

func writeClientsSheet(f *excelize.File, summaries []models.ClientSummary, header, money int) error {
	if _, err := f.NewSheet(sheetClients); err != nil {
		return err
	}
	cols := []string{"Name", "Phone", "Account", "Baseline Debt", "Paid", "Remaining", "Payments"}
	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetClients, cell, col); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetClients, "A1", "G1", header); err != nil {
		return err
	}

	for i, s := range summaries {
		row := i + 2
		values := []interface{}{s.FIO, s.Phone, s.Account,
			s.TotalDebt.InexactFloat64(),
			s.Paid.InexactFloat64(),
			s.RemainingDebt.InexactFloat64(),
			s.PaymentCount}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheetClients, cell, v); err != nil {
				return err
			}
		}
	}
	if len(summaries) > 0 {
		last := len(summaries) + 1
		if err := f.SetCellStyle(sheetClients, "D2", fmt.Sprintf("F%d", last), money); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetClients, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetClients, "B", "C", 16); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetClients, "D", "G", 14); err != nil {
		return err
	}
	return f.SetPanes(sheetClients, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func writePaymentsSheet(f *excelize.File, payments []models.PaymentRow, header, money int) error {
	if _, err := f.NewSheet(sheetPayments); err != nil {
		return err
	}
	cols := []string{"Client", "Amount", "Date", "Bank", "Entry", "Recorded"}
	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetPayments, cell, col); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetPayments, "A1", "F1", header); err != nil {
		return err
	}

	for i, p := range payments {
		entry := "Auto"
		if p.IsManual {
			entry = "Manual"
		}
		row := i + 2
		values := []interface{}{p.FIO,
			p.Amount.InexactFloat64(),
			p.PaymentDate, p.BankName, entry,
			p.CreatedAt.Format("02.01.2006 15:04")}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheetPayments, cell, v); err != nil {
				return err
			}
		}
	}
	if len(payments) > 0 {
		last := len(payments) + 1
		if err := f.SetCellStyle(sheetPayments, "B2", fmt.Sprintf("B%d", last), money); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetPayments, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetPayments, "B", "F", 16); err != nil {
		return err
	}
	return f.SetPanes(sheetPayments, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}
