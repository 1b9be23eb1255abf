package discrepancy

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// WriteWorkbook writes rep as an .xlsx: a summary sheet listing every
// flagged check, then one sheet of details per check.
func WriteWorkbook(w io.Writer, rep *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Month", rep.Month},
		{"Prior month", rep.PriorMonth},
		{"Checks run", rep.Summary.TotalChecks},
		{"Issues found", rep.Summary.IssuesFound},
		{},
		{"Check", "Severity", "Count", "Description"},
	}
	for _, c := range rep.Checks {
		rows = append(rows, []any{c.Title, string(c.Severity), c.Count, c.Description})
	}
	for _, id := range rep.Failed {
		rows = append(rows, []any{id, "failed", "", "check could not run"})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	for _, c := range rep.Checks {
		if _, err := f.NewSheet(c.ID); err != nil {
			return fmt.Errorf("sheet %s: %w", c.ID, err)
		}
		header := make([]any, len(c.Columns))
		for i, col := range c.Columns {
			header[i] = col
		}
		detail := [][]any{header}
		for _, r := range c.Details {
			row := make([]any, len(c.Columns))
			for i, col := range c.Columns {
				row[i] = cellValue(r[col])
			}
			detail = append(detail, row)
		}
		if err := writeRows(f, c.ID, detail); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// cellValue stores money as a number so the sheet can sum it.
func cellValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}
