package receipt

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Export column headers.
var (
	exportHeader        = []string{"Customer Name", "Closing Time", "Check Total", "Tip"}
	exportActionsHeader = "Actions"
)

const xlsxSheet = "Receipts"

func exportRow(r *Record, withActions bool) []string {
	row := []string{r.CustomerName, r.Time, r.Total, r.Tip}
	if withActions {
		row = append(row, actionFor(r))
	}
	return row
}

// actionFor is what the review table shows in its Actions column.
func actionFor(r *Record) string {
	switch {
	case r.Verification == nil:
		return "verify"
	case !r.Verification.IsCorrect:
		return "adjust"
	default:
		return "ok"
	}
}

// WriteCSV writes records with the review table columns. Fields containing
// commas, quotes or newlines are quoted and embedded quotes doubled.
func WriteCSV(w io.Writer, records []*Record, withActions bool) error {
	cw := csv.NewWriter(w)

	header := exportHeader
	if withActions {
		header = append(append([]string{}, exportHeader...), exportActionsHeader)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}

	for i, r := range records {
		if err := cw.Write(exportRow(r, withActions)); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

// WriteXLSX writes the same columns as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, records []*Record, withActions bool) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return fmt.Errorf("WriteXLSX: rename sheet: %w", err)
	}

	header := exportHeader
	if withActions {
		header = append(append([]string{}, exportHeader...), exportActionsHeader)
	}
	if err := writeXLSXRow(f, 1, header); err != nil {
		return err
	}
	for i, r := range records {
		if err := writeXLSXRow(f, i+2, exportRow(r, withActions)); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("WriteXLSX: write: %w", err)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("WriteXLSX: cell name: %w", err)
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(xlsxSheet, cell, &vals); err != nil {
		return fmt.Errorf("WriteXLSX: row %d: %w", row, err)
	}
	return nil
}
