// Package export writes the tables found in a presentation to an Excel
// workbook.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/deckdoc/parser"
	"github.com/brunobiangulo/deckdoc/sanitize"
)

// ErrNoTables is returned when the slides contain no non-empty table.
var ErrNoTables = errors.New("export: no tables")

// MIMEType is the media type of an .xlsx workbook.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SummarySheet lists every exported table.
const SummarySheet = "Summary"

// maxCellChars is Excel's limit on text in one cell.
const maxCellChars = 32767

// SheetName returns the sheet holding the n-th table (1-based) of a slide.
func SheetName(page, n int) string {
	return fmt.Sprintf("Slide %d Table %d", page, n)
}

// Tables builds a workbook with a summary sheet followed by one sheet per
// table, in slide order. It returns the workbook and the number of tables
// written.
func Tables(slides []parser.Slide) ([]byte, int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, 0, fmt.Errorf("export: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, 0, fmt.Errorf("export: %w", err)
	}
	header := []any{"Slide", "Title", "Table", "Rows", "Columns", "Sheet"}
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return nil, 0, fmt.Errorf("export: %w", err)
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return nil, 0, fmt.Errorf("export: %w", err)
	}

	written := 0
	for _, s := range slides {
		n := 0
		for _, tbl := range s.Tables {
			if tbl.Rows() == 0 || tbl.Cols() == 0 {
				continue
			}
			n++
			sheet := SheetName(s.PageNumber, n)
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, 0, fmt.Errorf("export: adding sheet %s: %w", sheet, err)
			}
			for r, row := range tbl.Cells {
				cells := make([]any, len(row))
				for c, text := range row {
					cells[c] = cellText(text)
				}
				cell, err := excelize.CoordinatesToCellName(1, r+1)
				if err != nil {
					return nil, 0, fmt.Errorf("export: %w", err)
				}
				if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
					return nil, 0, fmt.Errorf("export: writing %s row %d: %w", sheet, r+1, err)
				}
			}

			written++
			summary := []any{s.PageNumber, sanitize.Clean(s.Title), n, tbl.Rows(), tbl.Cols(), sheet}
			cell, err := excelize.CoordinatesToCellName(1, written+1)
			if err != nil {
				return nil, 0, fmt.Errorf("export: %w", err)
			}
			if err := f.SetSheetRow(SummarySheet, cell, &summary); err != nil {
				return nil, 0, fmt.Errorf("export: writing summary: %w", err)
			}
		}
	}
	if written == 0 {
		return nil, 0, ErrNoTables
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 40); err != nil {
		return nil, 0, fmt.Errorf("export: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("export: writing workbook: %w", err)
	}
	slog.Debug("export: tables workbook built", "tables", written, "bytes", buf.Len())
	return buf.Bytes(), written, nil
}

// cellText sanitizes a cell, keeping line breaks, and trims it to what a
// cell can hold.
func cellText(s string) string {
	out := sanitize.CleanLines(s)
	if utf8.RuneCountInString(out) > maxCellChars {
		out = string([]rune(out)[:maxCellChars])
	}
	return out
}
