// Package sheetconv renders the first worksheet of an XLSX workbook as CSV.
// It runs inside the xlsx2csv binary so a malformed or hostile workbook can
// only take down that process.
package sheetconv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned for a workbook without worksheets.
var ErrNoSheets = errors.New("excel file has no sheets")

// Convert reads an XLSX workbook from r and writes its first worksheet to w
// as CSV. Every cell is written as its formatted string value and short rows
// are padded to the widest row.
func Convert(r io.Reader, w io.Writer) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	writer := csv.NewWriter(w)
	for _, row := range rows {
		if err := writer.Write(padRow(row, width)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row
	}
	out := make([]string, length)
	copy(out, row)
	return out
}
