package sync

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMissingColumns is returned when a spreadsheet lacks a required header.
var ErrMissingColumns = errors.New("missing required columns")

// sheetRow maps lower-cased header names to cell values of one data row.
type sheetRow map[string]string

func (r sheetRow) get(column string) string {
	return strings.TrimSpace(r[column])
}

// readSheet returns the data rows of the first worksheet. Fully empty rows are dropped.
func readSheet(path string, required []string) ([]sheetRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	present := map[string]bool{}
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
		present[header[i]] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	out := make([]sheetRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		row := sheetRow{}
		empty := true
		for i, cell := range cells {
			if i < len(header) && header[i] != "" {
				row[header[i]] = cell
				if strings.TrimSpace(cell) != "" {
					empty = false
				}
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out, nil
}

// writeSheet replaces path with a single-sheet workbook. The file is left writable for
// everyone so that operators can edit it in place.
func writeSheet(path, name string, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return err
	}

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &headerCells); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0666)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
