package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a header row plus string records.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV reads a table with a header row. Ragged rows are allowed.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "stats: read %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("stats: %s is empty", path)
	}

	t := &Table{Header: records[0], Rows: records[1:]}
	for i, h := range t.Header {
		t.Header[i] = strings.TrimSpace(h)
	}
	return t, nil
}

// WriteCSV writes t with its header row.
func WriteCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "stats: create %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "stats: write %s", path)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "stats: write %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "stats: close %s", path)
	}
	return nil
}

// WriteXLSX writes t to a single-sheet workbook. Cells that parse as numbers
// are stored as numbers.
func WriteXLSX(path, sheetName string, t *Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "stats: add sheet %s", sheetName)
	}

	header := sheet.AddRow()
	for _, h := range t.Header {
		header.AddCell().SetString(h)
	}
	for _, rec := range t.Rows {
		row := sheet.AddRow()
		for _, v := range rec {
			cell := row.AddCell()
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				cell.SetFloat(n)
			} else {
				cell.SetString(v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "stats: save %s", path)
	}
	return nil
}

// ReadXLSX reads the first sheet of a workbook written by WriteXLSX.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("stats: %s has no sheets", path)
	}

	t := &Table{}
	for i, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// WriteTable writes t as .xlsx when path has that extension, otherwise CSV.
func WriteTable(path string, t *Table) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if len(name) > 31 {
			name = name[:31]
		}
		return WriteXLSX(path, name, t)
	}
	return WriteCSV(path, t)
}
