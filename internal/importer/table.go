// Package importer reads tabular offer files into a uniform in-memory table.
// The ingestion pipeline consumes the table without caring whether it came
// from CSV or a spreadsheet.
package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Table is a parsed tabular file. Columns holds the header cells in file
// order; Rows holds the data rows beneath them.
type Table struct {
	Columns []string
	Rows    []Row
}

// Row is one data row. Line is the 1-based line number in the source file,
// used in ingestion error reports.
type Row struct {
	Line   int
	values map[string]string
}

// Get returns the trimmed cell under the named column. Column matching is
// case-insensitive. Missing columns and blank cells both read as "".
func (r Row) Get(column string) string {
	return r.values[strings.ToLower(strings.TrimSpace(column))]
}

func newRow(line int, columns []string, cells []string) Row {
	values := make(map[string]string, len(columns))
	for i, col := range columns {
		key := strings.ToLower(strings.TrimSpace(col))
		if key == "" {
			continue
		}
		if i < len(cells) {
			values[key] = strings.TrimSpace(cells[i])
		} else {
			values[key] = ""
		}
	}
	return Row{Line: line, values: values}
}

// HasColumn reports whether the table header contains the named column,
// matched case-insensitively.
func (t *Table) HasColumn(column string) bool {
	want := strings.ToLower(strings.TrimSpace(column))
	for _, col := range t.Columns {
		if strings.ToLower(strings.TrimSpace(col)) == want {
			return true
		}
	}
	return false
}

// ReadFile parses the named file, choosing the reader by extension.
func ReadFile(path string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
