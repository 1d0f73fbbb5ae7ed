// Package sheet writes canonical entity rows as spreadsheet files.
//
// Rows are the generic maps produced by entity.Mapper.Map. Columns are
// fixed up front so every row lines up with the header.
package sheet

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Format is an output file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// FormatFor picks the format from path's extension.
//
// Errors:
//   - Extensions other than .csv and .xlsx.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	default:
		return "", fmt.Errorf("sheet: unsupported file extension %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

// Columns returns the union of keys across rows, sorted, with "id" first
// when present.
func Columns(rows []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	_, hasID := seen["id"]
	delete(seen, "id")

	cols := make([]string, 0, len(seen)+1)
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	if hasID {
		cols = append([]string{"id"}, cols...)
	}
	return cols
}

// Write renders rows under columns in format f and returns the number of
// data rows written.
func Write(w io.Writer, f Format, sheetName string, columns []string, rows []map[string]any) (int, error) {
	switch f {
	case CSV:
		return WriteCSV(w, columns, rows)
	case XLSX:
		return WriteXLSX(w, sheetName, columns, rows)
	default:
		return 0, fmt.Errorf("sheet: unsupported format %q", f)
	}
}

// WriteCSV writes a header line and one line per row. Missing cells are
// empty; nested values are JSON-encoded.
func WriteCSV(w io.Writer, columns []string, rows []map[string]any) (int, error) {
	if len(columns) == 0 {
		return 0, errors.New("sheet: no columns")
	}
	buffered := bufio.NewWriter(w)
	cw := csv.NewWriter(buffered)

	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("sheet: write header: %w", err)
	}
	line := make([]string, len(columns))
	for _, r := range rows {
		for i, c := range columns {
			line[i] = formatValue(r[c])
		}
		if err := cw.Write(line); err != nil {
			return 0, fmt.Errorf("sheet: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("sheet: flush rows: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("sheet: flush: %w", err)
	}
	return len(rows), nil
}

// WriteXLSX writes a single-sheet workbook named sheetName (truncated to
// Excel's limit; "Sheet1" when empty). Numeric cells stay numeric.
func WriteXLSX(w io.Writer, sheetName string, columns []string, rows []map[string]any) (int, error) {
	if len(columns) == 0 {
		return 0, errors.New("sheet: no columns")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	name := sanitizeSheetName(sheetName)
	if first := f.GetSheetName(0); first != name {
		if err := f.SetSheetName(first, name); err != nil {
			return 0, fmt.Errorf("sheet: name sheet %q: %w", name, err)
		}
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return 0, fmt.Errorf("sheet: write header: %w", err)
	}

	line := make([]any, len(columns))
	for n, r := range rows {
		for i, c := range columns {
			line[i] = cellValue(r[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return 0, fmt.Errorf("sheet: row %d: %w", n+2, err)
		}
		if err := f.SetSheetRow(name, cell, &line); err != nil {
			return 0, fmt.Errorf("sheet: write row %d: %w", n+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("sheet: write workbook: %w", err)
	}
	return len(rows), nil
}

func sanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "Sheet1"
	}
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}

// cellValue keeps numbers typed for the workbook.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string, float64, int, int64:
		return t
	default:
		return formatValue(v)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
