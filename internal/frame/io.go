package frame

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ReadCSV reads a frame from CSV. The first record is the header.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv has no header")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make([]*Column, len(header))
	for i, name := range header {
		cols[i] = &Column{Name: strings.TrimSpace(name)}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record on line %d: %w", line, err)
		}
		for i, cell := range record {
			cols[i].Cells = append(cols[i].Cells, cell)
		}
	}
	return New(cols...)
}

// LoadCSV opens and reads a CSV file.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// FromRows drains a query result into a frame. NULLs become empty cells.
func FromRows(rows *sql.Rows) (*Frame, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = &Column{Name: n}
	}

	values := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			cell := ""
			if v.Valid {
				cell = v.String
			}
			cols[i].Cells = append(cols[i].Cells, cell)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return New(cols...)
}

// FromRecords builds a frame from JSON-style records. Columns are the union of
// keys, sorted; absent keys and nulls become empty cells.
func FromRecords(records []map[string]any) (*Frame, error) {
	keys := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]*Column, len(names))
	for i, n := range names {
		cells := make([]string, len(records))
		for j, r := range records {
			cells[j] = formatCell(r[n])
		}
		cols[i] = &Column{Name: n, Cells: cells}
	}
	f, err := New(cols...)
	if err != nil {
		return nil, err
	}
	f.rows = len(records)
	return f, nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}
