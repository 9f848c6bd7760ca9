package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// nullTokens are cells treated as missing when inferring a numeric column.
var nullTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// ParseCSV parses comma-separated data with a header row.
//
// Duplicate header names are disambiguated as "name.1", "name.2", ...; rows
// with a different field count than the header are rejected. Column types are
// inferred with Infer.
func ParseCSV(data []byte) (*Table, error) {
	return ParseCSVWithText(data)
}

// ParseCSVWithText parses like ParseCSV but keeps the named columns as string
// columns holding the raw cells, whatever they look like. Names that are not
// in the header are ignored.
func ParseCSVWithText(data []byte, text ...string) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	names := dedupeNames(header)

	cells := make([][]string, len(names))
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		for i, v := range record {
			cells[i] = append(cells[i], v)
		}
	}

	forced := make(map[string]bool, len(text))
	for _, name := range text {
		forced[name] = true
	}

	cols := make([]*Column, len(names))
	for i, name := range names {
		if forced[name] {
			cols[i] = NewStringColumn(name, cells[i])
			continue
		}
		cols[i] = Infer(name, cells[i])
	}

	return New(cols...)
}

// Infer builds a column from raw cells. The column is numeric when at least
// one cell is non-null and every non-null cell parses as a float.
func Infer(name string, cells []string) *Column {
	values := make([]float64, len(cells))
	nonNull := 0
	for i, cell := range cells {
		trimmed := strings.TrimSpace(cell)
		if _, isNull := nullTokens[trimmed]; isNull {
			values[i] = math.NaN()
			continue
		}

		v, ok := parseNumber(trimmed)
		if !ok {
			return NewStringColumn(name, cells)
		}
		values[i] = v
		nonNull++
	}

	if nonNull == 0 {
		return NewStringColumn(name, cells)
	}

	return NewNumericColumn(name, values)
}

// parseNumber accepts decimal and exponent notation; hex floats are text.
func parseNumber(s string) (float64, bool) {
	if strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func dedupeNames(header []string) []string {
	names := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	suffix := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		for taken[name] {
			suffix[h]++
			name = fmt.Sprintf("%s.%d", h, suffix[h])
		}
		taken[name] = true
		names[i] = name
	}

	return names
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for row := range t.Rows() {
		for i, col := range t.Columns {
			record[i] = col.Text(row)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

// MarshalCSV renders the table as CSV bytes.
func (t *Table) MarshalCSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
