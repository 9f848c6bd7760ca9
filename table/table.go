// Package table holds the columnar in-memory representation of a tabular file.
//
// Each column owns a single typed slice: numeric columns store float64 values
// (NaN marks a missing cell) and string columns store their raw text. The
// compression gate, the codec and the quality engine all operate on this
// shape, independent of the container format the data came from.
package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/arloliu/sempress-lfs/format"
)

var (
	ErrNoHeader        = errors.New("table: missing header row")
	ErrDuplicateColumn = errors.New("table: duplicate column name")
	ErrLengthMismatch  = errors.New("table: columns have different row counts")
)

// Column is a named, typed column of values.
//
// Exactly one of Floats or Strings is populated, according to Type.
type Column struct {
	Name     string
	Type     format.ColumnType
	Floats   []float64
	Strings  []string
	Integral bool // every non-NaN value is a whole number
}

// NewNumericColumn creates a numeric column and derives its Integral flag.
func NewNumericColumn(name string, values []float64) *Column {
	return &Column{
		Name:     name,
		Type:     format.ColumnNumeric,
		Floats:   values,
		Integral: allIntegral(values),
	}
}

// NewStringColumn creates a string column.
func NewStringColumn(name string, values []string) *Column {
	return &Column{
		Name:    name,
		Type:    format.ColumnString,
		Strings: values,
	}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Type == format.ColumnNumeric {
		return len(c.Floats)
	}

	return len(c.Strings)
}

// IsNull reports whether row i is a missing numeric value.
// String cells are never null; an empty string is a value.
func (c *Column) IsNull(i int) bool {
	return c.Type == format.ColumnNumeric && math.IsNaN(c.Floats[i])
}

// Text returns the canonical text form of row i.
//
// Missing numeric values render as the empty string and whole numbers render
// without a fractional part, so a CSV round trip of "10.00" yields "10".
func (c *Column) Text(i int) string {
	if c.Type != format.ColumnNumeric {
		return c.Strings[i]
	}

	return FormatFloat(c.Floats[i])
}

// FormatFloat renders v the way WriteCSV does.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs == math.Trunc(abs) && abs < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

func allIntegral(values []float64) bool {
	seen := false
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) || v != math.Trunc(v) {
			return false
		}
		seen = true
	}

	return seen
}

// Table is an ordered set of equally long columns plus opaque attributes
// that travel with the data through the codec (e.g. the source format).
type Table struct {
	Columns []*Column
	Attrs   map[string]string
}

// New builds a table from columns, validating unique names and equal lengths.
func New(cols ...*Column) (*Table, error) {
	seen := make(map[string]struct{}, len(cols))
	for i, col := range cols {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col.Name)
		}
		seen[col.Name] = struct{}{}

		if i > 0 && col.Len() != cols[0].Len() {
			return nil, fmt.Errorf("%w: %q has %d rows, %q has %d",
				ErrLengthMismatch, col.Name, col.Len(), cols[0].Name, cols[0].Len())
		}
	}

	return &Table{Columns: cols, Attrs: map[string]string{}}, nil
}

// Shape returns the (row count, column count) pair.
func (t *Table) Shape() (rows, cols int) {
	return t.Rows(), len(t.Columns)
}

// Rows returns the row count.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}

	return t.Columns[0].Len()
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}

	return nil, false
}

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}

	return names
}

// TextColumns returns the names of the string columns in table order.
func (t *Table) TextColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.Type == format.ColumnString {
			names = append(names, c.Name)
		}
	}

	return names
}

// SetAttr records an attribute, allocating the map when needed.
func (t *Table) SetAttr(key, value string) {
	if t.Attrs == nil {
		t.Attrs = map[string]string{}
	}
	t.Attrs[key] = value
}

// Text returns the canonical text of the cell at (col, row).
func (t *Table) Text(col, row int) string {
	return t.Columns[col].Text(row)
}
