// Package convert normalizes tabular containers into a table.Table and back.
//
// Conversion is a pass-through: it carries no compression logic. The
// Metadata returned by ToTable holds what FromTable needs to rebuild the
// original container, and travels with the table through the codec as a
// table attribute.
package convert

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/table"
)

// MetadataAttr is the table attribute holding the encoded Metadata.
const MetadataAttr = "sempress.format"

var (
	ErrUnsupportedKind = errors.New("convert: unsupported source kind")
	ErrNoMetadata      = errors.New("convert: table carries no format metadata")
)

// Metadata describes how to rebuild the original container of a table.
type Metadata struct {
	Kind format.SourceKind `json:"format"`
	// Columns is the column order of the source.
	Columns []string `json:"columns,omitempty"`
	// StringColumns lists source columns typed as text, so that text holding
	// only digits is written back as text.
	StringColumns []string `json:"string_columns,omitempty"`
	// Width, Height and Mode describe image sources.
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// Attach stores m in the attributes of t.
func (m Metadata) Attach(t *table.Table) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode format metadata: %w", err)
	}
	t.SetAttr(MetadataAttr, string(data))

	return nil
}

// MetadataFromAttrs decodes the Metadata attached to a table.
func MetadataFromAttrs(attrs map[string]string) (Metadata, error) {
	raw, ok := attrs[MetadataAttr]
	if !ok {
		return Metadata{}, ErrNoMetadata
	}

	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("decode format metadata: %w", err)
	}

	return m, nil
}

// LockedColumns returns the columns of kind that must be stored losslessly
// for FromTable to succeed.
func LockedColumns(kind format.SourceKind) []string {
	if kind == format.SourceImage {
		return []string{"x", "y"}
	}

	return nil
}

// ToTable parses data of the given kind.
//
// Parameters:
//   - data: Complete file contents
//   - kind: Source kind, usually from format.DetectSourceKind
//
// Returns:
//   - *table.Table: Parsed table
//   - Metadata: Reconstruction metadata for FromTable
//   - error: ErrUnsupportedKind or a parse error
func ToTable(data []byte, kind format.SourceKind) (*table.Table, Metadata, error) {
	var (
		t    *table.Table
		meta Metadata
		err  error
	)

	switch kind {
	case format.SourceCSV:
		t, err = table.ParseCSV(data)
	case format.SourceParquet:
		t, err = parquetToTable(data)
	case format.SourceJSON:
		t, err = jsonToTable(data)
	case format.SourceImage:
		t, meta, err = pngToTable(data)
	default:
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read %s: %w", kind, err)
	}

	meta.Kind = kind
	meta.Columns = t.Names()
	for _, col := range t.Columns {
		if col.Type == format.ColumnString {
			meta.StringColumns = append(meta.StringColumns, col.Name)
		}
	}

	return t, meta, nil
}

// FromTable renders t in the container described by m.
func FromTable(t *table.Table, m Metadata) ([]byte, error) {
	t = restoreStringColumns(t, m.StringColumns)

	switch m.Kind {
	case format.SourceCSV, "":
		return t.MarshalCSV()
	case format.SourceParquet:
		return tableToParquet(t)
	case format.SourceJSON:
		return tableToJSON(t, m.Columns)
	case format.SourceImage:
		return tableToPNG(t, m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, m.Kind)
	}
}

// restoreStringColumns returns t with the named numeric columns turned back
// into text. t itself is not modified.
func restoreStringColumns(t *table.Table, names []string) *table.Table {
	if len(names) == 0 {
		return t
	}

	out := &table.Table{Columns: make([]*table.Column, len(t.Columns)), Attrs: t.Attrs}
	for i, col := range t.Columns {
		if col.Type != format.ColumnNumeric || !slices.Contains(names, col.Name) {
			out.Columns[i] = col
			continue
		}

		values := make([]string, col.Len())
		for row := range values {
			values[row] = col.Text(row)
		}
		out.Columns[i] = table.NewStringColumn(col.Name, values)
	}

	return out
}

// ReadTableFile loads a table from path, choosing the parser by extension.
// Files with an unrecognized extension are parsed as CSV.
func ReadTableFile(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	kind := format.DetectSourceKind(path)
	if kind == format.SourceUnknown {
		kind = format.SourceCSV
	}

	t, _, err := ToTable(data, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return t, nil
}
