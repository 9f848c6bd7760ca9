package convert

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/table"
)

// jsonToTable reads an array of flat records. Columns are the union of the
// record keys in sorted order; a column is numeric when every non-null value
// is a JSON number. Nested values are kept as their JSON text.
func jsonToTable(data []byte) (*table.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("expected an array of records: %w", err)
	}

	keySet := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	cols := make([]*table.Column, len(keys))
	for i, key := range keys {
		col, err := jsonColumn(key, records)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	return table.New(cols...)
}

func jsonColumn(key string, records []map[string]any) (*table.Column, error) {
	numeric, seen := true, false
	for _, rec := range records {
		switch rec[key].(type) {
		case nil:
		case json.Number:
			seen = true
		default:
			numeric = false
		}
	}

	if numeric && seen {
		values := make([]float64, len(records))
		for i, rec := range records {
			n, ok := rec[key].(json.Number)
			if !ok {
				values[i] = math.NaN()
				continue
			}
			v, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", key, err)
			}
			values[i] = v
		}

		return table.NewNumericColumn(key, values), nil
	}

	values := make([]string, len(records))
	for i, rec := range records {
		text, err := jsonText(rec[key])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		values[i] = text
	}

	return table.NewStringColumn(key, values), nil
}

func jsonText(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		return string(b), err
	}
}

// tableToJSON writes t as an array of records with keys in order. Missing
// and non-finite numeric values are written as null.
func tableToJSON(t *table.Table, order []string) ([]byte, error) {
	cols := make([]*table.Column, 0, len(t.Columns))
	for _, name := range order {
		if col, ok := t.Column(name); ok {
			cols = append(cols, col)
		}
	}
	if len(cols) != len(t.Columns) {
		cols = t.Columns
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r := range t.Rows() {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range cols {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')

			value, err := jsonValue(col, r)
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	return buf.Bytes(), nil
}

func jsonValue(col *table.Column, row int) ([]byte, error) {
	if col.Type != format.ColumnNumeric {
		return json.Marshal(col.Strings[row])
	}

	v := col.Floats[row]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}

	return json.Marshal(v)
}
