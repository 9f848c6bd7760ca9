package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/table"
)

const (
	parquetSchemaName = "sempress"
	parquetBatchSize  = 1024
)

// parquetToTable reads a flat parquet file. Integer and floating point leaves
// become numeric columns; every other leaf becomes a string column.
func parquetToTable(data []byte) (*table.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	fields := f.Schema().Fields()
	numeric := make([]bool, len(fields))
	for i, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return nil, fmt.Errorf("column %q: nested and repeated columns are not supported", field.Name())
		}
		switch field.Type().Kind() {
		case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
			numeric[i] = true
		}
	}

	rows := int(f.NumRows())
	floats := make([][]float64, len(fields))
	texts := make([][]string, len(fields))
	for i := range fields {
		if numeric[i] {
			floats[i] = make([]float64, 0, rows)
		} else {
			texts[i] = make([]string, 0, rows)
		}
	}

	r := parquet.NewReader(bytes.NewReader(data))
	defer r.Close()

	buf := make([]parquet.Row, parquetBatchSize)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(fields) {
					continue
				}
				if numeric[c] {
					floats[c] = append(floats[c], parquetFloat(v))
				} else {
					texts[c] = append(texts[c], parquetText(v))
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	cols := make([]*table.Column, len(fields))
	for i, field := range fields {
		if numeric[i] {
			cols[i] = table.NewNumericColumn(field.Name(), floats[i])
		} else {
			cols[i] = table.NewStringColumn(field.Name(), texts[i])
		}
	}

	return table.New(cols...)
}

func parquetFloat(v parquet.Value) float64 {
	if v.IsNull() {
		return math.NaN()
	}

	switch v.Kind() {
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	default:
		return v.Double()
	}
}

func parquetText(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}

	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// tableToParquet writes t with optional DOUBLE leaves for numeric columns and
// optional UTF-8 leaves for string columns. Missing numeric values are nulls.
func tableToParquet(t *table.Table) ([]byte, error) {
	group := parquet.Group{}
	for _, col := range t.Columns {
		if col.Type == format.ColumnNumeric {
			group[col.Name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[col.Name] = parquet.Optional(parquet.String())
		}
	}
	schema := parquet.NewSchema(parquetSchemaName, group)

	leaf := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		lc, ok := schema.Lookup(col.Name)
		if !ok {
			return nil, fmt.Errorf("column %q missing from parquet schema", col.Name)
		}
		leaf[i] = lc.ColumnIndex
	}

	var out bytes.Buffer
	w := parquet.NewWriter(&out, schema)

	rows := make([]parquet.Row, 0, parquetBatchSize)
	flush := func() error {
		if _, err := w.WriteRows(rows); err != nil {
			return err
		}
		rows = rows[:0]

		return nil
	}

	for r := range t.Rows() {
		row := make(parquet.Row, len(t.Columns))
		for i, col := range t.Columns {
			row[leaf[i]] = parquetValue(col, r).Level(0, definitionLevel(col, r), leaf[i])
		}
		rows = append(rows, row)

		if len(rows) == parquetBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func definitionLevel(col *table.Column, row int) int {
	if col.IsNull(row) {
		return 0
	}

	return 1
}

func parquetValue(col *table.Column, row int) parquet.Value {
	switch {
	case col.IsNull(row):
		return parquet.NullValue()
	case col.Type == format.ColumnNumeric:
		return parquet.DoubleValue(col.Floats[row])
	default:
		return parquet.ByteArrayValue([]byte(col.Strings[row]))
	}
}
