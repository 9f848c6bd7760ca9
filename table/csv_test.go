package table

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sempress-lfs/format"
)

func TestParseCSV(t *testing.T) {
	data := []byte("id,amount,name\n1,10.5,a\n2,,b\n3,7,c\n")

	tbl, err := ParseCSV(data)
	require.NoError(t, err)

	rows, cols := tbl.Shape()
	require.Equal(t, 3, rows)
	require.Equal(t, 3, cols)

	id, _ := tbl.Column("id")
	require.Equal(t, format.ColumnNumeric, id.Type)
	require.True(t, id.Integral)
	require.Equal(t, []float64{1, 2, 3}, id.Floats)

	amount, _ := tbl.Column("amount")
	require.Equal(t, format.ColumnNumeric, amount.Type)
	require.False(t, amount.Integral)
	require.True(t, math.IsNaN(amount.Floats[1]))

	name, _ := tbl.Column("name")
	require.Equal(t, format.ColumnString, name.Type)
	require.Equal(t, []string{"a", "b", "c"}, name.Strings)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(nil)
	require.ErrorIs(t, err, ErrNoHeader)

	_, err = ParseCSV([]byte("a,b\n1,2,3\n"))
	require.Error(t, err)
}

func TestParseCSV_BOMAndDuplicates(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,a,a,a.1\n1,2,3,4\n")...)

	tbl, err := ParseCSV(data)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "a.1", "a.2", "a.1.1"}, tbl.Names())
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	tbl, err := ParseCSV([]byte("a,b\n"))
	require.NoError(t, err)
	rows, cols := tbl.Shape()
	require.Zero(t, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, format.ColumnString, tbl.Columns[0].Type)
}

func TestParseCSVWithText(t *testing.T) {
	data := []byte("zip,label,amount\n00037,1.50,3\n00100,,4\n")

	tests := []struct {
		name      string
		text      []string
		wantTypes []format.ColumnType
		wantZip   string
	}{
		{
			name:      "inferred",
			wantTypes: []format.ColumnType{format.ColumnNumeric, format.ColumnNumeric, format.ColumnNumeric},
			wantZip:   "37",
		},
		{
			name:      "forced text",
			text:      []string{"zip", "label", "missing"},
			wantTypes: []format.ColumnType{format.ColumnString, format.ColumnString, format.ColumnNumeric},
			wantZip:   "00037",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParseCSVWithText(data, tt.text...)
			require.NoError(t, err)
			for i, want := range tt.wantTypes {
				require.Equal(t, want, tbl.Columns[i].Type, tbl.Columns[i].Name)
			}
			require.Equal(t, tt.wantZip, tbl.Text(0, 0))
		})
	}

	tbl, err := ParseCSVWithText(data, "label")
	require.NoError(t, err)
	require.Equal(t, []string{"1.50", ""}, tbl.Columns[1].Strings)
	require.Equal(t, []string{"label"}, tbl.TextColumns())
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name     string
		cells    []string
		expected format.ColumnType
	}{
		{"numbers", []string{"1", "2.5", "-3e2"}, format.ColumnNumeric},
		{"nulls and numbers", []string{"", "NA", " 4 "}, format.ColumnNumeric},
		{"all blank", []string{"", ""}, format.ColumnString},
		{"mixed", []string{"1", "two"}, format.ColumnString},
		{"hex is text", []string{"0x10"}, format.ColumnString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Infer("c", tt.cells).Type)
		})
	}
}

func TestMarshalCSV_RoundTrip(t *testing.T) {
	data := []byte("id,amount,name\n1,10.5,\"x, y\"\n2,,b\n")

	tbl, err := ParseCSV(data)
	require.NoError(t, err)

	out, err := tbl.MarshalCSV()
	require.NoError(t, err)
	require.Equal(t, string(data), string(out))

	again, err := ParseCSV(out)
	require.NoError(t, err)
	require.Equal(t, tbl.Names(), again.Names())
}
