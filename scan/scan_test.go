package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sempress-lfs/format"
)

func writeFile(t *testing.T, root, rel string, size int) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), size), 0o644))
}

func TestAnalyze(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.csv", 100)
	writeFile(t, root, "data/big.parquet", 4000)
	writeFile(t, root, "data/mid.json", 1000)
	writeFile(t, root, "notes.txt", 9000)
	writeFile(t, root, ".git/objects/x.csv", 9000)

	sum, err := Analyze(root)
	require.NoError(t, err)
	require.Len(t, sum.Files, 3)

	require.Equal(t, "data/big.parquet", sum.Files[0].Path)
	require.Equal(t, format.SourceParquet, sum.Files[0].Kind)
	require.Equal(t, "data/mid.json", sum.Files[1].Path)
	require.Equal(t, "small.csv", sum.Files[2].Path)

	require.Equal(t, uint64(5100), sum.TotalSize)
	require.Equal(t, 2.5, sum.Files[0].EstimatedRatio)
	require.Equal(t, uint64(1600), sum.Files[0].EstimatedSize)
	require.Equal(t, uint64(1600+400+40), sum.EstimatedSize)
	require.InDelta(t, 60, sum.SavingsPct(), 0.1)

	before, after := sum.MonthlyCost()
	require.Greater(t, before, after)
}

func TestAnalyze_Empty(t *testing.T) {
	sum, err := Analyze(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, sum.Files)
	require.Zero(t, sum.Ratio())
	require.Zero(t, sum.SavingsPct())

	var buf bytes.Buffer
	require.NoError(t, sum.Write(&buf, 10))
	require.Contains(t, buf.String(), "No tabular files found")
}

func TestAnalyze_MissingRoot(t *testing.T) {
	_, err := Analyze(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestSummaryWrite(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		writeFile(t, root, name, 2048)
	}

	sum, err := Analyze(root)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sum.Write(&buf, 2))

	out := buf.String()
	require.Contains(t, out, "Found 3 tabular files")
	require.Contains(t, out, "a.csv: 2.0 KiB (csv)")
	require.NotContains(t, out, "c.csv")
	require.Contains(t, out, "... and 1 more")
	require.Contains(t, out, "Total size: 6.0 KiB")
	require.Contains(t, out, "Estimated ratio: 2.5x")
	require.True(t, strings.HasSuffix(out, "/month\n"))
}
