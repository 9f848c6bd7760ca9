package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/codec/smp"
	"github.com/arloliu/sempress-lfs/settings"
)

func csvInput(rows int) string {
	var b strings.Builder
	b.WriteString("id,region,amount\n")
	for i := range rows {
		fmt.Fprintf(&b, "%d,%s,%d.5\n", i, []string{"eu", "us", "apac"}[i%3], i%40)
	}

	return b.String()
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(append([]string{"git-lfs-sempress"}, args...), strings.NewReader(stdin), &out)

	return out.String(), err
}

func TestRun_UsageAndVersion(t *testing.T) {
	out, err := runCmd(t, "")
	require.NoError(t, err)
	require.Contains(t, out, "Usage:")

	out, err = runCmd(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, "git-lfs-sempress dev\n", out)

	_, err = runCmd(t, "", "bogus")
	require.ErrorContains(t, err, "unknown command")
}

func TestRun_CleanSmudge(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(settings.FileName, []byte("version: 1\nthresholds:\n  min_size: 1KB\n"), 0o644))

	input := csvInput(5000)
	blob, err := runCmd(t, input, "clean", "sales.csv")
	require.NoError(t, err)
	require.True(t, smp.IsBlob([]byte(blob)))

	restored, err := runCmd(t, blob, "-v", "smudge", "sales.csv")
	require.NoError(t, err)
	require.Equal(t, input, restored)

	small := "a,b\n1,2\n"
	out, err := runCmd(t, small, "clean", "small.csv")
	require.NoError(t, err)
	require.Equal(t, small, out)

	out, err = runCmd(t, small, "smudge", "small.csv")
	require.NoError(t, err)
	require.Equal(t, small, out)
}

func TestRun_TrackAndStats(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCmd(t, "", "track", "*.csv")
	require.NoError(t, err)
	require.Contains(t, out, "Now tracking: *.csv")

	out, err = runCmd(t, "", "track", "*.csv")
	require.NoError(t, err)
	require.Contains(t, out, "already tracked")

	_, err = runCmd(t, "", "track")
	require.Error(t, err)
}

func TestRun_Analyze(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("a.csv", []byte(csvInput(10)), 0o644))

	out, err := runCmd(t, "", "analyze")
	require.NoError(t, err)
	require.Contains(t, out, "Found 1 tabular files")
	require.Contains(t, out, "a.csv")
}

func TestRun_Quality(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.csv")
	same := filepath.Join(dir, "same.csv")
	changed := filepath.Join(dir, "changed.csv")
	require.NoError(t, os.WriteFile(orig, []byte("id,name\n1,a\n2,b\n"), 0o644))
	require.NoError(t, os.WriteFile(same, []byte("id,name\n1,a\n2,b\n"), 0o644))
	require.NoError(t, os.WriteFile(changed, []byte("id,name\n1,a\n2,x\n"), 0o644))

	out, err := runCmd(t, "", "quality", "-v", orig, same)
	require.NoError(t, err)
	require.Contains(t, out, "Overall Similarity: 100.00%")
	require.Contains(t, out, "COLUMN DETAILS")

	out, err = runCmd(t, "", "quality", orig, changed)
	require.ErrorIs(t, err, errBlocking)
	require.Contains(t, out, "ERRORS:")

	out, err = runCmd(t, "", "quality", "-json", orig, changed)
	require.ErrorIs(t, err, errBlocking)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, 75.0, decoded["similarity_score"])

	_, err = runCmd(t, "", "quality", orig)
	require.Error(t, err)

	_, err = runCmd(t, "", "quality", orig, filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, errBlocking)
}

func TestCodecCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envEncodeCmd, "")
	t.Setenv(envDecodeCmd, "")

	a := &app{logger: zap.NewNop()}
	enc, dec := a.codecCommands()
	require.Empty(t, enc)
	require.Empty(t, dec)

	env := envEncodeCmd + "=enc-tool {input} {output}\n" + envDecodeCmd + "=dec-tool {input} {output}\n"
	require.NoError(t, os.WriteFile(envFile, []byte(env), 0o644))

	enc, dec = a.codecCommands()
	require.Equal(t, "enc-tool {input} {output}", enc)
	require.Equal(t, "dec-tool {input} {output}", dec)

	t.Setenv(envEncodeCmd, "cp {input} {output}")
	enc, _ = a.codecCommands()
	require.Equal(t, "cp {input} {output}", enc)

	c, err := a.newCodec()
	require.NoError(t, err)
	require.NotNil(t, c)
}
