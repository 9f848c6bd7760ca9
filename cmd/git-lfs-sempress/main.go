package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/codec/smp"
	"github.com/arloliu/sempress-lfs/filter"
	"github.com/arloliu/sempress-lfs/gitcfg"
	"github.com/arloliu/sempress-lfs/internal/logging"
	"github.com/arloliu/sempress-lfs/quality"
	"github.com/arloliu/sempress-lfs/report"
	"github.com/arloliu/sempress-lfs/scan"
	"github.com/arloliu/sempress-lfs/settings"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	envEncodeCmd = "SEMPRESS_ENCODE_CMD"
	envDecodeCmd = "SEMPRESS_DECODE_CMD"
	// envFile may hold the codec command templates for the repository.
	envFile = ".sempress.env"

	analyzeTopFiles = 10
)

// errBlocking makes the process exit with status 1 without another message.
var errBlocking = errors.New("quality check found blocking issues")

type app struct {
	stdin   io.Reader
	stdout  io.Writer
	verbose bool
	logger  *zap.Logger
}

func main() {
	err := run(os.Args, os.Stdin, os.Stdout)
	if errors.Is(err, errBlocking) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-lfs-sempress error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	global := flag.NewFlagSet("git-lfs-sempress", flag.ContinueOnError)
	verbose := global.Bool("v", false, "Enable debug logging")
	if err := global.Parse(args[1:]); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stdout)
		return nil
	}

	a := &app{stdin: stdin, stdout: stdout, verbose: *verbose}
	a.logger = logging.New(logging.Options{Name: "sempress-" + rest[0], Verbose: *verbose})
	defer func() { _ = a.logger.Sync() }()

	switch rest[0] {
	case "clean":
		return a.runFilter(rest[1:], true)
	case "smudge":
		return a.runFilter(rest[1:], false)
	case "init":
		return a.runInit()
	case "track":
		return a.runTrack(rest[1:])
	case "analyze":
		return a.runAnalyze()
	case "stats":
		return a.runStats()
	case "quality":
		return a.runQuality(rest[1:])
	case "version":
		fmt.Fprintf(stdout, "git-lfs-sempress %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", rest[0])
	}
}

// codecCommands returns the external codec command templates. Process
// environment variables take precedence over the repository env file.
func (a *app) codecCommands() (encCmd, decCmd string) {
	encCmd, decCmd = os.Getenv(envEncodeCmd), os.Getenv(envDecodeCmd)

	env, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("ignoring unreadable env file", zap.String("path", envFile), zap.Error(err))
		}

		return encCmd, decCmd
	}
	if encCmd == "" {
		encCmd = env[envEncodeCmd]
	}
	if decCmd == "" {
		decCmd = env[envDecodeCmd]
	}

	return encCmd, decCmd
}

// newCodec returns the external command codec when both command templates
// are configured, and the built-in codec otherwise.
func (a *app) newCodec() (codec.Codec, error) {
	var backend codec.Backend = smp.NewBackend()

	encCmd, decCmd := a.codecCommands()
	if encCmd != "" && decCmd != "" {
		b, err := codec.NewCommandBackend(strings.Fields(encCmd), strings.Fields(decCmd))
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", envEncodeCmd, envDecodeCmd, err)
		}
		backend = b
	}

	adapter, err := codec.NewAdapter(backend, codec.WithAdapterLogger(a.logger))
	if err != nil {
		return nil, err
	}

	return adapter, nil
}

// runFilter never fails on bad input: the filter writes the original bytes
// instead. Only output failures are returned.
func (a *app) runFilter(args []string, isClean bool) error {
	filename := ""
	if len(args) > 0 {
		filename = args[0]
	}
	log := a.logger.With(zap.String("file", filename))

	s := settings.Load(filepath.Dir(filename), log)

	c, err := a.newCodec()
	if err != nil {
		log.Warn("codec unavailable, passing through", zap.Error(err))
		_, err = io.Copy(a.stdout, a.stdin)
		return err
	}

	f, err := filter.New(s, c, log)
	if err != nil {
		log.Warn("filter unavailable, passing through", zap.Error(err))
		_, err = io.Copy(a.stdout, a.stdin)
		return err
	}

	out := bufio.NewWriter(a.stdout)
	ctx := context.Background()
	if isClean {
		err = f.Clean(ctx, a.stdin, out, filename)
	} else {
		err = f.Smudge(ctx, a.stdin, out, filename)
	}
	if err != nil {
		return err
	}

	return out.Flush()
}

func (a *app) runInit() error {
	res, err := gitcfg.Init(context.Background(), ".", gitcfg.ExecRunner{}, a.logger)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "Initializing Sempress LFS filter...")
	if res.ConfigCreated {
		fmt.Fprintf(a.stdout, "✓ Created %s\n", settings.FileName)
	} else {
		fmt.Fprintf(a.stdout, "✓ %s already exists\n", settings.FileName)
	}
	fmt.Fprintln(a.stdout, "✓ Configured git filter")

	if !res.AttributesFound {
		fmt.Fprintln(a.stdout, "\nNext steps:")
		fmt.Fprintln(a.stdout, `  1. Track CSV files: git lfs-sempress track "*.csv"`)
		fmt.Fprintf(a.stdout, "  2. Add and commit: git add %s && git commit -m \"Add Sempress compression\"\n", settings.FileName)
	} else {
		fmt.Fprintf(a.stdout, "\n✓ %s exists\n", gitcfg.AttributesFile)
		fmt.Fprintln(a.stdout, `  Run 'git lfs-sempress track "*.csv"' to track CSV files`)
	}

	return nil
}

func (a *app) runTrack(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: git-lfs-sempress track <pattern>")
	}
	pattern := args[0]

	added, err := gitcfg.Track(".", pattern)
	if err != nil {
		return fmt.Errorf("failed to track pattern: %w", err)
	}
	if !added {
		fmt.Fprintf(a.stdout, "✓ Pattern '%s' already tracked\n", pattern)
		return nil
	}

	fmt.Fprintf(a.stdout, "✓ Now tracking: %s\n", pattern)
	fmt.Fprintln(a.stdout, "  Files matching this pattern will be compressed automatically")
	fmt.Fprintf(a.stdout, "\nNext: git add %s && git commit -m \"Track %s with Sempress\"\n", gitcfg.AttributesFile, pattern)

	return nil
}

func (a *app) runAnalyze() error {
	fmt.Fprintln(a.stdout, "Analyzing repository for tabular files...")
	fmt.Fprintln(a.stdout)

	sum, err := scan.Analyze(".")
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if err := sum.Write(a.stdout, analyzeTopFiles); err != nil {
		return err
	}
	if len(sum.Files) > 0 {
		fmt.Fprintln(a.stdout, "\nRun 'git lfs-sempress init' to get started!")
	}

	return nil
}

func (a *app) runStats() error {
	st, err := gitcfg.Stats(context.Background(), ".", gitcfg.ExecRunner{})
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	if !st.FilterConfigured {
		fmt.Fprintln(a.stdout, "✗ Sempress filter not configured. Run 'git lfs-sempress init' first.")
		return nil
	}

	w := a.stdout
	fmt.Fprintln(w, "Sempress Statistics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✓ Filter configured: Yes")

	switch {
	case st.ConfigPath == "":
		fmt.Fprintln(w, "⚠ Config file: Not found (using defaults)")
	case st.SettingsErr != nil:
		fmt.Fprintf(w, "⚠ Config file: %s is invalid (using defaults): %v\n", st.ConfigPath, st.SettingsErr)
	default:
		fmt.Fprintf(w, "✓ Config file: %s\n", st.ConfigPath)
	}

	locked := "auto-detect"
	if st.Settings.LockedColumns.Len() > 0 {
		locked = strings.Join(st.Settings.LockedColumns.Names(), ", ")
	}
	fmt.Fprintln(w, "\n  Compression settings:")
	fmt.Fprintf(w, "    k: %d\n", st.Settings.Codec.K)
	fmt.Fprintf(w, "    Uncertainty threshold: %g\n", st.Settings.Codec.UncertaintyThreshold)
	fmt.Fprintf(w, "    Lock columns: %s\n", locked)
	fmt.Fprintf(w, "    Algorithm: %s\n", st.Settings.Codec.Compression)

	switch {
	case !st.AttributesFound:
		fmt.Fprintf(w, "\n⚠ %s: Not found\n", gitcfg.AttributesFile)
	case len(st.Patterns) == 0:
		fmt.Fprintln(w, "\n⚠ No files tracked yet")
		fmt.Fprintln(w, `  Run 'git lfs-sempress track "*.csv"' to start`)
	default:
		fmt.Fprintf(w, "\n✓ Tracked patterns (%d):\n", len(st.Patterns))
		for _, p := range st.Patterns {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}

	return nil
}

func (a *app) runQuality(args []string) error {
	fs := flag.NewFlagSet("quality", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Show detailed column-by-column metrics")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: git-lfs-sempress quality [-v] [-json] <original> <reconstructed>")
	}

	r := quality.CompareFiles(fs.Arg(0), fs.Arg(1))

	var err error
	if *asJSON {
		err = report.RenderJSON(a.stdout, r)
	} else {
		err = report.Render(a.stdout, r, report.Options{Verbose: *verbose || a.verbose})
	}
	if err != nil {
		return err
	}

	if report.Blocking(r) {
		return errBlocking
	}

	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `git-lfs-sempress - semantic compression filter for Git LFS

Usage:
  git-lfs-sempress [-v] <command> [arguments]

Commands:
  clean [file]      Compress stdin to stdout (git clean filter)
  smudge [file]     Decompress stdin to stdout (git smudge filter)
  init              Configure the filter in the current repository
  track <pattern>   Route files matching pattern through the filter
  analyze           Estimate compression savings for the repository
  stats             Show filter configuration and tracked patterns
  quality [-v] [-json] <original> <reconstructed>
                    Compare a file with its reconstruction
  version           Print the version
  help              Show this help message
`)
}
