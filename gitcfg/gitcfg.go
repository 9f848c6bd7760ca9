// Package gitcfg registers the sempress filter with a Git repository and
// manages the .gitattributes patterns routed through it.
package gitcfg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/internal/logging"
	"github.com/arloliu/sempress-lfs/settings"
)

const (
	// FilterName is the name of the filter driver in Git configuration and
	// .gitattributes.
	FilterName = "lfs-sempress"
	// AttributesFile is the attributes file Track edits.
	AttributesFile = ".gitattributes"

	cleanCommand  = "git-lfs-sempress clean %f"
	smudgeCommand = "git-lfs-sempress smudge %f"
)

// ErrNotRepository is returned when a directory has no .git entry.
var ErrNotRepository = errors.New("gitcfg: not a git repository, run 'git init' first")

// Runner runs git commands.
type Runner interface {
	// Git runs git with args in dir and returns its trimmed standard output.
	Git(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs the git executable.
type ExecRunner struct {
	// Path is the git executable; empty means "git" from PATH.
	Path string
}

// Git implements Runner.
func (r ExecRunner) Git(ctx context.Context, dir string, args ...string) (string, error) {
	path := r.Path
	if path == "" {
		path = "git"
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// InitResult describes what Init changed.
type InitResult struct {
	// ConfigPath is the repository settings file.
	ConfigPath string
	// ConfigCreated is false when the settings file already existed.
	ConfigCreated bool
	// AttributesFound reports whether .gitattributes exists.
	AttributesFound bool
}

// Init writes the default settings file into dir, unless one exists, and
// registers the clean and smudge commands in the repository configuration.
//
// Parameters:
//   - ctx: Context for the git invocations
//   - dir: Repository root
//   - runner: Git command runner
//   - logger: Progress logger; nil disables logging
//
// Returns:
//   - InitResult: Summary of the changes
//   - error: ErrNotRepository, or a file or git failure
func Init(ctx context.Context, dir string, runner Runner, logger *zap.Logger) (InitResult, error) {
	logger = logging.OrNop(logger)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return InitResult{}, ErrNotRepository
	}

	res := InitResult{ConfigPath: filepath.Join(dir, settings.FileName)}
	switch err := settings.WriteDefault(res.ConfigPath); {
	case err == nil:
		res.ConfigCreated = true
		logger.Info("created settings file", zap.String("path", res.ConfigPath))
	case errors.Is(err, settings.ErrConfigExists):
		logger.Info("settings file already exists", zap.String("path", res.ConfigPath))
	default:
		return res, err
	}

	entries := [][2]string{
		{"filter." + FilterName + ".clean", cleanCommand},
		{"filter." + FilterName + ".smudge", smudgeCommand},
		{"filter." + FilterName + ".required", "true"},
	}
	for _, e := range entries {
		if _, err := runner.Git(ctx, dir, "config", e[0], e[1]); err != nil {
			return res, err
		}
		logger.Debug("configured git", zap.String("key", e[0]), zap.String("value", e[1]))
	}

	_, err := os.Stat(filepath.Join(dir, AttributesFile))
	res.AttributesFound = err == nil

	return res, nil
}

// AttributeLine returns the .gitattributes line routing pattern through the filter.
func AttributeLine(pattern string) string {
	return pattern + " filter=" + FilterName + " diff=lfs merge=lfs -text"
}

// Track adds pattern to the .gitattributes file in dir.
//
// Returns:
//   - bool: False when the pattern was already tracked
//   - error: File failure
func Track(dir, pattern string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.ContainsAny(pattern, " \t\n") {
		return false, fmt.Errorf("gitcfg: invalid pattern %q", pattern)
	}

	tracked, err := TrackedPatterns(dir)
	if err != nil {
		return false, err
	}
	if slices.Contains(tracked, pattern) {
		return false, nil
	}

	path := filepath.Join(dir, AttributesFile)
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}

	line := AttributeLine(pattern) + "\n"
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return false, err
	}

	return true, f.Close()
}

// TrackedPatterns lists the patterns in dir's .gitattributes that use the
// filter, in file order. A missing file yields no patterns.
func TrackedPatterns(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, AttributesFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if slices.Contains(fields[1:], "filter="+FilterName) {
			patterns = append(patterns, fields[0])
		}
	}

	return patterns, sc.Err()
}

// Status describes how a repository is set up for the filter.
type Status struct {
	FilterConfigured bool
	CleanCommand     string
	// ConfigPath is empty when no settings file was found.
	ConfigPath string
	Settings   settings.Settings
	// SettingsErr is the reason an existing settings file was not used.
	SettingsErr     error
	AttributesFound bool
	Patterns        []string
}

// Stats inspects the repository at dir.
func Stats(ctx context.Context, dir string, runner Runner) (Status, error) {
	var st Status

	clean, err := runner.Git(ctx, dir, "config", "filter."+FilterName+".clean")
	st.CleanCommand = clean
	st.FilterConfigured = err == nil && clean != ""

	st.Settings = settings.Default()
	if path, ok := settings.Find(dir); ok {
		st.ConfigPath = path
		if s, err := settings.LoadFile(path); err != nil {
			st.SettingsErr = err
		} else {
			st.Settings = s
		}
	}

	if _, err := os.Stat(filepath.Join(dir, AttributesFile)); err == nil {
		st.AttributesFound = true
	}
	st.Patterns, err = TrackedPatterns(dir)
	if err != nil {
		return st, err
	}

	return st, nil
}
