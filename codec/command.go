package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Placeholders substituted in CommandBackend argument templates.
const (
	PlaceholderInput       = "{input}"
	PlaceholderOutput      = "{output}"
	PlaceholderK           = "{k}"
	PlaceholderUncertainty = "{uncertainty}"
	PlaceholderAutoLock    = "{auto_lock}"
	PlaceholderLocked      = "{lock_cols}"
	PlaceholderResidual    = "{residual_cols}"
)

var errMissingPlaceholder = errors.New("command template must reference {input} and {output}")

// CommandBackend runs an external encoder program.
//
// Each template is an argv whose elements may contain placeholders, e.g.
//
//	sempress compress {input} {output} --k {k} --lock-cols {lock_cols}
//
// External programs do not persist table attributes; DecodeFile always
// returns nil attributes.
type CommandBackend struct {
	encodeArgs []string
	decodeArgs []string
}

var _ Backend = (*CommandBackend)(nil)

// NewCommandBackend validates the encode and decode argv templates.
func NewCommandBackend(encodeArgs, decodeArgs []string) (*CommandBackend, error) {
	for _, args := range [][]string{encodeArgs, decodeArgs} {
		if len(args) == 0 || args[0] == "" {
			return nil, errors.New("command template must not be empty")
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, PlaceholderInput) || !strings.Contains(joined, PlaceholderOutput) {
			return nil, errMissingPlaceholder
		}
	}

	return &CommandBackend{
		encodeArgs: slices.Clone(encodeArgs),
		decodeArgs: slices.Clone(decodeArgs),
	}, nil
}

// EncodeFile runs the encode template and returns the file it produced.
func (b *CommandBackend) EncodeFile(ctx context.Context, src string, _ map[string]string, p Params) ([]byte, error) {
	dst := filepath.Join(filepath.Dir(src), "encoded.blob")
	r := newParamReplacer(src, dst, p)
	if err := run(ctx, expand(b.encodeArgs, r)); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read encoder output: %w", err)
	}

	return blob, nil
}

// DecodeFile runs the decode template.
func (b *CommandBackend) DecodeFile(ctx context.Context, src, dst string) (map[string]string, error) {
	r := strings.NewReplacer(PlaceholderInput, src, PlaceholderOutput, dst)
	if err := run(ctx, expand(b.decodeArgs, r)); err != nil {
		return nil, err
	}

	return nil, nil
}

func newParamReplacer(src, dst string, p Params) *strings.Replacer {
	return strings.NewReplacer(
		PlaceholderInput, src,
		PlaceholderOutput, dst,
		PlaceholderK, strconv.Itoa(p.K),
		PlaceholderUncertainty, strconv.FormatFloat(p.UncertaintyThreshold, 'g', -1, 64),
		PlaceholderAutoLock, strconv.FormatBool(p.AutoLock),
		PlaceholderLocked, strings.Join(p.Locked, ","),
		PlaceholderResidual, strings.Join(p.Residual, ","),
	)
}

func expand(args []string, r *strings.Replacer) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}

	return out
}

func run(ctx context.Context, argv []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", argv[0], err)
		}

		return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
	}

	return nil
}
