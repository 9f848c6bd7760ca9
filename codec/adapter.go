package codec

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/internal/logging"
	"github.com/arloliu/sempress-lfs/internal/options"
	"github.com/arloliu/sempress-lfs/table"
)

const (
	stagedTableName = "table.csv"
	stagedBlobName  = "table.smp"
	restoredName    = "restored.csv"
)

// TextColumnsAttr is the table attribute listing, as a JSON array, the
// columns that must stay text when a staged CSV is parsed again. Without it
// a text column such as "00037" would come back as the number 37.
const TextColumnsAttr = "sempress.text_columns"

// TextColumns returns the column names recorded under TextColumnsAttr.
func TextColumns(attrs map[string]string) ([]string, error) {
	raw, ok := attrs[TextColumnsAttr]
	if !ok || raw == "" {
		return nil, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("%s: %w", TextColumnsAttr, err)
	}

	return names, nil
}

// stagedAttrs copies t's attributes and records its string columns.
func stagedAttrs(t *table.Table) (map[string]string, error) {
	attrs := maps.Clone(t.Attrs)
	if attrs == nil {
		attrs = make(map[string]string, 1)
	}

	names := t.TextColumns()
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	attrs[TextColumnsAttr] = string(data)

	return attrs, nil
}

// Backend is a codec that works on files rather than in-memory values.
type Backend interface {
	// EncodeFile encodes the CSV table at src. attrs are opaque table
	// attributes the backend may store and return from DecodeFile.
	EncodeFile(ctx context.Context, src string, attrs map[string]string, p Params) ([]byte, error)
	// DecodeFile decodes the blob at src into a CSV table written to dst and
	// returns the stored attributes, if any.
	DecodeFile(ctx context.Context, src, dst string) (map[string]string, error)
}

// Adapter implements Codec on top of a Backend.
//
// Every call gets its own temporary directory, named after a random
// invocation id, which is removed on every exit path including errors and
// backend panics. Adapter is safe for concurrent use if its Backend is.
type Adapter struct {
	backend Backend
	tempDir string
	logger  *zap.Logger
}

var _ Codec = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption = options.Option[*Adapter]

// WithTempDir sets the parent directory for per-call workspaces.
// The default is os.TempDir.
func WithTempDir(dir string) AdapterOption {
	return options.New(func(a *Adapter) error {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("temp dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp dir %s is not a directory", dir)
		}
		a.tempDir = dir

		return nil
	})
}

// WithAdapterLogger sets the logger used for workspace diagnostics.
func WithAdapterLogger(logger *zap.Logger) AdapterOption {
	return options.NoError(func(a *Adapter) {
		a.logger = logging.OrNop(logger)
	})
}

// NewAdapter creates an Adapter for backend.
//
// Parameters:
//   - backend: File-based codec implementation
//   - opts: Optional configuration (WithTempDir, WithAdapterLogger)
//
// Returns:
//   - *Adapter: Ready-to-use codec
//   - error: Invalid option values
func NewAdapter(backend Backend, opts ...AdapterOption) (*Adapter, error) {
	a := &Adapter{
		backend: backend,
		logger:  zap.NewNop(),
	}
	if err := options.Apply(a, opts...); err != nil {
		return nil, err
	}

	return a, nil
}

// Encode stages t as CSV in a fresh workspace and asks the backend to encode it.
// The backend receives t's attributes plus TextColumnsAttr.
func (a *Adapter) Encode(ctx context.Context, t *table.Table, p Params) ([]byte, error) {
	var blob []byte
	err := a.withWorkspace(OpEncode, func(dir string) error {
		data, err := t.MarshalCSV()
		if err != nil {
			return fmt.Errorf("stage table: %w", err)
		}

		src := filepath.Join(dir, stagedTableName)
		if err := os.WriteFile(src, data, 0o600); err != nil {
			return fmt.Errorf("stage table: %w", err)
		}

		attrs, err := stagedAttrs(t)
		if err != nil {
			return fmt.Errorf("stage attributes: %w", err)
		}

		blob, err = a.backend.EncodeFile(ctx, src, attrs, p)
		if err != nil {
			return err
		}
		if len(blob) == 0 {
			return ErrEmptyBlob
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return blob, nil
}

// Decode stages blob in a fresh workspace and parses the table the backend restores.
func (a *Adapter) Decode(ctx context.Context, blob []byte) (*table.Table, error) {
	if len(blob) == 0 {
		return nil, &Error{Op: OpDecode, Err: ErrEmptyBlob}
	}

	var restored *table.Table
	err := a.withWorkspace(OpDecode, func(dir string) error {
		src := filepath.Join(dir, stagedBlobName)
		if err := os.WriteFile(src, blob, 0o600); err != nil {
			return fmt.Errorf("stage blob: %w", err)
		}

		dst := filepath.Join(dir, restoredName)
		attrs, err := a.backend.DecodeFile(ctx, src, dst)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(dst)
		if err != nil {
			return fmt.Errorf("read restored table: %w", err)
		}
		text, err := TextColumns(attrs)
		if err != nil {
			return fmt.Errorf("parse restored table: %w", err)
		}
		restored, err = table.ParseCSVWithText(data, text...)
		if err != nil {
			return fmt.Errorf("parse restored table: %w", err)
		}
		for k, v := range attrs {
			if k == TextColumnsAttr {
				continue
			}
			restored.SetAttr(k, v)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restored, nil
}

// withWorkspace runs fn inside a temporary directory that is always removed.
func (a *Adapter) withWorkspace(op string, fn func(dir string) error) (err error) {
	id := uuid.NewString()
	dir, err := os.MkdirTemp(a.tempDir, "sempress-"+id+"-")
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("create workspace: %w", err)}
	}
	logger := a.logger.With(zap.String("op", op), zap.String("invocation", id))
	logger.Debug("codec workspace created", zap.String("dir", dir))

	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("failed to remove codec workspace", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Op: op, Err: fmt.Errorf("backend panic: %v", r)}
		}
	}()

	return wrapError(op, fn(dir))
}
