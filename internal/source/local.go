package source

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// Local reads cases from files named leaf anywhere below a directory.
// Identifiers are absolute file paths.
type Local struct {
	root string
	leaf string
}

// NewLocal resolves root and checks that it is a directory.
func NewLocal(root, leaf string) (*Local, error) {
	if leaf == "" {
		leaf = DefaultLeafName
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "source: resolve %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, eris.Wrapf(err, "source: local dir not found: %s", abs)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("source: not a directory: %s", abs)
	}
	return &Local{root: abs, leaf: leaf}, nil
}

// Root returns the absolute directory being walked.
func (l *Local) Root() string { return l.root }

var errStop = errors.New("source: stop walk")

// ListCases walks the tree in lexical order.
func (l *Local) ListCases(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(l.root, func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsDir() || e.Name() != l.leaf {
				return nil
			}
			if !yield(p, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield("", eris.Wrapf(err, "source: walk %s", l.root))
		}
	}
}

// ReadCase reads and decodes one file.
func (l *Local) ReadCase(_ context.Context, p string) (models.Case, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return models.Case{}, eris.Wrapf(err, "source: read %s", p)
	}
	doc, err := models.ParseDocument(data)
	if err != nil {
		return models.Case{}, eris.Wrapf(err, "source: decode %s", p)
	}
	return doc.Case(p), nil
}

// Describe returns a local:// location.
func (l *Local) Describe() string {
	return "local://" + filepath.ToSlash(l.root)
}
