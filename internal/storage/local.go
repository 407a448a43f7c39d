package storage

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Dir keeps objects as files under a root directory. Keys use forward
// slashes regardless of platform.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root. The directory is created on first
// write.
func NewDir(root string) *Dir {
	return &Dir{root: filepath.Clean(root)}
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Location describes prefix for humans.
func (d *Dir) Location(prefix string) string {
	loc := "file://" + filepath.ToSlash(filepath.Join(d.root, filepath.FromSlash(prefix)))
	if strings.HasSuffix(prefix, "/") {
		loc += "/"
	}
	return loc
}

func (d *Dir) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

// ListKeys yields keys under prefix in lexical order.
func (d *Dir) ListKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stop := errors.New("stop")
		err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(d.root, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			if !yield(key, nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield("", eris.Wrapf(err, "storage: list %s", d.Location(prefix)))
		}
	}
}

// GetObject reads the file stored under key.
func (d *Dir) GetObject(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "storage: get %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get %s", key)
	}
	return data, nil
}

// PutObject writes body under key, creating parent directories, and returns
// the file path.
func (d *Dir) PutObject(_ context.Context, key string, body []byte, _ string) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", eris.Wrapf(err, "storage: mkdir for %s", key)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", eris.Wrapf(err, "storage: put %s", key)
	}
	return p, nil
}
