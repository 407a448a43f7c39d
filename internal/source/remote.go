package source

import (
	"context"
	"iter"
	"path"

	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// ObjectReader is the part of an object store a Remote source needs.
// *storage.Store and *storage.Dir both satisfy it.
type ObjectReader interface {
	ListKeys(ctx context.Context, prefix string) iter.Seq2[string, error]
	GetObject(ctx context.Context, key string) ([]byte, error)
	Location(prefix string) string
}

// Remote reads cases from objects named leaf under a key prefix. Identifiers
// are object keys.
type Remote struct {
	store  ObjectReader
	prefix string
	leaf   string
}

// NewRemote returns a Remote over store. An empty leaf means DefaultLeafName.
func NewRemote(store ObjectReader, prefix, leaf string) *Remote {
	if leaf == "" {
		leaf = DefaultLeafName
	}
	return &Remote{store: store, prefix: prefix, leaf: leaf}
}

// Prefix returns the listed key prefix.
func (r *Remote) Prefix() string { return r.prefix }

// ListCases yields the keys under the prefix whose last segment is the leaf
// name.
func (r *Remote) ListCases(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for key, err := range r.store.ListKeys(ctx, r.prefix) {
			if err != nil {
				yield("", err)
				return
			}
			if path.Base(key) != r.leaf {
				continue
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

// ReadCase fetches and decodes one envelope.
func (r *Remote) ReadCase(ctx context.Context, key string) (models.Case, error) {
	data, err := r.store.GetObject(ctx, key)
	if err != nil {
		return models.Case{}, eris.Wrapf(err, "source: read %s", key)
	}
	doc, err := models.ParseDocument(data)
	if err != nil {
		return models.Case{}, eris.Wrapf(err, "source: decode %s", key)
	}
	return doc.Case(key), nil
}

// Describe returns the listed location.
func (r *Remote) Describe() string {
	return r.store.Location(r.prefix)
}
