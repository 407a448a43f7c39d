// Package source enumerates the processed invoices of a day and reads each
// one as a baseline/candidate case.
package source

import (
	"context"
	"iter"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// DefaultLeafName is the file holding one processed invoice.
const DefaultLeafName = "parsed.json"

// Source lists case identifiers and reads cases by identifier.
type Source interface {
	// ListCases yields identifiers in a stable order. A listing failure is
	// yielded once as an error and ends the sequence.
	ListCases(ctx context.Context) iter.Seq2[string, error]
	// ReadCase loads one case.
	ReadCase(ctx context.Context, id string) (models.Case, error)
	// Describe names the source for humans.
	Describe() string
}

// Cases streams every case of src, reading each one only when the consumer
// asks for it. The first listing or read failure is yielded and ends the
// sequence.
func Cases(ctx context.Context, src Source) iter.Seq2[models.Case, error] {
	return func(yield func(models.Case, error) bool) {
		for id, err := range src.ListCases(ctx) {
			if err != nil {
				yield(models.Case{}, err)
				return
			}
			c, err := src.ReadCase(ctx, id)
			if err != nil {
				yield(models.Case{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
