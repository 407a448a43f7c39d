package report

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// Artifact file names inside a date's metrics prefix.
const (
	RowsName    = "score.csv"
	SummaryName = "aggregate.json"
	ReportName  = "report.html"
)

// Sink stores artifacts. *storage.Store and *storage.Dir satisfy it.
type Sink interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Fetcher reads artifacts back.
type Fetcher interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Keys are the object keys of one date's artifacts.
type Keys struct {
	Summary string
	Rows    string
	Report  string
}

// KeysFor joins the artifact names onto prefix, which should end in a slash.
func KeysFor(prefix string) Keys {
	return Keys{
		Summary: prefix + SummaryName,
		Rows:    prefix + RowsName,
		Report:  prefix + ReportName,
	}
}

// Bundle is the encoded artifact set of one run.
type Bundle struct {
	Keys    Keys
	Summary []byte
	Rows    []byte
	HTML    []byte
}

// Build encodes all artifacts for r and rows under prefix.
func Build(prefix string, r models.AggregateReport, rows []models.CaseRow, opts HTMLOptions) (Bundle, error) {
	summary, err := EncodeSummary(r)
	if err != nil {
		return Bundle{}, err
	}
	table, err := EncodeRows(rows)
	if err != nil {
		return Bundle{}, err
	}
	page, err := RenderHTML(r, rows, opts)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Keys: KeysFor(prefix), Summary: summary, Rows: table, HTML: page}, nil
}

// Write stores the bundle concurrently and returns the written locations in
// the order rows, summary, report.
func Write(ctx context.Context, sink Sink, b Bundle) ([]string, error) {
	items := []struct {
		key, contentType string
		body             []byte
	}{
		{b.Keys.Rows, "text/csv", b.Rows},
		{b.Keys.Summary, "application/json", b.Summary},
		{b.Keys.Report, "text/html; charset=utf-8", b.HTML},
	}

	written := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			loc, err := sink.PutObject(gctx, it.key, it.body, it.contentType)
			if err != nil {
				return eris.Wrapf(err, "report: write %s", it.key)
			}
			written[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}

// Load reads back the aggregate and rows persisted under prefix.
func Load(ctx context.Context, src Fetcher, prefix string) (models.AggregateReport, []models.CaseRow, error) {
	keys := KeysFor(prefix)

	doc, err := src.GetObject(ctx, keys.Summary)
	if err != nil {
		return models.AggregateReport{}, nil, eris.Wrapf(err, "report: load %s", keys.Summary)
	}
	r, err := DecodeSummary(doc)
	if err != nil {
		return models.AggregateReport{}, nil, err
	}

	table, err := src.GetObject(ctx, keys.Rows)
	if err != nil {
		return models.AggregateReport{}, nil, eris.Wrapf(err, "report: load %s", keys.Rows)
	}
	rows, err := DecodeRows(table)
	if err != nil {
		return models.AggregateReport{}, nil, err
	}
	return r, rows, nil
}
