package models

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/jsonval"
)

// Canonical invoice fields tracked for every comparison.
const (
	FieldVendorName      = "vendor.name"
	FieldInvoiceNumber   = "invoice.number"
	FieldInvoiceDate     = "invoice.date_iso"
	FieldInvoiceCurrency = "invoice.currency"
	FieldTotal           = "totals.total"
	FieldTax             = "totals.tax"
)

// canonicalFields is in display order.
var canonicalFields = [...]string{
	FieldVendorName,
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldInvoiceCurrency,
	FieldTotal,
	FieldTax,
}

// CanonicalFields returns the six tracked fields in display order.
func CanonicalFields() []string {
	out := make([]string, len(canonicalFields))
	copy(out, canonicalFields[:])
	return out
}

// NumericFields returns the fields compared as amounts.
func NumericFields() []string {
	return []string{FieldTotal, FieldTax}
}

// baselineKeys maps canonical paths to the flat keys written by the
// rule-based parser. tax is often missing from that output.
var baselineKeys = map[string]string{
	FieldVendorName:      "vendor",
	FieldInvoiceNumber:   "invoice_number",
	FieldInvoiceDate:     "invoice_date",
	FieldInvoiceCurrency: "currency",
	FieldTotal:           "total",
	FieldTax:             "tax",
}

// BaselineKey returns the flat baseline key for a canonical field, or the
// field itself when it has no mapping.
func BaselineKey(field string) string {
	if k, ok := baselineKeys[field]; ok {
		return k
	}
	return field
}

// LiftBaseline rewrites a flat baseline record into canonical nested form.
// Values already at a canonical path win over the flat key; unmapped members
// are carried over untouched.
func LiftBaseline(flat jsonval.Value) jsonval.Value {
	var kept []jsonval.Member
	for _, m := range flat.Members() {
		if isFlatKey(m.Key) && m.Value.Kind() != jsonval.Object {
			continue
		}
		kept = append(kept, m)
	}
	lifted := jsonval.ObjectOf(kept...)

	for _, f := range canonicalFields {
		if v := flat.Path(f); !v.IsNull() {
			lifted = lifted.With(f, v)
			continue
		}
		raw, ok := flat.Get(BaselineKey(f))
		if !ok || raw.Kind() == jsonval.Object {
			continue
		}
		lifted = lifted.With(f, raw)
	}
	return lifted
}

func isFlatKey(key string) bool {
	for _, k := range baselineKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Document is the parsed.json envelope written by the processing pipeline for
// each invoice: the rule-based parse next to the model normalization.
type Document struct {
	RawBucket     string
	RawKey        string
	SourceParse   jsonval.Value
	LLMNormalized jsonval.Value
	Meta          jsonval.Value
}

// ParseDocument decodes a parsed.json body.
func ParseDocument(data []byte) (Document, error) {
	root, err := jsonval.Parse(data)
	if err != nil {
		return Document{}, eris.Wrap(err, "models: parse document")
	}
	if root.Kind() != jsonval.Object {
		return Document{}, eris.Errorf("models: document is %s, want object", root.Kind())
	}

	doc := Document{
		SourceParse:   root.Path("source_parse"),
		LLMNormalized: root.Path("llm_normalized"),
		Meta:          root.Path("meta"),
	}
	doc.RawBucket, _ = root.Path("raw_bucket").Str()
	doc.RawKey, _ = root.Path("raw_key").Str()
	return doc, nil
}

// Case pairs a document's two extractions under its identifier.
func (d Document) Case(id string) Case {
	baseline := d.SourceParse
	if baseline.IsNull() {
		baseline = jsonval.ObjectOf()
	}
	return Case{ID: id, Baseline: baseline, Candidate: d.LLMNormalized}
}

// Case is one unit of the scoring corpus.
type Case struct {
	ID        string
	Baseline  jsonval.Value
	Candidate jsonval.Value
}

// HasCandidate reports whether the case carries model output worth scoring.
// Null, empty and non-object candidates count as absent.
func (c Case) HasCandidate() bool {
	return c.Candidate.Kind() == jsonval.Object && c.Candidate.Len() > 0
}

// InvoiceID derives the invoice id from an identifier laid out as
// .../<invoice id>/parsed.json; other identifiers are returned as is.
func InvoiceID(identifier string) string {
	parts := strings.Split(strings.TrimRight(strings.ReplaceAll(identifier, "\\", "/"), "/"), "/")
	if len(parts) < 2 {
		return identifier
	}
	return parts[len(parts)-2]
}
