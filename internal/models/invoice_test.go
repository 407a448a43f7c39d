package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-metrics/internal/jsonval"
)

func TestCanonicalFields_IsACopy(t *testing.T) {
	f := CanonicalFields()
	require.Len(t, f, 6)
	assert.Equal(t, []string{
		"vendor.name", "invoice.number", "invoice.date_iso",
		"invoice.currency", "totals.total", "totals.tax",
	}, f)

	f[0] = "mutated"
	assert.Equal(t, "vendor.name", CanonicalFields()[0])
}

func TestBaselineKey(t *testing.T) {
	assert.Equal(t, "vendor", BaselineKey("vendor.name"))
	assert.Equal(t, "invoice_number", BaselineKey("invoice.number"))
	assert.Equal(t, "invoice_date", BaselineKey("invoice.date_iso"))
	assert.Equal(t, "currency", BaselineKey("invoice.currency"))
	assert.Equal(t, "total", BaselineKey("totals.total"))
	assert.Equal(t, "tax", BaselineKey("totals.tax"))
	assert.Equal(t, "line_items", BaselineKey("line_items"))
}

func TestLiftBaseline(t *testing.T) {
	flat, err := jsonval.Parse([]byte(`{
		"vendor": "Acme",
		"invoice_number": "INV-1",
		"invoice_date": "2024-05-01",
		"total": "$100.00",
		"currency": null,
		"line_items": [],
		"meta": {"source": "textract.analyze_expense"}
	}`))
	require.NoError(t, err)

	lifted := LiftBaseline(flat)
	out, err := json.Marshal(lifted)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"line_items": [],
		"meta": {"source": "textract.analyze_expense"},
		"vendor": {"name": "Acme"},
		"invoice": {"number": "INV-1", "date_iso": "2024-05-01", "currency": null},
		"totals": {"total": "$100.00"}
	}`, string(out))
}

func TestLiftBaseline_CanonicalInputUnchangedInMeaning(t *testing.T) {
	canon, err := jsonval.Parse([]byte(`{"vendor":{"name":"Acme"},"totals":{"total":"1"}}`))
	require.NoError(t, err)

	lifted := LiftBaseline(canon)
	assert.Equal(t, "Acme", lifted.Path("vendor.name").Text())
	assert.Equal(t, "1", lifted.Path("totals.total").Text())
}

func TestParseDocument(t *testing.T) {
	body := []byte(`{
		"raw_bucket": "raw",
		"raw_key": "invoices/raw/a.pdf",
		"source_parse": {"vendor": "Acme"},
		"llm_normalized": {"vendor": {"name": "Acme Inc"}},
		"meta": {"source": "textract+genai"}
	}`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	assert.Equal(t, "raw", doc.RawBucket)
	assert.Equal(t, "invoices/raw/a.pdf", doc.RawKey)

	c := doc.Case("invoices/processed/2024/05/01/inv-1/parsed.json")
	assert.True(t, c.HasCandidate())
	assert.Equal(t, "Acme Inc", c.Candidate.Path("vendor.name").Text())
}

func TestParseDocument_Errors(t *testing.T) {
	_, err := ParseDocument([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`{"source_parse":`))
	assert.Error(t, err)
}

func TestDocumentCase_NullBaselineBecomesEmptyObject(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"source_parse":null,"llm_normalized":null}`))
	require.NoError(t, err)
	c := doc.Case("id")
	assert.Equal(t, jsonval.Object, c.Baseline.Kind())
	assert.False(t, c.HasCandidate())
}

func TestHasCandidate(t *testing.T) {
	assert.False(t, Case{}.HasCandidate())
	assert.False(t, Case{Candidate: jsonval.ObjectOf()}.HasCandidate())
	assert.False(t, Case{Candidate: jsonval.StringOf("x")}.HasCandidate())
	assert.True(t, Case{Candidate: jsonval.ObjectOf(jsonval.Member{Key: "a", Value: jsonval.Value{}})}.HasCandidate())
}

func TestInvoiceID(t *testing.T) {
	assert.Equal(t, "inv-1", InvoiceID("invoices/processed/2024/05/01/inv-1/parsed.json"))
	assert.Equal(t, "inv-2", InvoiceID(`C:\data\inv-2\parsed.json`))
	assert.Equal(t, "parsed.json", InvoiceID("parsed.json"))
}

func TestNewFieldCounts(t *testing.T) {
	c := NewFieldCounts(CanonicalFields())
	require.Len(t, c, 6)
	for _, f := range CanonicalFields() {
		v, ok := c[f]
		assert.True(t, ok)
		assert.Zero(t, v)
	}

	clone := c.Clone()
	clone["vendor.name"] = 3
	assert.Zero(t, c["vendor.name"])
}
