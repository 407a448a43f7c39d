package report

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

//go:embed aggregate.schema.json
var summarySchemaJSON []byte

var summarySchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(summarySchemaJSON))
})

// ValidateSummary checks an aggregate document against its schema.
func ValidateSummary(doc []byte) error {
	schema, err := summarySchema()
	if err != nil {
		return eris.Wrap(err, "report: load aggregate schema")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return eris.Wrap(err, "report: validate aggregate")
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return eris.Errorf("report: invalid aggregate: %s", strings.Join(errs, "; "))
}

// EncodeSummary serializes the aggregate with two space indentation and
// checks the result against the schema. Count maps come out key sorted.
func EncodeSummary(r models.AggregateReport) ([]byte, error) {
	doc, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: encode aggregate")
	}
	if err := ValidateSummary(doc); err != nil {
		return nil, err
	}
	return append(doc, '\n'), nil
}

// DecodeSummary validates and reads a persisted aggregate.
func DecodeSummary(doc []byte) (models.AggregateReport, error) {
	var r models.AggregateReport
	if err := ValidateSummary(doc); err != nil {
		return r, err
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return r, eris.Wrap(err, "report: decode aggregate")
	}
	return r, nil
}
