package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"slices"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// EncodeRows writes the per-case table as CSV. The header is always written,
// so an empty table is a single header line.
func EncodeRows(rows []models.CaseRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(models.CaseRow{}); err != nil {
		return nil, eris.Wrap(err, "report: encode header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return nil, eris.Wrapf(err, "report: encode row %d", i)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "report: flush rows")
	}
	return buf.Bytes(), nil
}

// DecodeRows reads a table written by EncodeRows. The header must name the
// row columns in order.
func DecodeRows(data []byte) ([]models.CaseRow, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(data)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("report: rows: missing header")
		}
		return nil, eris.Wrap(err, "report: rows: read header")
	}
	if !slices.Equal(dec.Header(), models.RowColumns) {
		return nil, eris.Errorf("report: rows: unexpected header %v", dec.Header())
	}

	var rows []models.CaseRow
	for {
		var r models.CaseRow
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrap(err, "report: rows: decode")
		}
		rows = append(rows, r)
	}
	return rows, nil
}
