package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/db"
	"github.com/facturaIA/invoice-metrics/internal/models"
	"github.com/facturaIA/invoice-metrics/internal/report"
)

// caseResponse is a stored row plus the derived invoice id.
type caseResponse struct {
	models.CaseRow
	InvoiceID string `json:"invoice_id"`
}

// GetCases returns the per-case rows of one date in scoring order
func (h *Handler) GetCases(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, ok := h.date(w, r)
	if !ok {
		return
	}
	if h.opts.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	ctx := r.Context()
	if _, err := db.GetDailyAggregate(ctx, h.opts.Pool, h.opts.Schema, date.String()); err != nil {
		h.sendLookupError(w, err, date)
		return
	}
	rows, err := db.GetCaseScores(ctx, h.opts.Pool, h.opts.Schema, date.String())
	if err != nil {
		h.sendLookupError(w, err, date)
		return
	}

	cases := make([]caseResponse, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, caseResponse{CaseRow: row, InvoiceID: models.InvoiceID(row.Identifier)})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"date":    date.String(),
		"cases":   cases,
		"count":   len(cases),
	})
}

// GetReport renders the HTML report of one date from the stored history.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	if h.opts.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	ctx := r.Context()
	day, err := db.GetDailyAggregate(ctx, h.opts.Pool, h.opts.Schema, date.String())
	if err != nil {
		h.sendLookupError(w, err, date)
		return
	}
	rows, err := db.GetCaseScores(ctx, h.opts.Pool, h.opts.Schema, date.String())
	if err != nil {
		h.sendLookupError(w, err, date)
		return
	}

	page, err := report.RenderHTML(day.Report, rows, h.opts.HTML)
	if err != nil {
		zap.L().Error("api: render report", zap.String("date", date.String()), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// GetReportURL returns a presigned link to the persisted report.html.
func (h *Handler) GetReportURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, ok := h.date(w, r)
	if !ok {
		return
	}
	if h.opts.Presigner == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	key := report.KeysFor(date.Expand(h.opts.MetricsTemplate)).Report
	url, err := h.opts.Presigner.PresignedURL(r.Context(), key, h.opts.PresignTTL)
	if err != nil {
		zap.L().Error("api: presign report", zap.String("key", key), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to sign report url")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"date":       date.String(),
		"key":        key,
		"url":        url,
		"expires_in": int(h.opts.PresignTTL.Seconds()),
	})
}
