package report

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

type htmlRow struct {
	models.CaseRow
	InvoiceID string
}

type htmlRanking struct {
	Items  []FieldCount
	Scored int
}

type htmlPage struct {
	Report    models.AggregateReport
	Fields    string
	TopFills  htmlRanking
	TopFixes  htmlRanking
	Rows      []htmlRow
	SourceTpl string
}

var htmlFuncs = template.FuncMap{
	"percent": percent,
	"fixed2": func(f float64) string {
		return strconv.FormatFloat(f, 'f', 2, 64)
	},
	"mark": func(b bool) string {
		if b {
			return "✅"
		}
		return "—"
	},
	"width": func(f float64) template.CSS {
		return template.CSS("width:" + strconv.Itoa(percent(f)) + "%")
	},
}

var htmlReport = template.Must(template.New("report").Funcs(htmlFuncs).Parse(reportTemplate))

// HTMLOptions adjusts the page. The zero value is usable.
type HTMLOptions struct {
	// Fields is the declared field order used to break ranking ties.
	Fields []string
	// SourceTemplate is the key layout the corpus was read from, shown in the
	// footer.
	SourceTemplate string
}

// RenderHTML builds the standalone report page. The output depends only on
// its arguments.
func RenderHTML(r models.AggregateReport, rows []models.CaseRow, opts HTMLOptions) ([]byte, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = models.CanonicalFields()
	}
	src := opts.SourceTemplate
	if src == "" {
		src = "invoices/processed/YYYY/MM/DD/**/parsed.json"
	}

	page := htmlPage{
		Report:    r,
		Fields:    strings.Join(fields, ", "),
		TopFills:  htmlRanking{RankFields(r.WinsFillCounts, fields, r.CountScored), r.CountScored},
		TopFixes:  htmlRanking{RankFields(r.WinsFixCounts, fields, r.CountScored), r.CountScored},
		Rows:      make([]htmlRow, 0, len(rows)),
		SourceTpl: src,
	}
	for _, row := range rows {
		page.Rows = append(page.Rows, htmlRow{CaseRow: row, InvoiceID: models.InvoiceID(row.Identifier)})
	}

	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, page); err != nil {
		return nil, eris.Wrap(err, "report: render html")
	}
	return buf.Bytes(), nil
}

const reportTemplate = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Invoice LLM Metrics {{.Report.Date}}</title>
<style>
  body { font: 14px/1.45 system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial, sans-serif; margin: 24px; color:#222; }
  h1 { margin: 0 0 4px; }
  .muted { color:#666; }
  .kpis { display:grid; grid-template-columns: repeat(3, minmax(220px, 1fr)); gap:16px; margin: 16px 0 24px; }
  .card { border:1px solid #eee; border-radius:12px; padding:16px; box-shadow:0 1px 2px rgba(0,0,0,0.04); }
  .big { font-size: 28px; font-weight: 700; }
  .bar { position: relative; background:#f2f2f2; border-radius:8px; height:16px; overflow:hidden; }
  .fill { background:#4f46e5; height:100%; }
  .label { position:absolute; top:-24px; right:0; font-size:12px; color:#444; }
  table { border-collapse: collapse; width:100%; }
  th, td { padding:8px 10px; border-bottom:1px solid #eee; text-align:left; }
  .grid { display:grid; grid-template-columns: 1fr 1fr; gap:16px; }
  .mono { font-family: ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, "Liberation Mono", monospace; }
  .pill { display:inline-block; padding:2px 8px; border-radius:999px; background:#eef; color:#334; font-size:12px; margin-left:6px; }
</style>
</head>
<body>
  <h1>Invoice LLM Metrics</h1>
  <div class="muted">{{.Report.Date}}</div>

  <div class="kpis">
    <div class="card">
      <div>Total invoices scored</div>
      <div class="big">{{.Report.CountScored}}</div>
      <div class="muted">Only invoices with both a baseline and a model output were counted</div>
    </div>
    <div class="card">
      <div>Avg fields gained (coverage &Delta;)</div>
      <div class="big">{{fixed2 .Report.AvgCoverageDelta}}</div>
      <div class="muted">How many fields the model filled per invoice (avg)</div>
    </div>
    <div class="card">
      <div>Line items reconcile to total</div>
      {{template "bar" .Report.PctSumMatchesTotal}}
    </div>
  </div>

  <div class="grid">
    <div class="card">
      <h3>Numeric sanity</h3>
      <table>
        <tr><th>Metric</th><th>Share within &plusmn;1%</th></tr>
        <tr><td>totals.total</td><td>{{percent .Report.PctNear1PctTotal}}%</td></tr>
        <tr><td>totals.tax</td><td>{{percent .Report.PctNear1PctTax}}%</td></tr>
      </table>
    </div>
    <div class="card">
      <h3>Fields compared</h3>
      <div class="mono">{{.Fields}}</div>
    </div>
  </div>

  <div class="grid" style="margin-top:24px;">
    <div class="card">
      <h3>Top fills <span class="pill">baseline empty &rarr; model filled</span></h3>
      {{template "ranking" .TopFills}}
    </div>
    <div class="card">
      <h3>Top fixes <span class="pill">baseline present &rarr; model changed</span></h3>
      {{template "ranking" .TopFixes}}
    </div>
  </div>

  <div class="card" style="margin-top:24px;">
    <h3>Per-invoice summary</h3>
    <table>
      <tr>
        <th>invoice</th>
        <th class="mono">key</th>
        <th>cov &Delta;</th>
        <th>sum&asymp;total?</th>
        <th>near@1% total</th>
        <th>near@1% tax</th>
      </tr>
      {{- range .Rows}}
      <tr>
        <td>{{.InvoiceID}}</td>
        <td class="mono">{{.Identifier}}</td>
        <td>{{.CoverageDelta}}</td>
        <td>{{mark .SumMatchesTotal}}</td>
        <td>{{mark .Near1PctTotal}}</td>
        <td>{{mark .Near1PctTax}}</td>
      </tr>
      {{- end}}
    </table>
  </div>

  <p class="muted" style="margin-top:16px;">This report compares the rule-based baseline with the model-normalized output saved under <span class="mono">{{.SourceTpl}}</span>.</p>
</body>
</html>
{{define "bar"}}<div class="bar"><div class="fill" style="{{width .}}"></div><div class="label">{{percent .}}%</div></div>{{end}}
{{define "ranking"}}<table>
        <tr><th>Field</th><th>Count</th><th>Share</th></tr>
        {{- range .Items}}
        <tr><td>{{.Field}}</td><td>{{.Count}}</td><td>{{if le $.Scored 0}}<div class="bar"><div class="label">0</div></div>{{else}}{{template "bar" .Share}}{{end}}</td></tr>
        {{- end}}
      </table>{{end}}
`
