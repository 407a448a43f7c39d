package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/facturaIA/invoice-metrics/internal/jsonval"
	"github.com/facturaIA/invoice-metrics/internal/models"
)

const (
	lineWidth = 78
	barWidth  = 28
)

// ConsoleOptions adjusts the terminal summary.
type ConsoleOptions struct {
	Fields      []string
	PreviewRows int
	SampleLimit int
}

// Console prints run summaries to a terminal. Colors are only emitted when w
// is a color capable terminal.
type Console struct {
	w    io.Writer
	p    *message.Printer
	opts ConsoleOptions

	title lipgloss.Style
	muted lipgloss.Style
	good  lipgloss.Style
	label lipgloss.Style
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	if len(opts.Fields) == 0 {
		opts.Fields = models.CanonicalFields()
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 6
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 12
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:     w,
		p:     message.NewPrinter(language.English),
		opts:  opts,
		title: r.NewStyle().Bold(true),
		muted: r.NewStyle().Faint(true),
		good:  r.NewStyle().Foreground(lipgloss.Color("#4f46e5")),
		label: r.NewStyle().Width(29),
	}
}

// Scanning announces the source being read.
func (c *Console) Scanning(location string) {
	c.p.Fprintf(c.w, "Scanning %s\n", location)
}

// Summary prints the header, KPIs, rankings, the first rows and, when
// present, the samples.
func (c *Console) Summary(source string, r models.AggregateReport, rows []models.CaseRow, fills, fixes []models.Sample) {
	c.header(r.Date, source)
	c.kpis(r)
	c.ranking("Top fills (baseline empty → model filled)", r.WinsFillCounts, r.CountScored)
	c.ranking("Top fixes (baseline had value → model changed)", r.WinsFixCounts, r.CountScored)
	c.preview(rows)
	c.samples("Sample fills (examples)", fills)
	c.samples("Sample fixes (examples)", fixes)
}

// Wrote reports a persisted artifact.
func (c *Console) Wrote(location string) {
	c.p.Fprintf(c.w, "Wrote %s\n", location)
}

func (c *Console) rule(title string) string {
	pad := lineWidth - lipgloss.Width(title) - 1
	if pad < 0 {
		pad = 0
	}
	return c.title.Render(title) + " " + c.muted.Render(strings.Repeat("─", pad))
}

func (c *Console) header(date, source string) {
	fmt.Fprintln(c.w, c.rule("Invoice LLM Metrics · "+date))
	fmt.Fprintf(c.w, "Source: %s\n", source)
}

func (c *Console) kpis(r models.AggregateReport) {
	c.p.Fprintf(c.w, "%s%d\n", c.label.Render("Total invoices scored:"), r.CountScored)
	c.p.Fprintf(c.w, "%s%.2f\n", c.label.Render("Avg fields gained (Δ):"), r.AvgCoverageDelta)
	fmt.Fprintf(c.w, "%s%s\n", c.label.Render("Line items reconcile:"), c.bar(r.PctSumMatchesTotal))
	fmt.Fprintf(c.w, "%s%s\n", c.label.Render("totals.total ±1%:"), c.bar(r.PctNear1PctTotal))
	fmt.Fprintf(c.w, "%s%s\n", c.label.Render("totals.tax ±1%:"), c.bar(r.PctNear1PctTax))
	fmt.Fprintln(c.w)
}

func (c *Console) ranking(title string, counts models.FieldCounts, scored int) {
	fmt.Fprintln(c.w, c.rule(title))
	for _, fc := range RankFields(counts, c.opts.Fields, scored) {
		c.p.Fprintf(c.w, "  %-20s %2d  %s\n", fc.Field, fc.Count, c.bar(fc.Share))
	}
	fmt.Fprintln(c.w)
}

func (c *Console) preview(rows []models.CaseRow) {
	shown := min(c.opts.PreviewRows, len(rows))
	fmt.Fprintln(c.w, c.rule(c.p.Sprintf("Per-invoice (first %d of %d)", shown, len(rows))))
	fmt.Fprintf(c.w, " %2s  %9s  %13s  %12s   %s\n", "Δ", "sum≈total", "near@1% total", "near@1% tax", "invoice_id")
	for _, row := range rows[:shown] {
		fmt.Fprintf(c.w, " %2d    %3s          %3s            %3s        %s\n",
			row.CoverageDelta,
			c.yes(row.SumMatchesTotal),
			c.yes(row.Near1PctTotal),
			c.yes(row.Near1PctTax),
			models.InvoiceID(row.Identifier),
		)
	}
	fmt.Fprintln(c.w)
}

func (c *Console) samples(title string, samples []models.Sample) {
	if len(samples) == 0 {
		return
	}
	fmt.Fprintln(c.w, c.rule(title))
	for _, s := range samples[:min(c.opts.SampleLimit, len(samples))] {
		fmt.Fprintf(c.w, "  %s: %s  ->  %s\n", s.Field, literal(s.Baseline), literal(s.Model))
	}
	fmt.Fprintln(c.w)
}

func (c *Console) yes(b bool) string {
	if b {
		return c.good.Render("YES")
	}
	return "—"
}

// bar draws a fraction as a fixed width gauge with a truncated percentage.
func (c *Console) bar(f float64) string {
	f = clamp01(f)
	n := int(math.Round(f * barWidth))
	return fmt.Sprintf("[%s%s] %3d%%",
		c.good.Render(strings.Repeat("█", n)),
		strings.Repeat("·", barWidth-n),
		percent(f),
	)
}

// literal renders a raw value as compact JSON.
func literal(v jsonval.Value) string {
	b, err := json.Marshal(v)
	if err != nil {
		return v.Text()
	}
	return string(b)
}
