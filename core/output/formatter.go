// Package output provides output formatting for quotes and validation reports.
// This package produces human and machine-readable outputs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"pool-boq/core/engine"
	"pool-boq/core/guards"
	"pool-boq/core/quote"
)

// Format represents output format type
type Format string

const (
	// FormatTable is a human-readable CLI table
	FormatTable Format = "table"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"

	// FormatMarkdown is a markdown report
	FormatMarkdown Format = "markdown"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes a priced quote
	Render(w io.Writer, resp *engine.QuoteResponse) error

	// RenderReport writes a validation report
	RenderReport(w io.Writer, report guards.Report) error
}

// Registry manages formatter registration
type Registry struct {
	formatters map[Format]Formatter
}

// NewRegistry creates a registry holding the built-in formatters
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[Format]Formatter)}
	r.Register(TableFormatter{})
	r.Register(JSONFormatter{Indent: true})
	r.Register(MarkdownFormatter{})
	return r
}

// Register adds a formatter, replacing any with the same format
func (r *Registry) Register(f Formatter) {
	r.formatters[f.Format()] = f
}

// Get returns the formatter for format
func (r *Registry) Get(format Format) (Formatter, error) {
	f, ok := r.formatters[Format(strings.ToLower(string(format)))]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", format, strings.Join(r.names(), ", "))
	}
	return f, nil
}

func (r *Registry) names() []string {
	var out []string
	for f := range r.formatters {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// JSONFormatter writes the full response as JSON
type JSONFormatter struct {
	Indent bool
}

// Format implements Formatter
func (JSONFormatter) Format() Format { return FormatJSON }

// Render implements Formatter
func (f JSONFormatter) Render(w io.Writer, resp *engine.QuoteResponse) error {
	return f.encode(w, resp)
}

// RenderReport implements Formatter
func (f JSONFormatter) RenderReport(w io.Writer, report guards.Report) error {
	return f.encode(w, report)
}

func (f JSONFormatter) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// TableFormatter writes aligned text tables
type TableFormatter struct{}

// Format implements Formatter
func (TableFormatter) Format() Format { return FormatTable }

// Render implements Formatter
func (TableFormatter) Render(w io.Writer, resp *engine.QuoteResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	sym := resp.Quote.Currency.Symbol()

	fmt.Fprintf(tw, "Template %s v%d (%s)\n\n", resp.TemplateID, resp.TemplateVersion, resp.Shape)
	for _, cat := range resp.Result.Categories {
		title := cat.Name
		if cat.IsOption {
			title += " [option]"
		}
		fmt.Fprintf(tw, "%s\t\t\t\t\t\n", title)
		for _, l := range cat.Lines {
			flag := ""
			if l.Clamped {
				flag = " (clamped)"
			}
			fmt.Fprintf(tw, "  %s%s\t%s\t%s\t%s\t%s\t\n",
				l.Description, flag, qty(l.Quantity), l.Unit, money(l.UnitCost, sym), money(l.LineSale, sym))
		}
		fmt.Fprintf(tw, "  subtotal\t\t\t\t%s\t\n", money(cat.SaleTotal, sym))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	return writeTotals(w, resp.Quote)
}

// RenderReport implements Formatter
func (TableFormatter) RenderReport(w io.Writer, report guards.Report) error {
	if len(report.Diagnostics) == 0 {
		_, err := fmt.Fprintln(w, "No problems found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tKIND\tLOCATION\tMESSAGE")
	for _, d := range report.Diagnostics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Severity, d.Kind, d.Location, d.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	errs, warnings := report.Count()
	_, err := fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", errs, warnings)
	return err
}

// MarkdownFormatter writes a markdown summary suitable for a quote email
type MarkdownFormatter struct{}

// Format implements Formatter
func (MarkdownFormatter) Format() Format { return FormatMarkdown }

// Render implements Formatter
func (MarkdownFormatter) Render(w io.Writer, resp *engine.QuoteResponse) error {
	q := resp.Quote
	sym := q.Currency.Symbol()

	fmt.Fprintf(w, "## Pool quote (%s)\n\n", resp.Shape)
	fmt.Fprintln(w, "| Item | HT | TTC |")
	fmt.Fprintln(w, "|------|---:|----:|")
	fmt.Fprintf(w, "| Base price | %s | %s |\n", money(q.Base.HT, sym), money(q.Base.TTC, sym))
	for _, o := range q.Options {
		if o.Selected {
			fmt.Fprintf(w, "| %s | %s | %s |\n", o.Name, money(o.HT, sym), money(o.TTC, sym))
		}
	}
	_, err := fmt.Fprintf(w, "| **Total** | **%s** | **%s** |\n", money(q.Total.HT, sym), money(q.Total.TTC, sym))
	return err
}

// RenderReport implements Formatter
func (MarkdownFormatter) RenderReport(w io.Writer, report guards.Report) error {
	errs, warnings := report.Count()
	fmt.Fprintf(w, "## Validation: %d error(s), %d warning(s)\n\n", errs, warnings)
	for _, d := range report.Diagnostics {
		if _, err := fmt.Fprintf(w, "- **%s** `%s` %s: %s\n", d.Severity, d.Location, d.Kind, d.Message); err != nil {
			return err
		}
	}
	return nil
}

func writeTotals(w io.Writer, q *quote.Quote) error {
	sym := q.Currency.Symbol()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\tHT\tTTC\t\n")
	fmt.Fprintf(tw, "Base (+%s%% unforeseen)\t%s\t%s\t\n", q.UnforeseenPercent, money(q.Base.HT, sym), money(q.Base.TTC, sym))
	for _, o := range q.Options {
		mark := " "
		if o.Selected {
			mark = "x"
		}
		fmt.Fprintf(tw, "[%s] %s\t%s\t%s\t\n", mark, o.Name, money(o.HT, sym), money(o.TTC, sym))
	}
	fmt.Fprintf(tw, "Total (VAT %s%%)\t%s\t%s\t\n", q.VATRate, money(q.Total.HT, sym), money(q.Total.TTC, sym))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(q.UnknownOptions) > 0 {
		_, err := fmt.Fprintf(w, "\nUnknown options ignored: %s\n", strings.Join(q.UnknownOptions, ", "))
		return err
	}
	return nil
}

func money(d decimal.Decimal, symbol string) string {
	return d.StringFixed(quote.Places) + " " + symbol
}

func qty(d decimal.Decimal) string {
	return d.Round(3).String()
}
