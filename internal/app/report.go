package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"adcarbon/internal/emissions"
)

// ReportOptions configure the report command.
type ReportOptions struct {
	Query
	JSON bool
	Out  io.Writer
}

// Report prints one rollup as a table or as JSON.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	r, err := a.rollup(ctx, opts.Query)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return writeRollupTable(out, r)
}

func writeRollupTable(out io.Writer, r emissions.Rollup) error {
	if len(r.Days) == 0 {
		_, err := fmt.Fprintf(out, "no emissions data for %s\n", r.Domain)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Date\tTotal emissions")
	for _, d := range r.Days {
		fmt.Fprintf(w, "%s\t%s\n", d.Date, formatFloat(d.TotalEmissions))
	}
	fmt.Fprintln(w, "\t")

	label := r.Domain
	if r.Month != "" {
		label += " (" + r.Month + ")"
	}
	fmt.Fprintf(w, "Domain\t%s\n", label)
	fmt.Fprintf(w, "Days\t%d\n", len(r.Dates))
	fmt.Fprintf(w, "Total\t%s\n", formatFloat(r.TotalEmissions))
	fmt.Fprintf(w, "Average\t%s\n", formatFloat(r.Average))
	fmt.Fprintf(w, "High\t%s on %s\n", formatFloat(r.High.Value), r.High.Date)
	fmt.Fprintf(w, "Low\t%s on %s\n", formatFloat(r.Low.Value), r.Low.Date)
	return w.Flush()
}

func formatFloat(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(6)
}
