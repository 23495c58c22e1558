package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
)

// ExportOptions hold parameters for exporting one rollup.
type ExportOptions struct {
	Query
	CSVPath  string
	PNGPath  string
	XLSXPath string
}

// Export writes the per-day values of a rollup as CSV, a PNG bar chart and/or
// an XLSX workbook.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}

	r, err := a.rollup(ctx, opts.Query)
	if err != nil {
		return err
	}
	if len(r.Days) == 0 {
		a.Logger.Info().Str("domain", r.Domain).Msg("no emissions data in range; nothing exported")
		return nil
	}

	a.Logger.Info().Str("domain", r.Domain).Int("days", len(r.Days)).Msg("exporting rollup")

	if opts.CSVPath != "" {
		if err := writeRollupCSV(opts.CSVPath, r); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if opts.PNGPath != "" {
		w, h := a.Config.Export.ChartWidth, a.Config.Export.ChartHeight
		if err := writeRollupPNG(opts.PNGPath, r, opts.Granularity, w, h); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
	}
	if opts.XLSXPath != "" {
		if err := writeRollupXLSX(opts.XLSXPath, r, opts.Query); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	return nil
}

func writeRollupCSV(path string, r emissions.Rollup) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "domain", "total_emissions"}); err != nil {
		return err
	}
	for _, d := range r.Days {
		record := []string{
			d.Date.String(),
			r.Domain,
			strconv.FormatFloat(d.TotalEmissions, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeRollupPNG(path string, r emissions.Rollup, g calendar.Granularity, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	bars := make([]chart.Value, 0, len(r.Days))
	for _, d := range r.Days {
		bars = append(bars, chart.Value{Label: d.Date.String()[5:], Value: d.TotalEmissions})
	}

	// bars share the canvas evenly; spacing equals bar width
	slot := (width - 120) / (2 * len(bars))
	if slot < 2 {
		slot = 2
	}

	top := r.High.Value * 1.1
	if top <= 0 {
		top = 1
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("%s %s emissions (avg %s)", r.Domain, g, formatFloat(r.Average)),
		Width:      width,
		Height:     height,
		BarWidth:   slot,
		BarSpacing: slot,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis: chart.YAxis{
			Name:  "gCO2e / impression",
			Range: &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeRollupXLSX(path string, r emissions.Rollup, q Query) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Emissions - %s", r.Domain),
		Subject: fmt.Sprintf("%s rollup anchored at %s", q.Granularity, q.Date),
		Creator: "adcarbon",
		Created: time.Now().UTC().Format(time.RFC3339),
	})

	const daysSheet = "Days"
	if err := f.SetSheetName("Sheet1", daysSheet); err != nil {
		return err
	}
	for i, header := range []string{"Date", "Total emissions"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(daysSheet, cell, header)
	}
	for i, d := range r.Days {
		row := i + 2
		f.SetCellValue(daysSheet, cellName(1, row), d.Date.String())
		f.SetCellValue(daysSheet, cellName(2, row), d.TotalEmissions)
	}
	f.SetColWidth(daysSheet, "A", "B", 18)

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	summary := [][]any{
		{"Domain", r.Domain},
		{"Granularity", string(q.Granularity)},
		{"Month", r.Month},
		{"Days", len(r.Dates)},
		{"Total emissions", r.TotalEmissions},
		{"Average", r.Average},
		{"High", r.High.Value},
		{"High date", r.High.Date},
		{"Low", r.Low.Value},
		{"Low date", r.Low.Date},
	}
	for i, row := range summary {
		f.SetCellValue(summarySheet, cellName(1, i+1), row[0])
		f.SetCellValue(summarySheet, cellName(2, i+1), row[1])
	}
	f.SetColWidth(summarySheet, "A", "B", 20)

	return f.SaveAs(path)
}

func cellName(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
