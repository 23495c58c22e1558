package cli

import (
	"github.com/spf13/cobra"

	"adcarbon/internal/app"
)

var (
	exportDomain      string
	exportDate        string
	exportGranularity string
	exportCSVPath     string
	exportPNGPath     string
	exportXLSXPath    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-day emissions as CSV, PNG chart and/or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := app.ParseQuery(exportDomain, exportDate, exportGranularity)
		if err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			Query:    q,
			CSVPath:  exportCSVPath,
			PNGPath:  exportPNGPath,
			XLSXPath: exportXLSXPath,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDomain, "domain", "", "Domain to export")
	exportCmd.Flags().StringVar(&exportDate, "date", "", "Any day in the period (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportGranularity, "granularity", "month", "day, week or month")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write XLSX workbook")
	_ = exportCmd.MarkFlagRequired("domain")
	_ = exportCmd.MarkFlagRequired("date")
}
