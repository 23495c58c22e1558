package cli

import (
	"github.com/spf13/cobra"

	"adcarbon/internal/app"
)

var (
	reportDomain      string
	reportDate        string
	reportGranularity string
	reportJSON        bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the emissions rollup for a day, week or month",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := app.ParseQuery(reportDomain, reportDate, reportGranularity)
		if err != nil {
			return err
		}

		return getApp().Report(cmd.Context(), app.ReportOptions{
			Query: q,
			JSON:  reportJSON,
			Out:   cmd.OutOrStdout(),
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDomain, "domain", "", "Domain to report on, e.g. yahoo.com")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Any day in the period (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportGranularity, "granularity", "day", "day, week or month")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the rollup as JSON")
	_ = reportCmd.MarkFlagRequired("domain")
	_ = reportCmd.MarkFlagRequired("date")
}
