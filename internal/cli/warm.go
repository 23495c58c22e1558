package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"adcarbon/internal/app"
	"adcarbon/internal/calendar"
)

var (
	warmDomains []string
	warmFrom    string
	warmTo      string
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-populate the cache for a range of past days",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := calendar.Parse(warmFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		to, err := calendar.Parse(warmTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		return getApp().Warm(cmd.Context(), app.WarmOptions{
			Domains: warmDomains,
			From:    from,
			To:      to,
		})
	},
}

func init() {
	warmCmd.Flags().StringSliceVar(&warmDomains, "domain", nil, "Domain(s) to warm; repeat or comma-separate")
	warmCmd.Flags().StringVar(&warmFrom, "from", "", "First day (YYYY-MM-DD, inclusive)")
	warmCmd.Flags().StringVar(&warmTo, "to", "", "Last day (YYYY-MM-DD, inclusive)")
	_ = warmCmd.MarkFlagRequired("domain")
	_ = warmCmd.MarkFlagRequired("from")
	_ = warmCmd.MarkFlagRequired("to")
}
