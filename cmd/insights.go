package cmd

import (
	"github.com/spf13/cobra"
)

var insightsSummary bool

var insightsCmd = &cobra.Command{
	Use:   "insights <snapshot-id>",
	Short: "List the security insights of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if insightsSummary {
			summary, err := c.InsightSummary(args[0])
			if err != nil {
				return err
			}
			return printResult(summary)
		}

		insights, err := c.ListInsights(args[0])
		if err != nil {
			return err
		}
		return printResult(insights)
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <insight-id>",
	Short: "Dismiss a security insight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		return c.DismissInsight(args[0])
	},
}

func init() {
	insightsCmd.Flags().BoolVar(&insightsSummary, "summary", false, "Show per-severity counts instead of the full list")
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(dismissCmd)
}
