package cmd

import (
	"github.com/spf13/cobra"
)

var diffAnalyze bool

var diffCmd = &cobra.Command{
	Use:   "diff <snapshot-a> <snapshot-b>",
	Short: "Diff snapshot B (newer) against snapshot A (older)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if diffAnalyze {
			insights, err := c.AnalyzeSnapshots(args[0], args[1])
			if err != nil {
				return err
			}
			return printResult(insights)
		}

		diff, err := c.DiffSnapshots(args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(diff)
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffAnalyze, "analyze", false, "Run security insight analysis on the diff and persist the results")
	rootCmd.AddCommand(diffCmd)
}
