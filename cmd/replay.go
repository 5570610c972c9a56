package cmd

import (
	"github.com/spf13/cobra"
)

var replayExplain bool

var replayCmd = &cobra.Command{
	Use:   "replay <snapshot-id> <project-path>",
	Short: "Verify a snapshot still matches the project's live lockfile",
	Long: `replay re-reads the project's current lockfile, hashes it, and compares
the hash against the stored snapshot. A match means re-installing the
historical lockfile would reproduce the recorded dependency state exactly,
without executing any package manager.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.VerifyReplay(args[0], args[1], replayExplain)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayExplain, "explain", false, "On mismatch, re-parse the live tree and name the dependencies that differ")
	rootCmd.AddCommand(replayCmd)
}
