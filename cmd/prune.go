package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	pruneKeep          int
	pruneDiffCacheDays int
	pruneOrphans       bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention: keep the N most recent snapshots per project",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		removed, err := c.PruneSnapshots(pruneKeep)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d snapshots\n", removed)

		if pruneDiffCacheDays >= 0 {
			rows, err := c.PruneDiffCache(pruneDiffCacheDays)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d diff cache rows\n", rows)
		}

		if pruneOrphans {
			dirs, err := c.CleanupOrphans()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d orphaned blob directories\n", dirs)
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 20, "Completed snapshots to keep per project")
	pruneCmd.Flags().IntVar(&pruneDiffCacheDays, "diff-cache-days", -1, "Also prune diff cache rows older than this many days")
	pruneCmd.Flags().BoolVar(&pruneOrphans, "orphans", false, "Also remove blob directories without a metadata row")
	rootCmd.AddCommand(pruneCmd)
}
