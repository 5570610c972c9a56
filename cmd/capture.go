package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/depwatch/timemachine/models"
)

var captureWatchTrigger bool

var captureCmd = &cobra.Command{
	Use:   "capture [project-path]",
	Short: "Capture a snapshot of a project's dependency state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath := "."
		if len(args) > 0 {
			projectPath = args[0]
		}
		if abs, err := os.Getwd(); err == nil && projectPath == "." {
			projectPath = abs
		}

		trigger := models.TriggerManual
		if captureWatchTrigger {
			trigger = models.TriggerLockfileChange
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.CaptureSnapshot(projectPath, trigger)
		if err != nil {
			return err
		}
		if result.Deduplicated {
			fmt.Printf("Lockfile unchanged, reusing snapshot %s\n", result.Snapshot.ID)
		}
		return printResult(result.Snapshot)
	},
}

func init() {
	captureCmd.Flags().BoolVar(&captureWatchTrigger, "from-watch", false, "Record the capture as triggered by a lockfile change (applies debounce)")
	rootCmd.AddCommand(captureCmd)
}
