package cmd

import (
	"github.com/spf13/cobra"
)

var (
	settingsAutoCapture bool
	settingsDebounce    int
	settingsKeep        int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update the persisted time-machine settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		settings, err := c.GetSettings()
		if err != nil {
			return err
		}

		changed := false
		if cmd.Flags().Changed("auto-capture") {
			settings.AutoCapture = settingsAutoCapture
			changed = true
		}
		if cmd.Flags().Changed("debounce") {
			settings.DebounceSeconds = settingsDebounce
			changed = true
		}
		if cmd.Flags().Changed("keep") {
			settings.KeepPerProject = settingsKeep
			changed = true
		}
		if changed {
			if err := c.SaveSettings(settings); err != nil {
				return err
			}
		}
		return printResult(settings)
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&settingsAutoCapture, "auto-capture", true, "Capture automatically on lockfile change")
	settingsCmd.Flags().IntVar(&settingsDebounce, "debounce", 30, "Minimum seconds between watch-triggered captures of a project")
	settingsCmd.Flags().IntVar(&settingsKeep, "keep", 20, "Completed snapshots to keep per project when pruning")
	rootCmd.AddCommand(settingsCmd)
}
