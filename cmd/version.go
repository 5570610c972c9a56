package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if getVersionInfo == nil {
			fmt.Println("timemachine (unknown version)")
			return
		}
		version, commit, date, dirty := getVersionInfo()
		fmt.Printf("timemachine %s\n", version)
		fmt.Printf("  commit: %s", commit)
		if dirty {
			fmt.Print(" (dirty)")
		}
		fmt.Println()
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
