package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <snapshot-id> <query...>",
	Short: "Search a snapshot's dependencies by name, version or postinstall text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		results, err := c.SearchDependencies(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printResult(results)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
