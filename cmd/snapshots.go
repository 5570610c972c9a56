package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/depwatch/timemachine/models"
)

var (
	listProject string
	listStatus  string
	listTrigger string
	listSince   string
	listLimit   int
	listOffset  int
	getWithDeps bool
)

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots",
	Aliases: []string{"list"},
	Short:   "List captured snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := models.SnapshotFilter{
			ProjectPath: listProject,
			Limit:       listLimit,
			Offset:      listOffset,
		}
		if listStatus != "" {
			status, err := models.ParseSnapshotStatus(listStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}
		if listTrigger != "" {
			trigger, err := models.ParseTriggerSource(listTrigger)
			if err != nil {
				return err
			}
			filter.TriggerSource = trigger
		}
		if listSince != "" {
			since, err := time.Parse(time.RFC3339, listSince)
			if err != nil {
				return err
			}
			filter.CreatedAfter = &since
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := c.ListSnapshots(filter)
		if err != nil {
			return err
		}
		return printResult(items)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <snapshot-id>",
	Short: "Show one snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if getWithDeps {
			snapshot, err := c.GetSnapshotWithDependencies(args[0])
			if err != nil {
				return err
			}
			return printResult(snapshot)
		}
		snapshot, err := c.GetSnapshot(args[0])
		if err != nil {
			return err
		}
		return printResult(snapshot)
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <project-path>",
	Short: "Show the most recent completed snapshot for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		snapshot, err := c.GetLatestSnapshot(args[0])
		if err != nil {
			return err
		}
		return printResult(snapshot)
	},
}

func init() {
	snapshotsCmd.Flags().StringVar(&listProject, "project", "", "Filter by project path")
	snapshotsCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (capturing|completed|failed)")
	snapshotsCmd.Flags().StringVar(&listTrigger, "trigger", "", "Filter by trigger (lockfile_change|manual)")
	snapshotsCmd.Flags().StringVar(&listSince, "since", "", "Only snapshots created after this RFC3339 timestamp")
	snapshotsCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of results")
	snapshotsCmd.Flags().IntVar(&listOffset, "offset", 0, "Result offset for paging")

	getCmd.Flags().BoolVar(&getWithDeps, "deps", false, "Include the full dependency list")

	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(latestCmd)
}
