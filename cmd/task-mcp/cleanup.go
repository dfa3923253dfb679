package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmcp/taskmcp/internal/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <workspace-path>",
	Short: "Permanently purge old soft-deleted tasks from a workspace",
	Long: `Permanently remove tasks that were soft-deleted more than
--retention-days ago, along with links that reference them. Live tasks and
recently deleted tasks are untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		days, _ := cmd.Flags().GetInt("retention-days")
		if !cmd.Flags().Changed("retention-days") {
			days = config.RetentionDays()
		}
		purged, err := eng.CleanupDeletedTasks(cmd.Context(), args[0], &days)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d tasks deleted more than %d days ago.\n", purged, days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("retention-days", 30, "Purge tasks soft-deleted more than this many days ago")
	rootCmd.AddCommand(cleanupCmd)
}
