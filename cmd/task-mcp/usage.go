package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <workspace-path>",
	Short: "Show per-tool usage statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		days, _ := cmd.Flags().GetInt("days")
		toolName, _ := cmd.Flags().GetString("tool")
		stats, err := eng.GetUsageStats(cmd.Context(), args[0], days, toolName)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		fmt.Printf("Last %d days: %d calls\n", stats.Days, stats.TotalCalls)
		for _, tool := range stats.Tools {
			fmt.Printf("  %-28s %5d calls  %5.1f%% ok\n",
				tool.ToolName, tool.Calls, tool.SuccessRate*100)
		}
		if len(stats.Timeline) > 0 {
			fmt.Println("Timeline:")
			for _, day := range stats.Timeline {
				fmt.Printf("  %s  %d\n", day.Day, day.Calls)
			}
		}
		return nil
	},
}

func init() {
	usageCmd.Flags().Int("days", 7, "Trailing window in days")
	usageCmd.Flags().String("tool", "", "Restrict to one tool")
	usageCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(usageCmd)
}
