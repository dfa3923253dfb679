package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces [workspace-path]",
	Short: "List known workspaces, or name one with --name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		name, _ := cmd.Flags().GetString("name")
		if name != "" {
			if len(args) != 1 {
				return fmt.Errorf("--name requires a workspace path argument")
			}
			ws, err := eng.SetFriendlyName(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Printf("Named %s (%s) %q\n", ws.WorkspacePath, ws.ID, name)
			return nil
		}

		workspaces, err := eng.ListWorkspaces(cmd.Context())
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(workspaces)
		}
		if len(workspaces) == 0 {
			fmt.Println("No workspaces registered yet.")
			return nil
		}
		for _, ws := range workspaces {
			label := ws.WorkspacePath
			if ws.FriendlyName != nil {
				label = fmt.Sprintf("%s (%s)", *ws.FriendlyName, ws.WorkspacePath)
			}
			fmt.Printf("  %s  %s  last used %s\n",
				ws.ID, label, ws.LastAccessed.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	workspacesCmd.Flags().String("name", "", "Set a friendly name for the given workspace")
	workspacesCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(workspacesCmd)
}
