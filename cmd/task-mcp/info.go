package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskmcp/taskmcp/internal/workspace"
)

// InfoResponse describes the on-disk layout for diagnostics.
type InfoResponse struct {
	Version      string `json:"version"`
	DataRoot     string `json:"data_root"`
	MasterDB     string `json:"master_db"`
	DatabasesDir string `json:"databases_dir"`
	LogsDir      string `json:"logs_dir"`
	WorkspaceID  string `json:"workspace_id,omitempty"`
	WorkspaceDB  string `json:"workspace_db,omitempty"`
}

var infoCmd = &cobra.Command{
	Use:   "info [workspace-path]",
	Short: "Show the data-root layout and, given a path, its workspace database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := dataRoot()
		if err != nil {
			return err
		}
		resolver := workspace.NewResolver(root)

		info := InfoResponse{
			Version:      version,
			DataRoot:     root,
			MasterDB:     resolver.MasterDBPath(),
			DatabasesDir: filepath.Join(root, "databases"),
			LogsDir:      filepath.Join(root, "logs"),
		}
		if len(args) == 1 {
			resolved, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			info.WorkspaceID = resolved.ID
			info.WorkspaceDB = resolved.DBPath
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(info)
		}
		fmt.Printf("task-mcp %s\n", info.Version)
		fmt.Printf("  data root:  %s\n", info.DataRoot)
		fmt.Printf("  master db:  %s\n", info.MasterDB)
		fmt.Printf("  databases:  %s\n", info.DatabasesDir)
		fmt.Printf("  logs:       %s\n", info.LogsDir)
		if info.WorkspaceID != "" {
			fmt.Printf("  workspace:  %s -> %s\n", info.WorkspaceID, info.WorkspaceDB)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(infoCmd)
}
