package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmcp/taskmcp/internal/config"
	"github.com/taskmcp/taskmcp/internal/engine"
	"github.com/taskmcp/taskmcp/internal/logging"
	"github.com/taskmcp/taskmcp/internal/registry"
	"github.com/taskmcp/taskmcp/internal/workspace"
)

var dataRootFlag string

var rootCmd = &cobra.Command{
	Use:   "task-mcp",
	Short: "Per-workspace task and entity tracker for AI coding agents",
	Long: `task-mcp keeps tasks, entities, and their links in one isolated
database per workspace, plus a master registry of all known workspaces.
Run 'task-mcp serve' to expose the tracker as MCP tools over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Initialize()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataRootFlag, "data-root", "",
		"Data directory (default ~/.task-mcp)")
	rootCmd.Version = version
}

// dataRoot resolves the effective data root: flag, then config, then the
// default under the home directory.
func dataRoot() (string, error) {
	if dataRootFlag != "" {
		return dataRootFlag, nil
	}
	return config.DataRoot()
}

// buildEngine wires a resolver, master registry, and engine over the data
// root. The returned closer releases the registry and all workspace stores.
func buildEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	root, err := dataRoot()
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(root)

	resolver := workspace.NewResolver(root)
	if err := resolver.EnsureLayout(); err != nil {
		return nil, nil, err
	}
	reg, err := registry.Open(cmd.Context(), resolver.MasterDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open master registry: %w", err)
	}
	eng := engine.New(resolver, reg)
	closer := func() {
		_ = eng.Close()
		_ = reg.Close()
	}
	return eng, closer, nil
}
