package main

import (
	"github.com/spf13/cobra"

	"github.com/taskmcp/taskmcp/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio",
	Long: `Serve the tracker as MCP tools over stdio.

stdout carries the protocol, so all diagnostics go to the rotating log
under <data-root>/logs. Point your MCP client at this command:

  { "command": "task-mcp", "args": ["serve"] }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		server := mcpserver.New(eng, version)
		return server.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
