package cli

import (
	"fmt"

	"github.com/panoptikon-go/panoptikon/internal/mcpserver"
	"github.com/spf13/cobra"
)

var serveWorkerBinary string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio (search + job management)",
	Long: `Starts internal/mcpserver: one long-lived job manager (C6) and a
read-only search facade (C10) exposed as MCP tools over stdio. Unlike the
"jobs" and "search" CLI verbs, which each open a fresh store handle or
manager for a single invocation, this process holds that state for as
long as it runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := mcpserver.New(cfg, serveWorkerBinary)
		if err != nil {
			return fmt.Errorf("failed to start mcp server: %w", err)
		}
		defer srv.Close()

		return srv.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveWorkerBinary, "worker-binary", "panoptikon-worker", "path to the panoptikon-worker binary")
	rootCmd.AddCommand(serveCmd)
}
