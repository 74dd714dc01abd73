package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revqhq/revq/internal/emit"
	"github.com/revqhq/revq/internal/mcp"
)

var mcpPath string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Run a Model Context Protocol server over stdin/stdout.

Exposes two tools to agent platforms: get_configured_reviews, which
lists review rules (optionally filtered by file), and
mark_review_as_passed, which records a passed review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpPath, "path", ".", "Repository root to serve")
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	root, err := resolveRoot(mcpPath)
	if err != nil {
		return err
	}

	markers := emit.NewMarkers(stateDir(root, viper.GetString("markers_dir")))
	srv := mcp.NewServer(root, markers)

	ui.VerboseLog("Serving MCP on stdio for %s", root)
	return srv.ServeStdio(cmd.Context())
}
