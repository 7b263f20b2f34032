package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/henryperkins/mcprag/internal/mcp"
	"github.com/henryperkins/mcprag/internal/server"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Serve MCP tools over HTTP and SSE for remote agents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cleanup, err := setupLogging(cfg, false)
		if err != nil {
			return err
		}
		defer cleanup()

		comps, err := buildComponents(cfg)
		if err != nil {
			return err
		}
		defer comps.stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if comps.deps.Feedback != nil {
			if err := comps.deps.Feedback.Start(ctx); err != nil {
				return err
			}
			defer comps.deps.Feedback.Stop()
		}

		mcpServer := mcp.NewServer(comps.deps)
		remote := server.New(cfg, mcpServer.Dispatcher(), comps.authn)
		return remote.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(remoteCmd)
}
