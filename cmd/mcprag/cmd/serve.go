package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/henryperkins/mcprag/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio for a local agent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// stdout belongs to JSON-RPC; logs go to the rotating file only.
		cleanup, err := setupLogging(cfg, true)
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

		server := mcp.NewServer(comps.deps)
		err = server.ServeStdio(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
