package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/henryperkins/mcprag/internal/admin"
	"github.com/henryperkins/mcprag/internal/errors"
)

var (
	flagConfirm        bool
	flagBackup         bool
	flagUpdate         bool
	flagBatchSize      int
	flagMaxDocs        int
	flagDryRun         bool
	flagIncludeContext bool
	flagSampleSize     int
)

var ensureIndexCmd = &cobra.Command{
	Use:   "ensure-index",
	Short: "Create or update the index to match the canonical schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, cleanup, err := adminManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := m.EnsureIndex(ctx, flagUpdate)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Drop and recreate the index (destroys all documents)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagConfirm {
			return errors.New(errors.KindConflict, "rebuild destroys all indexed documents; re-run with --confirm")
		}
		m, cleanup, err := adminManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := m.RecreateIndex(ctx, flagBackup)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed documents lacking vectors and merge them back",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, cleanup, err := adminManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := m.BackfillEmbeddings(ctx, admin.BackfillOptions{
			BatchSize:      flagBatchSize,
			IncludeContext: flagIncludeContext,
			MaxDocs:        flagMaxDocs,
			DryRun:         flagDryRun,
			Resume:         true,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var validateIndexCmd = &cobra.Command{
	Use:   "validate-index",
	Short: "Validate the live index schema and embedding coverage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, cleanup, err := adminManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		schema, err := m.ValidateSchema(ctx)
		if err != nil {
			return err
		}
		embeddings, err := m.ValidateEmbeddings(ctx, flagSampleSize)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"schema":     schema,
			"embeddings": embeddings,
		})
	},
}

// adminManager builds just enough of the service for admin commands.
func adminManager() (*admin.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	comps, err := buildComponents(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if comps.deps.Admin == nil {
		comps.stop()
		cleanup()
		return nil, nil, errors.New(errors.KindConflict, "search service not configured")
	}
	return comps.deps.Admin, func() {
		comps.stop()
		cleanup()
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func init() {
	ensureIndexCmd.Flags().BoolVar(&flagUpdate, "update", false, "update the live index when it differs")
	rebuildCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "confirm the destructive rebuild")
	rebuildCmd.Flags().BoolVar(&flagBackup, "backup", true, "export the live schema before dropping")
	backfillCmd.Flags().IntVar(&flagBatchSize, "batch-size", 50, "documents per embedding batch")
	backfillCmd.Flags().IntVar(&flagMaxDocs, "max-docs", 0, "stop after this many documents (0 = all)")
	backfillCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report without writing")
	backfillCmd.Flags().BoolVar(&flagIncludeContext, "include-context", true, "embed file path and repository with content")
	validateIndexCmd.Flags().IntVar(&flagSampleSize, "sample-size", 100, "documents sampled for embedding validation")

	rootCmd.AddCommand(ensureIndexCmd, rebuildCmd, backfillCmd, validateIndexCmd)
}
