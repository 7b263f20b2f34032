package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/henryperkins/mcprag/internal/errors"
)

var (
	flagRepoName string
	flagChanged  []string
	flagWatch    bool
	flagDebounce time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a repository into the search service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if comps.deps.Indexer == nil {
			return errors.New(errors.KindConflict, "search service not configured")
		}

		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		repoName := flagRepoName
		if repoName == "" {
			repoName = filepath.Base(root)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The index must exist before documents land in it.
		if comps.deps.Admin != nil {
			if _, err := comps.deps.Admin.EnsureIndex(ctx, false); err != nil {
				return err
			}
		}

		if len(flagChanged) > 0 {
			report, err := comps.deps.Indexer.IndexChangedFiles(ctx, root, repoName, flagChanged)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d files (%d chunks, %d failed)\n",
				report.Files, report.Chunks, report.Failed)
			return nil
		}

		report, err := comps.deps.Indexer.IndexRepository(ctx, root, repoName)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d files: %d chunks uploaded, %d failed, %d skipped in %s\n",
			report.Files, report.Uploaded, report.Failed, report.Skipped, report.Duration.Round(time.Millisecond))

		if flagWatch {
			return comps.deps.Indexer.Watch(ctx, root, repoName, flagDebounce)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&flagRepoName, "repo", "", "repository name in the index (default: directory name)")
	indexCmd.Flags().StringSliceVar(&flagChanged, "changed", nil, "index only these repo-relative files")
	indexCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep watching for file changes after indexing")
	indexCmd.Flags().DurationVar(&flagDebounce, "debounce", 2*time.Second, "debounce window for watch mode")
	rootCmd.AddCommand(indexCmd)
}
