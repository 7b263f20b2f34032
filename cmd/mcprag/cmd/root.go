// Package cmd implements the mcprag CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/henryperkins/mcprag/internal/admin"
	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/cache"
	"github.com/henryperkins/mcprag/internal/config"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/feedback"
	"github.com/henryperkins/mcprag/internal/indexer"
	"github.com/henryperkins/mcprag/internal/logging"
	"github.com/henryperkins/mcprag/internal/mcp"
	"github.com/henryperkins/mcprag/internal/pipeline"
	"github.com/henryperkins/mcprag/internal/rank"
	"github.com/henryperkins/mcprag/pkg/version"
)

var (
	flagDebug      bool
	flagSchemaPath string
)

var rootCmd = &cobra.Command{
	Use:           "mcprag",
	Short:         "Code search and retrieval-augmented generation MCP service",
	Long:          "mcprag serves code-search, analysis, and index-management tools over MCP:\nstdio for local agents, HTTP/SSE for remote ones.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version.String(),
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagSchemaPath, "schema", "", "path to the canonical index schema JSON (default: built-in)")
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// components is everything a transport needs, plus the lifecycles to stop.
type components struct {
	deps  mcp.Deps
	authn *auth.Authenticator
	stop  func()
}

// buildComponents wires the service from configuration. Components that are
// not configured stay nil; their tools answer with a conflict instead of
// failing startup.
func buildComponents(cfg *config.Config) (*components, error) {
	stops := []func(){}
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	deps := mcp.Deps{Config: cfg}

	embedder := embed.FromConfig(
		cfg.Embed.Provider, cfg.Embed.Endpoint, cfg.Embed.APIKey,
		cfg.Embed.Model, cfg.Embed.Dimensions, cfg.Embed.BatchSize, cfg.Embed.Timeout,
	)
	deps.Embedder = embedder

	deps.Cache = cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.Enabled)

	fb, err := feedback.NewStore(feedback.Config{
		Dir:               cfg.Feedback.Dir,
		AggregateInterval: cfg.Feedback.AggregateInterval,
		WindowDays:        cfg.Feedback.WindowDays,
	})
	if err != nil {
		return nil, err
	}
	deps.Feedback = fb

	if cfg.SearchConfigured() {
		client, err := azsearch.Shared(azsearch.Config{
			Endpoint:   cfg.Search.Endpoint,
			APIKey:     firstNonEmpty(cfg.Search.AdminKey, cfg.Search.QueryKey),
			APIVersion: cfg.Search.APIVersion,
			Timeout:    cfg.Search.Timeout,
		}, cfg.Search.IndexName)
		if err != nil {
			return nil, err
		}
		deps.Search = client

		ranker := rank.NewRanker(fb, rank.Config{})
		retriever, err := pipeline.NewRetriever(client, embedder, ranker, deps.Cache, pipeline.Config{
			Index:                 cfg.Search.IndexName,
			RRFConstant:           cfg.Search.RRFConstant,
			SemanticConfiguration: cfg.Search.SemanticConfiguration,
			Timeout:               cfg.Search.Timeout,
			DebugTimings:          cfg.Logging.DebugTimings,
		})
		if err != nil {
			return nil, err
		}
		deps.Retriever = retriever

		schema, err := resolveSchema(cfg)
		if err != nil {
			return nil, err
		}
		manager, err := admin.NewManager(client, embedder, schema, stateDir())
		if err != nil {
			return nil, err
		}
		deps.Admin = manager

		worker, err := indexer.NewWorker(client, embedder, indexer.Config{
			Index:         cfg.Search.IndexName,
			Workers:       cfg.Indexing.Workers,
			BatchSize:     cfg.Indexing.BatchSize,
			MaxFileSizeMB: cfg.Indexing.MaxFileSizeMB,
			MaxFiles:      cfg.Indexing.MaxFiles,
			Include:       cfg.Indexing.Include,
			Exclude:       cfg.Indexing.Exclude,
		})
		if err != nil {
			return nil, err
		}
		deps.Indexer = worker
	} else {
		slog.Warn("search service not configured; search and admin tools disabled",
			slog.String("hint", "set MCPRAG_SEARCH_ENDPOINT and MCPRAG_SEARCH_ADMIN_KEY"))
	}

	authn, err := buildAuthenticator(cfg, &stops)
	if err != nil {
		stop()
		return nil, err
	}

	return &components{deps: deps, authn: authn, stop: stop}, nil
}

func buildAuthenticator(cfg *config.Config, stops *[]func()) (*auth.Authenticator, error) {
	var store auth.SessionStore = auth.NewMemoryStore()
	if cfg.Auth.SessionStorePath != "" {
		bolt, err := auth.NewBoltStore(cfg.Auth.SessionStorePath)
		if err != nil {
			return nil, err
		}
		*stops = append(*stops, func() { _ = bolt.Close() })
		store = bolt
	}

	var magic auth.MagicLinkProvider
	if cfg.Auth.MagicLinkEndpoint != "" {
		magic = auth.NewHTTPMagicLink(cfg.Auth.MagicLinkEndpoint, cfg.Auth.MagicLinkAPIKey)
	}

	return auth.NewAuthenticator(auth.Config{
		SessionDuration:    cfg.Auth.SessionDuration,
		RequireMFAForAdmin: cfg.Auth.RequireMFAForAdmin,
		AdminEmails:        cfg.Auth.AdminEmails,
		DeveloperDomains:   cfg.Auth.DeveloperDomains,
		APIKeys:            cfg.Auth.APIKeys,
		M2MClients:         cfg.Auth.M2MClients,
		TokenSecret:        cfg.Auth.TokenSecret,
		MagicLink:          magic,
	}, store)
}

// resolveSchema loads the canonical schema from --schema, then
// configs/index-schema.json relative to the working directory, then
// index-schema.json in the state directory, or else the built-in definition.
func resolveSchema(cfg *config.Config) (*azsearch.Index, error) {
	if flagSchemaPath != "" {
		return admin.LoadSchema(flagSchemaPath)
	}
	for _, candidate := range []string{
		"configs/index-schema.json",
		filepath.Join(stateDir(), "index-schema.json"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			schema, err := admin.LoadSchema(candidate)
			if err != nil {
				return nil, err
			}
			// The configured index name wins over the file's.
			schema.Name = cfg.Search.IndexName
			return schema, nil
		}
	}
	return admin.CanonicalSchema(cfg.Search.IndexName, cfg.Embed.Dimensions), nil
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcprag"
	}
	return filepath.Join(home, ".mcprag")
}

func setupLogging(cfg *config.Config, stdio bool) (func(), error) {
	if stdio {
		return logging.SetupStdioMode(cfg.Logging.Level)
	}
	return logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		WriteToStderr: true,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
