package mcp

import (
	"context"
	"time"

	"github.com/henryperkins/mcprag/internal/admin"
	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/pkg/version"
)

// ManageIndexInput is the input for manage_index.
type ManageIndexInput struct {
	Action            string `json:"action"` // ensure | validate | stats
	UpdateIfDifferent bool   `json:"update_if_different,omitempty"`
}

// ManageDocumentsInput is the input for manage_documents.
type ManageDocumentsInput struct {
	Action    string   `json:"action"` // count | lookup | cleanup | delete
	Key       string   `json:"key,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	DateField string   `json:"date_field,omitempty"`
	DaysOld   int      `json:"days_old,omitempty"`
	DryRun    bool     `json:"dry_run,omitempty"`
	Confirm   bool     `json:"confirm,omitempty"`
}

// ManageIndexerInput is the input for manage_indexer.
type ManageIndexerInput struct {
	Action     string            `json:"action"` // list | get | status | run | reset | create | delete
	Name       string            `json:"name,omitempty"`
	Definition *azsearch.Indexer `json:"definition,omitempty"`
	Confirm    bool              `json:"confirm,omitempty"`
}

// CreateDataSourceInput is the input for create_datasource.
type CreateDataSourceInput struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	ConnectionString string `json:"connection_string"`
	Container        string `json:"container"`
	Query            string `json:"query,omitempty"`
}

// CreateSkillsetInput is the input for create_skillset.
type CreateSkillsetInput struct {
	Definition *azsearch.Skillset `json:"definition"`
}

// RebuildIndexInput is the input for rebuild_index.
type RebuildIndexInput struct {
	Backup  bool `json:"backup,omitempty"`
	Confirm bool `json:"confirm,omitempty"`
}

// IndexRepositoryInput is the input for index_repository.
type IndexRepositoryInput struct {
	RepoPath string `json:"repo_path"`
	RepoName string `json:"repo_name"`
}

// IndexChangedFilesInput is the input for index_changed_files.
type IndexChangedFilesInput struct {
	RepoPath string   `json:"repo_path"`
	RepoName string   `json:"repo_name"`
	Files    []string `json:"files"`
}

// BackfillInput is the input for backfill_embeddings.
type BackfillInput struct {
	BatchSize      int  `json:"batch_size,omitempty"`
	IncludeContext bool `json:"include_context,omitempty"`
	MaxDocs        int  `json:"max_docs,omitempty"`
	DryRun         bool `json:"dry_run,omitempty"`
	Resume         bool `json:"resume,omitempty"`
}

// ValidateEmbeddingsInput is the input for validate_embeddings.
type ValidateEmbeddingsInput struct {
	SampleSize int `json:"sample_size,omitempty"`
}

// BackupSchemaInput has no parameters.
type BackupSchemaInput struct{}

// ClearRepositoryInput is the input for clear_repository_documents.
type ClearRepositoryInput struct {
	Repository string `json:"repository"`
	Confirm    bool   `json:"confirm,omitempty"`
}

// CacheClearInput is the input for cache_clear.
type CacheClearInput struct {
	Scope   string `json:"scope,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// SemanticSearchInput is the input for configure_semantic_search.
type SemanticSearchInput struct {
	Action string `json:"action,omitempty"` // status | ensure
}

// ServiceInfoInput has no parameters.
type ServiceInfoInput struct{}

func (s *Server) registerAdminTools() {
	s.dispatcher.Register(&Tool{
		Name:        "manage_index",
		Description: "Inspect or converge the search index: ensure (create/update to the canonical schema), validate (schema drift report), stats.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &ManageIndexInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*ManageIndexInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			switch in.Action {
			case "ensure":
				return m.EnsureIndex(ctx, in.UpdateIfDifferent)
			case "validate":
				return m.ValidateSchema(ctx)
			case "stats":
				return s.deps.Search.GetIndexStats(ctx, m.IndexName())
			default:
				return nil, errors.Validation("action", "action must be ensure, validate, or stats")
			}
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "manage_documents",
		Description: "Document operations on the index: count, lookup by key, cleanup of stale documents, delete by keys.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &ManageDocumentsInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			return s.manageDocuments(ctx, input.(*ManageDocumentsInput))
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "manage_indexer",
		Description: "Indexer lifecycle: list, get, status, run, reset, create, delete.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &ManageIndexerInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			return s.manageIndexer(ctx, input.(*ManageIndexerInput))
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "create_datasource",
		Description: "Create or update an indexer data source connection.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &CreateDataSourceInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*CreateDataSourceInput)
			if s.deps.Search == nil {
				return nil, errors.New(errors.KindConflict, "search client is not configured")
			}
			if in.Name == "" || in.Type == "" || in.ConnectionString == "" || in.Container == "" {
				return nil, errors.Validation("name", "name, type, connection_string, and container are required")
			}
			return s.deps.Search.CreateOrUpdateDataSource(ctx, &azsearch.DataSource{
				Name:        in.Name,
				Type:        in.Type,
				Credentials: azsearch.DataSourceCredentials{ConnectionString: in.ConnectionString},
				Container:   azsearch.DataSourceContainer{Name: in.Container, Query: in.Query},
			})
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "create_skillset",
		Description: "Create or update an enrichment skillset.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &CreateSkillsetInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*CreateSkillsetInput)
			if s.deps.Search == nil {
				return nil, errors.New(errors.KindConflict, "search client is not configured")
			}
			if in.Definition == nil || in.Definition.Name == "" {
				return nil, errors.Validation("definition", "a skillset definition with a name is required")
			}
			return s.deps.Search.CreateOrUpdateSkillset(ctx, in.Definition)
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "rebuild_index",
		Description: "Drop and recreate the index from the canonical schema. Destroys all indexed documents.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Destructive: true,
		Timeout:     5 * time.Minute,
		Input:       func() any { return &RebuildIndexInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*RebuildIndexInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			result, err := m.RecreateIndex(ctx, in.Backup)
			if err != nil {
				return nil, err
			}
			if s.deps.Retriever != nil {
				s.deps.Retriever.ClearCache()
			}
			return result, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "index_repository",
		Description: "Walk a repository, chunk its source files, and upload them to the index.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Timeout:     30 * time.Minute,
		Input:       func() any { return &IndexRepositoryInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*IndexRepositoryInput)
			if s.deps.Indexer == nil {
				return nil, errors.New(errors.KindConflict, "indexing worker is not configured")
			}
			if in.RepoPath == "" || in.RepoName == "" {
				return nil, errors.Validation("repo_path", "repo_path and repo_name are required")
			}
			report, err := s.deps.Indexer.IndexRepository(ctx, in.RepoPath, in.RepoName)
			if err != nil {
				return nil, err
			}
			if s.deps.Retriever != nil {
				s.deps.Retriever.ClearCache()
			}
			return report, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "index_changed_files",
		Description: "Index an explicit list of changed files without walking the repository. Removed files have their chunks deleted.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Timeout:     10 * time.Minute,
		Input:       func() any { return &IndexChangedFilesInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*IndexChangedFilesInput)
			if s.deps.Indexer == nil {
				return nil, errors.New(errors.KindConflict, "indexing worker is not configured")
			}
			if in.RepoPath == "" || in.RepoName == "" || len(in.Files) == 0 {
				return nil, errors.Validation("files", "repo_path, repo_name, and files are required")
			}
			report, err := s.deps.Indexer.IndexChangedFiles(ctx, in.RepoPath, in.RepoName, in.Files)
			if err != nil {
				return nil, err
			}
			if s.deps.Retriever != nil {
				s.deps.Retriever.ClearCache()
			}
			return report, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "backfill_embeddings",
		Description: "Embed documents lacking content_vector and merge the vectors back. Resumable via a persisted cursor.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Timeout:     30 * time.Minute,
		Input:       func() any { return &BackfillInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*BackfillInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			return m.BackfillEmbeddings(ctx, admin.BackfillOptions{
				BatchSize:      in.BatchSize,
				IncludeContext: in.IncludeContext,
				MaxDocs:        in.MaxDocs,
				DryRun:         in.DryRun,
				Resume:         in.Resume,
			})
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "validate_embeddings",
		Description: "Sample documents and report vector presence, dimensionality, and coverage.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &ValidateEmbeddingsInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*ValidateEmbeddingsInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			return m.ValidateEmbeddings(ctx, in.SampleSize)
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "backup_index_schema",
		Description: "Export the live index schema to the state directory.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &BackupSchemaInput{} },
		Handle: func(ctx context.Context, _ any) (any, error) {
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			path, err := m.BackupSchema(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"backup_path": path}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "clear_repository_documents",
		Description: "Delete every indexed document belonging to one repository.",
		Group:       "admin",
		Tier:        auth.TierAdmin,
		Destructive: true,
		Timeout:     10 * time.Minute,
		Input:       func() any { return &ClearRepositoryInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*ClearRepositoryInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			deleted, err := m.ClearRepositoryDocuments(ctx, in.Repository)
			if err != nil {
				return nil, err
			}
			if s.deps.Retriever != nil {
				s.deps.Retriever.ClearCache()
			}
			return map[string]any{"deleted": deleted, "repository": in.Repository}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "cache_clear",
		Description: "Invalidate the result cache: everything, one scope, or a glob pattern.",
		Group:       "cache",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &CacheClearInput{} },
		Handle: func(_ context.Context, input any) (any, error) {
			in := input.(*CacheClearInput)
			if s.deps.Cache == nil {
				return nil, errors.New(errors.KindConflict, "cache is not configured")
			}
			var removed int
			switch {
			case in.Pattern != "":
				removed = s.deps.Cache.ClearPattern(in.Pattern)
			case in.Scope != "":
				removed = s.deps.Cache.ClearScope(in.Scope)
			default:
				removed = s.deps.Cache.ClearAll()
			}
			return map[string]any{"removed": removed}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "configure_semantic_search",
		Description: "Report or converge the semantic search configuration on the index.",
		Group:       "service",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &SemanticSearchInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*SemanticSearchInput)
			m, err := s.requireAdmin()
			if err != nil {
				return nil, err
			}
			report, err := m.ValidateSchema(ctx)
			if err != nil {
				return nil, err
			}
			data := map[string]any{
				"semantic_configured": report.HasSemanticConfig,
				"vector_configured":   report.HasVectorSearch,
			}
			if in.Action == "ensure" && !report.HasSemanticConfig {
				result, err := m.EnsureIndex(ctx, true)
				if err != nil {
					return nil, err
				}
				data["updated"] = result.Updated
				data["semantic_configured"] = true
			}
			return data, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "get_service_info",
		Description: "Report service configuration: endpoints, index, embedding provider, cache sizing, and version.",
		Group:       "service",
		Tier:        auth.TierAdmin,
		Input:       func() any { return &ServiceInfoInput{} },
		Handle: func(_ context.Context, _ any) (any, error) {
			cfg := s.deps.Config
			if cfg == nil {
				return nil, errors.New(errors.KindConflict, "configuration unavailable")
			}
			// Keys never leave the process; only shape and sizing do.
			return map[string]any{
				"version": version.GetInfo(),
				"search": map[string]any{
					"endpoint":    cfg.Search.Endpoint,
					"index":       cfg.Search.IndexName,
					"api_version": cfg.Search.APIVersion,
					"semantic":    cfg.Search.SemanticConfiguration != "",
				},
				"embedding": map[string]any{
					"provider":   cfg.Embed.Provider,
					"model":      cfg.Embed.Model,
					"dimensions": cfg.Embed.Dimensions,
					"batch_size": cfg.Embed.BatchSize,
				},
				"cache": map[string]any{
					"enabled":     cfg.Cache.Enabled,
					"ttl_seconds": int(cfg.Cache.TTL.Seconds()),
					"max_entries": cfg.Cache.MaxEntries,
				},
				"feedback": map[string]any{
					"window_days":        cfg.Feedback.WindowDays,
					"aggregate_interval": cfg.Feedback.AggregateInterval.String(),
				},
			}, nil
		},
	})
}

func (s *Server) requireAdmin() (*admin.Manager, error) {
	if s.deps.Admin == nil || s.deps.Search == nil {
		return nil, errors.New(errors.KindConflict, "index administration is not configured")
	}
	return s.deps.Admin, nil
}

// manageDocuments routes the manage_documents actions. Delete and cleanup
// mutate, so they sit behind the confirmation gate.
func (s *Server) manageDocuments(ctx context.Context, in *ManageDocumentsInput) (any, error) {
	m, err := s.requireAdmin()
	if err != nil {
		return nil, err
	}
	switch in.Action {
	case "count":
		count, err := s.deps.Search.CountDocuments(ctx, m.IndexName())
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": count}, nil

	case "lookup":
		if in.Key == "" {
			return nil, errors.Validation("key", "key is required for lookup")
		}
		return s.deps.Search.LookupDocument(ctx, m.IndexName(), in.Key)

	case "cleanup":
		if !in.DryRun && !in.Confirm {
			return ConfirmationRequired("cleanup deletes documents; repeat with confirm=true or use dry_run=true"), nil
		}
		return m.CleanupOldDocuments(ctx, in.DateField, in.DaysOld, in.DryRun)

	case "delete":
		if len(in.Keys) == 0 {
			return nil, errors.Validation("keys", "keys are required for delete")
		}
		if !in.Confirm {
			return ConfirmationRequired("delete removes documents permanently; repeat with confirm=true"), nil
		}
		res, err := s.deps.Search.DeleteDocuments(ctx, m.IndexName(), "id", in.Keys)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": res.Succeeded(), "failed": len(res.Failed())}, nil

	default:
		return nil, errors.Validation("action", "action must be count, lookup, cleanup, or delete")
	}
}

// manageIndexer routes the manage_indexer actions.
func (s *Server) manageIndexer(ctx context.Context, in *ManageIndexerInput) (any, error) {
	if s.deps.Search == nil {
		return nil, errors.New(errors.KindConflict, "search client is not configured")
	}
	needName := func() error {
		if in.Name == "" {
			return errors.Validation("name", "indexer name is required")
		}
		return nil
	}

	switch in.Action {
	case "list":
		return s.deps.Search.ListIndexers(ctx)
	case "get":
		if err := needName(); err != nil {
			return nil, err
		}
		return s.deps.Search.GetIndexer(ctx, in.Name)
	case "status":
		if err := needName(); err != nil {
			return nil, err
		}
		return s.deps.Search.GetIndexerStatus(ctx, in.Name)
	case "run":
		if err := needName(); err != nil {
			return nil, err
		}
		if err := s.deps.Search.RunIndexer(ctx, in.Name); err != nil {
			return nil, err
		}
		return map[string]any{"started": true}, nil
	case "reset":
		if err := needName(); err != nil {
			return nil, err
		}
		if err := s.deps.Search.ResetIndexer(ctx, in.Name); err != nil {
			return nil, err
		}
		return map[string]any{"reset": true}, nil
	case "create":
		if in.Definition == nil || in.Definition.Name == "" {
			return nil, errors.Validation("definition", "an indexer definition with a name is required")
		}
		return s.deps.Search.CreateOrUpdateIndexer(ctx, in.Definition)
	case "delete":
		if err := needName(); err != nil {
			return nil, err
		}
		if !in.Confirm {
			return ConfirmationRequired("delete removes the indexer definition; repeat with confirm=true"), nil
		}
		if err := s.deps.Search.DeleteIndexer(ctx, in.Name); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true}, nil
	default:
		return nil, errors.Validation("action", "action must be list, get, status, run, reset, create, or delete")
	}
}
