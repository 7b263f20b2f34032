package mcp

import (
	"context"

	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/pipeline"
	"github.com/henryperkins/mcprag/internal/query"
	"github.com/henryperkins/mcprag/internal/rank"
	"github.com/henryperkins/mcprag/pkg/version"
)

// SearchCodeInput is the input for search_code and search_code_raw.
type SearchCodeInput struct {
	Query               string   `json:"query"`
	Intent              string   `json:"intent,omitempty"`
	Language            string   `json:"language,omitempty"`
	Repository          string   `json:"repository,omitempty"`
	MaxResults          int      `json:"max_results,omitempty"`
	Skip                int      `json:"skip,omitempty"`
	OrderBy             string   `json:"orderby,omitempty"`
	BM25Only            bool     `json:"bm25_only,omitempty"`
	ExactTerms          []string `json:"exact_terms,omitempty"`
	DisableCache        bool     `json:"disable_cache,omitempty"`
	IncludeTimings      bool     `json:"include_timings,omitempty"`
	IncludeDependencies bool     `json:"include_dependencies,omitempty"`
	DetailLevel         string   `json:"detail_level,omitempty"`
	SnippetLines        int      `json:"snippet_lines,omitempty"`
	CurrentFile         string   `json:"current_file,omitempty"`
	WorkspaceRoot       string   `json:"workspace_root,omitempty"`
}

func (in *SearchCodeInput) request() query.Request {
	return query.Request{
		Text:       in.Query,
		Intent:     in.Intent,
		Language:   in.Language,
		Repository: in.Repository,
		ExactTerms: in.ExactTerms,
		MaxResults: in.MaxResults,
		Skip:       in.Skip,
		OrderBy:    in.OrderBy,
		BM25Only:   in.BM25Only,
	}
}

func (in *SearchCodeInput) options() pipeline.Options {
	return pipeline.Options{
		DisableCache:   in.DisableCache,
		IncludeTimings: in.IncludeTimings,
		CurrentFile:    in.CurrentFile,
		WorkspaceRoot:  in.WorkspaceRoot,
	}
}

// ExplainRankingInput is the input for explain_ranking.
type ExplainRankingInput struct {
	Query      string `json:"query"`
	Intent     string `json:"intent,omitempty"`
	Language   string `json:"language,omitempty"`
	Repository string `json:"repository,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	Mode       string `json:"mode,omitempty"` // basic | enhanced
}

// PreviewInput is the input for preview_query_processing.
type PreviewInput struct {
	Query      string   `json:"query"`
	Intent     string   `json:"intent,omitempty"`
	Language   string   `json:"language,omitempty"`
	Repository string   `json:"repository,omitempty"`
	ExactTerms []string `json:"exact_terms,omitempty"`
}

// CacheStatsInput has no parameters.
type CacheStatsInput struct{}

// HealthCheckInput has no parameters.
type HealthCheckInput struct{}

// IndexStatusInput has no parameters.
type IndexStatusInput struct{}

func (s *Server) registerSearchTools() {
	s.dispatcher.Register(&Tool{
		Name:        "search_code",
		Description: "Search indexed code with hybrid BM25, vector, and semantic retrieval. Results are re-ranked by intent, caller context, and adaptive feedback weights.",
		Group:       "search",
		Tier:        auth.TierPublic,
		Input:       func() any { return &SearchCodeInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*SearchCodeInput)
			resp, err := s.searchWith(ctx, in)
			if err != nil {
				return nil, err
			}
			return searchData(resp, formatItems(resp.Items, in.DetailLevel, in.SnippetLines)), nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "search_code_raw",
		Description: "Search indexed code and return unformatted result objects.",
		Group:       "search",
		Tier:        auth.TierPublic,
		Input:       func() any { return &SearchCodeInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*SearchCodeInput)
			resp, err := s.searchWith(ctx, in)
			if err != nil {
				return nil, err
			}
			return searchData(resp, rawItems(resp.Items)), nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "explain_ranking",
		Description: "Run a search and explain why each result ranked where it did: retrieval score, intent and context boosts, adaptive weights, freshness.",
		Group:       "search",
		Tier:        auth.TierPublic,
		Input:       func() any { return &ExplainRankingInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*ExplainRankingInput)
			if s.deps.Retriever == nil {
				return nil, errors.New(errors.KindConflict, "search pipeline is not configured")
			}
			mode := rank.ExplainBasic
			if in.Mode == string(rank.ExplainEnhanced) {
				mode = rank.ExplainEnhanced
			}
			resp, explanations, err := s.deps.Retriever.Explain(ctx, query.Request{
				Text:       in.Query,
				Intent:     in.Intent,
				Language:   in.Language,
				Repository: in.Repository,
				MaxResults: in.MaxResults,
			}, mode)
			if err != nil {
				return nil, err
			}

			results := make([]map[string]any, len(resp.Items))
			for i, item := range resp.Items {
				results[i] = map[string]any{
					"id":          item.ID,
					"file":        item.FilePath,
					"rank":        item.Rank,
					"explanation": explanations[i],
				}
			}
			return map[string]any{
				"query_id": resp.QueryID,
				"intent":   resp.Intent,
				"mode":     string(mode),
				"results":  results,
			}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "preview_query_processing",
		Description: "Show how a query would be processed without executing it: sanitized text, classified intent, rewrites, exact terms, and the filter expression.",
		Group:       "search",
		Tier:        auth.TierPublic,
		Input:       func() any { return &PreviewInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*PreviewInput)
			if s.deps.Retriever == nil {
				return nil, errors.New(errors.KindConflict, "search pipeline is not configured")
			}
			shaped, err := s.deps.Retriever.Shape(query.Request{
				Text:       in.Query,
				Intent:     in.Intent,
				Language:   in.Language,
				Repository: in.Repository,
				ExactTerms: in.ExactTerms,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"text":              shaped.Text,
				"intent":            string(shaped.Intent),
				"intent_classified": shaped.IntentClassified,
				"rewrites":          shaped.Rewrites,
				"exact_terms":       shaped.ExactTerms,
				"filter":            shaped.Filter,
				"max_results":       shaped.MaxResults,
				"skip":              shaped.Skip,
			}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "health_check",
		Description: "Report component health: search service, embedding provider, cache, feedback store.",
		Group:       "service",
		Tier:        auth.TierPublic,
		Input:       func() any { return &HealthCheckInput{} },
		Handle: func(ctx context.Context, _ any) (any, error) {
			return s.healthData(ctx), nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "index_status",
		Description: "Report index statistics: document count, storage size, vector coverage configuration.",
		Group:       "service",
		Tier:        auth.TierPublic,
		Input:       func() any { return &IndexStatusInput{} },
		Handle: func(ctx context.Context, _ any) (any, error) {
			if s.deps.Admin == nil || s.deps.Search == nil {
				return nil, errors.New(errors.KindConflict, "index administration is not configured")
			}
			stats, err := s.deps.Search.GetIndexStats(ctx, s.deps.Admin.IndexName())
			if err != nil {
				return nil, err
			}
			data := map[string]any{
				"index":          s.deps.Admin.IndexName(),
				"document_count": stats.DocumentCount,
				"storage_size":   stats.StorageSize,
			}
			if s.deps.Embedder != nil {
				data["embeddings"] = map[string]any{
					"provider_state": s.deps.Embedder.State().String(),
					"model":          s.deps.Embedder.ModelName(),
					"dimensions":     s.deps.Embedder.Dimensions(),
				}
			}
			return data, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "cache_stats",
		Description: "Report result cache statistics: entries, hit rate, evictions.",
		Group:       "cache",
		Tier:        auth.TierPublic,
		Input:       func() any { return &CacheStatsInput{} },
		Handle: func(_ context.Context, _ any) (any, error) {
			if s.deps.Cache == nil {
				return nil, errors.New(errors.KindConflict, "cache is not configured")
			}
			return s.deps.Cache.Stats(), nil
		},
	})
}

func (s *Server) searchWith(ctx context.Context, in *SearchCodeInput) (*pipeline.Response, error) {
	if s.deps.Retriever == nil {
		return nil, errors.New(errors.KindConflict, "search pipeline is not configured")
	}
	return s.deps.Retriever.Search(ctx, in.request(), in.options())
}

// searchData assembles the common search response payload.
func searchData(resp *pipeline.Response, items []any) map[string]any {
	data := map[string]any{
		"items":               items,
		"count":               resp.Count,
		"total":               resp.Total,
		"has_more":            resp.HasMore,
		"query_id":            resp.QueryID,
		"intent":              resp.Intent,
		"backend":             resp.Backend,
		"semantic_used":       resp.SemanticUsed,
		"applied_exact_terms": resp.AppliedExactTerms,
	}
	if resp.HasMore {
		data["next_skip"] = resp.NextSkip
	}
	if resp.CacheHit {
		data["cache_hit"] = true
	}
	if resp.Timings != nil {
		data["timings_ms"] = resp.Timings
	}
	return data
}

func rawItems(items []*pipeline.Item) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func (s *Server) healthData(ctx context.Context) map[string]any {
	components := map[string]any{
		"search_client": s.deps.Search != nil,
		"pipeline":      s.deps.Retriever != nil,
		"feedback":      s.deps.Feedback != nil,
		"cache":         s.deps.Cache != nil,
		"admin":         s.deps.Admin != nil,
		"indexer":       s.deps.Indexer != nil,
	}
	if s.deps.Embedder != nil {
		components["embeddings"] = s.deps.Embedder.State().String()
	}

	status := "healthy"
	if s.deps.Search == nil || s.deps.Retriever == nil {
		status = "degraded"
	}
	return map[string]any{
		"status":     status,
		"version":    version.Short(),
		"components": components,
	}
}
