// Package pipeline implements the hybrid retrieval orchestrator: cache
// lookup, parallel BM25/vector/semantic sub-queries against the search
// service, reciprocal-rank fusion, de-duplication, contextual re-ranking,
// and pagination.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/cache"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/query"
	"github.com/henryperkins/mcprag/internal/rank"
)

// Config configures the Retriever.
type Config struct {
	// Index is the search index queried.
	Index string
	// RRFConstant is the fusion smoothing parameter.
	RRFConstant int
	// SemanticConfiguration enables the semantic sub-query when non-empty.
	SemanticConfiguration string
	// Timeout bounds one complete search operation.
	Timeout time.Duration
	// DebugTimings logs per-stage timings.
	DebugTimings bool
}

// Retriever is the hybrid search orchestrator. All dependencies are
// read-only from its perspective; it never mutates index documents.
type Retriever struct {
	client   *azsearch.Client
	embedder embed.Embedder
	shaper   *query.Shaper
	ranker   *rank.Ranker
	cache    *cache.Cache
	cfg      Config
}

// NewRetriever wires the pipeline. cache may be nil to disable memoization.
func NewRetriever(client *azsearch.Client, embedder embed.Embedder, ranker *rank.Ranker, c *cache.Cache, cfg Config) (*Retriever, error) {
	if client == nil {
		return nil, errors.New(errors.KindInternal, "search client is required")
	}
	if embedder == nil {
		embedder = &embed.Disabled{}
	}
	if ranker == nil {
		ranker = rank.NewRanker(nil, rank.Config{})
	}
	if cfg.Index == "" {
		return nil, errors.New(errors.KindValidation, "index name is required")
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Retriever{
		client:   client,
		embedder: embedder,
		shaper:   query.NewShaper(),
		ranker:   ranker,
		cache:    c,
		cfg:      cfg,
	}, nil
}

// Shape exposes query shaping for the preview tool.
func (r *Retriever) Shape(req query.Request) (*query.ShapedQuery, error) {
	return r.shaper.Shape(req)
}

// Search runs the full pipeline for a raw request.
func (r *Retriever) Search(ctx context.Context, req query.Request, opts Options) (*Response, error) {
	shaped, err := r.shaper.Shape(req)
	if err != nil {
		return nil, err
	}
	return r.SearchShaped(ctx, shaped, opts)
}

// SearchShaped runs the pipeline for an already-shaped query.
func (r *Retriever) SearchShaped(ctx context.Context, shaped *query.ShapedQuery, opts Options) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	t := newTimer()

	key := r.cacheKey(shaped, opts)
	if r.cache != nil && !opts.DisableCache {
		if v, ok := r.cache.Get(key); ok {
			resp := v.(*Response)
			out := *resp
			out.CacheHit = true
			return &out, nil
		}
	}
	t.mark("cache")

	bm25, vector, semantic, total, err := r.fanOut(ctx, shaped)
	if err != nil {
		return nil, err
	}
	t.mark("subqueries")

	merged := rrfFuse(r.cfg.RRFConstant, bm25.hits, vector.hits, semantic.hits)

	// Candidates carry the full document for ranking and de-duplication.
	docs := make(map[string]azsearch.Document, len(bm25.docs)+len(vector.docs)+len(semantic.docs))
	highlights := make(map[string]map[string][]string)
	for _, src := range []subResult{bm25, vector, semantic} {
		for id, d := range src.docs {
			if _, ok := docs[id]; !ok {
				docs[id] = d
			}
		}
		for id, h := range src.highlights {
			if _, ok := highlights[id]; !ok {
				highlights[id] = h
			}
		}
	}

	candidates := make([]*rank.Candidate, 0, len(merged))
	candidateHighlights := make(map[string]map[string][]string, len(merged))
	for _, f := range merged {
		doc, ok := docs[f.id]
		if !ok {
			continue
		}
		c := candidateFromDocument(doc)
		c.Score = normalizeRRF(r.cfg.RRFConstant, activeSources(bm25, vector, semantic), f.rrfScore)
		candidates = append(candidates, c)
		if h, ok := highlights[f.id]; ok {
			candidateHighlights[c.ID] = h
		}
	}
	t.mark("fusion")

	candidates = dedupeByLocation(candidates)

	r.ranker.Rank(candidates, rank.Context{
		Intent:        string(shaped.Intent),
		CurrentFile:   opts.CurrentFile,
		WorkspaceRoot: opts.WorkspaceRoot,
		Repository:    shaped.Repository,
	})
	t.mark("rank")

	// Pagination over the ranked set.
	totalRanked := int64(len(candidates))
	if total > totalRanked {
		totalRanked = total
	}
	page := paginate(candidates, shaped.Skip, shaped.MaxResults)

	items := make([]*Item, len(page))
	for i, c := range page {
		items[i] = &Item{
			Candidate:  c,
			Rank:       i + 1,
			Highlights: sanitizeHighlights(candidateHighlights[c.ID]),
		}
	}

	resp := &Response{
		Items:             items,
		Count:             len(items),
		Total:             totalRanked,
		HasMore:           int64(shaped.Skip+len(items)) < totalRanked,
		QueryID:           uuid.NewString(),
		Intent:            string(shaped.Intent),
		Backend:           backendLabel(vector),
		SemanticUsed:      semantic.used,
		AppliedExactTerms: len(shaped.ExactTerms) > 0,
	}
	if resp.HasMore {
		resp.NextSkip = shaped.Skip + len(items)
	}
	if opts.IncludeTimings {
		resp.Timings = t.stages
	}
	if r.cfg.DebugTimings {
		slog.Debug("search pipeline timings",
			slog.String("query_id", resp.QueryID),
			slog.Any("stages_ms", t.stages))
	}

	if r.cache != nil && !opts.DisableCache {
		r.cache.Set(key, resp)
	}
	return resp, nil
}

// Explain runs the pipeline and attaches a ranking explanation per item.
func (r *Retriever) Explain(ctx context.Context, req query.Request, mode rank.ExplainMode) (*Response, []rank.Explanation, error) {
	resp, err := r.Search(ctx, req, Options{DisableCache: true})
	if err != nil {
		return nil, nil, err
	}
	explanations := make([]rank.Explanation, len(resp.Items))
	for i, item := range resp.Items {
		explanations[i] = rank.Explain(item.Candidate, mode)
	}
	return resp, explanations, nil
}

// subResult is one sub-query's outcome.
type subResult struct {
	hits       []hit
	docs       map[string]azsearch.Document
	highlights map[string]map[string][]string
	used       bool
}

// fanOut issues the BM25, vector, and semantic sub-queries in parallel.
// Failure semantics per the degradation contract: vector and semantic
// failures downgrade silently; a BM25 failure fails the search.
func (r *Retriever) fanOut(ctx context.Context, shaped *query.ShapedQuery) (bm25, vector, semantic subResult, total int64, err error) {
	fetch := shaped.Skip + shaped.MaxResults*2
	if fetch > 100 {
		fetch = 100
	}

	g, gctx := errgroup.WithContext(ctx)
	var bm25Err error

	// BM25 over the expanded rewrite for vocabulary bridging; the original
	// text stays authoritative for embeddings.
	g.Go(func() error {
		searchText := shaped.Text
		if len(shaped.Rewrites) > 1 {
			searchText = shaped.Rewrites[1]
		}
		req := &azsearch.SearchRequest{
			Search:           searchText,
			QueryType:        "simple",
			SearchMode:       "any",
			Filter:           shaped.Filter,
			Top:              fetch,
			Count:            true,
			OrderBy:          shaped.OrderBy,
			Highlight:        "content",
			HighlightPreTag:  "<em>",
			HighlightPostTag: "</em>",
		}
		res, err := r.client.Search(gctx, r.cfg.Index, req)
		if err != nil {
			bm25Err = err
			return nil // graceful handling decided after the group waits
		}
		bm25 = collectSub(res, azsearch.KeyScore)
		bm25.used = true
		total = res.Count
		return nil
	})

	// Vector sub-query, skipped in BM25-only mode or with a disabled
	// embedder. An embedding failure leaves the hits empty.
	if !shaped.BM25Only && r.embedder.State() != embed.StateDisabled {
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, shaped.Text)
			if err != nil || vec == nil {
				if err != nil {
					slog.Warn("query embedding failed, continuing BM25-only",
						slog.String("error", err.Error()))
				}
				return nil
			}
			req := &azsearch.SearchRequest{
				Filter: shaped.Filter,
				Top:    fetch,
				VectorQueries: []azsearch.VectorQuery{{
					Kind:   "vector",
					Vector: vec,
					Fields: "content_vector",
					K:      fetch,
				}},
			}
			res, err := r.client.Search(gctx, r.cfg.Index, req)
			if err != nil {
				slog.Warn("vector sub-query failed, continuing without it",
					slog.String("error", err.Error()))
				return nil
			}
			vector = collectSub(res, azsearch.KeyScore)
			vector.used = true
			return nil
		})
	}

	// Semantic sub-query: optional server-side rerank; failure is never
	// fatal and the response just reports semantic_used=false.
	if !shaped.BM25Only && r.cfg.SemanticConfiguration != "" {
		g.Go(func() error {
			req := &azsearch.SearchRequest{
				Search:                shaped.Text,
				QueryType:             "semantic",
				SemanticConfiguration: r.cfg.SemanticConfiguration,
				Filter:                shaped.Filter,
				Top:                   fetch,
				Captions:              "extractive",
			}
			res, err := r.client.Search(gctx, r.cfg.Index, req)
			if err != nil {
				slog.Debug("semantic sub-query unavailable",
					slog.String("error", err.Error()))
				return nil
			}
			semantic = collectSub(res, azsearch.KeyRerankerScore)
			semantic.used = true
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return bm25, vector, semantic, 0, waitErr
	}

	if bm25Err != nil {
		// Partial results are only allowed when BM25 succeeded.
		return bm25, vector, semantic, 0, bm25Err
	}
	return bm25, vector, semantic, total, nil
}

// collectSub converts a search response into a ranked hit list plus
// document and highlight maps.
func collectSub(res *azsearch.SearchResponse, scoreKey string) subResult {
	sub := subResult{
		docs:       make(map[string]azsearch.Document, len(res.Documents)),
		highlights: make(map[string]map[string][]string, len(res.Documents)),
	}
	for _, d := range res.Documents {
		id := d.Str("id")
		if id == "" {
			continue
		}
		score := d.Float(scoreKey)
		if score == 0 {
			score = d.Float(azsearch.KeyScore)
		}
		sub.hits = append(sub.hits, hit{id: id, score: score})
		sub.docs[id] = d

		if raw, ok := d[azsearch.KeyHighlights].(map[string]any); ok {
			fields := make(map[string][]string, len(raw))
			for field, v := range raw {
				if list, ok := v.([]any); ok {
					for _, s := range list {
						if snippet, ok := s.(string); ok {
							fields[field] = append(fields[field], snippet)
						}
					}
				}
			}
			sub.highlights[id] = fields
		}
	}
	return sub
}

// candidateFromDocument maps an index document onto a ranker candidate.
func candidateFromDocument(d azsearch.Document) *rank.Candidate {
	var modified time.Time
	if raw := d.Str("last_modified"); raw != "" {
		modified, _ = time.Parse(time.RFC3339, raw)
	}
	return &rank.Candidate{
		ID:              d.Str("id"),
		Repository:      d.Str("repository"),
		FilePath:        d.Str("file_path"),
		Language:        d.Str("language"),
		StartLine:       d.Int("start_line"),
		EndLine:         d.Int("end_line"),
		FunctionName:    d.Str("function_name"),
		ClassName:       d.Str("class_name"),
		Signature:       d.Str("signature"),
		Docstring:       d.Str("docstring"),
		Content:         d.Str("content"),
		Imports:         d.Strings("imports"),
		CalledFunctions: d.Strings("called_functions"),
		LastModified:    modified,
	}
}

// dedupeByLocation collapses candidates sharing (file, start_line), keeping
// the first (and therefore best-fused) occurrence. Candidates arrive in
// fusion order; since we dedupe before ranking, the keeper is the one with
// the higher fused score.
func dedupeByLocation(candidates []*rank.Candidate) []*rank.Candidate {
	seen := make(map[string]*rank.Candidate, len(candidates))
	out := make([]*rank.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := fmt.Sprintf("%s\x00%d", c.FilePath, c.StartLine)
		if prev, ok := seen[key]; ok {
			if c.Score > prev.Score {
				prev.Score = c.Score
			}
			continue
		}
		seen[key] = c
		out = append(out, c)
	}
	return out
}

func paginate(candidates []*rank.Candidate, skip, max int) []*rank.Candidate {
	if skip >= len(candidates) {
		return nil
	}
	end := skip + max
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[skip:end]
}

func activeSources(subs ...subResult) int {
	n := 0
	for _, s := range subs {
		if s.used {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func backendLabel(vector subResult) string {
	if vector.used {
		return "hybrid"
	}
	return "basic"
}

// htmlTag matches tags other than the highlight markers.
var htmlTag = regexp.MustCompile(`<[^>]*>`)

// sanitizeHighlights strips HTML from server-provided snippets, keeping only
// the <em> highlight markers.
func sanitizeHighlights(fields map[string][]string) map[string][]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for field, snippets := range fields {
		clean := make([]string, 0, len(snippets))
		for _, s := range snippets {
			s = htmlTag.ReplaceAllStringFunc(s, func(tag string) string {
				if tag == "<em>" || tag == "</em>" {
					return tag
				}
				return ""
			})
			clean = append(clean, s)
		}
		out[field] = clean
	}
	return out
}

// cacheKey hashes the normalized query, filter, and options into the result
// cache key, namespaced under "search:".
func (r *Retriever) cacheKey(shaped *query.ShapedQuery, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%t|%s|%s|%s",
		strings.ToLower(shaped.Text),
		shaped.Filter,
		shaped.Intent,
		shaped.MaxResults,
		shaped.Skip,
		shaped.BM25Only,
		shaped.OrderBy,
		opts.CurrentFile,
		r.cfg.Index,
	)
	return "search:" + hex.EncodeToString(h.Sum(nil))
}

// ClearCache invalidates all cached search responses. The admin tools that
// change the index call this so stale pages do not outlive the change.
func (r *Retriever) ClearCache() {
	if r.cache != nil {
		r.cache.ClearScope("search")
	}
}
