package pipeline

import (
	"time"

	"github.com/henryperkins/mcprag/internal/rank"
)

// Item is one ranked search result.
type Item struct {
	*rank.Candidate

	// Rank is the 1-indexed position in the response.
	Rank int `json:"rank"`
	// Highlights maps field name to highlighted snippets, HTML-sanitized.
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Response is a complete search result set.
type Response struct {
	Items    []*Item `json:"items"`
	Count    int     `json:"count"`
	Total    int64   `json:"total"`
	HasMore  bool    `json:"has_more"`
	NextSkip int     `json:"next_skip,omitempty"`

	// QueryID correlates feedback events with this response.
	QueryID string `json:"query_id"`
	// Intent is the intent applied during ranking.
	Intent string `json:"intent"`
	// Backend is "hybrid" when vectors contributed, "basic" for BM25-only.
	Backend string `json:"backend"`
	// SemanticUsed reports whether the semantic ranker contributed.
	SemanticUsed bool `json:"semantic_used"`
	// AppliedExactTerms reports whether an exact-term filter was in effect.
	AppliedExactTerms bool `json:"applied_exact_terms"`
	// CacheHit is true when the response came from the result cache.
	CacheHit bool `json:"cache_hit,omitempty"`
	// Timings per pipeline stage, in milliseconds, when requested.
	Timings map[string]int64 `json:"timings,omitempty"`
}

// Options tune one search invocation beyond the shaped query.
type Options struct {
	// DisableCache bypasses the result cache for this call.
	DisableCache bool
	// IncludeTimings attaches per-stage timings to the response.
	IncludeTimings bool
	// CurrentFile and WorkspaceRoot feed the contextual ranker.
	CurrentFile   string
	WorkspaceRoot string
}

// timer accumulates stage durations.
type timer struct {
	start  time.Time
	stages map[string]int64
}

func newTimer() *timer {
	return &timer{start: time.Now(), stages: make(map[string]int64)}
}

func (t *timer) mark(stage string) {
	now := time.Now()
	t.stages[stage] = now.Sub(t.start).Milliseconds()
	t.start = now
}
