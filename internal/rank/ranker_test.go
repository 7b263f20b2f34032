package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func newTestRanker(snapshot *WeightsSnapshot) *Ranker {
	return NewRanker(StaticSnapshot{Snapshot: snapshot}, Config{
		FreshnessHalfLife: 30 * 24 * time.Hour,
		Now:               func() time.Time { return fixedNow },
	})
}

func TestRankSortsByRelevanceWithIDTieBreak(t *testing.T) {
	r := newTestRanker(nil)
	candidates := []*Candidate{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}

	r.Rank(candidates, Context{})

	assert.Equal(t, "c", candidates[0].ID)
	assert.Equal(t, "a", candidates[1].ID)
	assert.Equal(t, "b", candidates[2].ID)
}

func TestRelevanceStaysInUnitInterval(t *testing.T) {
	r := newTestRanker(nil)
	c := &Candidate{
		ID:           "x",
		Score:        1.0,
		FunctionName: "Handle",
		Docstring:    "does things",
		LastModified: fixedNow,
		Repository:   "repo",
		FilePath:     "pkg/a/b.go",
	}
	r.Rank([]*Candidate{c}, Context{Intent: "implement", Repository: "repo", CurrentFile: "pkg/a/c.go"})

	assert.LessOrEqual(t, c.Relevance, 1.0)
	assert.GreaterOrEqual(t, c.Relevance, 0.0)
	assert.NotEmpty(t, c.Factors)
}

func TestIntentBoostFavorsMatchingResults(t *testing.T) {
	r := newTestRanker(nil)
	impl := &Candidate{ID: "impl", Score: 0.5, FunctionName: "Parse", FilePath: "parser.go"}
	test := &Candidate{ID: "test", Score: 0.5, FunctionName: "TestParse", FilePath: "parser_test.go"}

	ranked := []*Candidate{test, impl}
	r.Rank(ranked, Context{Intent: "implement"})
	assert.Equal(t, "impl", ranked[0].ID)
	assert.Greater(t, impl.Relevance, test.Relevance)

	// Same pair under test intent flips.
	impl2 := &Candidate{ID: "impl", Score: 0.5, FunctionName: "Parse", FilePath: "parser.go"}
	test2 := &Candidate{ID: "test", Score: 0.5, FunctionName: "TestParse", FilePath: "parser_test.go", Content: "func TestParse"}
	r.Rank([]*Candidate{impl2, test2}, Context{Intent: "test"})
	assert.Greater(t, test2.Relevance, impl2.Relevance)
}

func TestContextBoosts(t *testing.T) {
	r := newTestRanker(nil)
	near := &Candidate{ID: "near", Score: 0.5, Repository: "repo", FilePath: "internal/auth/session.go"}
	far := &Candidate{ID: "far", Score: 0.5, Repository: "other", FilePath: "lib/misc.go"}

	r.Rank([]*Candidate{near, far}, Context{
		Repository:  "repo",
		CurrentFile: "internal/auth/login.go",
	})

	assert.Greater(t, near.Relevance, far.Relevance)

	var found bool
	for _, f := range near.Factors {
		if f.Name == "context" {
			found = true
			assert.Contains(t, f.Detail, "same repository")
			assert.Contains(t, f.Detail, "same directory")
		}
	}
	assert.True(t, found, "context factor must be recorded")
}

func TestAdaptiveWeightsShiftRanking(t *testing.T) {
	neutral := newTestRanker(nil)
	a := &Candidate{ID: "a", Score: 0.5, FunctionName: "A", FilePath: "a.go"}
	b := &Candidate{ID: "b", Score: 0.52, FilePath: "b.md"}
	neutral.Rank([]*Candidate{a, b}, Context{Intent: "implement"})
	baselineA := a.Relevance

	// Feedback strongly favors function matches for implement.
	boosted := newTestRanker(&WeightsSnapshot{
		Version: 2,
		Weights: map[string]float64{"implement/function_name": 2.0},
	})
	a2 := &Candidate{ID: "a", Score: 0.5, FunctionName: "A", FilePath: "a.go"}
	b2 := &Candidate{ID: "b", Score: 0.52, FilePath: "b.md"}
	boosted.Rank([]*Candidate{a2, b2}, Context{Intent: "implement"})

	assert.Greater(t, a2.Relevance, baselineA, "adaptive weight must raise the favored result")
	assert.Greater(t, a2.Relevance, b2.Relevance)
}

func TestFreshnessDecay(t *testing.T) {
	r := newTestRanker(nil)

	fresh := &Candidate{ID: "fresh", Score: 0.5, LastModified: fixedNow.Add(-24 * time.Hour)}
	stale := &Candidate{ID: "stale", Score: 0.5, LastModified: fixedNow.Add(-365 * 24 * time.Hour)}

	r.Rank([]*Candidate{fresh, stale}, Context{})
	assert.Greater(t, fresh.Relevance, stale.Relevance)
}

func TestRankDeterministic(t *testing.T) {
	snapshot := &WeightsSnapshot{Version: 1, Weights: map[string]float64{"debug/error_paths": 1.4}}

	run := func() []float64 {
		r := newTestRanker(snapshot)
		cs := []*Candidate{
			{ID: "a", Score: 0.4, Content: "if err != nil { return err }"},
			{ID: "b", Score: 0.6, FilePath: "x.go"},
			{ID: "c", Score: 0.4, Content: "raise ValueError"},
		}
		r.Rank(cs, Context{Intent: "debug"})
		out := make([]float64, len(cs))
		for i, c := range cs {
			out[i] = c.Relevance
		}
		return out
	}

	require.Equal(t, run(), run())
}

func TestExplainModes(t *testing.T) {
	r := newTestRanker(&WeightsSnapshot{Weights: map[string]float64{"implement/function_name": 1.5}})
	c := &Candidate{
		ID: "x", Score: 0.7, FunctionName: "Do", Repository: "repo",
		FilePath: "pkg/do.go", LastModified: fixedNow,
	}
	r.Rank([]*Candidate{c}, Context{Intent: "implement", Repository: "repo", CurrentFile: "pkg/main.go"})

	basic := Explain(c, ExplainBasic)
	assert.LessOrEqual(t, len(basic.Factors), 3)
	assert.NotEmpty(t, basic.Summary)

	enhanced := Explain(c, ExplainEnhanced)
	assert.GreaterOrEqual(t, len(enhanced.Factors), len(basic.Factors))

	// Factors sorted by absolute contribution.
	for i := 1; i < len(enhanced.Factors); i++ {
		assert.GreaterOrEqual(t,
			abs(enhanced.Factors[i-1].Contribution),
			abs(enhanced.Factors[i].Contribution))
	}
}
