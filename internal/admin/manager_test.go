package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/errors"
)

// fakeService is an in-memory stand-in for the search service index API.
type fakeService struct {
	index *azsearch.Index
	docs  map[string]azsearch.Document
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/docs/search"):
			f.handleSearch(t, w, r)
		case strings.HasSuffix(r.URL.Path, "/docs/index"):
			f.handleBatch(t, w, r)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/indexes/"):
			if f.index == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(f.index)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/indexes/"):
			var idx azsearch.Index
			require.NoError(t, json.NewDecoder(r.Body).Decode(&idx))
			f.index = &idx
			_ = json.NewEncoder(w).Encode(idx)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/indexes/"):
			if f.index == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.index = nil
			f.docs = map[string]azsearch.Document{}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeService) handleSearch(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var req azsearch.SearchRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

	var out []azsearch.Document
	for _, d := range f.docs {
		if strings.Contains(req.Filter, "content_vector eq null") {
			if _, ok := d["content_vector"]; ok {
				continue
			}
			// Cursor filter: id gt 'x'.
			if idx := strings.Index(req.Filter, "id gt '"); idx >= 0 {
				after := req.Filter[idx+len("id gt '"):]
				after = after[:strings.Index(after, "'")]
				if d.Str("id") <= after {
					continue
				}
			}
		}
		out = append(out, d)
	}
	// Stable order by id.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Str("id") < out[i].Str("id") {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if req.Top > 0 && len(out) > req.Top {
		out = out[:req.Top]
	}
	_ = json.NewEncoder(w).Encode(azsearch.SearchResponse{Count: int64(len(out)), Documents: out})
}

func (f *fakeService) handleBatch(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var batch struct {
		Value []map[string]any `json:"value"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))

	var results []azsearch.IndexActionResult
	for _, action := range batch.Value {
		id, _ := action["id"].(string)
		switch action["@search.action"] {
		case "merge":
			doc := f.docs[id]
			for k, v := range action {
				if k != "@search.action" {
					doc[k] = v
				}
			}
			f.docs[id] = doc
		case "delete":
			delete(f.docs, id)
		default:
			doc := azsearch.Document{}
			for k, v := range action {
				if k != "@search.action" {
					doc[k] = v
				}
			}
			f.docs[id] = doc
		}
		results = append(results, azsearch.IndexActionResult{Key: id, Status: true, StatusCode: 200})
	}
	_ = json.NewEncoder(w).Encode(azsearch.IndexBatchResult{Results: results})
}

func newTestManager(t *testing.T, svc *fakeService, embedder embed.Embedder) *Manager {
	t.Helper()
	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)

	client, err := azsearch.NewClient(azsearch.Config{
		Endpoint: srv.URL, APIKey: "k",
		Retry: &errors.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	if embedder == nil {
		embedder = &embed.Disabled{Dims: 4}
	}
	m, err := NewManager(client, embedder, CanonicalSchema("test-index", 4), t.TempDir())
	require.NoError(t, err)
	return m
}

func TestEnsureIndexIdempotent(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	first, err := m.EnsureIndex(ctx, false)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Updated)

	// Second call with an unchanged schema is a no-op.
	second, err := m.EnsureIndex(ctx, false)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Updated)
}

func TestEnsureIndexConflictsOnDrift(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, false)
	require.NoError(t, err)

	// Simulate drift: a canonical field disappears from the live index.
	svc.index.Fields = svc.index.Fields[:len(svc.index.Fields)-1]

	_, err = m.EnsureIndex(ctx, false)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))

	res, err := m.EnsureIndex(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Updated)
}

func TestRecreateIndex(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	// Recreate with no existing index still converges to a created index.
	res, err := m.RecreateIndex(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Dropped)
	assert.True(t, res.Created)

	res, err = m.RecreateIndex(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Dropped)
	assert.True(t, res.Created)
}

func TestValidateSchema(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	m := newTestManager(t, svc, nil)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, false)
	require.NoError(t, err)

	report, err := m.ValidateSchema(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.True(t, report.HasVectorSearch)
	assert.True(t, report.HasSemanticConfig)
	assert.Empty(t, report.MissingFields)
	assert.Contains(t, report.ScoringProfiles, "freshness-boost")

	// Remove a field and validation reports it.
	var kept []azsearch.Field
	for _, f := range svc.index.Fields {
		if f.Name != "docstring" {
			kept = append(kept, f)
		}
	}
	svc.index.Fields = kept

	report, err = m.ValidateSchema(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"docstring"}, report.MissingFields)
}

// countingEmbedder is an always-enabled fake that returns deterministic
// vectors and counts its calls.
type countingEmbedder struct {
	dims  int
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, _ := c.EmbedBatch(ctx, []string{text})
	return v[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, c.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int    { return c.dims }
func (c *countingEmbedder) ModelName() string  { return "fake" }
func (c *countingEmbedder) State() embed.State { return embed.StateEnabled }

func TestBackfillEmbeddings(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		svc.docs[id] = azsearch.Document{"id": id, "content": "func " + id + "() {}", "repository": "r", "file_path": id + ".go"}
	}
	// One document already has a vector and must be skipped.
	svc.docs["z"] = azsearch.Document{"id": "z", "content": "x", "content_vector": []any{1.0, 0.0, 0.0, 0.0}}

	m := newTestManager(t, svc, &countingEmbedder{dims: 4})
	ctx := context.Background()

	res, err := m.BackfillEmbeddings(ctx, BackfillOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 5, res.Updated)
	assert.True(t, res.Complete)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, ok := svc.docs[id]["content_vector"]
		assert.True(t, ok, "doc %s must have a vector", id)
	}

	// Idempotent: a second run finds nothing to do.
	res, err = m.BackfillEmbeddings(ctx, BackfillOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)
	assert.True(t, res.Complete)
}

func TestBackfillDryRun(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{
		"a": {"id": "a", "content": "x"},
	}}
	m := newTestManager(t, svc, &countingEmbedder{dims: 4})

	res, err := m.BackfillEmbeddings(context.Background(), BackfillOptions{BatchSize: 10, DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Scanned)
	_, ok := svc.docs["a"]["content_vector"]
	assert.False(t, ok, "dry run must not write")
}

func TestBackfillDisabledEmbedder(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{}}
	m := newTestManager(t, svc, &embed.Disabled{Dims: 4})

	_, err := m.BackfillEmbeddings(context.Background(), BackfillOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))
}

func TestValidateEmbeddings(t *testing.T) {
	svc := &fakeService{docs: map[string]azsearch.Document{
		"a": {"id": "a", "content_vector": []any{1.0, 0.0, 0.0, 0.0}},
		"b": {"id": "b", "content_vector": []any{1.0, 0.0}}, // wrong dim
		"c": {"id": "c"},
	}}
	m := newTestManager(t, svc, &countingEmbedder{dims: 4})

	report, err := m.ValidateEmbeddings(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sampled)
	assert.Equal(t, 2, report.WithVectors)
	assert.Equal(t, 1, report.BadDims)
	assert.False(t, report.Valid)
	assert.InDelta(t, 0.667, report.Coverage, 0.01)
}
