package azsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
		Retry:    &errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	return c, srv
}

func TestSearchSendsAPIKeyAndVersion(t *testing.T) {
	var gotKey, gotVersion string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		_ = json.NewEncoder(w).Encode(SearchResponse{Count: 1, Documents: []Document{{"id": "a", KeyScore: 1.5}}})
	}))

	resp, err := c.Search(context.Background(), "idx", &SearchRequest{Search: "auth", Count: true})
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, DefaultAPIVersion, gotVersion)
	assert.Equal(t, int64(1), resp.Count)
	assert.Equal(t, 1.5, resp.Documents[0].Float(KeyScore))
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))

	_, err := c.Search(context.Background(), "idx", &SearchRequest{Search: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad filter syntax"}}`))
	}))

	_, err := c.Search(context.Background(), "idx", &SearchRequest{Search: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Equal(t, int64(1), calls.Load())
	assert.Contains(t, err.Error(), "bad filter syntax")
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   errors.Kind
	}{
		{http.StatusNotFound, errors.KindNotFound},
		{http.StatusUnauthorized, errors.KindUnauthorized},
		{http.StatusForbidden, errors.KindForbidden},
		{http.StatusConflict, errors.KindConflict},
		{http.StatusTooManyRequests, errors.KindDependencyUnavailable},
		{http.StatusInternalServerError, errors.KindDependencyUnavailable},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := c.GetIndex(context.Background(), "idx")
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.kind, errors.KindOf(err), "status %d", tt.status)
	}
}

func TestIndexDocumentsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.UploadDocuments(context.Background(), "idx", []Document{{"id": "a"}})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestUploadDocumentsBatchShape(t *testing.T) {
	var got struct {
		Value []map[string]any `json:"value"`
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(IndexBatchResult{Results: []IndexActionResult{{Key: "a", Status: true}}})
	}))

	res, err := c.UploadDocuments(context.Background(), "idx", []Document{{"id": "a", "content": "x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded())

	require.Len(t, got.Value, 1)
	assert.Equal(t, "mergeOrUpload", got.Value[0]["@search.action"])
	assert.Equal(t, "a", got.Value[0]["id"])
}

func TestSharedPoolReturnsSameClient(t *testing.T) {
	ResetPool()
	cfg := Config{Endpoint: "https://example.search.windows.net", APIKey: "k"}

	a, err := Shared(cfg, "idx")
	require.NoError(t, err)
	b, err := Shared(cfg, "idx")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := Shared(cfg, "other-idx")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}
