package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, dims int, fail func(call int64) bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := calls.Add(1)
		if fail != nil && fail(call) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		// Return vectors in reverse order to prove index-based reassembly.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv, _ := embedServer(t, 4, nil)
	e := NewAzureEmbedder(AzureConfig{
		Endpoint: srv.URL, APIKey: "k", Model: "m", Dimensions: 4, BatchSize: 8,
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		require.Len(t, v, 4)
		assert.Equal(t, float32(i), v[0], "vector %d must map back to text %d", i, i)
	}
	assert.Equal(t, StateEnabled, e.State())
}

func TestIncompleteConfigDisablesPermanently(t *testing.T) {
	e := NewAzureEmbedder(AzureConfig{Model: "m", Dimensions: 4})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Nil(t, vecs[0])
	assert.Nil(t, vecs[1])
	assert.Equal(t, StateDisabled, e.State())

	// Still disabled on the next call; no panic, same deterministic result.
	v, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFailedBatchLeavesGapsButContinues(t *testing.T) {
	// Batch size 2 over 4 texts = 2 batches. First batch fails on every
	// attempt (3 calls with retries), second succeeds.
	srv, _ := embedServer(t, 4, func(call int64) bool { return call <= 3 })
	e := NewAzureEmbedder(AzureConfig{
		Endpoint: srv.URL, APIKey: "k", Model: "m", Dimensions: 4, BatchSize: 2, MaxRetries: 2,
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Nil(t, vecs[0])
	assert.Nil(t, vecs[1])
	assert.NotNil(t, vecs[2])
	assert.NotNil(t, vecs[3])
}

func TestDimensionMismatchRejected(t *testing.T) {
	srv, _ := embedServer(t, 3, nil)
	e := NewAzureEmbedder(AzureConfig{
		Endpoint: srv.URL, APIKey: "k", Model: "m", Dimensions: 4, BatchSize: 8, MaxRetries: 1,
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Nil(t, vecs[0], "mismatched vectors must be dropped, not returned")
}

func TestDisabledEmbedder(t *testing.T) {
	d := &Disabled{Model: "none", Dims: 0}
	vecs, err := d.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, StateDisabled, d.State())
}

func TestFromConfigUnknownProvider(t *testing.T) {
	e := FromConfig("mystery", "", "", "m", 4, 8, 0)
	assert.Equal(t, StateDisabled, e.State())
}
