package azsearch

import (
	"context"
	"net/http"
	"net/url"
)

// Search executes a search request against the named index.
// Read-only, so transient failures are retried.
func (c *Client) Search(ctx context.Context, index string, req *SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/indexes/" + url.PathEscape(index) + "/docs/search",
		body:       req,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexDocuments submits a document batch (upload/merge/delete actions).
// Not retried as a whole: callers inspect per-action results and resubmit
// only the failures.
func (c *Client) IndexDocuments(ctx context.Context, index string, batch IndexBatch) (*IndexBatchResult, error) {
	var out IndexBatchResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/indexes/" + url.PathEscape(index) + "/docs/index",
		body:   batch,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocuments is shorthand for a mergeOrUpload batch.
func (c *Client) UploadDocuments(ctx context.Context, index string, docs []Document) (*IndexBatchResult, error) {
	batch := IndexBatch{Actions: make([]IndexAction, len(docs))}
	for i, d := range docs {
		batch.Actions[i] = IndexAction{ActionType: "mergeOrUpload", Document: d}
	}
	return c.IndexDocuments(ctx, index, batch)
}

// MergeDocuments is shorthand for a merge batch (partial updates).
func (c *Client) MergeDocuments(ctx context.Context, index string, docs []Document) (*IndexBatchResult, error) {
	batch := IndexBatch{Actions: make([]IndexAction, len(docs))}
	for i, d := range docs {
		batch.Actions[i] = IndexAction{ActionType: "merge", Document: d}
	}
	return c.IndexDocuments(ctx, index, batch)
}

// DeleteDocuments removes documents by key.
func (c *Client) DeleteDocuments(ctx context.Context, index, keyField string, keys []string) (*IndexBatchResult, error) {
	batch := IndexBatch{Actions: make([]IndexAction, len(keys))}
	for i, k := range keys {
		batch.Actions[i] = IndexAction{
			ActionType: "delete",
			Document:   Document{keyField: k},
		}
	}
	return c.IndexDocuments(ctx, index, batch)
}

// CountDocuments returns the total document count of an index.
func (c *Client) CountDocuments(ctx context.Context, index string) (int64, error) {
	// The $count endpoint returns a bare number.
	var out int64
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexes/" + url.PathEscape(index) + "/docs/$count",
		idempotent: true,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out, nil
}

// LookupDocument fetches a single document by key.
func (c *Client) LookupDocument(ctx context.Context, index, key string) (Document, error) {
	var out Document
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexes/" + url.PathEscape(index) + "/docs/" + url.PathEscape(key),
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
