package azsearch

import (
	"context"
	"net/http"
	"net/url"
)

// ListIndexers returns all indexer definitions.
func (c *Client) ListIndexers(ctx context.Context) ([]Indexer, error) {
	var out struct {
		Value []Indexer `json:"value"`
	}
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexers",
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetIndexer fetches a single indexer definition.
func (c *Client) GetIndexer(ctx context.Context, name string) (*Indexer, error) {
	var out Indexer
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexers/" + url.PathEscape(name),
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateIndexer upserts an indexer definition.
func (c *Client) CreateOrUpdateIndexer(ctx context.Context, ix *Indexer) (*Indexer, error) {
	var out Indexer
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       "/indexers/" + url.PathEscape(ix.Name),
		body:       ix,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteIndexer removes an indexer definition.
func (c *Client) DeleteIndexer(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/indexers/" + url.PathEscape(name),
		idempotent: true,
	}, nil)
}

// RunIndexer triggers an indexer execution. The service rejects a run while
// one is already in progress, so this is not retried.
func (c *Client) RunIndexer(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/indexers/" + url.PathEscape(name) + "/run",
	}, nil)
}

// ResetIndexer clears indexer change-tracking state, forcing it back to idle.
func (c *Client) ResetIndexer(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/indexers/" + url.PathEscape(name) + "/reset",
	}, nil)
}

// GetIndexerStatus returns the latest execution status for an indexer.
func (c *Client) GetIndexerStatus(ctx context.Context, name string) (*IndexerStatus, error) {
	var out IndexerStatus
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexers/" + url.PathEscape(name) + "/status",
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
