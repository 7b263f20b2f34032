package azsearch

import (
	"context"
	"net/http"
	"net/url"
)

// ListIndexes returns all index definitions on the service.
func (c *Client) ListIndexes(ctx context.Context) ([]Index, error) {
	var out struct {
		Value []Index `json:"value"`
	}
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexes",
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetIndex fetches a single index definition.
func (c *Client) GetIndex(ctx context.Context, name string) (*Index, error) {
	var out Index
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexes/" + url.PathEscape(name),
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateIndex upserts an index definition.
func (c *Client) CreateOrUpdateIndex(ctx context.Context, idx *Index) (*Index, error) {
	var out Index
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       "/indexes/" + url.PathEscape(idx.Name),
		body:       idx,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteIndex removes an index and all its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/indexes/" + url.PathEscape(name),
		idempotent: true,
	}, nil)
}

// GetIndexStats returns document count and storage size.
func (c *Client) GetIndexStats(ctx context.Context, name string) (*IndexStats, error) {
	var out IndexStats
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/indexes/" + url.PathEscape(name) + "/stats",
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateDataSource upserts an indexer data source.
func (c *Client) CreateOrUpdateDataSource(ctx context.Context, ds *DataSource) (*DataSource, error) {
	var out DataSource
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       "/datasources/" + url.PathEscape(ds.Name),
		body:       ds,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDataSource fetches a data source definition.
func (c *Client) GetDataSource(ctx context.Context, name string) (*DataSource, error) {
	var out DataSource
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/datasources/" + url.PathEscape(name),
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDataSource removes a data source definition.
func (c *Client) DeleteDataSource(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/datasources/" + url.PathEscape(name),
		idempotent: true,
	}, nil)
}

// CreateOrUpdateSkillset upserts a skillset.
func (c *Client) CreateOrUpdateSkillset(ctx context.Context, ss *Skillset) (*Skillset, error) {
	var out Skillset
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       "/skillsets/" + url.PathEscape(ss.Name),
		body:       ss,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSkillset fetches a skillset definition.
func (c *Client) GetSkillset(ctx context.Context, name string) (*Skillset, error) {
	var out Skillset
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/skillsets/" + url.PathEscape(name),
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSkillset removes a skillset definition.
func (c *Client) DeleteSkillset(ctx context.Context, name string) error {
	return c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/skillsets/" + url.PathEscape(name),
		idempotent: true,
	}, nil)
}
