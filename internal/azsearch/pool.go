package azsearch

import (
	"sync"
)

// pool holds one Client per (endpoint, api_key, index) triple so the whole
// process shares connections. Index names only partition the pool; the
// Client itself is index-agnostic.
var pool = struct {
	mu      sync.Mutex
	clients map[string]*Client
}{clients: make(map[string]*Client)}

// Shared returns the process-wide client for the triple, creating it on
// first use.
func Shared(cfg Config, index string) (*Client, error) {
	key := cfg.Endpoint + "\x00" + cfg.APIKey + "\x00" + index

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if c, ok := pool.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	pool.clients[key] = c
	return c, nil
}

// ResetPool drops all pooled clients. Test helper.
func ResetPool() {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.clients = make(map[string]*Client)
}
