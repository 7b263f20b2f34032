// Package azsearch is a typed client for the external search service REST
// API: indexes, documents, indexers, data sources, and skillsets. It carries
// no business logic; retries, status mapping, and connection pooling are the
// whole job.
package azsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/henryperkins/mcprag/internal/errors"
)

// DefaultAPIVersion is used when the config does not pin one.
const DefaultAPIVersion = "2024-07-01"

// Config configures a Client.
type Config struct {
	// Endpoint is the service URL, e.g. https://svc.search.windows.net.
	Endpoint string
	// APIKey is the admin or query key sent in the api-key header.
	APIKey string
	// APIVersion is the api-version query parameter.
	APIVersion string
	// Timeout bounds each request when the caller's context has no deadline.
	Timeout time.Duration
	// Retry overrides the default retry policy.
	Retry *errors.RetryConfig
}

// Client talks to one search service. Safe for concurrent use; the embedded
// http.Client pools connections.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	timeout    time.Duration
	retry      errors.RetryConfig
	breaker    *errors.CircuitBreaker
	http       *http.Client
}

// NewClient creates a search service client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.KindValidation, "search endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindValidation, "search api key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	retry := errors.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     60 * time.Second,
	}

	return &Client{
		endpoint:   trimSlash(cfg.Endpoint),
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		timeout:    cfg.Timeout,
		retry:      retry,
		breaker:    errors.NewCircuitBreaker("azsearch"),
		// No client-level timeout: per-request contexts carry deadlines so
		// callers with longer budgets (backfill) are not cut short.
		http: &http.Client{Transport: transport},
	}, nil
}

// Endpoint returns the configured service URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// request describes one REST call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// idempotent requests are retried on transient failures.
	idempotent bool
}

// do executes the request and decodes the JSON response into out (when
// non-nil). Transient failures (network, 429, 5xx) on idempotent requests
// are retried with exponential backoff; other 4xx map to structured kinds
// and surface unmodified.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if !c.breaker.Allow() {
		return errors.ErrCircuitOpen
	}

	attempt := func() error {
		callCtx := ctx
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		var bodyReader io.Reader
		if req.body != nil {
			data, err := json.Marshal(req.body)
			if err != nil {
				return errors.Wrap(errors.KindInternal, "encode request body", err)
			}
			bodyReader = bytes.NewReader(data)
		}

		q := req.query
		if q == nil {
			q = url.Values{}
		}
		q.Set("api-version", c.apiVersion)
		u := c.endpoint + req.path + "?" + q.Encode()

		httpReq, err := http.NewRequestWithContext(callCtx, req.method, u, bodyReader)
		if err != nil {
			return errors.Wrap(errors.KindInternal, "build request", err)
		}
		httpReq.Header.Set("api-key", c.apiKey)
		httpReq.Header.Set("Accept", "application/json")
		if req.body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			if callCtx.Err() != nil {
				return errors.Wrap(errors.KindTimeout, "search service call timed out", err)
			}
			return errors.Wrap(errors.KindDependencyUnavailable, "search service unreachable", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			return c.statusError(resp)
		}

		if out != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return errors.Wrap(errors.KindDependencyUnavailable, "decode search service response", err)
			}
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
		}
		return nil
	}

	var err error
	if req.idempotent {
		err = errors.Retry(ctx, c.retry, attempt)
	} else {
		err = attempt()
	}

	switch errors.KindOf(err) {
	case errors.KindDependencyUnavailable, errors.KindTimeout:
		c.breaker.RecordFailure()
	case "":
		c.breaker.RecordSuccess()
	}
	return err
}

// statusError maps an HTTP error status to a structured error. The service's
// own error message is preserved; 429 and 5xx are retryable.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var svcErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &svcErr) == nil {
		msg = svcErr.Error.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("search service returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.New(errors.KindDependencyUnavailable, msg)
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.KindNotFound, msg)
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.KindUnauthorized, msg)
	case resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.KindForbidden, msg)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return errors.New(errors.KindConflict, msg)
	default:
		return errors.New(errors.KindValidation, msg)
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func marshalDocument(d Document) ([]byte, error) {
	return json.Marshal(map[string]any(d))
}
