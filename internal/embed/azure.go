package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/henryperkins/mcprag/internal/errors"
)

// Defaults for the Azure OpenAI-compatible embeddings endpoint.
const (
	DefaultBatchSize  = 16
	DefaultTimeout    = 15 * time.Second
	DefaultDimensions = 3072

	// maxInputTokens bounds one embedding input. The provider rejects
	// longer texts, so they are truncated token-aware before sending.
	maxInputTokens = 8000
)

// AzureConfig configures the AzureEmbedder.
type AzureConfig struct {
	// Endpoint is the full embeddings URL, e.g.
	// https://res.openai.azure.com/openai/deployments/embed/embeddings?api-version=2024-02-01
	// or any OpenAI-compatible /v1/embeddings endpoint.
	Endpoint string
	// APIKey authenticates requests (api-key header).
	APIKey string
	// Model is the model or deployment name sent in the request body.
	Model string
	// Dimensions is the expected vector dimensionality.
	Dimensions int
	// BatchSize is the number of texts per request.
	BatchSize int
	// Timeout bounds one embedding request.
	Timeout time.Duration
	// MaxRetries for transient failures within one batch.
	MaxRetries int
}

// AzureEmbedder calls an Azure OpenAI-compatible embeddings endpoint.
// Initialization is lazy: the first call transitions the provider to
// enabled or disabled, and disabled is terminal.
type AzureEmbedder struct {
	config AzureConfig
	client *http.Client

	mu    sync.Mutex
	state State

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

var _ Embedder = (*AzureEmbedder)(nil)

// NewAzureEmbedder creates the embedder. No network call is made here; the
// first Embed/EmbedBatch decides the lifecycle state.
func NewAzureEmbedder(cfg AzureConfig) *AzureEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	return &AzureEmbedder{
		config: cfg,
		client: &http.Client{Transport: transport},
		state:  StateUninitialized,
	}
}

// Dimensions returns the configured vector dimensionality.
func (e *AzureEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the configured model name.
func (e *AzureEmbedder) ModelName() string { return e.config.Model }

// State reports the lifecycle state.
func (e *AzureEmbedder) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Embed returns the vector for a single text, or nil when disabled.
func (e *AzureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in configured-size batches, preserving input
// order. A batch that fails after retries contributes nil vectors and the
// call continues; only a completely unusable provider returns an error.
func (e *AzureEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !e.ensureEnabled() {
		return make([][]float32, len(texts)), nil
	}

	out := make([][]float32, len(texts))
	failed := 0

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = e.truncate(t)
		}

		vecs, err := e.embedOnce(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return out, errors.Wrap(errors.KindTimeout, "embedding cancelled", ctx.Err())
			}
			slog.Warn("embedding batch failed, continuing without vectors",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
			failed += len(batch)
			continue
		}
		for i, v := range vecs {
			out[start+i] = v
		}
	}

	if failed > 0 {
		slog.Info("embedding batch completed with gaps",
			slog.Int("requested", len(texts)),
			slog.Int("missing", failed))
	}
	return out, nil
}

// ensureEnabled performs the one-time lazy state transition. Incomplete
// configuration disables the provider permanently.
func (e *AzureEmbedder) ensureEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateEnabled:
		return true
	case StateDisabled:
		return false
	}

	if e.config.Endpoint == "" || e.config.APIKey == "" || e.config.Model == "" {
		slog.Warn("embedding provider disabled: incomplete configuration",
			slog.Bool("endpoint_set", e.config.Endpoint != ""),
			slog.Bool("api_key_set", e.config.APIKey != ""),
			slog.Bool("model_set", e.config.Model != ""))
		e.state = StateDisabled
		return false
	}

	e.state = StateEnabled
	return true
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// embedOnce sends one batch with internal retries for transient failures.
func (e *AzureEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	retryCfg := errors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	var vecs [][]float32
	err := errors.Retry(ctx, retryCfg, func() error {
		v, err := e.call(ctx, batch)
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})
	return vecs, err
}

func (e *AzureEmbedder) call(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{
		Input:      batch,
		Model:      e.config.Model,
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "encode embedding request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindDependencyUnavailable, "embedding provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		kind := errors.KindValidation
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = errors.KindDependencyUnavailable
		}
		return nil, errors.Newf(kind, "embedding provider status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(errors.KindDependencyUnavailable, "decode embedding response", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, errors.Newf(errors.KindDependencyUnavailable,
			"embedding provider returned %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	// The provider indexes each vector; order by index so vector i maps
	// back to input i regardless of response ordering.
	out := make([][]float32, len(batch))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.Newf(errors.KindDependencyUnavailable, "embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.config.Dimensions {
			return nil, errors.Newf(errors.KindDependencyUnavailable,
				"embedding dimension %d, expected %d", len(d.Embedding), e.config.Dimensions)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// truncate bounds one input to the provider's token limit. Token counting
// uses cl100k_base; if the encoding is unavailable a byte heuristic is used.
func (e *AzureEmbedder) truncate(text string) string {
	e.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Debug("tiktoken unavailable, using byte heuristic", slog.String("error", err.Error()))
			return
		}
		e.enc = enc
	})

	if e.enc == nil {
		// ~4 bytes per token on average for code.
		const maxBytes = maxInputTokens * 4
		if len(text) > maxBytes {
			return text[:maxBytes]
		}
		return text
	}

	tokens := e.enc.Encode(text, nil, nil)
	if len(tokens) <= maxInputTokens {
		return text
	}
	return e.enc.Decode(tokens[:maxInputTokens])
}

// FromConfig builds an Embedder from the service configuration. Unknown or
// disabled providers yield a Disabled embedder rather than an error so the
// service starts BM25-only.
func FromConfig(provider, endpoint, apiKey, model string, dims, batchSize int, timeout time.Duration) Embedder {
	switch provider {
	case "azure-openai", "openai":
		return NewAzureEmbedder(AzureConfig{
			Endpoint:   endpoint,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
			BatchSize:  batchSize,
			Timeout:    timeout,
		})
	case "", "none":
		return &Disabled{Model: model, Dims: dims}
	default:
		slog.Warn("unknown embedding provider, vector search disabled",
			slog.String("provider", provider))
		return &Disabled{Model: model, Dims: dims}
	}
}

// ContextualText composes the text actually embedded for a chunk: the file
// path and repository prime the model with location context.
func ContextualText(repository, filePath, content string) string {
	if repository == "" && filePath == "" {
		return content
	}
	return fmt.Sprintf("// repository: %s\n// file: %s\n%s", repository, filePath, content)
}
