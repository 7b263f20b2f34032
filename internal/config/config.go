// Package config loads the mcprag configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional YAML file
// named by MCPRAG_CONFIG, then MCPRAG_* environment variables. A .env file in
// the working directory is folded into the environment first. The resulting
// Config is treated as immutable for the life of the process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete mcprag configuration.
type Config struct {
	Search   SearchConfig   `yaml:"search"`
	Embed    EmbedConfig    `yaml:"embedding"`
	Cache    CacheConfig    `yaml:"cache"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Indexing IndexingConfig `yaml:"indexing"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SearchConfig configures the connection to the external search service.
type SearchConfig struct {
	// Endpoint is the search service URL, e.g. https://svc.search.windows.net.
	Endpoint string `yaml:"endpoint"`
	// AdminKey authorizes index and document mutations.
	AdminKey string `yaml:"admin_key"`
	// QueryKey authorizes read-only queries. Falls back to AdminKey if empty.
	QueryKey string `yaml:"query_key"`
	// IndexName is the default index queried by the search tools.
	IndexName string `yaml:"index_name"`
	// APIVersion is the REST API version string.
	APIVersion string `yaml:"api_version"`
	// Timeout bounds a single search call.
	Timeout time.Duration `yaml:"timeout"`
	// SemanticConfiguration names the server-side semantic configuration.
	// Empty disables semantic sub-queries.
	SemanticConfiguration string `yaml:"semantic_configuration"`
	// RRFConstant is the fusion smoothing parameter (default 60).
	RRFConstant int `yaml:"rrf_constant"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider selects the implementation: "azure-openai" or "none".
	Provider string `yaml:"provider"`
	// Model is the deployment or model name.
	Model string `yaml:"model"`
	// Dimensions is the vector dimensionality the index declares.
	Dimensions int `yaml:"dimensions"`
	// BatchSize is the number of texts embedded per request.
	BatchSize int `yaml:"batch_size"`
	// Endpoint is the provider base URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates embedding requests.
	APIKey string `yaml:"api_key"`
	// Timeout bounds a single embedding call.
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Enabled    bool          `yaml:"enabled"`
}

// ServerConfig configures the transports.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// DevMode substitutes a synthetic admin principal on the stdio transport.
	// Never enable on a remote deployment.
	DevMode bool `yaml:"dev_mode"`
}

// AuthConfig configures principal derivation.
type AuthConfig struct {
	SessionDuration    time.Duration `yaml:"session_duration"`
	RequireMFAForAdmin bool          `yaml:"require_mfa_for_admin"`
	// AdminEmails are granted the admin tier on login.
	AdminEmails []string `yaml:"admin_emails"`
	// DeveloperDomains grant the developer tier by email domain.
	DeveloperDomains []string `yaml:"developer_domains"`
	// TokenSecret signs M2M bearer tokens (HS256). Required for /auth/m2m/token.
	TokenSecret string `yaml:"token_secret"`
	// SessionStorePath enables the persistent bbolt session store when set.
	SessionStorePath string `yaml:"session_store_path"`
	// MagicLinkEndpoint is the external magic-link provider base URL.
	MagicLinkEndpoint string `yaml:"magic_link_endpoint"`
	// MagicLinkAPIKey authenticates calls to the magic-link provider.
	MagicLinkAPIKey string `yaml:"magic_link_api_key"`
	// APIKeys maps pre-provisioned keys to "name:tier" descriptors.
	APIKeys map[string]string `yaml:"api_keys"`
	// M2MClients maps client ids to secrets for the M2M grant.
	M2MClients map[string]string `yaml:"m2m_clients"`
}

// IndexingConfig configures repository indexing.
type IndexingConfig struct {
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	MaxFiles      int      `yaml:"max_files"`
	Workers       int      `yaml:"workers"`
	BatchSize     int      `yaml:"batch_size"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
}

// FeedbackConfig configures the feedback store and aggregator.
type FeedbackConfig struct {
	// Dir is where JSONL day files are written.
	Dir string `yaml:"dir"`
	// AggregateInterval is how often the weights snapshot is recomputed.
	AggregateInterval time.Duration `yaml:"aggregate_interval"`
	// WindowDays is the sliding window for CTR/outcome aggregation.
	WindowDays int `yaml:"window_days"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	DebugTimings bool   `yaml:"debug_timings"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Search: SearchConfig{
			IndexName:   "codebase-mcp-sota",
			APIVersion:  "2024-07-01",
			Timeout:     30 * time.Second,
			RRFConstant: 60,
		},
		Embed: EmbedConfig{
			Provider:   "azure-openai",
			Model:      "text-embedding-3-large",
			Dimensions: 3072,
			BatchSize:  16,
			Timeout:    15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
			Enabled:    true,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8001,
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			SessionDuration:    60 * time.Minute,
			RequireMFAForAdmin: true,
		},
		Indexing: IndexingConfig{
			MaxFileSizeMB: 2,
			MaxFiles:      50000,
			Workers:       4,
			BatchSize:     100,
		},
		Feedback: FeedbackConfig{
			Dir:               defaultFeedbackDir(),
			AggregateInterval: 5 * time.Minute,
			WindowDays:        7,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, optional YAML, and environment.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := New()

	if path := os.Getenv("MCPRAG_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MCPRAG_* environment variables onto the config.
func (c *Config) applyEnv() {
	envStr("MCPRAG_SEARCH_ENDPOINT", &c.Search.Endpoint)
	envStr("MCPRAG_SEARCH_ADMIN_KEY", &c.Search.AdminKey)
	envStr("MCPRAG_SEARCH_QUERY_KEY", &c.Search.QueryKey)
	envStr("MCPRAG_INDEX_NAME", &c.Search.IndexName)
	envStr("MCPRAG_SEARCH_API_VERSION", &c.Search.APIVersion)
	envDur("MCPRAG_SEARCH_TIMEOUT", &c.Search.Timeout)
	envStr("MCPRAG_SEMANTIC_CONFIG", &c.Search.SemanticConfiguration)
	envInt("MCPRAG_RRF_CONSTANT", &c.Search.RRFConstant)

	envStr("MCPRAG_EMBED_PROVIDER", &c.Embed.Provider)
	envStr("MCPRAG_EMBED_MODEL", &c.Embed.Model)
	envInt("MCPRAG_EMBED_DIMENSIONS", &c.Embed.Dimensions)
	envInt("MCPRAG_EMBED_BATCH_SIZE", &c.Embed.BatchSize)
	envStr("MCPRAG_EMBED_ENDPOINT", &c.Embed.Endpoint)
	envStr("MCPRAG_EMBED_API_KEY", &c.Embed.APIKey)
	envDur("MCPRAG_EMBED_TIMEOUT", &c.Embed.Timeout)

	envDur("MCPRAG_CACHE_TTL", &c.Cache.TTL)
	envInt("MCPRAG_CACHE_MAX_ENTRIES", &c.Cache.MaxEntries)
	envBool("MCPRAG_CACHE_ENABLED", &c.Cache.Enabled)

	envStr("MCPRAG_HOST", &c.Server.Host)
	envInt("MCPRAG_PORT", &c.Server.Port)
	envStr("MCPRAG_BASE_URL", &c.Server.BaseURL)
	envList("MCPRAG_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	envBool("MCPRAG_DEV_MODE", &c.Server.DevMode)

	envDur("MCPRAG_SESSION_DURATION", &c.Auth.SessionDuration)
	envBool("MCPRAG_REQUIRE_MFA_FOR_ADMIN", &c.Auth.RequireMFAForAdmin)
	envList("MCPRAG_ADMIN_EMAILS", &c.Auth.AdminEmails)
	envList("MCPRAG_DEVELOPER_DOMAINS", &c.Auth.DeveloperDomains)
	envStr("MCPRAG_TOKEN_SECRET", &c.Auth.TokenSecret)
	envStr("MCPRAG_SESSION_STORE_PATH", &c.Auth.SessionStorePath)
	envStr("MCPRAG_MAGIC_LINK_ENDPOINT", &c.Auth.MagicLinkEndpoint)
	envStr("MCPRAG_MAGIC_LINK_API_KEY", &c.Auth.MagicLinkAPIKey)

	envInt("MCPRAG_MAX_FILE_SIZE_MB", &c.Indexing.MaxFileSizeMB)
	envInt("MCPRAG_MAX_FILES", &c.Indexing.MaxFiles)
	envInt("MCPRAG_INDEX_WORKERS", &c.Indexing.Workers)
	envInt("MCPRAG_INDEX_BATCH_SIZE", &c.Indexing.BatchSize)

	envStr("MCPRAG_FEEDBACK_DIR", &c.Feedback.Dir)
	envDur("MCPRAG_FEEDBACK_INTERVAL", &c.Feedback.AggregateInterval)
	envInt("MCPRAG_FEEDBACK_WINDOW_DAYS", &c.Feedback.WindowDays)

	envStr("MCPRAG_LOG_LEVEL", &c.Logging.Level)
	envStr("MCPRAG_LOG_FORMAT", &c.Logging.Format)
	envBool("MCPRAG_DEBUG_TIMINGS", &c.Logging.DebugTimings)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures. The offending key is always named.
func (c *Config) Validate() error {
	if c.Search.Endpoint != "" && !strings.HasPrefix(c.Search.Endpoint, "http") {
		return fmt.Errorf("search.endpoint: must be an http(s) URL, got %q", c.Search.Endpoint)
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout: must be positive")
	}
	if c.Embed.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions: must be non-negative")
	}
	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size: must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries: must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers: must be positive")
	}
	if c.Feedback.WindowDays <= 0 {
		return fmt.Errorf("feedback.window_days: must be positive")
	}
	return nil
}

// SearchConfigured reports whether the external search service is reachable
// in principle (endpoint and a key are present).
func (c *Config) SearchConfigured() bool {
	return c.Search.Endpoint != "" && (c.Search.AdminKey != "" || c.Search.QueryKey != "")
}

// EmbeddingsConfigured reports whether the embedding provider has enough
// configuration to initialize.
func (c *Config) EmbeddingsConfigured() bool {
	return c.Embed.Provider != "" && c.Embed.Provider != "none" &&
		c.Embed.Endpoint != "" && c.Embed.APIKey != ""
}

func defaultFeedbackDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcprag/feedback"
	}
	return home + "/.mcprag/feedback"
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDur(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(secs) * time.Second
		}
	}
}

func envList(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
