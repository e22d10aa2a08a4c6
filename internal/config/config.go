// Package config loads the configuration surface spec.md §6 says is
// "passed to the core by external layers": concurrency caps, deadlines,
// limits, TTLs, model identifiers and their cost rates, similarity
// thresholds, and search provider credentials. Grounded on the teacher's
// internal/config/config.go (viper + godotenv layering, the
// bindEnvKeys/postProcessConfig/validateConfig shape), trimmed to the
// sections SPEC_FULL.md's components actually consume — the teacher's
// Server/CORS/RateLimit/TTS/Messaging/Email/Feeds/Visual/Themes/
// Observability sections have no SPEC_FULL.md analog (configuration
// loading and the HTTP/CLI layer are themselves out of scope per
// spec.md §1; what survives here is only what cmd/theodore's composition
// root needs to construct the core's collaborators).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the composition root needs to build the
// research pipeline's collaborators.
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Database   Database   `mapstructure:"database"`
	Search     Search     `mapstructure:"search"`
	Cache      Cache      `mapstructure:"cache"`
	Research   Research   `mapstructure:"research"`
	Similarity Similarity `mapstructure:"similarity"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// AI holds the LLM provider contract's configuration (spec.md §6: "at
// least one chat model and one embedding model must be configured").
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig configures the Gemini-backed Provider.
type GeminiConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimensions int32   `mapstructure:"embedding_dimensions"`
	Timeout             string  `mapstructure:"timeout"`
	MaxRetries          int     `mapstructure:"max_retries"`
	RetryBackoff        string  `mapstructure:"retry_backoff"`
	Temperature         float32 `mapstructure:"temperature"`
}

// Database holds the two persistent stores' connection configuration: the
// document store (Postgres) and the Vector Store Gateway (Qdrant).
type Database struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
}

// PostgresConfig configures the document store (spec.md §6: "one
// document per company id ... schemaless JSON").
type PostgresConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	MaxConnections   int    `mapstructure:"max_connections"`
	IdleConnections  int    `mapstructure:"idle_connections"`
}

// QdrantConfig configures the Vector Store Gateway.
type QdrantConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	APIKey         string `mapstructure:"api_key"`
	CollectionName string `mapstructure:"collection_name"`
	Dimension      int    `mapstructure:"dimension"`
}

// Search holds Search-Tool Registry configuration (spec.md §4.8).
type Search struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	MaxResults      int             `mapstructure:"max_results"`
	Timeout         string          `mapstructure:"timeout"`
	Language        string          `mapstructure:"language"`
	CacheTTL        string          `mapstructure:"cache_ttl_s"`
	Providers       SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for every registered provider.
type SearchProviders struct {
	Google     GoogleSearchConfig `mapstructure:"google"`
	SerpAPI    SerpAPIConfig      `mapstructure:"serpapi"`
	DuckDuckGo DuckDuckGoConfig   `mapstructure:"duckduckgo"`
}

// GoogleSearchConfig holds Google Custom Search configuration.
type GoogleSearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
}

// SerpAPIConfig holds SerpAPI configuration.
type SerpAPIConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DuckDuckGoConfig holds DuckDuckGo configuration.
type DuckDuckGoConfig struct {
	RateLimit string `mapstructure:"rate_limit"`
}

// Cache holds the cache directory setting. The search-result cache TTL is
// not part of Cache; it is Search.CacheTTL.
type Cache struct {
	Directory string `mapstructure:"directory"`
}

// Research holds the Research Orchestrator's concurrency caps, deadlines
// and limits (spec.md §6's "Configuration surface").
type Research struct {
	MaxConcurrentJobs  int    `mapstructure:"max_concurrent_jobs"`
	FetcherParallelism int    `mapstructure:"fetcher_parallelism"`
	AggregatorShards   int    `mapstructure:"aggregator_shards"`
	FetchTimeout       string `mapstructure:"fetch_timeout_s"`
	LLMTimeout         string `mapstructure:"llm_timeout_s"`
	EmbeddingTimeout   string `mapstructure:"embedding_timeout_s"`
	VectorOpTimeout    string `mapstructure:"vector_op_timeout_s"`
	JobDeadline        string `mapstructure:"job_deadline_s"`
	MaxCandidates      int    `mapstructure:"max_candidates"`
	SelectorMaxPages   int    `mapstructure:"selector_max_pages"`
	PerPageChars       int    `mapstructure:"per_page_chars"`
	AggregateChars     int    `mapstructure:"aggregate_chars"`
	StalenessDays      int    `mapstructure:"research_staleness_days"`
}

// Similarity holds the Similarity Discoverer's fan-out width and vote
// threshold (spec.md §4.6's defaults).
type Similarity struct {
	VectorTopK        int     `mapstructure:"vector_top_k"`
	LLMCandidateCount int     `mapstructure:"llm_candidate_count"`
	ResearchBudget    int     `mapstructure:"research_budget"`
	VoteThreshold     float64 `mapstructure:"vote_threshold"`
}

// Logging holds logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var globalConfig *Config

// Load loads configuration from (in ascending priority) built-in
// defaults, an optional config file, a .env file, and the process
// environment. The result is cached; subsequent calls return it without
// re-reading.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".theodore")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(cfg); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the process-wide configuration, loading it with no
// explicit config file if it has not been loaded yet.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration, for tests that load
// distinct configurations across cases.
func Reset() {
	globalConfig = nil
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".theodore-cache")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.embedding_dimensions", 1536)
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_retries", 3)
	viper.SetDefault("ai.gemini.retry_backoff", "500ms")
	viper.SetDefault("ai.gemini.temperature", 0.3)

	viper.SetDefault("database.postgres.max_connections", 25)
	viper.SetDefault("database.postgres.idle_connections", 5)
	viper.SetDefault("database.qdrant.host", "localhost")
	viper.SetDefault("database.qdrant.port", 6334)
	viper.SetDefault("database.qdrant.collection_name", "companies")
	viper.SetDefault("database.qdrant.dimension", 1536)

	viper.SetDefault("search.default_provider", "duckduckgo")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.language", "en")
	viper.SetDefault("search.cache_ttl_s", "30m")
	viper.SetDefault("search.providers.duckduckgo.rate_limit", "1s")

	viper.SetDefault("cache.directory", ".theodore-cache")

	viper.SetDefault("research.max_concurrent_jobs", 3)
	viper.SetDefault("research.fetcher_parallelism", 10)
	viper.SetDefault("research.aggregator_shards", 4)
	viper.SetDefault("research.fetch_timeout_s", "15s")
	viper.SetDefault("research.llm_timeout_s", "60s")
	viper.SetDefault("research.embedding_timeout_s", "30s")
	viper.SetDefault("research.vector_op_timeout_s", "10s")
	viper.SetDefault("research.job_deadline_s", "8m")
	viper.SetDefault("research.max_candidates", 500)
	viper.SetDefault("research.selector_max_pages", 10)
	viper.SetDefault("research.per_page_chars", 10000)
	viper.SetDefault("research.aggregate_chars", 500000)
	viper.SetDefault("research.research_staleness_days", 30)

	viper.SetDefault("similarity.vector_top_k", 20)
	viper.SetDefault("similarity.llm_candidate_count", 10)
	viper.SetDefault("similarity.research_budget", 5)
	viper.SetDefault("similarity.vote_threshold", 0.70)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// bindEnvironmentVariables wires the several historical env var names
// each credential has accrued, preferring the first one set.
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.postgres.connection_string", []string{
		"DATABASE_URL",
		"POSTGRES_CONNECTION_STRING",
	})

	bindEnvKeys("database.qdrant.api_key", []string{
		"QDRANT_API_KEY",
	})

	bindEnvKeys("search.providers.google.api_key", []string{
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
		"GOOGLE_CSE_API_KEY",
		"GOOGLE_SEARCH_API_KEY",
	})
	bindEnvKeys("search.providers.google.search_id", []string{
		"GOOGLE_CUSTOM_SEARCH_ID",
		"GOOGLE_CSE_ID",
		"GOOGLE_SEARCH_ENGINE_ID",
	})
	bindEnvKeys("search.providers.serpapi.api_key", []string{
		"SERPAPI_API_KEY",
		"SERPAPI_KEY",
	})

	bindEnvKeys("app.debug", []string{"DEBUG", "THEODORE_DEBUG"})
	bindEnvKeys("search.default_provider", []string{"SEARCH_PROVIDER", "DEFAULT_SEARCH_PROVIDER"})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(cfg *Config) error {
	if cfg.Cache.Directory != "" {
		cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	}
	if cfg.App.DataDir != "" {
		cfg.App.DataDir = expandPath(cfg.App.DataDir)
	}

	durations := map[string]string{
		"ai.gemini.timeout":          cfg.AI.Gemini.Timeout,
		"ai.gemini.retry_backoff":    cfg.AI.Gemini.RetryBackoff,
		"search.timeout":             cfg.Search.Timeout,
		"search.cache_ttl_s":         cfg.Search.CacheTTL,
		"research.fetch_timeout_s":   cfg.Research.FetchTimeout,
		"research.llm_timeout_s":     cfg.Research.LLMTimeout,
		"research.embedding_timeout_s": cfg.Research.EmbeddingTimeout,
		"research.vector_op_timeout_s": cfg.Research.VectorOpTimeout,
		"research.job_deadline_s":    cfg.Research.JobDeadline,
	}
	for key, d := range durations {
		if d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, d)
			}
		}
	}
	return nil
}

func validateConfig(cfg *Config) error {
	var errs []string

	if cfg.AI.Gemini.APIKey == "" {
		errs = append(errs, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.")
	}

	switch cfg.Search.DefaultProvider {
	case "google":
		if cfg.Search.Providers.Google.APIKey == "" || cfg.Search.Providers.Google.SearchID == "" {
			errs = append(errs, "Google Custom Search requires both API key and Search ID. Set GOOGLE_CUSTOM_SEARCH_API_KEY and GOOGLE_CUSTOM_SEARCH_ID")
		}
	case "serpapi":
		if cfg.Search.Providers.SerpAPI.APIKey == "" {
			errs = append(errs, "SerpAPI requires an API key. Set SERPAPI_API_KEY")
		}
	case "duckduckgo", "mock", "":
		// no credential required
	default:
		errs = append(errs, fmt.Sprintf("unknown search provider: %s (supported: google, serpapi, duckduckgo, mock)", cfg.Search.DefaultProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Duration parses one of Research's string-typed durations, defaulting to
// fallback on an empty or unparseable value (postProcessConfig already
// rejects unparseable non-empty durations, so this only ever applies the
// fallback for an empty string).
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// HasValidGoogleSearch reports whether Google Custom Search is fully
// configured (both an API key and a search engine id).
func HasValidGoogleSearch() bool {
	g := Get().Search.Providers.Google
	return g.APIKey != "" && g.SearchID != ""
}

// HasValidSerpAPI reports whether SerpAPI is configured.
func HasValidSerpAPI() bool {
	return Get().Search.Providers.SerpAPI.APIKey != ""
}
