package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"briefly/internal/aggregator"
	"briefly/internal/config"
	"briefly/internal/cost"
	"briefly/internal/discovery"
	"briefly/internal/fetch"
	"briefly/internal/llm"
	"briefly/internal/logger"
	"briefly/internal/orchestrator"
	"briefly/internal/persistence"
	"briefly/internal/progress"
	"briefly/internal/search"
	"briefly/internal/selector"
	"briefly/internal/similarity"
	"briefly/internal/vectorstore"
)

// app is the composition root: every collaborator the Control API (spec.md
// §6) needs is constructed exactly once here and injected into the
// Orchestrator and Similarity Discoverer, per Design Notes §9's "explicit
// container" guidance — no package-level singletons, so every cobra
// command shares one app built from one loaded Config.
type app struct {
	cfg      *config.Config
	llm      *llm.RetryingProvider
	orch     *orchestrator.Orchestrator
	sim      *similarity.Discoverer
	docs     *persistence.PostgresDB
	bus      *progress.Bus
}

// buildApp wires every pipeline component from cfg, grounded on the
// teacher's cmd/handlers functions that each open their own store/LLM
// client inline (e.g. handleTopicResearch's
// store.NewStore/llm.NewClient/services.NewResearchService sequence),
// generalized here into one shared composition instead of one per
// command invocation.
func buildApp(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	provider, err := llm.NewGeminiProvider(cfg.AI.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	pricing := cost.PricingTable[cfg.AI.Gemini.Model]
	retrying := llm.NewRetryingProvider(provider, cfg.AI.Gemini.MaxRetries,
		config.Duration(cfg.AI.Gemini.RetryBackoff, 500*time.Millisecond),
		llm.Pricing{InputCostPer1MTokens: pricing.InputCostPer1MTokens, OutputCostPer1MTokens: pricing.OutputCostPer1MTokens})

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Database.Qdrant.Host,
		Port:   cfg.Database.Qdrant.Port,
		APIKey: cfg.Database.Qdrant.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	vectors, err := vectorstore.NewQdrantStore(ctx, qdrantClient, cfg.Database.Qdrant.CollectionName, cfg.Database.Qdrant.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector collection: %w", err)
	}

	docs, err := persistence.NewPostgresDB(cfg.Database.Postgres.ConnectionString,
		cfg.Database.Postgres.MaxConnections, cfg.Database.Postgres.IdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := persistence.NewMigrationManager(docs).Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run document store migrations: %w", err)
	}

	disc := discovery.NewDiscoverer(discovery.Options{Cap: cfg.Research.MaxCandidates})
	sel := selector.NewSelector(retrying, selector.Options{Max: cfg.Research.SelectorMaxPages})
	fet := fetch.NewFetcher(fetch.Options{
		Timeout:     config.Duration(cfg.Research.FetchTimeout, fetch.DefaultTimeout),
		Parallelism: cfg.Research.FetcherParallelism,
		PageCharCap: cfg.Research.PerPageChars,
	})
	agg := aggregator.NewAggregator(retrying, aggregator.Options{
		AggregateCharCap: cfg.Research.AggregateChars,
		ShardCount:       cfg.Research.AggregatorShards,
	})

	bus := progress.NewBus()

	orch := orchestrator.New(orchestrator.Deps{
		Discoverer: disc,
		Selector:   sel,
		Fetcher:    fet,
		Aggregator: agg,
		Embedder:   retrying,
		Vectors:    vectors,
		Documents:  docs,
		Bus:        bus,
	}, orchestrator.Options{
		MaxConcurrentJobs: cfg.Research.MaxConcurrentJobs,
		JobDeadline:       config.Duration(cfg.Research.JobDeadline, 8*time.Minute),
		StalenessTTL:      time.Duration(cfg.Research.StalenessDays) * 24 * time.Hour,
		EmbeddingModel:    cfg.AI.Gemini.EmbeddingModel,
	})

	registry := buildSearchRegistry(cfg)
	sim := similarity.New(similarity.Deps{
		Vectors:    vectors,
		LLM:        retrying,
		Researcher: orch,
		Search:     registry,
	}, similarity.Options{
		VectorTopK:        cfg.Similarity.VectorTopK,
		LLMCandidateCount: cfg.Similarity.LLMCandidateCount,
		ResearchBudget:    cfg.Similarity.ResearchBudget,
		VoteThreshold:     cfg.Similarity.VoteThreshold,
	})

	return &app{cfg: cfg, llm: retrying, orch: orch, sim: sim, docs: docs, bus: bus}, nil
}

// buildSearchRegistry registers the Search-Tool Registry's providers the
// way the teacher's createSearchProvider in cmd/handlers/research.go
// chose one provider: prefer Google Custom Search, then SerpAPI, and
// always register DuckDuckGo, since the Registry (unlike the teacher's
// single-provider choice) fans out to every registered provider and
// aggregates, rather than picking one. A provider whose credentials fail
// to construct a client is logged and skipped rather than failing
// startup — the Registry only requires at least one working provider.
func buildSearchRegistry(cfg *config.Config) *search.Registry {
	registry := search.NewRegistry()
	if config.HasValidGoogleSearch() {
		google, err := search.NewGoogleProvider(cfg.Search.Providers.Google.APIKey, cfg.Search.Providers.Google.SearchID)
		if err != nil {
			logger.Warn("skipping Google Custom Search provider", "error", err)
		} else {
			registry.Register("google", google)
		}
	}
	if config.HasValidSerpAPI() {
		registry.Register("serpapi", search.NewSerpAPIProvider(cfg.Search.Providers.SerpAPI.APIKey))
	}
	registry.Register("duckduckgo", search.NewDuckDuckGoProvider())
	return registry
}

func (a *app) Close() {
	if a.docs != nil {
		_ = a.docs.Close()
	}
}
