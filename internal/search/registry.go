// registry.go implements the Search-Tool Registry (spec.md §4.8): fan-out
// to enabled providers in parallel, noisy-or aggregation across providers
// that surface the same URL, TTL caching, and per-provider rate limiting.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"briefly/internal/urlnorm"
)

// ErrNoSearchResults is returned when every enabled provider fails or
// returns nothing.
var ErrNoSearchResults = fmt.Errorf("no search provider returned results")

// AggregatedResult is one URL's merged view across every provider that
// surfaced it.
type AggregatedResult struct {
	Result
	Providers []string
	Score     float64
}

// Registry fans a query out to every enabled Provider concurrently,
// deduplicates by normalized URL, and merges per-provider confidence with
// noisy-or: merged = 1 - Π(1 - s_i).
type Registry struct {
	providers map[string]Provider
	limiter   *slidingWindowLimiter
	cache     *ttlCache
}

// NewRegistry constructs an empty Registry. Providers are registered with
// Register.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		limiter:   newSlidingWindowLimiter(30, 0),
		cache:     newTTLCache(DefaultCacheTTL),
	}
}

// Register enables a named provider. Re-registering a name replaces it.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// SearchAll fans query out to every registered provider in parallel,
// aggregates results by normalized URL with noisy-or confidence merging,
// and returns them ranked by merged score descending. Per-provider
// failures (including rate-limit rejections) are swallowed; SearchAll
// only fails if every provider fails or returns zero results.
func (r *Registry) SearchAll(ctx context.Context, query string, config Config) ([]AggregatedResult, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoSearchResults
	}

	type providerOutcome struct {
		name    string
		results []Result
		err     error
	}

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make(chan providerOutcome, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, p Provider) {
			defer wg.Done()
			outcomes <- providerOutcome{name: name, results: r.searchOne(ctx, name, p, query, config)}
		}(name, r.providers[name])
	}
	go func() { wg.Wait(); close(outcomes) }()

	byProvider := make(map[string][]Result, len(names))
	anySucceeded := false
	for o := range outcomes {
		if o.err == nil && len(o.results) > 0 {
			anySucceeded = true
		}
		byProvider[o.name] = o.results
	}
	if !anySucceeded {
		return nil, ErrNoSearchResults
	}

	return aggregate(byProvider), nil
}

// searchOne applies the rate limiter and TTL cache around a single
// provider's Search call, returning nil (not an error) on any failure so
// the fan-out in SearchAll never blocks on one bad provider.
func (r *Registry) searchOne(ctx context.Context, name string, p Provider, query string, config Config) []Result {
	if cached, ok := r.cache.Get(name, query, config); ok {
		return cached
	}
	if !r.limiter.Allow(name) {
		return nil
	}
	results, err := p.Search(ctx, query, config)
	if err != nil {
		return nil
	}
	r.cache.Set(name, query, config, results)
	return results
}

// aggregate merges per-provider result sets keyed by normalized URL using
// noisy-or confidence: a URL corroborated by more providers, or by a
// single high-confidence provider, ranks above one weak single-provider
// hit.
func aggregate(byProvider map[string][]Result) []AggregatedResult {
	type bucket struct {
		result       Result
		providers    []string
		survivalProb float64 // Π(1 - s_i)
	}
	merged := make(map[string]*bucket)

	for _, name := range sortedProviderNames(byProvider) {
		for _, res := range byProvider[name] {
			key, err := urlnorm.Normalize(res.URL)
			if err != nil {
				key = res.URL
			}
			confidence := confidenceOf(res)
			b, ok := merged[key]
			if !ok {
				merged[key] = &bucket{result: res, providers: []string{name}, survivalProb: 1 - confidence}
				continue
			}
			b.providers = append(b.providers, name)
			b.survivalProb *= 1 - confidence
		}
	}

	out := make([]AggregatedResult, 0, len(merged))
	for _, b := range merged {
		out = append(out, AggregatedResult{
			Result:    b.result,
			Providers: b.providers,
			Score:     1 - b.survivalProb,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// confidenceOf reads the confidence the provider itself assigned to r.
// Providers populate Result.Confidence when they build their results
// (via rankConfidence or a native relevance score); a zero value means
// an older or third-party Provider left it unset, in which case rank is
// the best fallback signal available.
func confidenceOf(r Result) float64 {
	if r.Confidence > 0 {
		return r.Confidence
	}
	return rankConfidence(r.Rank)
}
