// Package search implements the Search-Tool Registry (spec.md §4.8): a
// set of named external search providers the Similarity Discoverer
// consults in unknown-mode to find authoritative sources for a company
// name, each implementing the same Provider contract so the Registry can
// fan a query out to all of them and merge the results.
package search

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Provider is the external search provider contract of spec.md §4.8:
// search(query, params) → list<{title, url, snippet, score, ...}>.
type Provider interface {
	// Search performs a search with configuration.
	Search(ctx context.Context, query string, config Config) ([]Result, error)

	// GetName returns the name of the search provider.
	GetName() string
}

// Config holds configuration for search requests.
type Config struct {
	MaxResults int           // Maximum number of results to return
	SinceTime  time.Duration // Only return results newer than this duration
	Language   string        // Language preference (e.g., "en", "es")
}

// Result represents a unified search result — a candidate "authoritative
// source" for the company name a Search-Tool Registry query was run for.
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Domain      string    `json:"domain"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Source      string    `json:"source"` // Provider-specific source identifier
	Rank        int       `json:"rank"`   // Position in search results
	// Confidence is the provider's own confidence that this result is
	// relevant, in (0,1]. Providers that expose no native relevance
	// signal derive it from Rank via rankConfidence; the Registry uses a
	// non-zero value as given and derives it from Rank itself only when a
	// provider leaves it zero.
	Confidence float64 `json:"confidence"`
}

// rankConfidence derives a per-result confidence in (0,1] from a
// provider's own result ordering, for providers whose API surfaces no
// explicit relevance score (Google CSE, SerpAPI's organic results,
// DuckDuckGo's scraped HTML all fall in this category).
func rankConfidence(rank int) float64 {
	if rank <= 0 {
		return 0.5
	}
	c := 1.0 / float64(rank)
	if c > 0.95 {
		c = 0.95
	}
	if c < 0.05 {
		c = 0.05
	}
	return c
}

// min returns the minimum of two integers.
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// extractDomain extracts the host from a URL, minus a leading "www."
// (other subdomains are kept), shared by
// every provider that has to turn a result link into Result.Domain.
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
