package search

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"briefly/internal/logger"
)

// GoogleProvider implements Provider using Google Custom Search's REST
// API via its generated client, google.golang.org/api/customsearch/v1.
type GoogleProvider struct {
	svc       *customsearch.Service
	searchID  string
	rateLimit time.Duration
	lastCall  time.Time
}

// NewGoogleProvider creates a new Google Custom Search provider. The
// client is constructed once, up front, the same way internal/llm's
// NewGeminiProvider builds its genai.Client — a long-lived service
// object is reused across Search calls rather than rebuilt per request.
func NewGoogleProvider(apiKey, searchID string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if searchID == "" {
		return nil, ErrMissingSearchID
	}
	svc, err := customsearch.NewService(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Custom Search client: %w", err)
	}
	return &GoogleProvider{
		svc:       svc,
		searchID:  searchID,
		rateLimit: 100 * time.Millisecond, // Google CSE has generous rate limits
	}, nil
}

// GetName returns the name of this provider.
func (g *GoogleProvider) GetName() string {
	return "Google Custom Search"
}

// Search performs a search using Google Custom Search API.
func (g *GoogleProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	// Respect rate limiting
	if elapsed := time.Since(g.lastCall); elapsed < g.rateLimit {
		time.Sleep(g.rateLimit - elapsed)
	}
	g.lastCall = time.Now()

	call := g.svc.Cse.List().Context(ctx).Cx(g.searchID).Q(query).
		Num(int64(min(config.MaxResults, 10))) // Google CSE allows max 10 results per request

	if restrict := dateRestrict(config.SinceTime); restrict != "" {
		call = call.DateRestrict(restrict)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("google CSE request failed: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for i, item := range resp.Items {
		rank := i + 1
		results = append(results, Result{
			URL:        item.Link,
			Title:      item.Title,
			Snippet:    item.Snippet,
			Domain:     extractDomain(item.Link),
			Source:     "Google",
			Rank:       rank,
			Confidence: rankConfidence(rank),
		})
	}

	logger.Info("Google Custom Search completed", "query", query, "results_found", len(results))

	return results, nil
}

// dateRestrict translates a staleness window into Google CSE's
// dateRestrict query parameter (e.g. "d1", "w1", "m1", "y1").
func dateRestrict(since time.Duration) string {
	if since <= 0 {
		return ""
	}
	days := int(since.Hours() / 24)
	switch {
	case days <= 1:
		return "d1"
	case days <= 7:
		return "w1"
	case days <= 30:
		return "m1"
	case days <= 365:
		return "y1"
	default:
		return ""
	}
}
