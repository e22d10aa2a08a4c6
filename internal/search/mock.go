package search

import (
	"context"
	"fmt"
	"time"
)

// MockProvider implements Provider for testing purposes. Its canned
// results model the authoritative sources the Similarity Discoverer's
// unknown-mode looks for (company homepage, a directory/news profile,
// a funding or leadership mention), not generic articles.
type MockProvider struct {
	name    string
	results []Result
}

// NewMockProvider creates a new mock search provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name: "Mock",
		results: []Result{
			{
				URL:        "https://example.com",
				Title:      "Example Corp — Official Site",
				Snippet:    "Example Corp builds workflow automation software for mid-market operations teams.",
				Domain:     "example.com",
				Source:     "Mock",
				Rank:       1,
				Confidence: 0.95,
			},
			{
				URL:        "https://crunchbase.test/organization/example-corp",
				Title:      "Example Corp - Company Profile",
				Snippet:    "Example Corp is a B2B SaaS company headquartered in Austin, TX, founded in 2018.",
				Domain:     "crunchbase.test",
				Source:     "Mock",
				Rank:       2,
				Confidence: 0.7,
			},
			{
				URL:        "https://news.test/example-corp-series-b",
				Title:      "Example Corp raises Series B",
				Snippet:    "Example Corp announced a $40M Series B led by a mock growth fund.",
				Domain:     "news.test",
				Source:     "Mock",
				Rank:       3,
				Confidence: 0.5,
			},
		},
	}
}

// GetName returns the name of this provider.
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns mock search results.
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	// Simulate some processing time
	time.Sleep(100 * time.Millisecond)

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(m.results) {
		maxResults = len(m.results)
	}

	// Create copies of results with query-specific modifications
	results := make([]Result, maxResults)
	for i := 0; i < maxResults; i++ {
		result := m.results[i]
		result.Title = fmt.Sprintf("%s (for query: %s)", result.Title, query)
		results[i] = result
	}

	return results, nil
}

// SetResults allows customization of mock results for testing.
func (m *MockProvider) SetResults(results []Result) {
	m.results = results
}

// SetName allows customization of provider name for testing.
func (m *MockProvider) SetName(name string) {
	m.name = name
}
