package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"briefly/internal/logger"
)

// DuckDuckGoProvider implements the Provider interface by scraping
// DuckDuckGo's HTML-only results endpoint (no official search API is
// free), using goquery the same way internal/discovery and
// internal/fetch parse fetched HTML rather than hand-rolled regexes.
type DuckDuckGoProvider struct {
	client    *http.Client
	userAgent string
	rateLimit time.Duration
	lastCall  time.Time
}

// NewDuckDuckGoProvider creates a new DuckDuckGo search provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		rateLimit: 2 * time.Second, // Be respectful with rate limiting
	}
}

// GetName returns the name of this provider.
func (d *DuckDuckGoProvider) GetName() string {
	return "DuckDuckGo"
}

// Search performs a search using DuckDuckGo and returns results.
func (d *DuckDuckGoProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	// Respect rate limiting
	if elapsed := time.Since(d.lastCall); elapsed < d.rateLimit {
		time.Sleep(d.rateLimit - elapsed)
	}
	d.lastCall = time.Now()

	searchURL := d.buildSearchURL(query, config)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DuckDuckGo response: %w", err)
	}

	if bodyText := doc.Find("body").Text(); strings.Contains(strings.ToLower(bodyText), "captcha") {
		logger.Debug("DuckDuckGo CAPTCHA detected", "query", query)
		return nil, fmt.Errorf("DuckDuckGo search blocked by CAPTCHA - try again later or use Google Custom Search")
	}

	results := d.parseSearchResults(doc, config.MaxResults)

	logger.Info("DuckDuckGo search completed", "query", query, "results_found", len(results))

	return results, nil
}

// buildSearchURL constructs the DuckDuckGo search URL with parameters.
func (d *DuckDuckGoProvider) buildSearchURL(query string, config Config) string {
	baseURL := "https://html.duckduckgo.com/html/"
	params := url.Values{}

	// Add time filter if specified
	if config.SinceTime > 0 {
		days := int(config.SinceTime.Hours() / 24)
		switch {
		case days <= 1:
			params.Set("df", "d") // Past day
		case days <= 7:
			params.Set("df", "w") // Past week
		case days <= 30:
			params.Set("df", "m") // Past month
		case days <= 365:
			params.Set("df", "y") // Past year
		}
	}

	params.Set("q", query)
	params.Set("b", "0")      // Start from first result
	params.Set("kl", "us-en") // Language/region
	params.Set("s", "0")      // Safe search off

	return baseURL + "?" + params.Encode()
}

// parseSearchResults walks DuckDuckGo's result markup (div.result >
// a.result__a for title/link, a.result__snippet for the snippet).
func (d *DuckDuckGoProvider) parseSearchResults(doc *goquery.Document, maxResults int) []Result {
	var results []Result

	doc.Find("div.result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(results) >= maxResults {
			return false
		}

		link := s.Find("a.result__a").First()
		rawURL, ok := link.Attr("href")
		if !ok {
			return true
		}
		finalURL := d.extractFinalURL(rawURL)
		if finalURL == "" {
			return true
		}

		rank := len(results) + 1
		results = append(results, Result{
			URL:        finalURL,
			Title:      strings.TrimSpace(link.Text()),
			Snippet:    strings.TrimSpace(s.Find("a.result__snippet").First().Text()),
			Domain:     extractDomain(finalURL),
			Source:     "DuckDuckGo",
			Rank:       rank,
			Confidence: rankConfidence(rank),
		})
		return true
	})

	return results
}

// extractFinalURL extracts the actual URL from DuckDuckGo's redirect URL.
func (d *DuckDuckGoProvider) extractFinalURL(redirectURL string) string {
	// DuckDuckGo uses URLs like: /l/?uddg=https%3A//example.com/...&rut=...
	if strings.HasPrefix(redirectURL, "/l/?") {
		parsed, err := url.Parse(redirectURL)
		if err != nil {
			return ""
		}

		uddg := parsed.Query().Get("uddg")
		if uddg != "" {
			decoded, err := url.QueryUnescape(uddg)
			if err != nil {
				return ""
			}
			return decoded
		}
	}

	// If it's already a full URL, return as-is
	if strings.HasPrefix(redirectURL, "http") {
		return redirectURL
	}

	return ""
}
