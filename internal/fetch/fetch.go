// Package fetch implements the Parallel Fetcher: a bounded-concurrency
// worker pool that downloads PageCandidate URLs, strips boilerplate, and
// returns extracted text in completion order.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"briefly/internal/core"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultTimeout is the per-fetch HTTP timeout.
	DefaultTimeout = 15 * time.Second
	// DefaultParallelism is the default worker pool size C.
	DefaultParallelism = 10
	// DefaultByteCap bounds how much of a response body is read.
	DefaultByteCap = 2 * 1024 * 1024
	// DefaultPageCharCap bounds extracted text length per page.
	DefaultPageCharCap = 10_000
	// DefaultAggregateCharCap bounds total extracted text across one job.
	DefaultAggregateCharCap = 500_000

	userAgent = "Mozilla/5.0 (compatible; TheodoreBot/1.0; +https://example.com/bot)"
)

// Options configures a Fetcher's behavior.
type Options struct {
	Timeout      time.Duration
	Parallelism  int
	ByteCap      int64
	PageCharCap  int
	MaxRetries   int
	BackoffBase  time.Duration
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		Parallelism: DefaultParallelism,
		ByteCap:     DefaultByteCap,
		PageCharCap: DefaultPageCharCap,
		MaxRetries:  1,
		BackoffBase: 500 * time.Millisecond,
	}
}

// Fetcher downloads PageCandidates with a bounded worker pool.
type Fetcher struct {
	opts   Options
	client *http.Client
}

// NewFetcher constructs a Fetcher with the given options, filling in any
// zero-valued fields from DefaultOptions.
func NewFetcher(opts Options) *Fetcher {
	d := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = d.Parallelism
	}
	if opts.ByteCap <= 0 {
		opts.ByteCap = d.ByteCap
	}
	if opts.PageCharCap <= 0 {
		opts.PageCharCap = d.PageCharCap
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = d.MaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = d.BackoffBase
	}
	return &Fetcher{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// FetchAll fetches every candidate with at most opts.Parallelism requests
// in flight, returning results in completion order. Cancellation aborts
// in-flight requests and drains remaining queue items without processing
// them further.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []core.PageCandidate) []core.FetchOutcome {
	results := make(chan core.FetchOutcome, len(candidates))
	sem := semaphore.NewWeighted(int64(f.opts.Parallelism))

	for _, c := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled; drain without fetching.
			results <- core.FetchOutcome{URL: c.URL, Kind: core.KindCancelled, Message: "cancelled before fetch"}
			continue
		}
		go func(candidate core.PageCandidate) {
			defer sem.Release(1)
			results <- f.fetchOne(ctx, candidate.URL)
		}(c)
	}

	out := make([]core.FetchOutcome, 0, len(candidates))
	for range candidates {
		out = append(out, <-results)
	}
	return out
}

// fetchOne performs one fetch with the retry policy: one retry on
// transient network errors or 5xx responses, jittered backoff, no retry
// on 4xx.
func (f *Fetcher) fetchOne(ctx context.Context, url string) core.FetchOutcome {
	var lastOutcome core.FetchOutcome
	attempts := f.opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return core.FetchOutcome{URL: url, Kind: core.KindCancelled, Message: "context cancelled"}
		}
		outcome := f.attempt(ctx, url)
		if outcome.Content != nil {
			return outcome
		}
		lastOutcome = outcome
		if !retryable(outcome) {
			return outcome
		}
		if attempt < attempts-1 {
			sleepJittered(ctx, f.opts.BackoffBase)
		}
	}
	return lastOutcome
}

func retryable(o core.FetchOutcome) bool {
	switch o.Kind {
	case core.KindFetchTimeout, core.KindFetchNetworkError:
		return true
	default:
		return false
	}
}

func sleepJittered(ctx context.Context, base time.Duration) {
	jitter := time.Duration(rand.Int63n(int64(base)))
	select {
	case <-time.After(base + jitter):
	case <-ctx.Done():
	}
}

func (f *Fetcher) attempt(ctx context.Context, url string) core.FetchOutcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.FetchOutcome{URL: url, Kind: core.KindFetchNetworkError, Message: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.FetchOutcome{URL: url, Kind: core.KindCancelled, Message: err.Error()}
		}
		if nerr, ok := err.(interface{ Timeout() bool }); ok && nerr.Timeout() {
			return core.FetchOutcome{URL: url, Kind: core.KindFetchTimeout, Message: err.Error()}
		}
		return core.FetchOutcome{URL: url, Kind: core.KindFetchNetworkError, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return core.FetchOutcome{URL: url, Kind: core.KindFetchBlocked, Message: fmt.Sprintf("blocked: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return core.FetchOutcome{URL: url, Kind: core.KindFetchNetworkError, Message: fmt.Sprintf("server error: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return core.FetchOutcome{URL: url, Kind: core.KindFetchHTTPStatus, Message: fmt.Sprintf("client error: status %d", resp.StatusCode)}
	}

	limited := io.LimitReader(resp.Body, f.opts.ByteCap+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return core.FetchOutcome{URL: url, Kind: core.KindFetchNetworkError, Message: err.Error()}
	}
	if int64(len(body)) > f.opts.ByteCap {
		body = body[:f.opts.ByteCap]
	}

	text := ExtractMainText(string(body))
	if len(text) > f.opts.PageCharCap {
		text = text[:f.opts.PageCharCap]
	}

	content := &core.PageContent{
		URL:         url,
		FetchedAt:   time.Now().UTC(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Text:        text,
		ByteLength:  len(body),
		FetchedIn:   time.Since(start),
	}
	return core.FetchOutcome{URL: url, Content: content}
}

// TruncateAggregate applies the per-job aggregate character cap across a
// slice of PageContent, trimming later pages' text once the budget is
// exhausted while leaving earlier pages intact.
func TruncateAggregate(pages []core.PageContent, cap int) []core.PageContent {
	if cap <= 0 {
		cap = DefaultAggregateCharCap
	}
	remaining := cap
	out := make([]core.PageContent, len(pages))
	for i, p := range pages {
		if remaining <= 0 {
			p.Text = ""
		} else if len(p.Text) > remaining {
			p.Text = p.Text[:remaining]
			remaining = 0
		} else {
			remaining -= len(p.Text)
		}
		out[i] = p
	}
	return out
}

var newlineRunRegex = regexp.MustCompile(`\n{2,}`)

var boilerplateSelectors = "script, style, nav, footer, header, aside, form, iframe, noscript, " +
	".sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner"

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content",
	".post-body", ".article-body", "[role='main']", ".content", "#content",
}

// ExtractMainText parses raw HTML and returns boilerplate-stripped main
// text, trying a list of common semantic containers before falling back
// to the whole body.
func ExtractMainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find(boilerplateSelectors).Remove()

	var textBuilder strings.Builder
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			writeBlocks(&textBuilder, s)
		})
		if textBuilder.Len() > 0 {
			break
		}
	}

	if textBuilder.Len() == 0 {
		writeBlocks(&textBuilder, doc.Find("body"))
	}

	text := newlineRunRegex.ReplaceAllString(textBuilder.String(), "\n")
	return strings.TrimSpace(text)
}

func writeBlocks(b *strings.Builder, s *goquery.Selection) {
	s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
		t := strings.TrimSpace(item.Text())
		if t == "" {
			return
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	})
}

// ExtractTitle tries common HTML title locations in priority order:
// <title>, og:title, then the first <h1>.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
