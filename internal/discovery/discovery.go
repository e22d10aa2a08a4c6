// Package discovery implements the Link Discoverer: robots.txt and
// sitemap inspection followed by a breadth-first crawl of a company's
// homepage, producing a deduplicated, priority-ordered PageCandidate
// list within a deadline.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"briefly/internal/core"
	"briefly/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultCap is the default maximum number of PageCandidates returned.
	DefaultCap = 500
	// DefaultDeadline is the default time budget for the whole discovery run.
	DefaultDeadline = 60 * time.Second
	// DefaultMaxDepth is the maximum recursion depth from the homepage.
	DefaultMaxDepth = 3
	// DefaultBranchingFactor caps links followed per page.
	DefaultBranchingFactor = 20

	userAgent = "Mozilla/5.0 (compatible; TheodoreBot/1.0; +https://example.com/bot)"
)

// Options configures a Discoverer's behavior.
type Options struct {
	Cap             int
	Deadline        time.Duration
	MaxDepth        int
	BranchingFactor int
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Cap:             DefaultCap,
		Deadline:        DefaultDeadline,
		MaxDepth:        DefaultMaxDepth,
		BranchingFactor: DefaultBranchingFactor,
	}
}

// Discoverer crawls a base URL to discover candidate pages.
type Discoverer struct {
	opts   Options
	client *http.Client
}

// NewDiscoverer constructs a Discoverer, filling zero-valued options from
// DefaultOptions.
func NewDiscoverer(opts Options) *Discoverer {
	d := DefaultOptions()
	if opts.Cap <= 0 {
		opts.Cap = d.Cap
	}
	if opts.Deadline <= 0 {
		opts.Deadline = d.Deadline
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = d.MaxDepth
	}
	if opts.BranchingFactor <= 0 {
		opts.BranchingFactor = d.BranchingFactor
	}
	return &Discoverer{opts: opts, client: &http.Client{Timeout: 10 * time.Second}}
}

// frontierItem is one pending BFS entry.
type frontierItem struct {
	url        string
	depth      int
	source     core.DiscoverySource
	anchorText string
}

// Discover runs the full discovery algorithm: robots.txt → sitemaps →
// homepage seed → recursive BFS, returning deduplicated, priority-ordered
// PageCandidates. An invalid base URL and a failed homepage fetch are the
// only fatal errors; every other failure mode degrades to a partial result.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) ([]core.PageCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Deadline)
	defer cancel()

	site, err := urlnorm.Site(baseURL)
	if err != nil {
		return nil, core.NewJobError(core.KindInvalidURL, "invalid base URL", err)
	}

	seen := make(map[string]core.PageCandidate)

	sitemapURLs, robotsBlocked := d.fromRobotsAndSitemaps(ctx, site)
	for _, su := range sitemapURLs {
		d.addCandidate(seen, su, core.SourceSitemap, 0, "")
	}
	_ = robotsBlocked // recorded for observability only; crawling still proceeds.

	homepageHTML, err := d.fetchHTML(ctx, site)
	if err != nil {
		return nil, core.NewJobError(core.KindHomepageUnreachable, "Could not reach company website", err)
	}
	d.addCandidate(seen, site, core.SourceSeed, 0, "")

	frontier := []frontierItem{{url: site, depth: 0, source: core.SourceSeed}}
	links := extractLinks(homepageHTML, site)
	frontier = append(frontier, d.enqueueLinks(seen, links, site, 1)...)

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		if len(seen) >= d.opts.Cap {
			break
		}

		item := frontier[0]
		frontier = frontier[1:]

		if item.depth == 0 {
			continue // homepage already processed above
		}
		if item.depth > d.opts.MaxDepth {
			continue
		}

		html, err := d.fetchHTML(ctx, item.url)
		if err != nil {
			continue // non-fatal; skip this branch
		}
		childLinks := extractLinks(html, item.url)
		frontier = append(frontier, d.enqueueLinks(seen, childLinks, site, item.depth+1)...)
	}

	return rankedCandidates(seen, d.opts.Cap), nil
}

// addCandidate records url in seen (after normalization and asset/noise
// filtering) if not already present, keeping the highest-priority source
// on conflict. It does no domain scoping; enqueueLinks does that for
// crawled links.
func (d *Discoverer) addCandidate(seen map[string]core.PageCandidate, raw string, source core.DiscoverySource, depth int, anchor string) {
	normalized, err := urlnorm.Normalize(raw)
	if err != nil {
		return
	}
	if urlnorm.IsAsset(normalized) || urlnorm.IsNoise(normalized) {
		return
	}
	existing, ok := seen[normalized]
	if ok && existing.Source.Priority() <= source.Priority() {
		return
	}
	seen[normalized] = core.PageCandidate{
		URL:        normalized,
		Source:     source,
		Depth:      depth,
		Discovered: time.Now().UTC(),
		AnchorText: anchor,
	}
}

// enqueueLinks filters discovered links to same-domain, non-asset,
// non-noise URLs (capped at the branching factor) and records them as
// recursive candidates, returning the subset newly added to the frontier.
func (d *Discoverer) enqueueLinks(seen map[string]core.PageCandidate, links []discoveredLink, site string, depth int) []frontierItem {
	siteURL, err := url.Parse(site)
	if err != nil {
		return nil
	}

	var added []frontierItem
	branched := 0
	for _, l := range links {
		if branched >= d.opts.BranchingFactor {
			break
		}
		linkURL, err := url.Parse(l.url)
		if err != nil {
			continue
		}
		if !urlnorm.SameRegistrableDomain(linkURL.Host, siteURL.Host) {
			continue
		}

		before := len(seen)
		d.addCandidate(seen, l.url, core.SourceRecursive, depth, l.anchorText)
		if len(seen) == before {
			continue // already known at equal-or-better priority
		}
		branched++
		normalized, err := urlnorm.Normalize(l.url)
		if err != nil {
			continue
		}
		added = append(added, frontierItem{url: normalized, depth: depth, source: core.SourceRecursive, anchorText: l.anchorText})
	}
	return added
}

func (d *Discoverer) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	html, err := doc.Html()
	if err != nil {
		return "", err
	}
	return html, nil
}

type discoveredLink struct {
	url        string
	anchorText string
}

// extractLinks pulls <a href> links from HTML, resolving relative URLs
// against base.
func extractLinks(html, base string) []discoveredLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []discoveredLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		resolved, err := baseURL.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		links = append(links, discoveredLink{url: resolved.String(), anchorText: strings.TrimSpace(s.Text())})
	})
	return links
}

// rankedCandidates sorts candidates by discovery-source priority, then
// depth, then URL, and caps the result at capN.
func rankedCandidates(seen map[string]core.PageCandidate, capN int) []core.PageCandidate {
	out := make([]core.PageCandidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source.Priority() != out[j].Source.Priority() {
			return out[i].Source.Priority() < out[j].Source.Priority()
		}
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].URL < out[j].URL
	})
	if len(out) > capN {
		out = out[:capN]
	}
	return out
}
