// Package aggregator implements the Content Aggregator (spec.md §4.4): a
// single LLM call that fuses a job's fetched pages into a structured
// Company profile plus a deterministic embedding-text string, falling
// back to map-reduce sharding when the aggregate content exceeds the
// model's input budget. Grounded on the teacher's
// internal/llm/llm.go GenerateStructuredDigest (single-call
// JSON-producing prompt + defensive parse) and internal/pipeline/pipeline.go's
// map-reduce article-then-digest shape.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"briefly/internal/core"
	"briefly/internal/fetch"
	"briefly/internal/llm"
)

// Options configures the Aggregator's budgets and shard fan-out.
type Options struct {
	// AggregateCharCap bounds the total page text considered for one job,
	// matching the Parallel Fetcher's own aggregate cap (spec.md §3).
	AggregateCharCap int
	// ShardThresholdChars is the aggregate size beyond which content is
	// sharded by page, summarized per-shard, then merged.
	ShardThresholdChars int
	// ShardCount is the number of parallel map-reduce shards (spec.md §5:
	// "the Content Aggregator's map-reduce shards execute in parallel
	// (default 4)").
	ShardCount int
	// MaxRepairRetries is how many times an unparseable final-extraction
	// response is retried with a repair prompt before the profile is
	// marked low_quality.
	MaxRepairRetries int
	// EmbeddingTextCap bounds the deterministic embedding-text template's
	// length, and the raw-aggregate fallback used when extraction fails.
	EmbeddingTextCap int
}

// DefaultOptions returns spec.md's default Content Aggregator budgets.
func DefaultOptions() Options {
	return Options{
		AggregateCharCap:    500_000,
		ShardThresholdChars: 120_000,
		ShardCount:          4,
		MaxRepairRetries:    1,
		EmbeddingTextCap:    8_000,
	}
}

// Aggregator fuses a ResearchJob's PageContent list into a Company profile.
type Aggregator struct {
	provider *llm.RetryingProvider
	opts     Options
}

// NewAggregator constructs an Aggregator against a retrying LLM provider
// so every extraction/shard call accumulates cost and token metrics.
func NewAggregator(provider *llm.RetryingProvider, opts Options) *Aggregator {
	if opts.ShardCount <= 0 {
		opts.ShardCount = 4
	}
	if opts.AggregateCharCap <= 0 {
		opts.AggregateCharCap = 500_000
	}
	if opts.ShardThresholdChars <= 0 {
		opts.ShardThresholdChars = 120_000
	}
	if opts.EmbeddingTextCap <= 0 {
		opts.EmbeddingTextCap = 8_000
	}
	if opts.MaxRepairRetries <= 0 {
		opts.MaxRepairRetries = 1
	}
	return &Aggregator{provider: provider, opts: opts}
}

// Result is the Content Aggregator's output for one ResearchJob.
type Result struct {
	Profile       core.Company
	EmbeddingText string
	Quality       core.Quality
	Metrics       core.Metrics
}

// profileJSON is the declared field set the extraction prompt asks the
// model to return (spec.md §4.4's prompting contract).
type profileJSON struct {
	Description      string   `json:"description"`
	Industry         string   `json:"industry"`
	BusinessModel    string   `json:"business_model"`
	TargetMarket     string   `json:"target_market"`
	KeyServices      []string `json:"key_services"`
	TechStack        []string `json:"tech_stack"`
	Leadership       []struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"leadership"`
	Location         string `json:"location"`
	FoundingYear     int    `json:"founding_year"`
	EmployeeRange    string `json:"employee_range"`
	ValueProposition string `json:"value_proposition"`
}

// Aggregate fuses pages into a structured profile for companyName. Content
// exceeding ShardThresholdChars is summarized shard-by-shard (in parallel,
// up to ShardCount shards) before the final single extraction call.
func (a *Aggregator) Aggregate(ctx context.Context, companyName string, pages []core.PageContent) (*Result, error) {
	capped := fetch.TruncateAggregate(pages, a.opts.AggregateCharCap)
	aggregateText := joinPages(capped)

	var metrics core.Metrics
	extractionInput := aggregateText
	if len(aggregateText) > a.opts.ShardThresholdChars {
		shardSummaries, shardMetrics, err := a.mapReduceShards(ctx, companyName, capped)
		metrics.Add(shardMetrics)
		if err != nil {
			return nil, err
		}
		extractionInput = strings.Join(shardSummaries, "\n\n")
	}

	profile, quality, extractMetrics, err := a.extract(ctx, companyName, extractionInput)
	metrics.Add(extractMetrics)
	if err != nil {
		return nil, err
	}

	company := core.Company{
		Name:             companyName,
		Industry:         profile.Industry,
		BusinessModel:    parseBusinessModel(profile.BusinessModel),
		Description:      profile.Description,
		ValueProposition: profile.ValueProposition,
		TargetMarket:     profile.TargetMarket,
		KeyServices:      profile.KeyServices,
		TechStack:        profile.TechStack,
		Location:         profile.Location,
		FoundingYear:     profile.FoundingYear,
		EmployeeRange:    profile.EmployeeRange,
		Quality:          quality,
	}
	for _, l := range profile.Leadership {
		company.Leadership = append(company.Leadership, core.Leader{Name: l.Name, Title: l.Title})
	}

	var embeddingText string
	if quality == core.QualityLow {
		embeddingText = truncateRunes(normalizeWhitespace(aggregateText), a.opts.EmbeddingTextCap)
	} else {
		embeddingText = buildEmbeddingText(companyName, company, a.opts.EmbeddingTextCap)
	}
	company.EmbeddingText = embeddingText

	return &Result{Profile: company, EmbeddingText: embeddingText, Quality: quality, Metrics: metrics}, nil
}

// mapReduceShards splits pages into opts.ShardCount groups, summarizes each
// in parallel, and returns the per-shard summaries in shard order so the
// final extraction prompt is deterministic regardless of completion order.
func (a *Aggregator) mapReduceShards(ctx context.Context, companyName string, pages []core.PageContent) ([]string, core.Metrics, error) {
	shards := shardPages(pages, a.opts.ShardCount)
	summaries := make([]string, len(shards))

	var mu sync.Mutex
	var metrics core.Metrics
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			prompt := buildShardSummaryPrompt(companyName, shard)
			result, callMetrics, err := a.provider.Complete(gctx, prompt)
			mu.Lock()
			metrics.Add(callMetrics)
			mu.Unlock()
			if err != nil {
				return err
			}
			summaries[i] = result.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, metrics, err
	}

	out := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out, metrics, nil
}

// extract runs the single structured-extraction LLM call, retrying once
// with a repair prompt (including the malformed output) if the response
// is not parseable JSON, per spec.md §4.4.
func (a *Aggregator) extract(ctx context.Context, companyName, content string) (profileJSON, core.Quality, core.Metrics, error) {
	var metrics core.Metrics

	prompt := buildExtractionPrompt(companyName, content)
	result, callMetrics, err := a.provider.Complete(ctx, prompt)
	metrics.Add(callMetrics)
	if err != nil {
		return profileJSON{}, core.QualityLow, metrics, err
	}

	profile, parseErr := parseProfile(result.Text)
	if parseErr == nil {
		return profile, core.QualityOK, metrics, nil
	}

	for attempt := 0; attempt < a.opts.MaxRepairRetries; attempt++ {
		repairPrompt := buildRepairPrompt(companyName, result.Text)
		result, callMetrics, err = a.provider.Complete(ctx, repairPrompt)
		metrics.Add(callMetrics)
		if err != nil {
			return profileJSON{}, core.QualityLow, metrics, err
		}
		profile, parseErr = parseProfile(result.Text)
		if parseErr == nil {
			return profile, core.QualityOK, metrics, nil
		}
	}

	// Both attempts failed to produce parseable JSON: the profile is kept
	// as a best-effort empty struct and marked low_quality rather than
	// failing the job, per spec.md §4.5's partial-failure policy.
	return profileJSON{}, core.QualityLow, metrics, nil
}

func parseProfile(response string) (profileJSON, error) {
	jsonText, err := llm.ExtractJSON(response)
	if err != nil {
		return profileJSON{}, err
	}
	var profile profileJSON
	if err := json.Unmarshal([]byte(jsonText), &profile); err != nil {
		return profileJSON{}, err
	}
	return profile, nil
}

func buildExtractionPrompt(companyName, content string) string {
	return fmt.Sprintf(`You are a sales-intelligence analyst. Given the following page content
collected from %s's website, produce a single JSON object with exactly
these fields: description, industry, business_model (one of b2b, b2c,
saas, marketplace, services, other), target_market, key_services (array
of short strings), tech_stack (array of short strings), leadership
(array of {name, title}), location, founding_year (integer, 0 if
unknown), employee_range, value_proposition.

Respond with *only* the JSON object, no commentary, no markdown fences.

PAGE CONTENT:
%s`, companyName, content)
}

func buildRepairPrompt(companyName, malformed string) string {
	return fmt.Sprintf(`Your previous response for %s could not be parsed as JSON. Here is
what you returned:

%s

Return *only* a single valid JSON object with fields: description,
industry, business_model, target_market, key_services, tech_stack,
leadership, location, founding_year, employee_range, value_proposition.
No markdown fences, no commentary.`, companyName, malformed)
}

func buildShardSummaryPrompt(companyName string, pages []core.PageContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following pages from %s's website in a short paragraph, "+
		"focused on facts useful for sales intelligence (industry, services, leadership, tech, location):\n\n", companyName)
	for _, p := range pages {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p.URL, p.Text)
	}
	return b.String()
}

func shardPages(pages []core.PageContent, shardCount int) [][]core.PageContent {
	shards := make([][]core.PageContent, shardCount)
	for i, p := range pages {
		idx := i % shardCount
		shards[idx] = append(shards[idx], p)
	}
	return shards
}

func joinPages(pages []core.PageContent) string {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p.URL, p.Text)
	}
	return b.String()
}

// buildEmbeddingText renders the deterministic template spec.md §4.4
// declares: company name, description, industry, business_model,
// key_services (joined), tech_stack (joined), value_proposition.
func buildEmbeddingText(companyName string, c core.Company, cap int) string {
	parts := []string{
		companyName,
		c.Description,
		c.Industry,
		string(c.BusinessModel),
		strings.Join(c.KeyServices, ", "),
		strings.Join(c.TechStack, ", "),
		c.ValueProposition,
	}
	joined := strings.Join(filterEmpty(parts), ". ")
	return truncateRunes(normalizeWhitespace(joined), cap)
}

func filterEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, cap int) string {
	r := []rune(s)
	if len(r) <= cap {
		return s
	}
	return string(r[:cap])
}

func parseBusinessModel(raw string) core.BusinessModel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "b2b":
		return core.BusinessModelB2B
	case "b2c":
		return core.BusinessModelB2C
	case "saas":
		return core.BusinessModelSaaS
	case "marketplace":
		return core.BusinessModelMarketplace
	case "services":
		return core.BusinessModelServices
	default:
		return core.BusinessModelOther
	}
}
