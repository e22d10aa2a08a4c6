// Package cost estimates and accounts for the dollar cost of researching a
// company: a dry-run estimator used before a job is queued, and a pricing
// table shared with internal/llm's retry wrapper for post-hoc accounting.
package cost

import (
	"fmt"
	"math"
	"strings"
)

// ModelPricing is the per-1M-token cost of one Gemini model, generalized
// from the teacher's GeminiPricing table to also cover embedding models
// (OutputCostPer1MTokens is zero for them — embeddings have no output
// tokens).
type ModelPricing struct {
	Model                 string
	InputCostPer1MTokens  float64
	OutputCostPer1MTokens float64
	MaxRequestsPerMinute  int
}

// PricingTable holds current published Gemini pricing, keyed by model
// identifier. Kept as a package var (rather than config) because it
// changes independently of any one deployment's configuration.
var PricingTable = map[string]ModelPricing{
	"gemini-flash-lite-latest": {
		Model:                 "gemini-flash-lite-latest",
		InputCostPer1MTokens:  0.075,
		OutputCostPer1MTokens: 0.30,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-2.5-flash": {
		Model:                 "gemini-2.5-flash",
		InputCostPer1MTokens:  0.30,
		OutputCostPer1MTokens: 2.50,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-2.5-pro": {
		Model:                 "gemini-2.5-pro",
		InputCostPer1MTokens:  1.25,
		OutputCostPer1MTokens: 10.00,
		MaxRequestsPerMinute:  360,
	},
	"gemini-embedding-001": {
		Model:                 "gemini-embedding-001",
		InputCostPer1MTokens:  0.15,
		OutputCostPer1MTokens: 0,
		MaxRequestsPerMinute:  1500,
	},
}

// lookup returns the named model's pricing, defaulting to the cheapest
// chat model (flash-lite) when the model is unrecognized — mirroring the
// teacher's EstimateDigestCost fallback rather than failing a dry-run
// estimate outright.
func lookup(model string) ModelPricing {
	if p, ok := PricingTable[model]; ok {
		return p
	}
	return PricingTable["gemini-flash-lite-latest"]
}

// EstimateTokenCount estimates the token count of text at ~3.5 characters
// per token (English-text heuristic), counting runes after trimming
// surrounding whitespace. internal/llm's estimateTokens uses the same ratio
// but counts bytes of the untrimmed text, so the two can differ.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 3.5))
}

// JobCostEstimate is a dry-run estimate of what researching one company
// will cost, covering the three LLM-touching phases: page selection,
// content aggregation, and embedding generation.
type JobCostEstimate struct {
	ChatModel         string
	EmbeddingModel    string
	CandidatePages    int
	SelectedPages     int
	SelectorCost      float64
	AggregatorCost    float64
	EmbeddingCost     float64
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
	RateLimitWarning  string
}

// EstimateResearchCost estimates the cost of one ResearchJob given how
// many candidates the Link Discoverer is expected to produce and how many
// of them the Page Selector will choose, without fetching any pages
// (estimating typical per-page content length the way the teacher's
// EstimateDigestCost estimated typical article length from URL shape).
func EstimateResearchCost(candidatePages, selectedPages, perPageCharCap int, chatModel, embeddingModel string) (*JobCostEstimate, error) {
	if selectedPages <= 0 {
		return nil, fmt.Errorf("selectedPages must be positive")
	}
	chatPricing := lookup(chatModel)
	embedPricing := lookup(embeddingModel)

	est := &JobCostEstimate{
		ChatModel:      chatPricing.Model,
		EmbeddingModel: embedPricing.Model,
		CandidatePages: candidatePages,
		SelectedPages:  selectedPages,
	}

	// Selector: one prompt listing every candidate path/anchor, ~40 tokens
	// of overhead per candidate line, plus a short rationale-bearing reply.
	selectorInput := candidatePages*40 + 150
	selectorOutput := selectedPages * 12
	est.SelectorCost = costOf(chatPricing, selectorInput, selectorOutput)
	est.TotalInputTokens += selectorInput
	est.TotalOutputTokens += selectorOutput

	// Aggregator: selected pages' text (capped per page) plus the
	// structured-profile JSON reply.
	aggInput := selectedPages*EstimateTokenCount(strings.Repeat("x", perPageCharCap)) + 200
	aggOutput := 600
	est.AggregatorCost = costOf(chatPricing, aggInput, aggOutput)
	est.TotalInputTokens += aggInput
	est.TotalOutputTokens += aggOutput

	// Embedding: one call over the embedding-text template, a small
	// fraction of the aggregate content.
	embedInput := 800
	est.EmbeddingCost = costOf(embedPricing, embedInput, 0)
	est.TotalInputTokens += embedInput

	est.TotalCost = est.SelectorCost + est.AggregatorCost + est.EmbeddingCost

	totalRequests := 3 // selector + aggregator + embedding, one call each in the happy path
	if totalRequests > chatPricing.MaxRequestsPerMinute {
		est.RateLimitWarning = fmt.Sprintf("estimated %d requests may exceed rate limit of %d/min for %s",
			totalRequests, chatPricing.MaxRequestsPerMinute, chatPricing.Model)
	}

	return est, nil
}

func costOf(p ModelPricing, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*p.InputCostPer1MTokens +
		float64(outputTokens)/1_000_000*p.OutputCostPer1MTokens
}

// FormatEstimate renders a JobCostEstimate for CLI/log display, matching
// the teacher's FormatEstimate layout (summary, then per-phase breakdown).
func (e *JobCostEstimate) FormatEstimate() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cost estimate (%s + %s)\n", e.ChatModel, e.EmbeddingModel)
	fmt.Fprintf(&b, "  candidates: %d, selected: %d\n", e.CandidatePages, e.SelectedPages)
	fmt.Fprintf(&b, "  selector:   $%.6f\n", e.SelectorCost)
	fmt.Fprintf(&b, "  aggregator: $%.6f\n", e.AggregatorCost)
	fmt.Fprintf(&b, "  embedding:  $%.6f\n", e.EmbeddingCost)
	fmt.Fprintf(&b, "  total:      $%.6f (%d input / %d output tokens)\n",
		e.TotalCost, e.TotalInputTokens, e.TotalOutputTokens)
	if e.RateLimitWarning != "" {
		fmt.Fprintf(&b, "  warning: %s\n", e.RateLimitWarning)
	}
	return b.String()
}
