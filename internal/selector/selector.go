// Package selector ranks a company's discovered PageCandidates and picks
// the subset worth fetching, preferring an LLM ranking and falling back to
// a path-keyword heuristic when the LLM response can't be parsed.
package selector

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"briefly/internal/core"
	"briefly/internal/llm"
)

const (
	// DefaultMax is the default number of URLs selected for fetching.
	DefaultMax = 10
	// MinMax and MaxMax bound the tunable selection size.
	MinMax = 5
	MaxMax = 50

	// maxParseRetries is how many times an unparseable LLM response is
	// retried before falling back to the heuristic ranker.
	maxParseRetries = 2

	// promptCandidateBudget caps how many candidate lines the prompt
	// includes; beyond this the candidate list is truncated by the same
	// heuristic priority used for the fallback ranker.
	promptCandidateBudget = 200
)

// heuristicPathOrder is the priority order of path substrings used both
// as the fallback ranker and to truncate an oversized candidate list
// before prompting.
var heuristicPathOrder = []string{
	"about", "team", "leadership", "contact", "services",
	"products", "pricing", "customers", "careers",
}

// Options configures a Selector.
type Options struct {
	Max int
}

// DefaultOptions returns the spec default of 10 selected URLs.
func DefaultOptions() Options {
	return Options{Max: DefaultMax}
}

// Selector picks the subset of PageCandidates worth fetching for a company.
type Selector struct {
	provider llm.Provider
	max      int
}

// NewSelector creates a Selector backed by provider.
func NewSelector(provider llm.Provider, opts Options) *Selector {
	max := opts.Max
	if max < MinMax {
		max = DefaultMax
	}
	if max > MaxMax {
		max = MaxMax
	}
	return &Selector{provider: provider, max: max}
}

// Select ranks candidates for companyName and returns at most s.max URLs,
// ordered by likely sales-intelligence value.
func (s *Selector) Select(ctx context.Context, companyName string, candidates []core.PageCandidate) ([]core.PageCandidate, error) {
	if len(candidates) == 0 {
		return nil, core.NewJobError(core.KindNoCandidatesFound, "no page candidates to select from", nil)
	}

	if len(candidates) <= s.max {
		return candidates, nil
	}

	prompted := candidates
	if len(prompted) > promptCandidateBudget {
		prompted = heuristicRank(prompted)[:promptCandidateBudget]
	}

	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		indices, err := s.rankOnce(ctx, companyName, prompted)
		if err != nil {
			continue
		}
		selected := applyIndices(prompted, indices, s.max)
		if len(selected) > 0 {
			return selected, nil
		}
	}

	ranked := heuristicRank(candidates)
	if len(ranked) > s.max {
		ranked = ranked[:s.max]
	}
	return ranked, nil
}

// rankOnce issues a single LLM prompt and parses the response into a list
// of candidate indices.
func (s *Selector) rankOnce(ctx context.Context, companyName string, candidates []core.PageCandidate) ([]int, error) {
	result, err := s.provider.Complete(ctx, buildPrompt(companyName, candidates))
	if err != nil {
		return nil, fmt.Errorf("selector completion: %w", err)
	}

	extracted, err := llm.ExtractJSON(result.Text)
	if err != nil {
		return nil, fmt.Errorf("selector response unparseable: %w", err)
	}

	return parseIndices(extracted)
}

// buildPrompt builds the single-shot ranking prompt: company name plus a
// numbered list of candidate URLs with path and anchor text.
func buildPrompt(companyName string, candidates []core.PageCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are researching the company %q.\n", companyName)
	b.WriteString("Rank the following pages by how valuable they would be for sales intelligence research ")
	b.WriteString("(company overview, leadership, products, customers, pricing).\n")
	b.WriteString("Respond with a JSON array of indices only, ordered from most to least valuable, e.g. [2,0,5].\n\n")

	for i, c := range candidates {
		path := c.URL
		if u, err := url.Parse(c.URL); err == nil && u.Path != "" {
			path = u.Path
		}
		if c.AnchorText != "" {
			fmt.Fprintf(&b, "%d. %s (link text: %q)\n", i, path, c.AnchorText)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i, path)
		}
	}

	return b.String()
}

// parseIndices parses a JSON array of integers, e.g. "[0, 2, 5]".
func parseIndices(jsonArray string) ([]int, error) {
	trimmed := strings.TrimSpace(jsonArray)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if strings.TrimSpace(trimmed) == "" {
		return nil, fmt.Errorf("empty index array")
	}

	parts := strings.Split(trimmed, ",")
	indices := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("non-integer index %q: %w", p, err)
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("no indices parsed")
	}
	return indices, nil
}

// applyIndices resolves indices against candidates, clamping and dropping
// any index out of range rather than failing the whole selection, and
// caps the result at max.
func applyIndices(candidates []core.PageCandidate, indices []int, max int) []core.PageCandidate {
	seen := make(map[int]bool, len(indices))
	selected := make([]core.PageCandidate, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, candidates[idx])
		if len(selected) >= max {
			break
		}
	}
	return selected
}

// heuristicRank orders candidates by path-keyword priority
// (about, team, leadership, ... then homepage), used both as the
// fallback ranker and to truncate an oversized candidate list.
func heuristicRank(candidates []core.PageCandidate) []core.PageCandidate {
	ranked := make([]core.PageCandidate, len(candidates))
	copy(ranked, candidates)

	rank := func(c core.PageCandidate) int {
		path := strings.ToLower(c.URL)
		for i, keyword := range heuristicPathOrder {
			if strings.Contains(path, keyword) {
				return i
			}
		}
		if isHomepage(c.URL) {
			return len(heuristicPathOrder)
		}
		return len(heuristicPathOrder) + 1
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return rank(ranked[i]) < rank(ranked[j])
	})
	return ranked
}

// isHomepage reports whether raw has an empty or root path.
func isHomepage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}
