package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"briefly/internal/core"
	"briefly/internal/llm"
)

// llmCandidate is one entry of the LLM candidate-generation response.
type llmCandidate struct {
	Name      string `json:"name"`
	Website   string `json:"website"`
	Rationale string `json:"rationale"`
}

// generateCandidates prompts the LLM with target's profile (in
// unknown-mode, the profile produced by researching the target) and parses up to
// opts.LLMCandidateCount proposed similar companies.
func (d *Discoverer) generateCandidates(ctx context.Context, target core.Company) ([]llmCandidate, error) {
	prompt := fmt.Sprintf(`You are a market-research analyst. Given this company profile, list up to
%d other companies that compete with or closely resemble it. Respond with
*only* a JSON array of objects with fields: name, website, rationale (one
short sentence). No markdown fences, no commentary.

COMPANY: %s
Industry: %s
Business model: %s
Description: %s
Key services: %s`,
		d.opts.LLMCandidateCount, target.Name, target.Industry, target.BusinessModel,
		target.Description, strings.Join(target.KeyServices, ", "))

	result, _, err := d.deps.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, core.NewJobError(core.KindLLMProviderError, "similarity candidate generation failed", err)
	}

	jsonText, err := llm.ExtractJSON(result.Text)
	if err != nil {
		return nil, nil
	}
	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(jsonText), &candidates); err != nil {
		return nil, nil
	}
	if len(candidates) > d.opts.LLMCandidateCount {
		candidates = candidates[:d.opts.LLMCandidateCount]
	}
	return candidates, nil
}

// validate scores other against target with the three methods spec.md
// §4.6 names: structured field overlap, embedding cosine similarity, and
// an LLM judge.
func (d *Discoverer) validate(ctx context.Context, target, other core.Company) map[core.SimilarityMethod]float64 {
	votes := map[core.SimilarityMethod]float64{
		core.MethodStructured: structuredOverlap(target, other),
		core.MethodEmbedding:  embeddingScore(target, other),
	}
	if score, ok := d.llmJudge(ctx, target, other); ok {
		votes[core.MethodLLMJudge] = score
	} else {
		// No judge score available: count it as a non-vote rather than a
		// false positive or negative by treating it as the mean of the
		// other two, so the 2-of-3 rule degrades to those two methods.
		votes[core.MethodLLMJudge] = (votes[core.MethodStructured] + votes[core.MethodEmbedding]) / 2
	}
	return votes
}

// structuredOverlap computes spec.md §4.6's weighted field-overlap score:
// industry exact match 0.35, business_model match 0.15, target_market
// token-Jaccard 0.15, key_services token-Jaccard 0.20, tech_stack
// normalized Jaccard 0.15.
func structuredOverlap(a, b core.Company) float64 {
	var score float64
	if a.Industry != "" && strings.EqualFold(a.Industry, b.Industry) {
		score += 0.35
	}
	if a.BusinessModel != "" && a.BusinessModel == b.BusinessModel {
		score += 0.15
	}
	score += 0.15 * tokenJaccard(a.TargetMarket, b.TargetMarket)
	score += 0.20 * listJaccard(a.KeyServices, b.KeyServices)
	score += 0.15 * listJaccard(a.TechStack, b.TechStack)
	return clamp01(score)
}

// embeddingScore is the cosine similarity between the two companies'
// embeddings, clamped to [0,1] per spec.md §4.6 (cosine similarity is
// naturally in [-1,1]; profile embeddings in practice cluster near the
// positive range, so negative scores are floored rather than
// renormalized).
func embeddingScore(a, b core.Company) float64 {
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 || len(a.Embedding) != len(b.Embedding) {
		return 0
	}
	return clamp01(llm.CosineSimilarity(a.Embedding, b.Embedding))
}

// llmJudge prompts the LLM with both profiles and parses a defensive
// {score, rationale} JSON response.
func (d *Discoverer) llmJudge(ctx context.Context, a, b core.Company) (float64, bool) {
	prompt := fmt.Sprintf(`Rate how similar these two companies are as sales-intelligence
comparables, from 0.0 (unrelated) to 1.0 (near-identical). Respond with
*only* a JSON object {"score": <float>, "rationale": "<one sentence>"}.

COMPANY A: %s — %s (industry: %s, model: %s)
COMPANY B: %s — %s (industry: %s, model: %s)`,
		a.Name, a.Description, a.Industry, a.BusinessModel,
		b.Name, b.Description, b.Industry, b.BusinessModel)

	result, _, err := d.deps.LLM.Complete(ctx, prompt)
	if err != nil {
		return 0, false
	}
	jsonText, err := llm.ExtractJSON(result.Text)
	if err != nil {
		return 0, false
	}
	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return 0, false
	}
	return clamp01(parsed.Score), true
}

func tokenJaccard(a, b string) float64 {
	return listJaccard(strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b)))
}

func listJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA)
	for k := range setB {
		if !setA[k] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(strings.TrimSpace(item))] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
