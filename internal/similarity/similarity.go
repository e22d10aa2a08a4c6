// Package similarity implements the Similarity Discoverer (spec.md
// §4.6): given a known Company (known-mode) or a bare name+website
// (unknown-mode), it proposes similar companies via vector search and LLM
// candidate generation, validates each candidate with three independent
// scoring methods, and writes bidirectional SimilarityEdges for
// candidates that clear a 2-of-3 vote. Grounded on the teacher's
// internal/relevance package (scoring interfaces, weighted criteria) and
// internal/llm/llm.go's CosineSimilarity, combined with the vector-query
// + scored-result shape of
// _examples/SosoTaE-agent/services/vectordb.go, generalized from that
// teacher's single-criterion relevance score into the three-method
// composite vote this package performs.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"briefly/internal/core"
	"briefly/internal/llm"
	"briefly/internal/search"
	"briefly/internal/urlnorm"
	"briefly/internal/vectorstore"
)

// Options configures the Similarity Discoverer's fan-out width and
// validation threshold (spec.md §4.6's defaults).
type Options struct {
	// VectorTopK is how many nearest neighbors known-mode queries for.
	VectorTopK int
	// LLMCandidateCount bounds how many candidates the LLM is asked for.
	LLMCandidateCount int
	// ResearchBudget bounds how many candidates absent from the store are
	// researched (expensive) per Discover call.
	ResearchBudget int
	// VoteThreshold is the per-method score a candidate must reach (score
	// >= threshold) to count as a "yes" vote (spec.md default 0.70).
	VoteThreshold float64
}

// DefaultOptions returns spec.md §4.6's documented defaults.
func DefaultOptions() Options {
	return Options{
		VectorTopK:        20,
		LLMCandidateCount: 10,
		ResearchBudget:    5,
		VoteThreshold:     0.70,
	}
}

// completer is the chat-completion half of the LLM provider contract,
// satisfied by *llm.RetryingProvider (metrics are accumulated by the
// caller but not otherwise used by this package).
type completer interface {
	Complete(ctx context.Context, prompt string) (llm.CompletionResult, core.Metrics, error)
}

// researcher is the subset of the Research Orchestrator's Control API the
// Similarity Discoverer needs to turn an unknown candidate into a scored
// Company (satisfied by *orchestrator.Orchestrator).
type researcher interface {
	Start(ctx context.Context, name, website string) (string, error)
	Await(ctx context.Context, jobID string) (core.ResearchJob, error)
	GetCompany(ctx context.Context, id string) (*core.Company, error)
}

// Deps bundles the Similarity Discoverer's collaborators.
type Deps struct {
	Vectors    vectorstore.Gateway
	LLM        completer
	Researcher researcher
	Search     *search.Registry
}

// Discoverer implements the known-mode and unknown-mode algorithms of
// spec.md §4.6.
type Discoverer struct {
	deps Deps
	opts Options
}

// New constructs a Discoverer, filling zero-valued Options from
// DefaultOptions.
func New(deps Deps, opts Options) *Discoverer {
	d := DefaultOptions()
	if opts.VectorTopK <= 0 {
		opts.VectorTopK = d.VectorTopK
	}
	if opts.LLMCandidateCount <= 0 {
		opts.LLMCandidateCount = d.LLMCandidateCount
	}
	if opts.ResearchBudget <= 0 {
		opts.ResearchBudget = d.ResearchBudget
	}
	if opts.VoteThreshold <= 0 {
		opts.VoteThreshold = d.VoteThreshold
	}
	return &Discoverer{deps: deps, opts: opts}
}

// candidate is a deduplicated (name, website) pair proposed by either the
// vector query or the LLM, before validation.
type candidate struct {
	name      string
	website   string
	id        string
	fromStore bool
	record    *vectorstore.Record
}

// Discover proposes and validates similar companies for the given
// Company. Mode is selected by whether company already carries a stored
// embedding (known-mode) or not (unknown-mode).
func (d *Discoverer) Discover(ctx context.Context, company core.Company) ([]core.SimilarityEdge, error) {
	if len(company.Embedding) > 0 {
		return d.discoverKnown(ctx, company)
	}
	return d.discoverUnknown(ctx, company.Name, company.Website)
}

// discoverKnown implements spec.md §4.6's known-mode algorithm: vector
// query and LLM candidate generation run concurrently, their results are
// unioned and deduplicated, then each candidate is validated.
func (d *Discoverer) discoverKnown(ctx context.Context, company core.Company) ([]core.SimilarityEdge, error) {
	vector := make([]float32, len(company.Embedding))
	for i, v := range company.Embedding {
		vector[i] = float32(v)
	}

	var (
		neighbors []vectorstore.ScoredRecord
		llmNames  []llmCandidate
		vecErr    error
		llmErr    error
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		neighbors, vecErr = d.deps.Vectors.Query(ctx, vector, d.opts.VectorTopK, vectorstore.Filter{})
	}()
	go func() {
		defer wg.Done()
		llmNames, llmErr = d.generateCandidates(ctx, company)
	}()
	wg.Wait()
	if vecErr != nil && llmErr != nil {
		return nil, vecErr
	}

	candidates := map[string]*candidate{}
	for _, n := range neighbors {
		if n.ID == company.ID {
			continue
		}
		name, _ := n.Metadata["name"].(string)
		website, _ := n.Metadata["website"].(string)
		key := dedupeKey(name, website)
		rec := n.Record
		candidates[key] = &candidate{name: name, website: website, id: n.ID, fromStore: true, record: &rec}
	}
	for _, c := range llmNames {
		key := dedupeKey(c.Name, c.Website)
		if _, exists := candidates[key]; exists {
			continue
		}
		id, _ := urlnorm.CompanyID(c.Name, c.Website)
		candidates[key] = &candidate{name: c.Name, website: c.Website, id: id}
	}

	return d.validateAll(ctx, company, candidates)
}

// discoverUnknown implements spec.md §4.6's unknown-mode algorithm. The
// target isn't yet a Company, and spec.md §3 requires both endpoints of
// a SimilarityEdge to exist as Companies in the vector store, so the
// target is researched to completion first (the Search-Tool Registry's
// authoritative sources fill in a missing website when the caller only
// supplied a name). Once the target carries a real id and embedding it
// is scored exactly like known-mode (vector-neighbor query plus LLM
// candidates), rather than duplicating that logic.
func (d *Discoverer) discoverUnknown(ctx context.Context, name, website string) ([]core.SimilarityEdge, error) {
	if website == "" && d.deps.Search != nil {
		if results, err := d.deps.Search.SearchAll(ctx, name, search.Config{MaxResults: 5}); err == nil {
			website = firstWebsite(results)
		}
	}

	target, err := d.resolveTarget(ctx, name, website)
	if err != nil {
		return nil, err
	}

	return d.discoverKnown(ctx, *target)
}

// resolveTarget runs Research to completion for name/website so
// unknown-mode has a stored Company (id + embedding) before any
// SimilarityEdge involving it can be validated or persisted.
func (d *Discoverer) resolveTarget(ctx context.Context, name, website string) (*core.Company, error) {
	if d.deps.Researcher == nil {
		return nil, fmt.Errorf("similarity: unknown-mode requires a Researcher to establish %q as a Company", name)
	}
	jobID, err := d.deps.Researcher.Start(ctx, name, website)
	if err != nil {
		return nil, err
	}
	job, err := d.deps.Researcher.Await(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != core.JobCompleted {
		return nil, fmt.Errorf("similarity: could not establish %q as a Company (job %s: %s)", name, job.State, job.ErrorMessage)
	}
	company, err := d.deps.Researcher.GetCompany(ctx, job.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("similarity: research for %q completed but left no Company", name)
	}
	return company, nil
}

// firstWebsite returns the site of the highest-ranked aggregated search
// result, used to seed Research when unknown-mode is called with a bare
// name and no website.
func firstWebsite(results []search.AggregatedResult) string {
	for _, r := range results {
		if site, err := urlnorm.Site(r.URL); err == nil && site != "://" {
			return site
		}
	}
	return ""
}

// validateAll scores every candidate against target, researching
// not-yet-stored candidates up to opts.ResearchBudget, and returns edges
// for every candidate that clears the 2-of-3 vote.
func (d *Discoverer) validateAll(ctx context.Context, target core.Company, candidates map[string]*candidate) ([]core.SimilarityEdge, error) {
	researched := 0
	var edges []core.SimilarityEdge

	for _, c := range candidates {
		other, ok := d.resolve(ctx, c, &researched)
		if !ok {
			continue
		}

		votes := d.validate(ctx, target, *other)
		passing := 0
		var sum float64
		for _, score := range votes {
			sum += score
			if score >= d.opts.VoteThreshold {
				passing++
			}
		}
		if passing < 2 {
			continue
		}
		composite := sum / float64(len(votes))

		now := time.Now().UTC()
		edges = append(edges,
			core.SimilarityEdge{SourceID: target.ID, TargetID: other.ID, Score: composite, Votes: votes, Method: "similarity-discovery", CreatedAt: now},
			core.SimilarityEdge{SourceID: other.ID, TargetID: target.ID, Score: composite, Votes: votes, Method: "similarity-discovery", CreatedAt: now},
		)
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Score > edges[j].Score })
	return edges, nil
}

// resolve turns a raw candidate into a scorable Company, either by
// reading its stored profile or, budget permitting, running Research on
// it. Candidates the budget can't cover are dropped (reported via ok=false).
func (d *Discoverer) resolve(ctx context.Context, c *candidate, researched *int) (*core.Company, bool) {
	if c.fromStore && c.record != nil {
		embedding := make([]float64, len(c.record.Vector))
		for i, v := range c.record.Vector {
			embedding[i] = float64(v)
		}
		return &core.Company{
			ID:            c.record.ID,
			Name:          c.name,
			Website:       c.website,
			Embedding:     embedding,
			Industry:      stringField(c.record.Metadata, "industry"),
			BusinessModel: core.BusinessModel(stringField(c.record.Metadata, "business_model")),
		}, true
	}

	if c.name == "" || c.website == "" {
		return nil, false
	}
	if *researched >= d.opts.ResearchBudget || d.deps.Researcher == nil {
		return nil, false
	}
	*researched++

	jobID, err := d.deps.Researcher.Start(ctx, c.name, c.website)
	if err != nil {
		return nil, false
	}
	job, err := d.deps.Researcher.Await(ctx, jobID)
	if err != nil || job.State != core.JobCompleted {
		return nil, false
	}
	company, err := d.deps.Researcher.GetCompany(ctx, job.CompanyID)
	if err != nil || company == nil {
		return nil, false
	}
	return company, true
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func dedupeKey(name, website string) string {
	site, err := urlnorm.Site(website)
	if err != nil {
		site = strings.ToLower(strings.TrimSpace(website))
	}
	return strings.ToLower(strings.TrimSpace(name)) + "|" + site
}
