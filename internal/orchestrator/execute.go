package orchestrator

import (
	"context"
	"fmt"
	"time"

	"briefly/internal/core"
	"briefly/internal/urlnorm"
	"briefly/internal/vectorstore"
)

// execute runs rec's ResearchJob through discovery, selection, fetching,
// aggregation, embedding and commit, returning the persisted Company on
// success. Any returned error is already a *core.JobError carrying the
// taxonomy kind spec.md §7 assigns to that failure.
func (o *Orchestrator) execute(ctx context.Context, rec *jobRecord) (*core.Company, error) {
	rec.mu.Lock()
	name, website := rec.job.CompanyName, rec.job.Website
	rec.mu.Unlock()

	o.advance(rec, core.JobDiscovering, "discovering candidate pages")
	candidates, err := o.deps.Discoverer.Discover(ctx, website)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, core.NewJobError(core.KindNoCandidatesFound, "link discovery produced no candidate pages", nil)
	}
	o.progressf(rec, core.PhaseDiscovering, len(candidates), len(candidates), "%d candidate pages discovered", len(candidates))

	o.advance(rec, core.JobSelecting, "selecting pages worth fetching")
	selected, err := o.deps.Selector.Select(ctx, name, candidates)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, core.NewJobError(core.KindSelectorEmptySelection, "page selection produced no pages to fetch", nil)
	}
	o.progressf(rec, core.PhaseSelecting, len(selected), len(selected), "%d pages selected", len(selected))

	o.advance(rec, core.JobFetching, "fetching selected pages")
	outcomes := o.deps.Fetcher.FetchAll(ctx, selected)
	var pages []core.PageContent
	for _, out := range outcomes {
		if out.Content != nil {
			pages = append(pages, *out.Content)
		}
	}
	if len(pages) == 0 {
		return nil, core.NewJobError(core.KindAllFetchesFailed,
			fmt.Sprintf("all %d selected pages failed to fetch", len(outcomes)), nil)
	}
	o.progressf(rec, core.PhaseFetching, len(pages), len(outcomes), "%d/%d pages fetched successfully", len(pages), len(outcomes))

	o.advance(rec, core.JobAggregating, "aggregating fetched content into a profile")
	result, err := o.deps.Aggregator.Aggregate(ctx, name, pages)
	if err != nil {
		return nil, err
	}

	embedding, embedMetrics, err := o.deps.Embedder.Embed(ctx, result.EmbeddingText)
	if err != nil {
		return nil, core.NewJobError(core.KindLLMProviderError, "embedding generation failed", err)
	}

	var metrics core.Metrics
	metrics.Add(result.Metrics)
	metrics.Add(embedMetrics)

	fetchedURLs := make([]string, len(pages))
	for i, p := range pages {
		fetchedURLs[i] = p.URL
	}

	id, err := urlnorm.CompanyID(name, website)
	if err != nil {
		id = rec.job.ID
	}

	company := result.Profile
	company.ID = id
	company.Website = website
	company.Embedding = embedding.Vector
	company.Provenance = core.Provenance{
		CrawledAt:   time.Now().UTC(),
		FetchedURLs: fetchedURLs,
		Metrics:     metrics,
	}
	company.CreatedAt = time.Now().UTC()
	company.UpdatedAt = company.CreatedAt

	if err := o.commit(ctx, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

// commit persists company in the order spec.md §4.5 requires: vector
// upsert first, then the document store, with a compensating vector
// delete if the document store write fails so the two stores never
// disagree about whether a company exists.
func (o *Orchestrator) commit(ctx context.Context, company *core.Company) error {
	metadata := companyMetadata(company)
	if err := vectorstore.ValidateMetadata(metadata); err != nil {
		return err
	}

	if existing, err := o.deps.Vectors.Fetch(ctx, company.ID); err == nil && existing != nil {
		if refs, ok := existing.Metadata[vectorstore.SimilarityRefsKey]; ok {
			metadata[vectorstore.SimilarityRefsKey] = refs
		}
	}

	vector := make([]float32, len(company.Embedding))
	for i, v := range company.Embedding {
		vector[i] = float32(v)
	}

	if err := o.deps.Vectors.Upsert(ctx, company.ID, vector, metadata); err != nil {
		return core.NewJobError(core.KindVectorUpsertFailed, "failed to upsert company embedding", err)
	}

	if err := o.deps.Documents.SaveCompany(ctx, company); err != nil {
		_ = o.deps.Vectors.Delete(ctx, company.ID)
		return core.NewJobError(core.KindDocumentStoreFailed, "failed to persist company profile, rolled back vector upsert", err)
	}

	return nil
}

// companyMetadata builds the bounded scalar metadata schema (spec.md
// §4.7's ≤16 fields) carried alongside a company's embedding, used by the
// Similarity Discoverer's vector-query filters.
func companyMetadata(c *core.Company) map[string]any {
	return map[string]any{
		"name":             c.Name,
		"website":          c.Website,
		"industry":         c.Industry,
		"business_model":   string(c.BusinessModel),
		"stage":            string(c.Stage),
		"geographic_scope": string(c.GeographicScope),
		"has_leadership":   len(c.Leadership) > 0,
		"services_count":   len(c.KeyServices),
		"quality":          string(c.Quality),
		"updated_at":       c.UpdatedAt.Format(time.RFC3339),
	}
}
