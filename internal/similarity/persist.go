package similarity

import (
	"context"

	"briefly/internal/core"
	"briefly/internal/vectorstore"
)

// DiscoverAndPersist runs Discover for company and writes the resulting
// edges into every endpoint's bounded similarity-ref list, grouped by
// source id so each endpoint's list is replaced exactly once.
func (d *Discoverer) DiscoverAndPersist(ctx context.Context, company core.Company) ([]core.SimilarityEdge, error) {
	edges, err := d.Discover(ctx, company)
	if err != nil {
		return nil, err
	}

	byEndpoint := make(map[string][]vectorstore.SimilarityRef)
	for _, e := range edges {
		byEndpoint[e.SourceID] = append(byEndpoint[e.SourceID], vectorstore.SimilarityRef{
			TargetID: e.TargetID,
			Score:    e.Score,
			Method:   e.Method,
		})
	}

	for endpoint, refs := range byEndpoint {
		if err := d.persistRefs(ctx, endpoint, refs); err != nil {
			return edges, err
		}
	}
	return edges, nil
}

// persistRefs replaces endpoint's bounded similarity-ref list via the
// Vector Store Gateway — the "replace-all" semantics spec.md leaves open,
// resolved here because a stale edge, unlike a stale embedding, has no
// way to be detected as outdated except by rediscovery.
func (d *Discoverer) persistRefs(ctx context.Context, endpoint string, refs []vectorstore.SimilarityRef) error {
	return d.deps.Vectors.UpdateMetadata(ctx, endpoint, map[string]any{
		vectorstore.SimilarityRefsKey: vectorstore.EncodeSimilarityRefs(refs),
	})
}
