// Package vectorstore implements the Vector Store Gateway (spec.md §4.7):
// company embedding storage, cosine-ranked nearest-neighbor query, and the
// bounded per-company similarity-edge list that internal/similarity
// persists. Grounded on
// _examples/Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go, using
// github.com/qdrant/go-client against a Qdrant collection instead of that
// teacher's generic document-store abstraction.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"briefly/internal/core"
)

// MaxMetadataFields bounds the number of scalar metadata fields a Gateway
// implementation will accept per point, per spec.md §4.7.
const MaxMetadataFields = 16

// MaxSimilarityRefs bounds the bidirectional similarity-edge list spec.md
// §4.6/§4.7 allow a single company record to carry.
const MaxSimilarityRefs = 50

// SimilarityRefsKey is the metadata field the bounded similarity-edge list
// is stored under. It does not count against MaxMetadataFields: it is
// Gateway-managed, not caller-supplied profile data.
const SimilarityRefsKey = "similar_companies"

// SimilarityRef is one edge in a company's bounded similarity list.
type SimilarityRef struct {
	TargetID string  `json:"target_id"`
	Score    float64 `json:"score"`
	Method   string  `json:"method"`
}

// Record is a single stored embedding plus its scalar metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// ScoredRecord is a Record returned from a similarity query, ranked by
// cosine score descending with id-lexicographic tie-break.
type ScoredRecord struct {
	Record
	Score float64
}

// Filter expresses the conjunctive scalar-equality / set-membership
// predicates spec.md §4.7 requires Query to support. A nil or empty Filter
// matches every point. Equals values are compared for exact equality;
// In values match if the stored scalar is a member of the given set.
type Filter struct {
	Equals map[string]any
	In     map[string][]any
}

// Gateway is the Vector Store Gateway's Control API (spec.md §4.7).
type Gateway interface {
	// Upsert writes or replaces the embedding and metadata for id. It
	// returns core.KindVectorDimensionMismatch if vector's length does not
	// match the collection's configured dimension.
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error

	// Query returns the k nearest neighbors to vector, ranked by cosine
	// similarity descending (ties broken by id ascending), restricted to
	// points matching filter.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredRecord, error)

	// Fetch returns the stored Record for id, or (nil, nil) if absent.
	Fetch(ctx context.Context, id string) (*Record, error)

	// Delete removes id's point entirely.
	Delete(ctx context.Context, id string) error

	// UpdateMetadata merges patch into id's existing metadata payload
	// without touching its vector. Keys in patch overwrite existing keys.
	UpdateMetadata(ctx context.Context, id string, patch map[string]any) error
}

// ValidateMetadata enforces the ≤16 scalar-field schema bound. Callers pass
// their profile metadata before merging in the Gateway-managed similarity
// list, which is exempt.
func ValidateMetadata(metadata map[string]any) error {
	count := 0
	for key := range metadata {
		if key == SimilarityRefsKey {
			continue
		}
		count++
	}
	if count > MaxMetadataFields {
		return core.NewJobError(core.KindVectorUpsertFailed,
			fmt.Sprintf("metadata has %d fields, exceeds the %d-field limit", count, MaxMetadataFields), nil)
	}
	return nil
}

// EncodeSimilarityRefs truncates refs to MaxSimilarityRefs (keeping the
// highest-scoring edges) and renders them into the plain-value shape the
// Gateway's payload encoding expects.
func EncodeSimilarityRefs(refs []SimilarityRef) []any {
	sorted := make([]SimilarityRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > MaxSimilarityRefs {
		sorted = sorted[:MaxSimilarityRefs]
	}
	out := make([]any, len(sorted))
	for i, r := range sorted {
		out[i] = map[string]any{
			"target_id": r.TargetID,
			"score":     r.Score,
			"method":    r.Method,
		}
	}
	return out
}

// DecodeSimilarityRefs is the inverse of EncodeSimilarityRefs, tolerant of
// the any-typed values a round trip through Qdrant's payload conversion
// produces (float64 scores, map[string]any edges).
func DecodeSimilarityRefs(raw any) []SimilarityRef {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	refs := make([]SimilarityRef, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ref := SimilarityRef{}
		if v, ok := m["target_id"].(string); ok {
			ref.TargetID = v
		}
		switch v := m["score"].(type) {
		case float64:
			ref.Score = v
		case float32:
			ref.Score = float64(v)
		case int64:
			ref.Score = float64(v)
		}
		if v, ok := m["method"].(string); ok {
			ref.Method = v
		}
		if ref.TargetID != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
