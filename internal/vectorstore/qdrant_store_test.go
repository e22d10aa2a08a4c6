package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"briefly/internal/core"
)

func TestValidateMetadataRejectsOverLimit(t *testing.T) {
	metadata := make(map[string]any, MaxMetadataFields+1)
	for i := 0; i < MaxMetadataFields+1; i++ {
		metadata[string(rune('a'+i))] = i
	}
	err := ValidateMetadata(metadata)
	if err == nil {
		t.Fatal("expected error for metadata exceeding field limit")
	}
	jobErr, ok := err.(*core.JobError)
	if !ok {
		t.Fatalf("expected *core.JobError, got %T", err)
	}
	if jobErr.Kind != core.KindVectorUpsertFailed {
		t.Errorf("expected KindVectorUpsertFailed, got %s", jobErr.Kind)
	}
}

func TestValidateMetadataIgnoresSimilarityRefsKey(t *testing.T) {
	metadata := make(map[string]any, MaxMetadataFields)
	for i := 0; i < MaxMetadataFields; i++ {
		metadata[string(rune('a'+i))] = i
	}
	metadata[SimilarityRefsKey] = []any{"irrelevant"}

	if err := ValidateMetadata(metadata); err != nil {
		t.Errorf("did not expect error, similarity refs key should not count toward the limit: %v", err)
	}
}

func TestEncodeSimilarityRefsTruncatesAndSortsByScore(t *testing.T) {
	refs := make([]SimilarityRef, MaxSimilarityRefs+5)
	for i := range refs {
		refs[i] = SimilarityRef{TargetID: string(rune('a' + i%26)), Score: float64(i), Method: "vector"}
	}

	encoded := EncodeSimilarityRefs(refs)
	if len(encoded) != MaxSimilarityRefs {
		t.Fatalf("expected encoding to truncate to %d entries, got %d", MaxSimilarityRefs, len(encoded))
	}

	first, ok := encoded[0].(map[string]any)
	if !ok {
		t.Fatalf("expected encoded entry to be map[string]any, got %T", encoded[0])
	}
	if first["score"].(float64) < encoded[1].(map[string]any)["score"].(float64) {
		t.Errorf("expected encoded refs sorted by score descending")
	}
}

func TestSimilarityRefsRoundTrip(t *testing.T) {
	refs := []SimilarityRef{
		{TargetID: "company-a", Score: 0.91, Method: "composite"},
		{TargetID: "company-b", Score: 0.74, Method: "vector"},
	}

	encoded := EncodeSimilarityRefs(refs)
	decoded := DecodeSimilarityRefs(encoded)

	if len(decoded) != len(refs) {
		t.Fatalf("expected %d refs after round trip, got %d", len(refs), len(decoded))
	}
	if decoded[0].TargetID != "company-a" || decoded[0].Method != "composite" {
		t.Errorf("round trip lost fields: %+v", decoded[0])
	}
}

func TestDecodeSimilarityRefsToleratesWrongShape(t *testing.T) {
	if got := DecodeSimilarityRefs("not a list"); got != nil {
		t.Errorf("expected nil for malformed input, got %v", got)
	}
}

func TestConvertValueScalars(t *testing.T) {
	strVal, _ := qdrant.NewValue("hello")
	if got := convertValue(strVal); got != "hello" {
		t.Errorf("expected string round trip, got %v", got)
	}

	boolVal, _ := qdrant.NewValue(true)
	if got := convertValue(boolVal); got != true {
		t.Errorf("expected bool round trip, got %v", got)
	}

	if got := convertValue(nil); got != nil {
		t.Errorf("expected nil for nil value, got %v", got)
	}
}

func TestConvertPayloadRoundTripsNestedList(t *testing.T) {
	payload, err := qdrant.TryValueMap(map[string]any{
		"business_model": "b2b_saas",
		"employee_count": 42,
		SimilarityRefsKey: []any{
			map[string]any{"target_id": "company-a", "score": 0.9, "method": "composite"},
		},
	})
	if err != nil {
		t.Fatalf("TryValueMap failed: %v", err)
	}

	metadata := convertPayload(payload)
	if metadata["business_model"] != "b2b_saas" {
		t.Errorf("expected business_model to round trip, got %v", metadata["business_model"])
	}

	refs := DecodeSimilarityRefs(metadata[SimilarityRefsKey])
	if len(refs) != 1 || refs[0].TargetID != "company-a" {
		t.Errorf("expected similarity refs to round trip through payload conversion, got %+v", refs)
	}
}

func TestBuildFilterCombinesEqualsAndIn(t *testing.T) {
	f := Filter{
		Equals: map[string]any{"business_model": "b2b_saas"},
		In:     map[string][]any{"geographic_scope": {"us", "eu"}},
	}
	filter := buildFilter(f)
	if filter == nil {
		t.Fatal("expected non-nil filter")
	}
	if len(filter.Must) != 2 {
		t.Errorf("expected 2 Must conditions, got %d", len(filter.Must))
	}
}

func TestBuildFilterEmptyReturnsNil(t *testing.T) {
	if got := buildFilter(Filter{}); got != nil {
		t.Errorf("expected nil filter for empty Filter, got %+v", got)
	}
}
