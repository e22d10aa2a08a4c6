package similarity

import (
	"context"
	"math"
	"strings"
	"testing"

	"briefly/internal/core"
	"briefly/internal/llm"
	"briefly/internal/vectorstore"
)

func TestStructuredOverlap(t *testing.T) {
	a := core.Company{
		Industry:      "saas",
		BusinessModel: core.BusinessModelB2B,
		TargetMarket:  "mid market finance teams",
		KeyServices:   []string{"invoicing", "reporting"},
		TechStack:     []string{"go", "postgres"},
	}
	b := core.Company{
		Industry:      "SaaS",
		BusinessModel: core.BusinessModelB2B,
		TargetMarket:  "mid market finance",
		KeyServices:   []string{"invoicing", "analytics"},
		TechStack:     []string{"go", "postgres"},
	}
	score := structuredOverlap(a, b)
	if score <= 0.5 {
		t.Fatalf("expected strong overlap, got %f", score)
	}
	if score > 1.0 {
		t.Fatalf("expected score clamped to <=1.0, got %f", score)
	}
}

func TestEmbeddingScoreMatchesScenarioE(t *testing.T) {
	a := core.Company{Embedding: []float64{1, 0}}
	b := core.Company{Embedding: []float64{0.82, 0.5724}}
	score := embeddingScore(a, b)
	if math.Abs(score-0.82) > 0.01 {
		t.Fatalf("expected ~0.82, got %f", score)
	}
}

func TestValidateCompositeVote(t *testing.T) {
	d := &Discoverer{opts: DefaultOptions(), deps: Deps{LLM: &stubJudge{score: 0.80}}}
	target := core.Company{
		Industry: "saas", BusinessModel: core.BusinessModelB2B,
		KeyServices: []string{"a", "b"}, Embedding: []float64{1, 0},
	}
	other := core.Company{
		Industry: "saas", BusinessModel: core.BusinessModelB2B,
		KeyServices: []string{"a", "b"}, Embedding: []float64{0.82, 0.5724},
	}
	votes := d.validate(context.Background(), target, other)
	if votes[core.MethodLLMJudge] != 0.80 {
		t.Fatalf("expected llm-judge vote 0.80, got %f", votes[core.MethodLLMJudge])
	}
	if votes[core.MethodEmbedding] < 0.8 {
		t.Fatalf("expected embedding vote near 0.82, got %f", votes[core.MethodEmbedding])
	}
}

type stubJudge struct {
	score float64
}

func (s *stubJudge) Complete(ctx context.Context, prompt string) (llm.CompletionResult, core.Metrics, error) {
	if strings.Contains(prompt, "Rate how similar") {
		return llm.CompletionResult{Text: `{"score": 0.80, "rationale": "close comparables"}`}, core.Metrics{}, nil
	}
	return llm.CompletionResult{Text: `[]`}, core.Metrics{}, nil
}

type fakeVectorGateway struct {
	neighbors []vectorstore.ScoredRecord
	metadata  map[string]map[string]any
}

func (f *fakeVectorGateway) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	return nil
}

func (f *fakeVectorGateway) Query(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredRecord, error) {
	return f.neighbors, nil
}

func (f *fakeVectorGateway) Fetch(ctx context.Context, id string) (*vectorstore.Record, error) {
	return nil, nil
}

func (f *fakeVectorGateway) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeVectorGateway) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	if f.metadata == nil {
		f.metadata = make(map[string]map[string]any)
	}
	f.metadata[id] = patch
	return nil
}

func TestDiscoverKnownModeWritesEdgeAboveThreshold(t *testing.T) {
	gateway := &fakeVectorGateway{
		neighbors: []vectorstore.ScoredRecord{
			{
				Record: vectorstore.Record{
					ID:     "company_other",
					Vector: []float32{0.82, 0.5724},
					Metadata: map[string]any{
						"name":           "Other Co",
						"website":        "https://other.test",
						"industry":       "saas",
						"business_model": "b2b",
					},
				},
				Score: 0.82,
			},
		},
	}
	d := New(Deps{Vectors: gateway, LLM: &stubJudge{score: 0.80}}, Options{})

	target := core.Company{
		ID: "company_target", Name: "Target Co", Website: "https://target.test",
		Industry: "saas", BusinessModel: core.BusinessModelB2B,
		Embedding: []float64{1, 0},
	}

	edges, err := d.DiscoverAndPersist(context.Background(), target)
	if err != nil {
		t.Fatalf("DiscoverAndPersist: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 bidirectional edges, got %d", len(edges))
	}
	for _, e := range edges {
		if e.Score < 0.70 {
			t.Fatalf("expected edge score above threshold, got %f", e.Score)
		}
	}
	if _, ok := gateway.metadata["company_target"]; !ok {
		t.Fatalf("expected similarity refs persisted for target")
	}
	if _, ok := gateway.metadata["company_other"]; !ok {
		t.Fatalf("expected similarity refs persisted for other endpoint")
	}
}

// fakeResearcher simulates the Research Orchestrator completing a job for
// whatever name/website it is given, returning a Company with a real id
// and embedding.
type fakeResearcher struct {
	company core.Company
}

func (f *fakeResearcher) Start(ctx context.Context, name, website string) (string, error) {
	return "job_" + name, nil
}

func (f *fakeResearcher) Await(ctx context.Context, jobID string) (core.ResearchJob, error) {
	return core.ResearchJob{ID: jobID, State: core.JobCompleted, CompanyID: f.company.ID}, nil
}

func (f *fakeResearcher) GetCompany(ctx context.Context, id string) (*core.Company, error) {
	c := f.company
	return &c, nil
}

func TestDiscoverUnknownModeResearchesTargetBeforeWritingEdges(t *testing.T) {
	gateway := &fakeVectorGateway{
		neighbors: []vectorstore.ScoredRecord{
			{
				Record: vectorstore.Record{
					ID:     "company_other",
					Vector: []float32{0.82, 0.5724},
					Metadata: map[string]any{
						"name":           "Other Co",
						"website":        "https://other.test",
						"industry":       "saas",
						"business_model": "b2b",
					},
				},
				Score: 0.82,
			},
		},
	}
	researcher := &fakeResearcher{company: core.Company{
		ID: "company_target", Name: "Target Co", Website: "https://target.test",
		Industry: "saas", BusinessModel: core.BusinessModelB2B,
		Embedding: []float64{1, 0},
	}}
	d := New(Deps{Vectors: gateway, LLM: &stubJudge{score: 0.80}, Researcher: researcher}, Options{})

	edges, err := d.DiscoverAndPersist(context.Background(), core.Company{Name: "Target Co", Website: "https://target.test"})
	if err != nil {
		t.Fatalf("DiscoverAndPersist: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 bidirectional edges, got %d", len(edges))
	}
	for _, e := range edges {
		if e.SourceID == "" || e.TargetID == "" {
			t.Fatalf("expected edges to reference real ids, got %+v", e)
		}
	}
	if _, ok := gateway.metadata["company_target"]; !ok {
		t.Fatalf("expected similarity refs persisted for the researched target")
	}
	if _, ok := gateway.metadata["company_other"]; !ok {
		t.Fatalf("expected similarity refs persisted for other endpoint")
	}
}

func TestDiscoverUnknownModeFailsWithoutResearcher(t *testing.T) {
	d := New(Deps{Vectors: &fakeVectorGateway{}, LLM: &stubJudge{score: 0.80}}, Options{})
	_, err := d.Discover(context.Background(), core.Company{Name: "No Researcher Co", Website: "https://none.test"})
	if err == nil {
		t.Fatalf("expected an error when unknown-mode has no Researcher configured")
	}
}
