package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"briefly/internal/aggregator"
	"briefly/internal/core"
	"briefly/internal/llm"
	"briefly/internal/progress"
	"briefly/internal/vectorstore"
)

type fakeDiscoverer struct {
	candidates []core.PageCandidate
	err        error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, baseURL string) ([]core.PageCandidate, error) {
	return f.candidates, f.err
}

type fakeSelector struct {
	selected []core.PageCandidate
	err      error
}

func (f *fakeSelector) Select(ctx context.Context, companyName string, candidates []core.PageCandidate) ([]core.PageCandidate, error) {
	return f.selected, f.err
}

type fakeFetcher struct {
	outcomes []core.FetchOutcome
}

func (f *fakeFetcher) FetchAll(ctx context.Context, candidates []core.PageCandidate) []core.FetchOutcome {
	return f.outcomes
}

type fakeAggregator struct {
	result *aggregator.Result
	err    error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, companyName string, pages []core.PageContent) (*aggregator.Result, error) {
	return f.result, f.err
}

type fakeMemoryVectors struct {
	mu      sync.Mutex
	records map[string]vectorstore.Record
}

func newFakeVectors() *fakeMemoryVectors {
	return &fakeMemoryVectors{records: make(map[string]vectorstore.Record)}
}

func (v *fakeMemoryVectors) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records[id] = vectorstore.Record{ID: id, Vector: vector, Metadata: metadata}
	return nil
}

func (v *fakeMemoryVectors) Query(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredRecord, error) {
	return nil, nil
}

func (v *fakeMemoryVectors) Fetch(ctx context.Context, id string) (*vectorstore.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (v *fakeMemoryVectors) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, id)
	return nil
}

func (v *fakeMemoryVectors) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec := v.records[id]
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any)
	}
	for k, val := range patch {
		rec.Metadata[k] = val
	}
	v.records[id] = rec
	return nil
}

type fakeDocStore struct {
	mu        sync.Mutex
	companies map[string]*core.Company
	saveErr   error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{companies: make(map[string]*core.Company)}
}

func (d *fakeDocStore) SaveCompany(ctx context.Context, c *core.Company) error {
	if d.saveErr != nil {
		return d.saveErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *c
	d.companies[c.ID] = &cp
	return nil
}

func (d *fakeDocStore) GetCompany(ctx context.Context, id string) (*core.Company, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.companies[id], nil
}

func (d *fakeDocStore) DeleteCompany(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.companies, id)
	return nil
}

// realEmbedder satisfies the orchestrator's embedder interface directly.
type realEmbedder struct {
	vector []float64
	err    error
}

func (r *realEmbedder) Embed(ctx context.Context, text string) (llm.EmbeddingResult, core.Metrics, error) {
	return llm.EmbeddingResult{Vector: r.vector}, core.Metrics{LLMCallCount: 1}, r.err
}

func happyDeps(vectors *fakeMemoryVectors, docs *fakeDocStore) Deps {
	return Deps{
		Discoverer: &fakeDiscoverer{candidates: []core.PageCandidate{{URL: "https://acme.test/"}}},
		Selector:   &fakeSelector{selected: []core.PageCandidate{{URL: "https://acme.test/"}}},
		Fetcher: &fakeFetcher{outcomes: []core.FetchOutcome{
			{URL: "https://acme.test/", Content: &core.PageContent{URL: "https://acme.test/", Text: "Acme makes widgets."}},
		}},
		Aggregator: &fakeAggregator{result: &aggregator.Result{
			Profile:       core.Company{Name: "Acme", Industry: "widgets"},
			EmbeddingText: "Acme. widgets.",
			Quality:       core.QualityOK,
		}},
		Embedder: &realEmbedder{vector: []float64{0.1, 0.2, 0.3}},
		Vectors:  vectors,
		Documents: docs,
		Bus:      progress.NewBus(),
	}
}

func TestOrchestratorHappyPath(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	o := New(happyDeps(vectors, docs), Options{JobDeadline: time.Second})

	jobID, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	job, err := o.Await(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if job.State != core.JobCompleted {
		t.Fatalf("expected completed, got %s (%s: %s)", job.State, job.ErrorKind, job.ErrorMessage)
	}
	if job.CompanyID == "" {
		t.Fatalf("expected CompanyID to be set")
	}

	company, err := o.GetCompany(context.Background(), job.CompanyID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if company == nil || company.Name != "Acme" {
		t.Fatalf("expected persisted company named Acme, got %+v", company)
	}
	if len(company.Embedding) != 3 {
		t.Fatalf("expected embedding to be persisted, got %v", company.Embedding)
	}
}

func TestOrchestratorIdempotentReuse(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	o := New(happyDeps(vectors, docs), Options{JobDeadline: time.Second, StalenessTTL: time.Hour})

	first, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := o.Await(context.Background(), first); err != nil {
		t.Fatalf("Await: %v", err)
	}

	second, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	job, err := o.Await(context.Background(), second)
	if err != nil {
		t.Fatalf("Await second: %v", err)
	}
	if job.State != core.JobCompleted {
		t.Fatalf("expected reused job to already be completed, got %s", job.State)
	}
}

func TestOrchestratorSelectorFailureIsFatal(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	deps := happyDeps(vectors, docs)
	deps.Selector = &fakeSelector{selected: nil}
	o := New(deps, Options{JobDeadline: time.Second})

	jobID, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job, err := o.Await(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if job.State != core.JobFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if job.ErrorKind != core.KindSelectorEmptySelection {
		t.Fatalf("expected %s, got %s", core.KindSelectorEmptySelection, job.ErrorKind)
	}
}

func TestOrchestratorAllFetchesFailedIsFatal(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	deps := happyDeps(vectors, docs)
	deps.Fetcher = &fakeFetcher{outcomes: []core.FetchOutcome{
		{URL: "https://acme.test/", Kind: core.KindFetchTimeout, Message: "timed out"},
	}}
	o := New(deps, Options{JobDeadline: time.Second})

	jobID, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job, err := o.Await(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if job.ErrorKind != core.KindAllFetchesFailed {
		t.Fatalf("expected %s, got %s", core.KindAllFetchesFailed, job.ErrorKind)
	}
}

func TestOrchestratorDocumentStoreFailureRollsBackVector(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	docs.saveErr = context.DeadlineExceeded
	o := New(happyDeps(vectors, docs), Options{JobDeadline: time.Second})

	jobID, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job, err := o.Await(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if job.ErrorKind != core.KindDocumentStoreFailed {
		t.Fatalf("expected %s, got %s", core.KindDocumentStoreFailed, job.ErrorKind)
	}
	if len(vectors.records) != 0 {
		t.Fatalf("expected compensating delete to remove the vector record, found %d", len(vectors.records))
	}
}

func TestOrchestratorCancel(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocStore()
	o := New(happyDeps(vectors, docs), Options{JobDeadline: time.Second})

	jobID, err := o.Start(context.Background(), "Acme", "https://acme.test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := o.Cancel(jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := o.Await(context.Background(), jobID); err != nil {
		t.Fatalf("Await: %v", err)
	}
	status, err := o.Cancel(jobID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if status != "already_terminal" {
		t.Fatalf("expected already_terminal, got %s", status)
	}
}
