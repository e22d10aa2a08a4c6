// Package orchestrator implements the Research Orchestrator (spec.md
// §4.5): it drives a ResearchJob through the
// queued→discovering→selecting→fetching→aggregating→completed state
// machine, publishes progress on the Progress/Cancellation Bus, enforces
// idempotent re-research within a staleness TTL, and commits a
// successful job's output to the Vector Store Gateway and document store
// in the all-or-nothing order spec.md §4.5 requires. Grounded on the
// teacher's internal/pipeline/pipeline.go (phase sequencing, a
// dependency-injected Config/interfaces composition) and
// internal/research/research.go (ResearchSession/ResearchStatus state
// machine), generalized from that teacher's single linear digest run
// into the eight-state ResearchJob machine of core.JobState plus
// multi-job concurrency.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"briefly/internal/aggregator"
	"briefly/internal/core"
	"briefly/internal/llm"
	"briefly/internal/progress"
	"briefly/internal/urlnorm"
	"briefly/internal/vectorstore"
)

// discoverer is the Link Discoverer's contract as the Orchestrator needs
// it (satisfied by *discovery.Discoverer).
type discoverer interface {
	Discover(ctx context.Context, baseURL string) ([]core.PageCandidate, error)
}

// pageSelector is the Page Selector's contract (satisfied by
// *selector.Selector).
type pageSelector interface {
	Select(ctx context.Context, companyName string, candidates []core.PageCandidate) ([]core.PageCandidate, error)
}

// pageFetcher is the Parallel Fetcher's contract (satisfied by
// *fetch.Fetcher).
type pageFetcher interface {
	FetchAll(ctx context.Context, candidates []core.PageCandidate) []core.FetchOutcome
}

// contentAggregator is the Content Aggregator's contract (satisfied by
// *aggregator.Aggregator).
type contentAggregator interface {
	Aggregate(ctx context.Context, companyName string, pages []core.PageContent) (*aggregator.Result, error)
}

// embedder is the embedding half of the LLM provider contract (satisfied
// by *llm.RetryingProvider).
type embedder interface {
	Embed(ctx context.Context, text string) (llm.EmbeddingResult, core.Metrics, error)
}

// DocumentStore is the full-profile persistence contract (spec.md §6's
// "Document store: one document per company id ... schemaless JSON").
type DocumentStore interface {
	SaveCompany(ctx context.Context, company *core.Company) error
	GetCompany(ctx context.Context, id string) (*core.Company, error)
	DeleteCompany(ctx context.Context, id string) error
}

// Options configures the Orchestrator's concurrency caps, deadlines and
// staleness TTL (spec.md §6's configuration surface).
type Options struct {
	MaxConcurrentJobs int
	JobDeadline       time.Duration
	StalenessTTL      time.Duration
	EmbeddingModel    string
}

// DefaultOptions returns spec.md's documented defaults: 3 concurrent
// jobs, an 8 minute job deadline, a 30 day staleness TTL.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentJobs: 3,
		JobDeadline:       8 * time.Minute,
		StalenessTTL:      30 * 24 * time.Hour,
		EmbeddingModel:    llm.DefaultEmbeddingModel,
	}
}

// Deps bundles every collaborator the Orchestrator composes, per Design
// Notes §9's "explicit container" guidance: dependencies are constructed
// once by the caller (a composition root, e.g. cmd/theodore) and injected
// here rather than reached for via package-level singletons.
type Deps struct {
	Discoverer  discoverer
	Selector    pageSelector
	Fetcher     pageFetcher
	Aggregator  contentAggregator
	Embedder    embedder
	Vectors     vectorstore.Gateway
	Documents   DocumentStore
	Bus         *progress.Bus
}

// canonicalRecord remembers the outcome of the most recent completed job
// for one canonical (name, website) key, backing the idempotent-research
// check without requiring the document store to support that query.
type canonicalRecord struct {
	companyID   string
	completedAt time.Time
}

// jobRecord is the Orchestrator's internal bookkeeping for one
// ResearchJob, including the done channel Await blocks on.
type jobRecord struct {
	mu   sync.Mutex
	job  core.ResearchJob
	done chan struct{}
}

// Orchestrator drives ResearchJobs end to end. The zero value is not
// usable; construct with New.
type Orchestrator struct {
	deps Deps
	opts Options

	sem *semaphore.Weighted

	mu             sync.Mutex
	jobs           map[string]*jobRecord
	canonical      map[string]canonicalRecord
	canonicalLocks map[string]*sync.Mutex
}

// New constructs an Orchestrator over deps, filling zero-valued Options
// from DefaultOptions.
func New(deps Deps, opts Options) *Orchestrator {
	d := DefaultOptions()
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if opts.JobDeadline <= 0 {
		opts.JobDeadline = d.JobDeadline
	}
	if opts.StalenessTTL <= 0 {
		opts.StalenessTTL = d.StalenessTTL
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = d.EmbeddingModel
	}
	return &Orchestrator{
		deps:           deps,
		opts:           opts,
		sem:            semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		jobs:           make(map[string]*jobRecord),
		canonical:      make(map[string]canonicalRecord),
		canonicalLocks: make(map[string]*sync.Mutex),
	}
}

// canonicalKey builds the dedup/staleness key for a (name, website) pair.
func canonicalKey(name, website string) (string, error) {
	return urlnorm.CanonicalKey(name, website)
}

// Start begins (or idempotently reuses) research for name/website,
// returning the id of the governing ResearchJob. If a completed job for
// the same canonical key exists within the staleness TTL, no new work is
// launched: a new, already-completed job pointing at that job's Company
// is recorded and its id returned.
func (o *Orchestrator) Start(ctx context.Context, name, website string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", core.NewJobError(core.KindInvalidCompanyName, "company name is required", nil)
	}
	key, err := canonicalKey(name, website)
	if err != nil {
		return "", core.NewJobError(core.KindInvalidURL, "invalid website URL", err)
	}

	o.mu.Lock()
	if rec, ok := o.canonical[key]; ok && time.Since(rec.completedAt) < o.opts.StalenessTTL {
		o.mu.Unlock()
		return o.reuseJobID(rec.companyID, name, website), nil
	}
	o.mu.Unlock()

	jobID := uuid.NewString()
	rec := &jobRecord{
		job: core.ResearchJob{
			ID:          jobID,
			CompanyName: name,
			Website:     website,
			State:       core.JobQueued,
			CreatedAt:   time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	o.mu.Lock()
	o.jobs[jobID] = rec
	o.mu.Unlock()

	go o.run(rec, key)

	return jobID, nil
}

// reuseJobID synthesizes a completed ResearchJob record for an
// idempotent-research hit, so Status/Await behave identically whether
// the job just ran or was reused.
func (o *Orchestrator) reuseJobID(companyID, name, website string) string {
	jobID := uuid.NewString()
	now := time.Now().UTC()
	rec := &jobRecord{
		job: core.ResearchJob{
			ID:          jobID,
			CompanyName: name,
			Website:     website,
			State:       core.JobCompleted,
			CompanyID:   companyID,
			CreatedAt:   now,
			CompletedAt: now,
		},
		done: make(chan struct{}),
	}
	close(rec.done)
	o.mu.Lock()
	o.jobs[jobID] = rec
	o.mu.Unlock()
	return jobID
}

// Status returns a snapshot of jobID's current ResearchJob.
func (o *Orchestrator) Status(jobID string) (core.ResearchJob, error) {
	rec, ok := o.lookup(jobID)
	if !ok {
		return core.ResearchJob{}, fmt.Errorf("unknown job %q", jobID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// Cancel requests cancellation of jobID, returning "cancelled" if the
// job was live or "already_terminal" if it had already reached a
// terminal state.
func (o *Orchestrator) Cancel(jobID string) (string, error) {
	rec, ok := o.lookup(jobID)
	if !ok {
		return "", fmt.Errorf("unknown job %q", jobID)
	}
	rec.mu.Lock()
	terminal := rec.job.State.Terminal()
	rec.mu.Unlock()
	if terminal {
		return "already_terminal", nil
	}
	if o.deps.Bus != nil {
		o.deps.Bus.Cancel(jobID)
	}
	return "cancelled", nil
}

// Await blocks until jobID reaches a terminal state (or ctx is done) and
// returns its final ResearchJob.
func (o *Orchestrator) Await(ctx context.Context, jobID string) (core.ResearchJob, error) {
	rec, ok := o.lookup(jobID)
	if !ok {
		return core.ResearchJob{}, fmt.Errorf("unknown job %q", jobID)
	}
	select {
	case <-rec.done:
	case <-ctx.Done():
		return core.ResearchJob{}, ctx.Err()
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// GetCompany fetches a previously researched company's full profile from
// the document store.
func (o *Orchestrator) GetCompany(ctx context.Context, id string) (*core.Company, error) {
	return o.deps.Documents.GetCompany(ctx, id)
}

func (o *Orchestrator) lookup(jobID string) (*jobRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.jobs[jobID]
	return rec, ok
}

// canonicalLock returns (creating if necessary) the mutex serializing
// jobs for one canonical company, per spec.md §5's "one in-flight job per
// canonical company" shared-resource policy.
func (o *Orchestrator) canonicalLock(key string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.canonicalLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.canonicalLocks[key] = lock
	}
	return lock
}

// run executes one ResearchJob's full pipeline to a terminal state. It is
// always invoked as a goroutine from Start.
func (o *Orchestrator) run(rec *jobRecord, key string) {
	lock := o.canonicalLock(key)
	lock.Lock()
	defer lock.Unlock()

	defer close(rec.done)
	if o.deps.Bus != nil {
		defer o.deps.Bus.Release(rec.job.ID)
	}

	ctx := context.Background()
	if o.deps.Bus != nil {
		cancel := o.deps.Bus.TokenFor(rec.job.ID)
		var cc context.CancelFunc
		ctx, cc = context.WithCancel(ctx)
		defer cc()
		go func() {
			select {
			case <-cancel.Done():
				cc()
			case <-ctx.Done():
			}
		}()
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.JobDeadline)
	defer cancel()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(rec, core.KindDeadlineExceeded, "job deadline exceeded while waiting to start", err)
		return
	}
	defer o.sem.Release(1)

	company, err := o.execute(ctx, rec)
	if err != nil {
		jerr, ok := err.(*core.JobError)
		if !ok {
			jerr = core.NewJobError(core.KindInternal, "research failed", err)
		}
		if ctx.Err() != nil && jerr.Kind != core.KindDeadlineExceeded {
			if o.cancelled(rec.job.ID) {
				o.terminal(rec, core.JobCancelled, core.KindCancelled, "research cancelled")
				return
			}
			o.terminal(rec, core.JobFailed, core.KindDeadlineExceeded, "job deadline exceeded")
			return
		}
		o.terminal(rec, core.JobFailed, jerr.Kind, jerr.Message)
		return
	}

	rec.mu.Lock()
	rec.job.CompanyID = company.ID
	rec.mu.Unlock()
	o.terminal(rec, core.JobCompleted, "", "")

	now := time.Now().UTC()
	o.mu.Lock()
	o.canonical[key] = canonicalRecord{companyID: company.ID, completedAt: now}
	o.mu.Unlock()
}

func (o *Orchestrator) cancelled(jobID string) bool {
	if o.deps.Bus == nil {
		return false
	}
	return o.deps.Bus.TokenFor(jobID).Cancelled()
}

// fail is a convenience for failures before the state machine starts
// (e.g. the global concurrency wait itself timing out).
func (o *Orchestrator) fail(rec *jobRecord, kind core.Kind, msg string, cause error) {
	o.terminal(rec, core.JobFailed, kind, msg)
}

// terminal transitions rec to state exactly once, records the error
// (if any) and publishes exactly one TerminalEvent.
func (o *Orchestrator) terminal(rec *jobRecord, state core.JobState, kind core.Kind, msg string) {
	rec.mu.Lock()
	rec.job.State = state
	rec.job.ErrorKind = kind
	rec.job.ErrorMessage = msg
	rec.job.CompletedAt = time.Now().UTC()
	rec.mu.Unlock()

	if o.deps.Bus != nil {
		o.deps.Bus.Publish(progress.TerminalEvent{
			JobID:        rec.job.ID,
			State:        state,
			ErrorKind:    kind,
			ErrorMessage: msg,
			Timestamp:    time.Now().UTC(),
		})
	}
}

// advance transitions rec to next (which must be a legal transition from
// its current state) and publishes a phase-boundary ProgressEvent.
func (o *Orchestrator) advance(rec *jobRecord, next core.JobState, message string) {
	rec.mu.Lock()
	rec.job.State = next
	rec.job.PhaseStarted = time.Now().UTC()
	rec.mu.Unlock()

	if o.deps.Bus != nil {
		o.deps.Bus.Publish(progress.ProgressEvent{
			JobID:     rec.job.ID,
			Phase:     phaseOf(next),
			Message:   message,
			Timestamp: time.Now().UTC(),
		})
	}
}

// progressf publishes a sub-phase milestone event (e.g. "12/47 pages
// fetched") without changing job state.
func (o *Orchestrator) progressf(rec *jobRecord, phase core.Phase, current, total int, format string, args ...any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(progress.ProgressEvent{
		JobID:     rec.job.ID,
		Phase:     phase,
		Message:   fmt.Sprintf(format, args...),
		Current:   current,
		Total:     total,
		Timestamp: time.Now().UTC(),
	})
}

func phaseOf(state core.JobState) core.Phase {
	switch state {
	case core.JobDiscovering:
		return core.PhaseDiscovering
	case core.JobSelecting:
		return core.PhaseSelecting
	case core.JobFetching:
		return core.PhaseFetching
	case core.JobAggregating:
		return core.PhaseAggregating
	default:
		return ""
	}
}
