// Package core defines the domain types shared across the research
// pipeline: companies, jobs, candidate pages, fetched content and
// similarity edges.
package core

import "time"

// BusinessModel enumerates how a company primarily sells.
type BusinessModel string

const (
	BusinessModelB2B         BusinessModel = "b2b"
	BusinessModelB2C         BusinessModel = "b2c"
	BusinessModelSaaS        BusinessModel = "saas"
	BusinessModelMarketplace BusinessModel = "marketplace"
	BusinessModelServices    BusinessModel = "services"
	BusinessModelOther       BusinessModel = "other"
)

// CompanyStage enumerates the maturity of a company.
type CompanyStage string

const (
	StageStartup    CompanyStage = "startup"
	StageGrowth     CompanyStage = "growth"
	StageMature     CompanyStage = "mature"
	StageEnterprise CompanyStage = "enterprise"
)

// TechSophistication enumerates the inferred technical depth of a company.
type TechSophistication string

const (
	TechSophisticationLow    TechSophistication = "low"
	TechSophisticationMedium TechSophistication = "medium"
	TechSophisticationHigh   TechSophistication = "high"
)

// GeographicScope enumerates how broadly a company operates.
type GeographicScope string

const (
	ScopeLocal    GeographicScope = "local"
	ScopeRegional GeographicScope = "regional"
	ScopeGlobal   GeographicScope = "global"
)

// Quality marks how much confidence to place in a Company's profile fields.
type Quality string

const (
	QualityOK       Quality = "ok"
	QualityLow      Quality = "low_quality"
	QualityUnscored Quality = ""
)

// Leader is a single leadership record (name, title) extracted from a page.
type Leader struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Phase enumerates the stages of a ResearchJob.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseSelecting   Phase = "selecting"
	PhaseFetching    Phase = "fetching"
	PhaseAggregating Phase = "aggregating"
)

// Metrics accumulates token/cost accounting across a ResearchJob, mirroring
// the per-article token/cost accounting the teacher's cost package keeps,
// generalized to per-phase granularity.
type Metrics struct {
	InputTokens      int                     `json:"input_tokens"`
	OutputTokens     int                     `json:"output_tokens"`
	LLMCallCount     int                     `json:"llm_call_count"`
	EstimatedCostUSD float64                 `json:"estimated_cost_usd"`
	PhaseDurations   map[Phase]time.Duration `json:"phase_durations,omitempty"`
}

// Add folds another Metrics value into the receiver.
func (m *Metrics) Add(o Metrics) {
	m.InputTokens += o.InputTokens
	m.OutputTokens += o.OutputTokens
	m.LLMCallCount += o.LLMCallCount
	m.EstimatedCostUSD += o.EstimatedCostUSD
	if len(o.PhaseDurations) == 0 {
		return
	}
	if m.PhaseDurations == nil {
		m.PhaseDurations = make(map[Phase]time.Duration, len(o.PhaseDurations))
	}
	for phase, d := range o.PhaseDurations {
		m.PhaseDurations[phase] += d
	}
}

// Provenance records how a Company's profile came to exist: which pages
// were actually used and what it cost to produce it.
type Provenance struct {
	CrawledAt   time.Time `json:"crawled_at"`
	FetchedURLs []string  `json:"fetched_urls"`
	Metrics     Metrics   `json:"metrics"`
}

// Company is the principal artifact produced by a completed ResearchJob.
type Company struct {
	// Identity
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website"` // normalized scheme+host, canonical key

	// Classification
	Industry           string             `json:"industry,omitempty"`
	BusinessModel      BusinessModel      `json:"business_model,omitempty"`
	Stage              CompanyStage       `json:"stage,omitempty"`
	TechSophistication TechSophistication `json:"tech_sophistication,omitempty"`
	GeographicScope    GeographicScope    `json:"geographic_scope,omitempty"`

	// Profile
	Description      string   `json:"description,omitempty"`
	ValueProposition string   `json:"value_proposition,omitempty"`
	TargetMarket     string   `json:"target_market,omitempty"`
	KeyServices      []string `json:"key_services,omitempty"`
	TechStack        []string `json:"tech_stack,omitempty"`
	Leadership       []Leader `json:"leadership,omitempty"`
	Location         string   `json:"location,omitempty"`
	FoundingYear     int      `json:"founding_year,omitempty"`
	EmployeeRange    string   `json:"employee_range,omitempty"`

	// Derived
	Embedding     []float64 `json:"embedding,omitempty"`
	EmbeddingText string    `json:"embedding_text,omitempty"`

	// Quality marks whether the profile is best-effort/partial, per the
	// partial-profile-persistence decision: low-quality profiles are kept
	// (not discarded) because the embedding remains useful for similarity.
	Quality Quality `json:"quality,omitempty"`

	Provenance Provenance `json:"provenance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobState enumerates the states of the ResearchJob state machine.
type JobState string

const (
	JobQueued      JobState = "queued"
	JobDiscovering JobState = "discovering"
	JobSelecting   JobState = "selecting"
	JobFetching    JobState = "fetching"
	JobAggregating JobState = "aggregating"
	JobCompleted   JobState = "completed"
	JobFailed      JobState = "failed"
	JobCancelled   JobState = "cancelled"
)

// Terminal reports whether a JobState never transitions further.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// allowedTransitions enumerates the monotonic forward transitions a
// ResearchJob may take; failure/cancellation is reachable from any
// non-terminal state.
var allowedTransitions = map[JobState]map[JobState]bool{
	JobQueued:      {JobDiscovering: true, JobFailed: true, JobCancelled: true},
	JobDiscovering: {JobSelecting: true, JobFailed: true, JobCancelled: true},
	JobSelecting:   {JobFetching: true, JobFailed: true, JobCancelled: true},
	JobFetching:    {JobAggregating: true, JobFailed: true, JobCancelled: true},
	JobAggregating: {JobCompleted: true, JobFailed: true, JobCancelled: true},
}

// CanTransition reports whether moving from s to next is a legal
// ResearchJob state transition.
func CanTransition(s, next JobState) bool {
	if s.Terminal() {
		return false
	}
	return allowedTransitions[s][next]
}

// ResearchJob is one execution of the pipeline for one company.
type ResearchJob struct {
	ID          string   `json:"id"`
	CompanyName string   `json:"company_name"`
	Website     string   `json:"website"`
	State       JobState `json:"state"`
	CompanyID   string   `json:"company_id,omitempty"`

	PhaseStarted time.Time           `json:"phase_started,omitempty"`
	PhaseMetrics map[Phase]Metrics   `json:"phase_metrics,omitempty"`

	ErrorKind    Kind   `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// DiscoverySource enumerates where a PageCandidate's URL was found.
type DiscoverySource string

const (
	SourceSitemap   DiscoverySource = "sitemap"
	SourceRobots    DiscoverySource = "robots"
	SourceSeed      DiscoverySource = "seed"
	SourceRecursive DiscoverySource = "recursive"
)

// sourcePriority ranks discovery sources: sitemap links are most trusted,
// followed by robots-referenced resources, the seed page itself, and
// finally recursively discovered links.
var sourcePriority = map[DiscoverySource]int{
	SourceSitemap:   0,
	SourceRobots:    1,
	SourceSeed:      2,
	SourceRecursive: 3,
}

// Priority returns the ordering rank of a DiscoverySource (lower sorts first).
func (s DiscoverySource) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return len(sourcePriority)
}

// PageCandidate is a discovered URL that may be fetched by the Parallel
// Fetcher.
type PageCandidate struct {
	URL        string          `json:"url"`
	Source     DiscoverySource `json:"source"`
	Depth      int             `json:"depth"`
	Discovered time.Time       `json:"discovered"`
	AnchorText string          `json:"anchor_text,omitempty"`
}

// PageContent is the extracted main-text content of a single fetched page.
type PageContent struct {
	URL         string        `json:"url"`
	FetchedAt   time.Time     `json:"fetched_at"`
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type"`
	Text        string        `json:"text"`
	ByteLength  int           `json:"byte_length"`
	FetchedIn   time.Duration `json:"fetched_in"`
}

// FetchOutcome reports the result of fetching a single PageCandidate,
// carrying either a successful PageContent or a swallowed per-URL error
// through to the orchestrator for provenance and logging without making
// a single bad page fatal to the whole job.
type FetchOutcome struct {
	URL     string       `json:"url"`
	Content *PageContent `json:"content,omitempty"`
	Kind    Kind         `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
}

// SimilarityMethod enumerates the validation methods voted on before a
// SimilarityEdge is written.
type SimilarityMethod string

const (
	MethodStructured SimilarityMethod = "structured"
	MethodEmbedding  SimilarityMethod = "embedding"
	MethodLLMJudge   SimilarityMethod = "llm-judge"
)

// SimilarityEdge connects two companies discovered to be similar.
type SimilarityEdge struct {
	SourceID  string                       `json:"source_id"`
	TargetID  string                       `json:"target_id"`
	Score     float64                      `json:"score"`
	Votes     map[SimilarityMethod]float64 `json:"votes"`
	Method    string                       `json:"discovery_method"`
	CreatedAt time.Time                    `json:"created_at"`
}
