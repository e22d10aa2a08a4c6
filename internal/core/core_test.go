package core

import (
	"testing"
	"time"
)

func TestCompanyCreation(t *testing.T) {
	now := time.Now()
	company := Company{
		ID:            "company-1",
		Name:          "Acme Robotics",
		Website:       "https://acme.example.com",
		Industry:      "Industrial Automation",
		BusinessModel: BusinessModelB2B,
		Stage:         StageGrowth,
		KeyServices:   []string{"warehouse robots", "fleet management"},
		TechStack:     []string{"Go", "Kubernetes"},
		Embedding:     []float64{0.1, 0.2, 0.3},
		Quality:       QualityOK,
		Provenance: Provenance{
			CrawledAt:   now,
			FetchedURLs: []string{"https://acme.example.com", "https://acme.example.com/about"},
		},
		CreatedAt: now,
	}

	if company.ID != "company-1" {
		t.Errorf("expected ID company-1, got %s", company.ID)
	}
	if company.BusinessModel != BusinessModelB2B {
		t.Errorf("expected business model b2b, got %s", company.BusinessModel)
	}
	if len(company.KeyServices) != 2 {
		t.Errorf("expected 2 key services, got %d", len(company.KeyServices))
	}
	if len(company.Embedding) != 3 {
		t.Errorf("expected embedding length 3, got %d", len(company.Embedding))
	}
	if len(company.Provenance.FetchedURLs) != 2 {
		t.Errorf("expected 2 fetched urls, got %d", len(company.Provenance.FetchedURLs))
	}
}

func TestMetricsAdd(t *testing.T) {
	a := Metrics{
		InputTokens:      100,
		OutputTokens:     50,
		LLMCallCount:     1,
		EstimatedCostUSD: 0.001,
		PhaseDurations:   map[Phase]time.Duration{PhaseDiscovering: time.Second},
	}
	b := Metrics{
		InputTokens:      200,
		OutputTokens:     75,
		LLMCallCount:     2,
		EstimatedCostUSD: 0.002,
		PhaseDurations:   map[Phase]time.Duration{PhaseDiscovering: time.Second, PhaseSelecting: 2 * time.Second},
	}

	a.Add(b)

	if a.InputTokens != 300 {
		t.Errorf("expected 300 input tokens, got %d", a.InputTokens)
	}
	if a.OutputTokens != 125 {
		t.Errorf("expected 125 output tokens, got %d", a.OutputTokens)
	}
	if a.LLMCallCount != 3 {
		t.Errorf("expected 3 llm calls, got %d", a.LLMCallCount)
	}
	if a.PhaseDurations[PhaseDiscovering] != 2*time.Second {
		t.Errorf("expected discovering duration 2s, got %s", a.PhaseDurations[PhaseDiscovering])
	}
	if a.PhaseDurations[PhaseSelecting] != 2*time.Second {
		t.Errorf("expected selecting duration 2s, got %s", a.PhaseDurations[PhaseSelecting])
	}
}

func TestJobStateTransitions(t *testing.T) {
	cases := []struct {
		from, to JobState
		want     bool
	}{
		{JobQueued, JobDiscovering, true},
		{JobQueued, JobFetching, false},
		{JobDiscovering, JobSelecting, true},
		{JobSelecting, JobFetching, true},
		{JobFetching, JobAggregating, true},
		{JobAggregating, JobCompleted, true},
		{JobCompleted, JobDiscovering, false},
		{JobFailed, JobDiscovering, false},
		{JobFetching, JobCancelled, true},
	}

	for _, c := range cases {
		got := CanTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	terminal := []JobState{JobCompleted, JobFailed, JobCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []JobState{JobQueued, JobDiscovering, JobSelecting, JobFetching, JobAggregating}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestDiscoverySourcePriority(t *testing.T) {
	if SourceSitemap.Priority() >= SourceRobots.Priority() {
		t.Errorf("expected sitemap to outrank robots")
	}
	if SourceRobots.Priority() >= SourceSeed.Priority() {
		t.Errorf("expected robots to outrank seed")
	}
	if SourceSeed.Priority() >= SourceRecursive.Priority() {
		t.Errorf("expected seed to outrank recursive")
	}
}

func TestPageCandidateCreation(t *testing.T) {
	now := time.Now()
	pc := PageCandidate{
		URL:        "https://acme.example.com/team",
		Source:     SourceSitemap,
		Depth:      1,
		Discovered: now,
		AnchorText: "Our Team",
	}

	if pc.URL != "https://acme.example.com/team" {
		t.Errorf("unexpected URL: %s", pc.URL)
	}
	if pc.Source != SourceSitemap {
		t.Errorf("expected sitemap source, got %s", pc.Source)
	}
}

func TestSimilarityEdgeVotes(t *testing.T) {
	edge := SimilarityEdge{
		SourceID: "a",
		TargetID: "b",
		Score:    0.82,
		Votes: map[SimilarityMethod]float64{
			MethodStructured: 0.7,
			MethodEmbedding:  0.9,
			MethodLLMJudge:   0.85,
		},
	}

	if len(edge.Votes) != 3 {
		t.Errorf("expected 3 votes, got %d", len(edge.Votes))
	}
	if edge.Votes[MethodEmbedding] != 0.9 {
		t.Errorf("expected embedding vote 0.9, got %f", edge.Votes[MethodEmbedding])
	}
}
