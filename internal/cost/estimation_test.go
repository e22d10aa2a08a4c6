package cost

import (
	"strings"
	"testing"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "empty string", input: "", expected: 0},
		{name: "simple text", input: "Hello world", expected: 4},
		{name: "text with newlines", input: "Line 1\nLine 2\nLine 3", expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokenCount(tt.input); got != tt.expected {
				t.Errorf("EstimateTokenCount(%q) = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPricingTableExists(t *testing.T) {
	expectedModels := []string{
		"gemini-flash-lite-latest",
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-embedding-001",
	}
	for _, model := range expectedModels {
		if _, exists := PricingTable[model]; !exists {
			t.Errorf("expected model %s to exist in PricingTable", model)
		}
	}
}

func TestLookupFallsBackToFlashLite(t *testing.T) {
	p := lookup("not-a-real-model")
	if p.Model != "gemini-flash-lite-latest" {
		t.Errorf("expected fallback to flash-lite, got %s", p.Model)
	}
}

func TestEstimateResearchCost(t *testing.T) {
	est, err := EstimateResearchCost(120, 10, 10_000, "gemini-flash-lite-latest", "gemini-embedding-001")
	if err != nil {
		t.Fatalf("EstimateResearchCost returned error: %v", err)
	}

	if est.TotalCost <= 0 {
		t.Errorf("expected positive total cost, got %f", est.TotalCost)
	}
	if est.TotalInputTokens <= 0 {
		t.Errorf("expected positive input tokens, got %d", est.TotalInputTokens)
	}
	if est.SelectorCost <= 0 || est.AggregatorCost <= 0 || est.EmbeddingCost <= 0 {
		t.Errorf("expected every phase to contribute cost: %+v", est)
	}
}

func TestEstimateResearchCostRejectsZeroSelection(t *testing.T) {
	if _, err := EstimateResearchCost(10, 0, 10_000, "gemini-flash-lite-latest", "gemini-embedding-001"); err == nil {
		t.Errorf("expected error for zero selectedPages")
	}
}

func TestEstimateResearchCostRateLimitWarning(t *testing.T) {
	est, err := EstimateResearchCost(5, 2, 1000, "gemini-2.5-pro", "gemini-embedding-001")
	if err != nil {
		t.Fatalf("EstimateResearchCost returned error: %v", err)
	}
	// 3 requests never exceeds even the lowest rate limit in the table,
	// so no warning is produced.
	if est.RateLimitWarning != "" {
		t.Errorf("did not expect a rate limit warning for 3 requests, got %q", est.RateLimitWarning)
	}
}

func TestFormatEstimate(t *testing.T) {
	est, err := EstimateResearchCost(50, 10, 10_000, "gemini-flash-lite-latest", "gemini-embedding-001")
	if err != nil {
		t.Fatalf("EstimateResearchCost returned error: %v", err)
	}
	formatted := est.FormatEstimate()
	if !strings.Contains(formatted, "Cost estimate") {
		t.Errorf("expected formatted estimate to contain header, got %q", formatted)
	}
	if !strings.Contains(formatted, "selector:") {
		t.Errorf("expected formatted estimate to contain selector line")
	}
}
