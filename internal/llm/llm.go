// Package llm implements the LLM provider contract: chat completion and
// embedding generation against Gemini, with defensive JSON parsing for
// downstream components that need structured output from free-text
// completions.
package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini chat model.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default Gemini embedding model.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the Matryoshka-truncated output
	// dimension for embeddings, within spec.md's 1024-1536 range.
	DefaultEmbeddingDimensions = int32(1536)
)

// CompletionResult is the outcome of one chat-completion call.
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// EmbeddingResult is the outcome of one embedding call.
type EmbeddingResult struct {
	Vector      []float64
	InputTokens int
}

// Provider is the contract every component (selector, aggregator,
// similarity) programs against, so the concrete Gemini client can be
// swapped or wrapped (see RetryingProvider) without touching callers.
type Provider interface {
	Complete(ctx context.Context, prompt string) (CompletionResult, error)
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// GeminiProvider implements Provider against google.golang.org/genai.
type GeminiProvider struct {
	modelName          string
	embeddingModel     string
	embeddingDims      int32
	client             *genai.Client
}

// NewGeminiProvider creates a Gemini-backed Provider. The API key is
// resolved from GEMINI_API_KEY, then GOOGLE_GEMINI_API_KEY, then
// GOOGLE_AI_API_KEY, then the viper key "gemini.api_key".
func NewGeminiProvider(modelName string) (*GeminiProvider, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in config")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		modelName:      modelName,
		embeddingModel: DefaultEmbeddingModel,
		embeddingDims:  DefaultEmbeddingDimensions,
		client:         client,
	}, nil
}

// Complete issues a single-turn chat completion.
func (g *GeminiProvider) Complete(ctx context.Context, prompt string) (CompletionResult, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return CompletionResult{}, fmt.Errorf("empty response from model")
	}

	result := CompletionResult{Text: text}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// Embed generates a Matryoshka-truncated embedding vector for text.
func (g *GeminiProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	dims := g.embeddingDims
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return EmbeddingResult{}, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}

	return EmbeddingResult{Vector: vector, InputTokens: estimateTokens(text)}, nil
}

// Close releases the underlying client's resources.
func (g *GeminiProvider) Close() {}

// estimateTokens heuristically estimates token count at ~3.5 characters
// per token, used where the API does not return usage metadata (the
// embedding endpoint).
func estimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 3.5))
}

// CosineSimilarity computes the cosine similarity between two vectors of
// equal length, clamped to [0,1] as required by similarity scoring.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// ExtractJSON strips a leading/trailing markdown code fence (```json ...
// ``` or ``` ... ```) and returns the substring spanning the outermost
// JSON object or array, tolerating trailing commentary after it. It
// returns an error if no balanced JSON structure is found.
func ExtractJSON(response string) (string, error) {
	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	var start int
	var open, close byte
	switch {
	case objStart == -1 && arrStart == -1:
		return "", fmt.Errorf("no JSON object or array found in response")
	case objStart == -1:
		start, open, close = arrStart, '[', ']'
	case arrStart == -1:
		start, open, close = objStart, '{', '}'
	case objStart < arrStart:
		start, open, close = objStart, '{', '}'
	default:
		start, open, close = arrStart, '[', ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON structure in response")
}
