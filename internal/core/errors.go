package core

import "fmt"

// Kind classifies a JobError so callers can branch on failure category
// without string matching.
type Kind string

const (
	// Input
	KindInvalidURL         Kind = "invalid_url"
	KindInvalidCompanyName Kind = "invalid_company_name"

	// Discovery
	KindHomepageUnreachable Kind = "homepage_unreachable"
	KindRobotsBlocked       Kind = "robots_blocked"
	KindNoCandidatesFound   Kind = "no_candidates_found"

	// Selection
	KindSelectorUnparseable    Kind = "selector_response_unparseable"
	KindSelectorEmptySelection Kind = "selector_empty_selection"

	// Fetch
	KindFetchTimeout          Kind = "fetch_timeout"
	KindFetchNetworkError     Kind = "fetch_network_error"
	KindFetchHTTPStatus       Kind = "fetch_http_status"
	KindFetchBlocked          Kind = "fetch_blocked"
	KindFetchBodyCapExceeded  Kind = "fetch_body_cap_exceeded"
	KindAllFetchesFailed      Kind = "all_fetches_failed"

	// Aggregation
	KindLLMUnparseable  Kind = "llm_unparseable"
	KindLLMRateLimited  Kind = "llm_rate_limited"
	KindLLMProviderError Kind = "llm_provider_error"
	KindContentTooLarge Kind = "content_too_large"

	// Persistence
	KindVectorDimensionMismatch Kind = "vector_dimension_mismatch"
	KindVectorUpsertFailed      Kind = "vector_upsert_failed"
	KindDocumentStoreFailed     Kind = "document_store_failed"

	// Lifecycle
	KindCancelled       Kind = "cancelled"
	KindDeadlineExceeded Kind = "deadline_exceeded"

	// Internal (not named in spec.md's taxonomy, retained for truly
	// unanticipated failures so every error path still carries a Kind)
	KindInternal Kind = "internal"
)

// JobError is the typed error returned by pipeline components, carrying a
// Kind for policy decisions (retry, fatal-vs-partial) and wrapping the
// underlying cause for %w-style inspection.
type JobError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError constructs a JobError of the given Kind.
func NewJobError(kind Kind, message string, cause error) *JobError {
	return &JobError{Kind: kind, Message: message, Err: cause}
}
