package search

import "errors"

var (
	// ErrMissingAPIKey is returned when a provider is constructed without
	// a required API key.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrMissingSearchID is returned when Google Custom Search is
	// constructed without its required search engine id (cx).
	ErrMissingSearchID = errors.New("search ID is required")
)
