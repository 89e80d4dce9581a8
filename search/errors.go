package search

import "fmt"

// ValidationError reports bad caller input, detected before any network
// activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InstanceUnavailableError means no instance satisfies the selection
// policy, or the client was used after Close.
type InstanceUnavailableError struct {
	Reason string
}

func (e *InstanceUnavailableError) Error() string {
	return "instance unavailable: " + e.Reason
}

// NetworkError is a transport failure that persisted past the retry
// budget, including timeouts.
type NetworkError struct {
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network error (timeout): %v", e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is rate limiting that persisted past the retry budget.
type RateLimitError struct {
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// SearchError means the backend rejected the request outright (a non-429
// 4xx status) or returned a payload that cannot be interpreted at all.
// Individual malformed result entries never cause a SearchError; they
// are skipped during parsing.
type SearchError struct {
	Reason string
	Err    error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed: %s: %v", e.Reason, e.Err)
	}
	return "search failed: " + e.Reason
}

func (e *SearchError) Unwrap() error { return e.Err }
