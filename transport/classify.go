package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"serxng/retry"
	"serxng/search"
)

// Classify maps one raw attempt to a retry outcome. Classification is
// decided from the status code alone, before any parsing: 429 is rate
// limiting (honoring Retry-After when present), other 4xx are fatal,
// everything else that is not a 2xx is transient. Transport-level
// failures (connection, DNS, timeout) are transient.
func Classify(resp *Response, err error) retry.Outcome[*Response] {
	if err != nil {
		return retry.Outcome[*Response]{Kind: retry.Transient, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.Outcome[*Response]{
			Kind:       retry.RateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("instance rate limited the request (HTTP 429)"),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Outcome[*Response]{
			Kind: retry.Fatal,
			Err:  &search.SearchError{Reason: fmt.Sprintf("instance rejected the request (HTTP %d)", resp.StatusCode)},
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return retry.Outcome[*Response]{Kind: retry.Success, Payload: resp}
	default:
		return retry.Outcome[*Response]{
			Kind: retry.Transient,
			Err:  fmt.Errorf("instance returned HTTP %d", resp.StatusCode),
		}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
// Nil means no usable hint; an explicit "0" (or a date already in the
// past) is a hint to retry immediately.
func parseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		return &d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
