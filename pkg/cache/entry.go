package cache

import (
	"net/http"
	"time"
)

// Entry is a cached API response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Headers are the response headers.
	Headers http.Header `json:"headers"`

	// FetchedAt is when the response was fetched from the API.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
