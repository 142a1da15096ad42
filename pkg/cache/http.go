package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTTL is the cache lifetime for API responses. The NikoHealth API
// sends no expiry metadata, so the transport picks the TTL.
const DefaultTTL = 5 * time.Minute

// ResponseToEntry converts an HTTP response to a cache Entry with the given
// TTL. The response body is read and then restored for the caller.
func ResponseToEntry(resp *http.Response, ttl time.Duration) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	return &Entry{
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		FetchedAt:  now,
		Expires:    now.Add(ttl),
	}, nil
}

// EntryToResponse rebuilds an HTTP response from a cache Entry.
func EntryToResponse(entry *Entry) *http.Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	return &http.Response{
		StatusCode:    entry.StatusCode,
		Status:        http.StatusText(entry.StatusCode),
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
	}
}
