package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"future expiry", time.Now().Add(5 * time.Minute), false},
		{"past expiry", time.Now().Add(-5 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Expires: tt.expires}
			if got := e.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	expired := &Entry{Expires: time.Now().Add(-time.Minute)}
	if got := expired.TTL(); got != 0 {
		t.Errorf("TTL() for expired entry = %v, want 0", got)
	}

	fresh := &Entry{Expires: time.Now().Add(time.Minute)}
	if got := fresh.TTL(); got <= 0 || got > time.Minute {
		t.Errorf("TTL() = %v, want (0, 1m]", got)
	}
}

func TestResponseToEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Items":[],"Count":0}`))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}

	entry, err := ResponseToEntry(resp, time.Minute)
	if err != nil {
		t.Fatalf("ResponseToEntry() failed: %v", err)
	}

	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", entry.StatusCode, http.StatusOK)
	}
	if string(entry.Data) != `{"Items":[],"Count":0}` {
		t.Errorf("Data = %s, want original body", entry.Data)
	}
	if entry.TTL() <= 0 {
		t.Error("TTL should be positive")
	}

	// Body must be restored for the caller.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(body) != `{"Items":[],"Count":0}` {
		t.Errorf("restored body = %s, want original body", body)
	}
}

func TestResponseToEntry_NilResponse(t *testing.T) {
	if _, err := ResponseToEntry(nil, time.Minute); err == nil {
		t.Error("Expected error for nil response")
	}
}

func TestEntryToResponse(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	entry := &Entry{
		StatusCode: 200,
		Headers:    headers,
		Data:       []byte(`{"Items":[{"Id":1}],"Count":1}`),
	}

	resp := EntryToResponse(entry)

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", resp.Header.Get("Content-Type"))
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(entry.Data) {
		t.Errorf("body = %s, want %s", body, entry.Data)
	}
}
