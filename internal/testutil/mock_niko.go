// Package testutil provides a configurable mock NikoHealth API server for
// tests: a token endpoint plus paginated patient and insurance resources.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockNiko is a mock NikoHealth tenant API.
type MockNiko struct {
	server *httptest.Server
	mu     sync.RWMutex

	patients   []map[string]any
	insurances map[string][]map[string]any
	handlers   map[string]http.HandlerFunc

	// ExpiresIn is the validity in seconds reported by the token endpoint.
	ExpiresIn int

	// RejectAuth makes the token endpoint reject every request with 401.
	RejectAuth bool

	// Tracking
	TokenRequests  int
	RequestCount   int
	RequestedPaths []string
}

// NewMockNiko creates a mock server with an empty dataset.
func NewMockNiko() *MockNiko {
	mock := &MockNiko{
		insurances: make(map[string][]map[string]any),
		handlers:   make(map[string]http.HandlerFunc),
		ExpiresIn:  3600,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))

	return mock
}

// URL returns the mock server URL.
func (m *MockNiko) URL() string {
	return m.server.URL
}

// TokenURL returns the identity endpoint URL.
func (m *MockNiko) TokenURL() string {
	return m.server.URL + "/api/identity/connect/token"
}

// APIBaseURL returns the external API root URL.
func (m *MockNiko) APIBaseURL() string {
	return m.server.URL + "/api/external/"
}

// Close shuts down the mock server.
func (m *MockNiko) Close() {
	m.server.Close()
}

// SetPatients replaces the patient dataset.
func (m *MockNiko) SetPatients(records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients = records
}

// SetInsurances replaces the insurance dataset for one patient.
func (m *MockNiko) SetInsurances(patientID string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insurances[patientID] = records
}

// SetHandler installs a custom handler for an exact request path.
func (m *MockNiko) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// GetTokenRequests returns the number of token requests received.
func (m *MockNiko) GetTokenRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenRequests
}

// GetRequestCount returns the number of resource requests received
// (the token endpoint is not counted).
func (m *MockNiko) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Paths returns resource request paths with query strings, in order.
func (m *MockNiko) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.RequestedPaths...)
}

func (m *MockNiko) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/identity/connect/token" {
		m.handleToken(w, r)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	m.RequestedPaths = append(m.RequestedPaths, path)
	handler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if handler != nil {
		handler(w, r)
		return
	}

	switch {
	case r.URL.Path == "/api/external/v1/hcpcs":
		m.writePage(w, r, nil)
	case r.URL.Path == "/api/external/v1/patients":
		m.mu.RLock()
		records := m.patients
		m.mu.RUnlock()
		m.writePage(w, r, records)
	case strings.HasPrefix(r.URL.Path, "/api/external/v1/patients/") && strings.HasSuffix(r.URL.Path, "/insurances"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/external/v1/patients/"), "/insurances")
		m.mu.RLock()
		records := m.insurances[id]
		m.mu.RUnlock()
		m.writePage(w, r, records)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockNiko) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.TokenRequests++
	n := m.TokenRequests
	reject := m.RejectAuth
	expiresIn := m.ExpiresIn
	m.mu.Unlock()

	if _, _, ok := r.BasicAuth(); !ok || reject {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"token_type":"Bearer","access_token":"tok-%d","expires_in":%d}`, n, expiresIn)
}

// writePage serves one page of records in the API's count-based envelope:
// {"Items": [...], "Count": total}.
func (m *MockNiko) writePage(w http.ResponseWriter, r *http.Request, records []map[string]any) {
	pageSize := intParam(r, "pageSize", 100)
	pageIndex := intParam(r, "pageIndex", 0)

	start := pageIndex * pageSize
	end := start + pageSize
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	page := records[start:end]
	if page == nil {
		page = []map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"Items": page,
		"Count": len(records),
	})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
