package source

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/datalift/nikohealth-connector/internal/testutil"
	"github.com/datalift/nikohealth-connector/pkg/streams"
)

func testConfig(mock *testutil.MockNiko) Config {
	return Config{
		Domain:       "acme",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIBaseURL:   mock.APIBaseURL(),
		TokenURL:     mock.TokenURL(),
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantMissing []string
	}{
		{
			name:        "all missing",
			config:      Config{},
			wantMissing: []string{"domain", "client_id", "client_secret"},
		},
		{
			name:        "missing secret",
			config:      Config{Domain: "acme", ClientID: "id"},
			wantMissing: []string{"client_secret"},
		},
		{
			name:        "missing domain",
			config:      Config{ClientID: "id", ClientSecret: "secret"},
			wantMissing: []string{"domain"},
		},
		{
			name:   "complete",
			config: Config{Domain: "acme", ClientID: "id", ClientSecret: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)

			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("New() failed: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			for _, key := range tt.wantMissing {
				if !strings.Contains(err.Error(), key) {
					t.Errorf("error %q must name missing key %q", err, key)
				}
			}
		})
	}
}

func TestConfig_DerivedURLs(t *testing.T) {
	cfg := Config{Domain: "acme"}

	if got := cfg.apiBaseURL(); got != "https://acme.nikohealth.com/api/external/" {
		t.Errorf("apiBaseURL() = %q", got)
	}
	if got := cfg.tokenURL(); got != "https://acme.nikohealth.com/api/identity/connect/token" {
		t.Errorf("tokenURL() = %q", got)
	}

	cfg.APIBaseURL = "http://localhost:8080/api/external/"
	cfg.TokenURL = "http://localhost:8080/token"
	if got := cfg.apiBaseURL(); got != "http://localhost:8080/api/external/" {
		t.Errorf("apiBaseURL() override = %q", got)
	}
	if got := cfg.tokenURL(); got != "http://localhost:8080/token" {
		t.Errorf("tokenURL() override = %q", got)
	}
}

func TestCheckConnection_Success(t *testing.T) {
	mock := testutil.NewMockNiko()
	defer mock.Close()

	s, err := New(testConfig(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ok, err := s.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("CheckConnection() failed: %v", err)
	}
	if !ok {
		t.Error("CheckConnection() = false, want true")
	}

	paths := mock.Paths()
	if len(paths) != 1 {
		t.Fatalf("requests = %v, want one hcpcs probe", paths)
	}
	if paths[0] != "/api/external/v1/hcpcs?pageSize=10" {
		t.Errorf("probe request = %q, want /api/external/v1/hcpcs?pageSize=10", paths[0])
	}
}

func TestCheckConnection_BadCredentials(t *testing.T) {
	mock := testutil.NewMockNiko()
	defer mock.Close()

	mock.RejectAuth = true

	s, err := New(testConfig(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ok, err := s.CheckConnection(context.Background())
	if ok {
		t.Error("CheckConnection() = true, want false")
	}
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestCheckConnection_ErrorStatus(t *testing.T) {
	mock := testutil.NewMockNiko()
	defer mock.Close()

	mock.SetHandler("/api/external/v1/hcpcs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	s, err := New(testConfig(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ok, err := s.CheckConnection(context.Background())
	if ok {
		t.Error("CheckConnection() = true, want false")
	}
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestStreams_Order(t *testing.T) {
	mock := testutil.NewMockNiko()
	defer mock.Close()

	s, err := New(testConfig(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	streamList := s.Streams()
	if len(streamList) != 2 {
		t.Fatalf("streams = %d, want 2", len(streamList))
	}
	if streamList[0].Name() != "patients" {
		t.Errorf("streams[0] = %q, want patients", streamList[0].Name())
	}
	if streamList[1].Name() != "patient_insurances" {
		t.Errorf("streams[1] = %q, want patient_insurances", streamList[1].Name())
	}
}

func TestStreams_ShareOneToken(t *testing.T) {
	mock := testutil.NewMockNiko()
	defer mock.Close()

	mock.SetPatients([]map[string]any{{"Id": "A"}})
	mock.SetInsurances("A", []map[string]any{{"Id": 1, "PatientId": "A"}})

	s, err := New(testConfig(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	discard := func(streams.Record) error { return nil }
	for _, stream := range s.Streams() {
		if err := stream.Read(context.Background(), discard); err != nil {
			t.Fatalf("Read(%s) failed: %v", stream.Name(), err)
		}
	}

	if got := mock.GetTokenRequests(); got != 1 {
		t.Errorf("token requests = %d, want 1 (shared authenticator)", got)
	}
}
