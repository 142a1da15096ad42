// Package source wires the connector together: it validates the tenant
// configuration, builds the shared authenticated transport, exposes the
// available streams, and answers health checks against the API.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/datalift/nikohealth-connector/pkg/auth"
	"github.com/datalift/nikohealth-connector/pkg/client"
	"github.com/datalift/nikohealth-connector/pkg/streams"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the connector configuration for one NikoHealth tenant.
type Config struct {
	// Domain is the tenant subdomain, e.g. "acme" for
	// acme.nikohealth.com.
	Domain string

	// ClientID and ClientSecret are the OAuth2 client credentials.
	ClientID     string
	ClientSecret string

	// IncludeSensitiveData keeps sensitive fields in the declared stream
	// schemas. Record payloads are passed through either way.
	IncludeSensitiveData bool

	// APIBaseURL and TokenURL override the tenant-derived endpoints.
	// Used by tests and on-prem deployments.
	APIBaseURL string
	TokenURL   string

	// Redis enables the transport response cache when set.
	Redis *redis.Client
}

// apiBaseURL returns the external API root for the tenant.
func (c Config) apiBaseURL() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	return fmt.Sprintf("https://%s.nikohealth.com/api/external/", c.Domain)
}

// tokenURL returns the identity endpoint for the tenant.
func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return fmt.Sprintf("https://%s.nikohealth.com/api/identity/connect/token", c.Domain)
}

// validate reports every missing required key in one error.
func (c Config) validate() error {
	var missing []string
	if c.Domain == "" {
		missing = append(missing, "domain")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Source is the NikoHealth connector. One Source serves one tenant and
// shares a single authenticator and transport across all of its streams.
type Source struct {
	config        Config
	authenticator *auth.Authenticator
	transport     *client.Client
	logger        zerolog.Logger
}

// New creates a Source from the given configuration.
func New(cfg Config) (*Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	authenticator := auth.New(cfg.tokenURL(), cfg.ClientID, cfg.ClientSecret)

	transportCfg := client.DefaultConfig(cfg.apiBaseURL(), cfg.Domain, authenticator)
	transportCfg.Redis = cfg.Redis

	transport, err := client.New(transportCfg)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	return &Source{
		config:        cfg,
		authenticator: authenticator,
		transport:     transport,
		logger:        log.With().Str("component", "source").Str("domain", cfg.Domain).Logger(),
	}, nil
}

// Transport exposes the shared API transport.
func (s *Source) Transport() *client.Client {
	return s.transport
}

// CheckConnection verifies credentials and connectivity with a single small
// request against a cheap endpoint. It never panics; any failure, including
// an error status, yields (false, err).
func (s *Source) CheckConnection(ctx context.Context) (bool, error) {
	query := url.Values{}
	query.Set("pageSize", "10")

	resp, err := s.transport.Get(ctx, "v1/hcpcs", query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Connection check failed")
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("connection check returned status %d", resp.StatusCode)
		s.logger.Warn().Int("status", resp.StatusCode).Msg("Connection check failed")
		return false, err
	}

	s.logger.Info().Msg("Connection check succeeded")
	return true, nil
}

// Streams returns the connector's streams. The patients stream precedes its
// dependent insurances stream, and both share the patients run-local record
// cache so the parent resource is fetched at most once per run.
func (s *Source) Streams() []streams.Stream {
	patients := streams.NewPatients(s.transport, s.config.IncludeSensitiveData)
	insurances := streams.NewPatientInsurances(s.transport, patients, s.config.IncludeSensitiveData)

	return []streams.Stream{patients, insurances}
}
