// Package auth implements the OAuth2 client-credentials token cache used to
// sign every request against the NikoHealth external API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "niko_token_refreshes_total",
	Help: "Total token refresh attempts by outcome",
}, []string{"status"})

// ErrAuthentication indicates the token endpoint rejected the credentials
// or returned an unusable response. It is never retried here; callers decide.
var ErrAuthentication = errors.New("authentication failed")

// Token is a cached bearer token. It is replaced wholesale on refresh.
type Token struct {
	Type      string
	Value     string
	ExpiresAt time.Time
}

// Authenticator obtains and caches a bearer token for the NikoHealth
// identity endpoint, refreshing it lazily on first use after expiry.
//
// A single instance is shared by all streams of a run. The run is
// single-threaded by construction, so no locking is done here; a concurrent
// caller would need to add its own synchronization.
type Authenticator struct {
	tokenURL     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	now        func() time.Time
	logger     zerolog.Logger

	token Token
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) { a.httpClient = c }
}

// WithClock overrides the time source. Used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// New creates an Authenticator for the given token endpoint and credentials.
//
// The cached expiry starts one day in the past so the very first GetToken
// call always performs a refresh.
func New(tokenURL, clientID, clientSecret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		logger:       log.With().Str("component", "authenticator").Logger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.token.ExpiresAt = a.now().Add(-24 * time.Hour)

	return a
}

// GetToken returns a valid token type and value, refreshing the cached token
// first if it has expired. Refresh failures are returned as-is, wrapped in
// ErrAuthentication.
func (a *Authenticator) GetToken(ctx context.Context) (string, string, error) {
	if a.now().After(a.token.ExpiresAt) {
		tok, err := a.refresh(ctx)
		if err != nil {
			tokenRefreshesTotal.WithLabelValues("error").Inc()
			return "", "", err
		}
		tokenRefreshesTotal.WithLabelValues("success").Inc()
		a.token = tok

		a.logger.Info().
			Time("expires_at", tok.ExpiresAt).
			Msg("Access token refreshed")
	}

	return a.token.Type, a.token.Value, nil
}

// Apply sets the Authorization header on an outgoing request, refreshing the
// cached token if necessary.
func (a *Authenticator) Apply(req *http.Request) error {
	tokenType, tokenValue, err := a.GetToken(req.Context())
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", tokenType+" "+tokenValue)
	return nil
}

// tokenResponse is the JSON body returned by the identity endpoint.
type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// refresh performs a single synchronous token request. The new expiry is
// anchored at the time just before the request was sent, so clock skew and
// request latency cannot extend the token past its real validity.
func (a *Authenticator) refresh(ctx context.Context) (Token, error) {
	requestedAt := a.now()

	body := strings.NewReader("scope=external&grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, body)
	if err != nil {
		return Token{}, fmt.Errorf("%w: create token request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: token request: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("%w: token endpoint returned status %d", ErrAuthentication, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("%w: read token response: %v", ErrAuthentication, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Token{}, fmt.Errorf("%w: parse token response: %v", ErrAuthentication, err)
	}

	if tr.TokenType == "" || tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return Token{}, fmt.Errorf("%w: token response missing token_type, access_token or expires_in", ErrAuthentication)
	}

	return Token{
		Type:      tr.TokenType,
		Value:     tr.AccessToken,
		ExpiresAt: requestedAt.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
