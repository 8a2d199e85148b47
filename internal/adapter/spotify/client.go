// Package spotify encapsulates outbound HTTP calls to the Spotify accounts
// service (the only IdP this system talks to).
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shhvang/rSpotify/internal/config"
	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = 3600 * time.Second

// Client performs token endpoint grants.
type Client interface {
	// Exchange redeems an authorization code (grant_type=authorization_code).
	Exchange(ctx context.Context, code, codeVerifier string) (*domainauth.TokenGrant, error)
	// Refresh exchanges a refresh token (grant_type=refresh_token). When the
	// IdP omits a rotated refresh token the previous one is carried forward.
	Refresh(ctx context.Context, refreshToken string) (*domainauth.TokenGrant, error)
	// Revoke invalidates a token with the IdP, best effort.
	Revoke(ctx context.Context, token string) error
}

// HTTPClient is the default Client implementation.
type HTTPClient struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default client from config.
func NewHTTPClient(cfg config.Config, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		httpClient:   httpClient,
		tokenURL:     cfg.SpotifyTokenURL,
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
		redirectURI:  cfg.RedirectURL(),
	}
}

func (c *HTTPClient) Exchange(ctx context.Context, code, codeVerifier string) (*domainauth.TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	grant, err := c.grant(ctx, data)
	if err != nil {
		return nil, err
	}
	if grant.RefreshToken == "" {
		return nil, fmt.Errorf("%w: exchange response missing refresh token", domainauth.ErrExchangeFailed)
	}
	return grant, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*domainauth.TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	grant, err := c.grant(ctx, data)
	if err != nil {
		return nil, err
	}
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

// Revoke is a documented no-op: Spotify exposes no revocation endpoint, and
// access tokens age out within the hour on their own.
func (c *HTTPClient) Revoke(ctx context.Context, token string) error {
	return nil
}

func (c *HTTPClient) grant(ctx context.Context, data url.Values) (*domainauth.TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domainauth.ErrExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyGrantError(resp.StatusCode, body)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domainauth.ErrExchangeFailed, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access token", domainauth.ErrExchangeFailed)
	}

	lifetime := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}

	return &domainauth.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
		ExpiresAt:    time.Now().UTC().Add(lifetime),
	}, nil
}

// classifyGrantError separates the terminal invalid_grant (dead refresh
// token, re-auth required) from transient failures. Error descriptions from
// the provider stay server-side; only the status reaches wrapped messages.
func classifyGrantError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &payload)
	if payload.Error == "invalid_grant" {
		return fmt.Errorf("%w: %s", domainauth.ErrInvalidGrant, payload.ErrorDescription)
	}
	return fmt.Errorf("%w: status=%d", domainauth.ErrExchangeFailed, status)
}
