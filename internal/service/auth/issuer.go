// Package auth hosts the bot-side authentication services: the state issuer,
// the token broker, and the refresh guard. The conversational layer consumes
// these; it never touches the handoff store or the IdP directly.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/config"
	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
)

// LoginIntent is what the conversational layer hands to the user: the
// authorization URL to visit and the state token correlating the callback.
type LoginIntent struct {
	State            string
	AuthorizationURL string
}

// Issuer creates pending login states and builds authorization URLs.
type Issuer struct {
	store  repository.HandoffStore
	cfg    config.Config
	logger *zap.Logger
}

// NewIssuer wires the state issuer.
func NewIssuer(store repository.HandoffStore, cfg config.Config, logger *zap.Logger) *Issuer {
	return &Issuer{store: store, cfg: cfg, logger: logger}
}

// IssueState generates a fresh state token and PKCE verifier, persists the
// pending login under the configured TTL, and returns the authorization URL.
// A store failure surfaces as ErrStoreUnavailable so the caller can tell the
// user to retry rather than treating it as fatal.
func (i *Issuer) IssueState(ctx context.Context, ownerID int64) (*LoginIntent, error) {
	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	codeVerifier, err := secureRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}

	now := time.Now().UTC()
	record := domainauth.LoginState{
		State:        state,
		OwnerID:      ownerID,
		CodeVerifier: codeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(i.cfg.StateTTL),
	}
	if err := i.store.SaveLoginState(ctx, record); err != nil {
		i.log().Warn("failed to persist login state", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domainauth.ErrStoreUnavailable, err)
	}

	authURL, err := i.buildAuthorizationURL(state, pkceChallenge(codeVerifier))
	if err != nil {
		return nil, err
	}

	i.log().Info("login state issued",
		zap.Int64("owner_id", ownerID),
		zap.Time("expires_at", record.ExpiresAt),
	)
	return &LoginIntent{State: state, AuthorizationURL: authURL}, nil
}

func (i *Issuer) buildAuthorizationURL(state, codeChallenge string) (string, error) {
	authURL, err := url.Parse(i.cfg.SpotifyAuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}

	params := authURL.Query()
	params.Set("client_id", i.cfg.SpotifyClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", i.cfg.RedirectURL())
	params.Set("scope", strings.Join(i.cfg.SpotifyScopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()

	return authURL.String(), nil
}

func (i *Issuer) log() *zap.Logger {
	if i != nil && i.logger != nil {
		return i.logger
	}
	return zap.L()
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
