package auth

import "time"

// LoginState is the pending-login record written by the State Issuer and
// consumed exactly once by the Callback Listener. It lives in the handoff
// store under a TTL matching the configured state window.
type LoginState struct {
	State        string    `json:"state"`
	OwnerID      int64     `json:"owner_id"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given instant.
// A store read that races the TTL reaper must treat an expired record as
// absent, so every consumer checks this after loading.
func (s LoginState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthorizationHandoff carries a redeemed authorization code from the public
// callback process to the bot process. Created after state validation,
// consumed exactly once by the Token Broker.
type AuthorizationHandoff struct {
	ID      string `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Code    string `json:"code"`
	State   string `json:"state"`
	// CodeVerifier travels with the handoff because the PKCE exchange happens
	// in the bot process, not in the listener that validated the state.
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the handoff is past its expiry.
func (h AuthorizationHandoff) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// TokenRecord is the durable, per-owner token row. Access and refresh tokens
// are ciphertext at rest; plaintext exists only transiently in memory during
// exchange or guarded use.
type TokenRecord struct {
	OwnerID         int64
	AccessTokenEnc  string
	RefreshTokenEnc string
	ExpiresAt       time.Time
	UpdatedAt       time.Time
}

// ExpiringWithin reports whether the access token expires within buffer of
// now. The boundary counts as expiring, so a refresh fires at exactly the
// configured buffer.
func (r TokenRecord) ExpiringWithin(now time.Time, buffer time.Duration) bool {
	return !r.ExpiresAt.After(now.Add(buffer))
}

// TokenGrant is a normalized IdP token endpoint response.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time
}
