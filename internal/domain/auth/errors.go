package auth

import "errors"

var (
	// ErrStoreUnavailable signals the handoff store could not be reached.
	// Callers surface this as a retryable condition, never a fatal one.
	ErrStoreUnavailable = errors.New("auth: handoff store unavailable")
	// ErrInvalidState indicates the callback state token is unknown or
	// already consumed. Deliberately indistinguishable from ErrExpiredState
	// at the HTTP surface.
	ErrInvalidState = errors.New("auth: invalid state")
	// ErrExpiredState indicates the state record outlived its window before
	// the TTL reaper removed it.
	ErrExpiredState = errors.New("auth: expired state")
	// ErrProviderDenied indicates the user declined authorization at the IdP.
	ErrProviderDenied = errors.New("auth: provider denied")
	// ErrHandoffNotFound indicates the handoff is unknown, expired, or
	// already consumed.
	ErrHandoffNotFound = errors.New("auth: handoff not found")
	// ErrHandoffOwnerMismatch is a security violation: the redeeming owner is
	// not the owner the callback recorded. The handoff is consumed either way.
	ErrHandoffOwnerMismatch = errors.New("auth: handoff owner mismatch")
	// ErrExchangeFailed covers transient token endpoint failures. Retried
	// with bounded backoff inside the Token Broker only.
	ErrExchangeFailed = errors.New("auth: token exchange failed")
	// ErrInvalidGrant means the refresh token is permanently dead and the
	// owner must authenticate again.
	ErrInvalidGrant = errors.New("auth: invalid grant")
	// ErrEncryptionFailure aborts a redeem or refresh rather than ever
	// persisting plaintext token material.
	ErrEncryptionFailure = errors.New("auth: token encryption failure")
	// ErrAuthenticationRequired signals a guarded operation ran for an owner
	// with no token record.
	ErrAuthenticationRequired = errors.New("auth: authentication required")
)
