package repository

import (
	"context"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
)

// HandoffStore is the only shared mutable resource between the callback and
// bot processes. All cross-process coordination is expressed through its
// atomic take operations and store-enforced TTL expiry.
type HandoffStore interface {
	// SaveLoginState persists a pending login state under its configured TTL.
	SaveLoginState(ctx context.Context, state domainauth.LoginState) error
	// TakeLoginState atomically reads and deletes the state record. Under
	// concurrent duplicate callbacks exactly one caller observes the record;
	// all others get nil. Expired records read as nil regardless of whether
	// the store's reaper has run.
	TakeLoginState(ctx context.Context, stateToken string) (*domainauth.LoginState, error)
	// SaveHandoff persists an authorization handoff under its own TTL.
	SaveHandoff(ctx context.Context, handoff domainauth.AuthorizationHandoff) error
	// TakeHandoff atomically reads and deletes the handoff. Same exactly-once
	// contract as TakeLoginState.
	TakeHandoff(ctx context.Context, handoffID string) (*domainauth.AuthorizationHandoff, error)
	// Ping reports store connectivity for the health probe.
	Ping(ctx context.Context) error
}

// TokenRepository handles durable, per-owner encrypted token records.
type TokenRepository interface {
	// Upsert creates or overwrites the single record for the owner.
	Upsert(ctx context.Context, record domainauth.TokenRecord) error
	// Get returns the owner's record, or nil when none exists.
	Get(ctx context.Context, ownerID int64) (*domainauth.TokenRecord, error)
	// Delete removes the owner's record. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, ownerID int64) error
}
