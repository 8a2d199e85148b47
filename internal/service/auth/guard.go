package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
	"github.com/shhvang/rSpotify/internal/secrets"
)

// Refresher is the slice of the broker the guard depends on.
type Refresher interface {
	Refresh(ctx context.Context, ownerID int64) (*domainauth.TokenRecord, error)
}

// RefreshGuard wraps operations that need a valid access token. It refreshes
// proactively when the token is within the configured buffer of expiry, and
// deduplicates concurrent refreshes per owner: a rotated refresh token kills
// its predecessor, so a racing second refresh would fail spuriously.
type RefreshGuard struct {
	tokens repository.TokenRepository
	broker Refresher
	cipher *secrets.TokenCipher
	buffer time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewRefreshGuard wires the guard.
func NewRefreshGuard(
	tokens repository.TokenRepository,
	broker Refresher,
	cipher *secrets.TokenCipher,
	buffer time.Duration,
	logger *zap.Logger,
) *RefreshGuard {
	return &RefreshGuard{
		tokens: tokens,
		broker: broker,
		cipher: cipher,
		buffer: buffer,
		logger: logger,
	}
}

// WithToken runs fn with a decrypted, guaranteed-fresh access token. It
// signals ErrAuthenticationRequired when the owner has no token record, and
// propagates terminal refresh failures (ErrInvalidGrant) untouched so the
// caller can prompt a new login.
func (g *RefreshGuard) WithToken(ctx context.Context, ownerID int64, fn func(ctx context.Context, accessToken string) error) error {
	record, err := g.tokens.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load token record: %w", err)
	}
	if record == nil {
		return domainauth.ErrAuthenticationRequired
	}

	if record.ExpiringWithin(time.Now(), g.buffer) {
		record, err = g.refreshOnce(ctx, ownerID)
		if err != nil {
			return err
		}
	}

	accessToken, err := g.cipher.Decrypt(record.AccessTokenEnc)
	if err != nil {
		return fmt.Errorf("%w: decrypt access token: %v", domainauth.ErrEncryptionFailure, err)
	}

	return fn(ctx, accessToken)
}

// refreshOnce collapses concurrent refreshes for one owner into a single
// broker call; every waiter observes the same resulting record.
func (g *RefreshGuard) refreshOnce(ctx context.Context, ownerID int64) (*domainauth.TokenRecord, error) {
	key := strconv.FormatInt(ownerID, 10)
	v, err, shared := g.group.Do(key, func() (any, error) {
		return g.broker.Refresh(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.log().Debug("refresh deduplicated", zap.Int64("owner_id", ownerID))
	}
	return v.(*domainauth.TokenRecord), nil
}

func (g *RefreshGuard) log() *zap.Logger {
	if g != nil && g.logger != nil {
		return g.logger
	}
	return zap.L()
}
