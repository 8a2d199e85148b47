package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/adapter/spotify"
	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
	"github.com/shhvang/rSpotify/internal/secrets"
)

// Broker redeems authorization handoffs and keeps token records fresh.
// Redeem and Refresh are serialized per owner; operations for different
// owners proceed independently.
type Broker struct {
	store      repository.HandoffStore
	tokens     repository.TokenRepository
	idp        spotify.Client
	cipher     *secrets.TokenCipher
	maxRetries int
	logger     *zap.Logger
	owners     ownerLocks
}

// NewBroker wires the token broker.
func NewBroker(
	store repository.HandoffStore,
	tokens repository.TokenRepository,
	idp spotify.Client,
	cipher *secrets.TokenCipher,
	maxRetries int,
	logger *zap.Logger,
) *Broker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Broker{
		store:      store,
		tokens:     tokens,
		idp:        idp,
		cipher:     cipher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Redeem atomically consumes the handoff, exchanges its authorization code,
// and persists an encrypted token record for the owner. A handoff whose
// recorded owner differs from the caller is consumed regardless and fails
// with ErrHandoffOwnerMismatch; the same handoff must never be retried.
func (b *Broker) Redeem(ctx context.Context, handoffID string, ownerID int64) (*domainauth.TokenRecord, error) {
	unlock := b.owners.lock(ownerID)
	defer unlock()

	handoff, err := b.store.TakeHandoff(ctx, handoffID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrStoreUnavailable, err)
	}
	if handoff == nil {
		return nil, domainauth.ErrHandoffNotFound
	}
	if handoff.OwnerID != ownerID {
		b.log().Error("handoff owner mismatch",
			zap.String("handoff_id", handoffID),
			zap.Int64("expected_owner", handoff.OwnerID),
			zap.Int64("claimed_owner", ownerID),
		)
		return nil, domainauth.ErrHandoffOwnerMismatch
	}

	var grant *domainauth.TokenGrant
	err = b.retryTransient(ctx, func() error {
		var exchErr error
		grant, exchErr = b.idp.Exchange(ctx, handoff.Code, handoff.CodeVerifier)
		return exchErr
	})
	if err != nil {
		return nil, err
	}

	record, err := b.persistGrant(ctx, ownerID, grant)
	if err != nil {
		return nil, err
	}

	b.log().Info("authorization handoff redeemed",
		zap.Int64("owner_id", ownerID),
		zap.Time("token_expires_at", record.ExpiresAt),
	)
	return record, nil
}

// Refresh exchanges the stored refresh token and persists the rotated pair.
// ErrInvalidGrant is terminal: the owner has to run the login flow again.
func (b *Broker) Refresh(ctx context.Context, ownerID int64) (*domainauth.TokenRecord, error) {
	unlock := b.owners.lock(ownerID)
	defer unlock()

	current, err := b.tokens.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load token record: %w", err)
	}
	if current == nil {
		return nil, domainauth.ErrAuthenticationRequired
	}

	refreshToken, err := b.cipher.Decrypt(current.RefreshTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt refresh token: %v", domainauth.ErrEncryptionFailure, err)
	}

	var grant *domainauth.TokenGrant
	err = b.retryTransient(ctx, func() error {
		var refreshErr error
		grant, refreshErr = b.idp.Refresh(ctx, refreshToken)
		return refreshErr
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidGrant) {
			b.log().Warn("refresh token permanently invalid", zap.Int64("owner_id", ownerID))
		}
		return nil, err
	}

	record, err := b.persistGrant(ctx, ownerID, grant)
	if err != nil {
		return nil, err
	}

	b.log().Info("token refreshed",
		zap.Int64("owner_id", ownerID),
		zap.Time("token_expires_at", record.ExpiresAt),
	)
	return record, nil
}

// Logout deletes the owner's token record after a best-effort revocation
// with the IdP.
func (b *Broker) Logout(ctx context.Context, ownerID int64) error {
	unlock := b.owners.lock(ownerID)
	defer unlock()

	record, err := b.tokens.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load token record: %w", err)
	}
	if record == nil {
		return nil
	}

	if refreshToken, err := b.cipher.Decrypt(record.RefreshTokenEnc); err == nil {
		if err := b.idp.Revoke(ctx, refreshToken); err != nil {
			b.log().Warn("token revocation failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}

	if err := b.tokens.Delete(ctx, ownerID); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}

	b.log().Info("owner logged out", zap.Int64("owner_id", ownerID))
	return nil
}

// persistGrant encrypts both tokens and overwrites the owner's record.
// An encryption failure aborts the whole operation; plaintext never reaches
// the repository.
func (b *Broker) persistGrant(ctx context.Context, ownerID int64, grant *domainauth.TokenGrant) (*domainauth.TokenRecord, error) {
	accessEnc, err := b.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrEncryptionFailure, err)
	}
	refreshEnc, err := b.cipher.Encrypt(grant.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrEncryptionFailure, err)
	}

	record := domainauth.TokenRecord{
		OwnerID:         ownerID,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       grant.ExpiresAt,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := b.tokens.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("persist token record: %w", err)
	}
	return &record, nil
}

// retryTransient retries ErrExchangeFailed with bounded exponential backoff.
// Every other error kind is permanent and propagates immediately.
func (b *Broker) retryTransient(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, domainauth.ErrExchangeFailed) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.maxRetries))
	return backoff.Retry(wrapped, backoff.WithContext(policy, ctx))
}

func (b *Broker) log() *zap.Logger {
	if b != nil && b.logger != nil {
		return b.logger
	}
	return zap.L()
}

// ownerLocks serializes broker operations per owner. Entries are never
// reclaimed; the owner population is bounded by the bot's user base.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (o *ownerLocks) lock(ownerID int64) func() {
	o.mu.Lock()
	if o.locks == nil {
		o.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := o.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[ownerID] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}
