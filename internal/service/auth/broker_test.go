package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
)

func seedHandoff(t *testing.T, store *memoryHandoffStore, id string, ownerID int64) {
	t.Helper()
	now := time.Now().UTC()
	err := store.SaveHandoff(context.Background(), domainauth.AuthorizationHandoff{
		ID:           id,
		OwnerID:      ownerID,
		Code:         "auth-code-xyz",
		State:        "state-abc",
		CodeVerifier: "verifier-123",
		CreatedAt:    now,
		ExpiresAt:    now.Add(10 * time.Minute),
	})
	require.NoError(t, err)
}

func grantFixture() *domainauth.TokenGrant {
	return &domainauth.TokenGrant{
		AccessToken:  "access-token-plain",
		RefreshToken: "refresh-token-plain",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
}

func TestRedeemHappyPath(t *testing.T) {
	store := newMemoryHandoffStore()
	tokens := newMemoryTokenRepo()
	idp := &fakeIdP{exchangeGrant: grantFixture()}
	cipher := testCipher()
	broker := NewBroker(store, tokens, idp, cipher, 0, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	record, err := broker.Redeem(context.Background(), "handoff-1", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), record.OwnerID)
	require.Equal(t, "auth-code-xyz", idp.lastCode)
	require.Equal(t, "verifier-123", idp.lastVerifier)

	stored, err := tokens.Get(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotEqual(t, "access-token-plain", stored.AccessTokenEnc)

	access, err := cipher.Decrypt(stored.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "access-token-plain", access)
	refresh, err := cipher.Decrypt(stored.RefreshTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-plain", refresh)
}

func TestRedeemConsumesHandoff(t *testing.T) {
	store := newMemoryHandoffStore()
	tokens := newMemoryTokenRepo()
	idp := &fakeIdP{exchangeGrant: grantFixture()}
	broker := NewBroker(store, tokens, idp, testCipher(), 0, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	_, err := broker.Redeem(context.Background(), "handoff-1", 42)
	require.NoError(t, err)

	_, err = broker.Redeem(context.Background(), "handoff-1", 42)
	require.ErrorIs(t, err, domainauth.ErrHandoffNotFound)
	require.Equal(t, 1, idp.exchangeCount())
}

func TestRedeemUnknownHandoff(t *testing.T) {
	broker := NewBroker(newMemoryHandoffStore(), newMemoryTokenRepo(), &fakeIdP{}, testCipher(), 0, zap.NewNop())

	_, err := broker.Redeem(context.Background(), "never-issued", 42)
	require.ErrorIs(t, err, domainauth.ErrHandoffNotFound)
}

func TestRedeemOwnerMismatchConsumes(t *testing.T) {
	store := newMemoryHandoffStore()
	idp := &fakeIdP{exchangeGrant: grantFixture()}
	broker := NewBroker(store, newMemoryTokenRepo(), idp, testCipher(), 0, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	_, err := broker.Redeem(context.Background(), "handoff-1", 99)
	require.ErrorIs(t, err, domainauth.ErrHandoffOwnerMismatch)
	require.Equal(t, 0, idp.exchangeCount())

	// The rightful owner cannot redeem it afterwards either.
	_, err = broker.Redeem(context.Background(), "handoff-1", 42)
	require.ErrorIs(t, err, domainauth.ErrHandoffNotFound)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	store := newMemoryHandoffStore()
	tokens := newMemoryTokenRepo()
	idp := &fakeIdP{exchangeGrant: grantFixture()}
	broker := NewBroker(store, tokens, idp, testCipher(), 0, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := broker.Redeem(context.Background(), "handoff-1", 42)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, notFound int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domainauth.ErrHandoffNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, notFound)
	require.Equal(t, 1, idp.exchangeCount())
	require.Equal(t, 1, tokens.upsertCount())
}

func TestRedeemInvalidGrantNotRetried(t *testing.T) {
	store := newMemoryHandoffStore()
	idp := &fakeIdP{
		exchangeGrant: grantFixture(),
		exchangeErrs:  []error{domainauth.ErrInvalidGrant},
	}
	broker := NewBroker(store, newMemoryTokenRepo(), idp, testCipher(), 3, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	_, err := broker.Redeem(context.Background(), "handoff-1", 42)
	require.ErrorIs(t, err, domainauth.ErrInvalidGrant)
	require.Equal(t, 1, idp.exchangeCount())
}

func TestRedeemRetriesTransientFailure(t *testing.T) {
	store := newMemoryHandoffStore()
	idp := &fakeIdP{
		exchangeGrant: grantFixture(),
		exchangeErrs:  []error{domainauth.ErrExchangeFailed, nil},
	}
	broker := NewBroker(store, newMemoryTokenRepo(), idp, testCipher(), 2, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	_, err := broker.Redeem(context.Background(), "handoff-1", 42)
	require.NoError(t, err)
	require.Equal(t, 2, idp.exchangeCount())
}

func TestRedeemRetryBudgetExhausted(t *testing.T) {
	store := newMemoryHandoffStore()
	idp := &fakeIdP{
		exchangeGrant: grantFixture(),
		exchangeErrs:  []error{domainauth.ErrExchangeFailed, domainauth.ErrExchangeFailed},
	}
	broker := NewBroker(store, newMemoryTokenRepo(), idp, testCipher(), 1, zap.NewNop())

	seedHandoff(t, store, "handoff-1", 42)

	_, err := broker.Redeem(context.Background(), "handoff-1", 42)
	require.ErrorIs(t, err, domainauth.ErrExchangeFailed)
	require.Equal(t, 2, idp.exchangeCount())
}

func TestRefreshRotatesStoredPair(t *testing.T) {
	tokens := newMemoryTokenRepo()
	cipher := testCipher()
	oldRefreshEnc, err := cipher.Encrypt("old-refresh")
	require.NoError(t, err)
	oldAccessEnc, err := cipher.Encrypt("old-access")
	require.NoError(t, err)
	tokens.seed(domainauth.TokenRecord{
		OwnerID:         42,
		AccessTokenEnc:  oldAccessEnc,
		RefreshTokenEnc: oldRefreshEnc,
		ExpiresAt:       time.Now().Add(-time.Minute),
	})

	idp := &fakeIdP{refreshGrant: &domainauth.TokenGrant{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}}
	broker := NewBroker(newMemoryHandoffStore(), tokens, idp, cipher, 0, zap.NewNop())

	record, err := broker.Refresh(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "old-refresh", idp.lastRefresh)

	access, err := cipher.Decrypt(record.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "new-access", access)
	refresh, err := cipher.Decrypt(record.RefreshTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "new-refresh", refresh)
}

func TestRefreshWithoutRecord(t *testing.T) {
	broker := NewBroker(newMemoryHandoffStore(), newMemoryTokenRepo(), &fakeIdP{}, testCipher(), 0, zap.NewNop())

	_, err := broker.Refresh(context.Background(), 42)
	require.ErrorIs(t, err, domainauth.ErrAuthenticationRequired)
}

func TestRefreshCorruptCiphertext(t *testing.T) {
	tokens := newMemoryTokenRepo()
	tokens.seed(domainauth.TokenRecord{
		OwnerID:         42,
		AccessTokenEnc:  "garbage",
		RefreshTokenEnc: "garbage",
	})
	broker := NewBroker(newMemoryHandoffStore(), tokens, &fakeIdP{}, testCipher(), 0, zap.NewNop())

	_, err := broker.Refresh(context.Background(), 42)
	require.ErrorIs(t, err, domainauth.ErrEncryptionFailure)
}

func TestLogoutDeletesRecord(t *testing.T) {
	tokens := newMemoryTokenRepo()
	cipher := testCipher()
	refreshEnc, err := cipher.Encrypt("the-refresh")
	require.NoError(t, err)
	accessEnc, err := cipher.Encrypt("the-access")
	require.NoError(t, err)
	tokens.seed(domainauth.TokenRecord{OwnerID: 42, AccessTokenEnc: accessEnc, RefreshTokenEnc: refreshEnc})

	idp := &fakeIdP{}
	broker := NewBroker(newMemoryHandoffStore(), tokens, idp, cipher, 0, zap.NewNop())

	require.NoError(t, broker.Logout(context.Background(), 42))
	require.Equal(t, []string{"the-refresh"}, idp.revoked)

	record, err := tokens.Get(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, record)

	// Logging out twice is harmless.
	require.NoError(t, broker.Logout(context.Background(), 42))
}
