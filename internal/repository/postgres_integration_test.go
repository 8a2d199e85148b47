//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/bootstrap"
	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL must be set for integration tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, bootstrap.EnsureSchema(pool, zap.NewNop()))
	return pool
}

func TestPostgresTokenRepoLifecycle(t *testing.T) {
	pool := setupDB(t)
	repo := repository.NewPostgresTokenRepo(pool)
	ctx := context.Background()

	const ownerID = int64(990042)
	t.Cleanup(func() { _ = repo.Delete(ctx, ownerID) })

	// Missing record reads as nil, not an error.
	record, err := repo.Get(ctx, ownerID)
	require.NoError(t, err)
	require.Nil(t, record)

	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, domainauth.TokenRecord{
		OwnerID:         ownerID,
		AccessTokenEnc:  "sealed-access-1",
		RefreshTokenEnc: "sealed-refresh-1",
		ExpiresAt:       expiresAt,
	}))

	record, err = repo.Get(ctx, ownerID)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "sealed-access-1", record.AccessTokenEnc)
	require.WithinDuration(t, expiresAt, record.ExpiresAt, time.Second)

	// Upsert overwrites in place; one row per owner.
	require.NoError(t, repo.Upsert(ctx, domainauth.TokenRecord{
		OwnerID:         ownerID,
		AccessTokenEnc:  "sealed-access-2",
		RefreshTokenEnc: "sealed-refresh-2",
		ExpiresAt:       expiresAt.Add(time.Hour),
	}))
	record, err = repo.Get(ctx, ownerID)
	require.NoError(t, err)
	require.Equal(t, "sealed-access-2", record.AccessTokenEnc)

	require.NoError(t, repo.Delete(ctx, ownerID))
	record, err = repo.Get(ctx, ownerID)
	require.NoError(t, err)
	require.Nil(t, record)

	// Deleting again is not an error.
	require.NoError(t, repo.Delete(ctx, ownerID))
}
