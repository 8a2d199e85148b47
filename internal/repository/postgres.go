package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
)

// Compile-time interface assertion.
var _ TokenRepository = (*PostgresTokenRepo)(nil)

// PostgresTokenRepo implements TokenRepository on pgxpool.
type PostgresTokenRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{pool: pool}
}

func (r *PostgresTokenRepo) Upsert(ctx context.Context, record domainauth.TokenRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO token_records (owner_id, access_token_enc, refresh_token_enc, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner_id) DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, record.OwnerID, record.AccessTokenEnc, record.RefreshTokenEnc, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert token record: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) Get(ctx context.Context, ownerID int64) (*domainauth.TokenRecord, error) {
	var record domainauth.TokenRecord
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, access_token_enc, refresh_token_enc, expires_at, updated_at
		FROM token_records
		WHERE owner_id = $1
	`, ownerID).Scan(
		&record.OwnerID,
		&record.AccessTokenEnc,
		&record.RefreshTokenEnc,
		&record.ExpiresAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token record: %w", err)
	}
	return &record, nil
}

func (r *PostgresTokenRepo) Delete(ctx context.Context, ownerID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM token_records WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	return nil
}
