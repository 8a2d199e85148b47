// Package bootstrap runs one-time startup tasks for the bot process.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EnsureSchema creates the token_records table when it does not exist yet.
// Invoked from the fx graph before the bot services start serving.
func EnsureSchema(pool *pgxpool.Pool, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS token_records (
			owner_id BIGINT PRIMARY KEY,
			access_token_enc TEXT NOT NULL,
			refresh_token_enc TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure token_records schema: %w", err)
	}

	logger.Info("token_records schema ensured")
	return nil
}
