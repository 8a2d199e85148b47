// Command bot runs the bot-side process. It has no public listener: the
// conversational layer (an external collaborator) drives the state issuer,
// token broker, and refresh guard hosted here, and all coordination with the
// callback listener flows through the shared handoff store.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/adapter/cache"
	"github.com/shhvang/rSpotify/internal/adapter/spotify"
	"github.com/shhvang/rSpotify/internal/bootstrap"
	"github.com/shhvang/rSpotify/internal/config"
	"github.com/shhvang/rSpotify/internal/repository"
	"github.com/shhvang/rSpotify/internal/secrets"
	authservice "github.com/shhvang/rSpotify/internal/service/auth"
	"github.com/shhvang/rSpotify/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newTokenRepository,
			newRedisClient,
			newHandoffStore,
			newTokenCipher,
			newSpotifyClient,
			newIssuer,
			newBroker,
			newRefreshGuard,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, announceReady),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newHandoffStore(client redis.UniversalClient) repository.HandoffStore {
	return cache.NewRedisHandoffStore(client)
}

func newTokenCipher(cfg config.Config) (*secrets.TokenCipher, error) {
	return secrets.NewTokenCipher(cfg.TokenCipherKey)
}

func newSpotifyClient(cfg config.Config) spotify.Client {
	return spotify.NewHTTPClient(cfg, nil)
}

func newIssuer(store repository.HandoffStore, cfg config.Config, logger *zap.Logger) *authservice.Issuer {
	return authservice.NewIssuer(store, cfg, logger)
}

func newBroker(
	store repository.HandoffStore,
	tokens repository.TokenRepository,
	idp spotify.Client,
	cipher *secrets.TokenCipher,
	cfg config.Config,
	logger *zap.Logger,
) *authservice.Broker {
	return authservice.NewBroker(store, tokens, idp, cipher, cfg.ExchangeMaxRetries, logger)
}

func newRefreshGuard(
	tokens repository.TokenRepository,
	broker *authservice.Broker,
	cipher *secrets.TokenCipher,
	cfg config.Config,
	logger *zap.Logger,
) *authservice.RefreshGuard {
	return authservice.NewRefreshGuard(tokens, broker, cipher, cfg.RefreshBuffer, logger)
}

func useTelemetry(*telemetry.Provider) {}

// announceReady keeps the graph rooted. The Telegram command surface attaches
// to these services from outside this module.
func announceReady(issuer *authservice.Issuer, broker *authservice.Broker, guard *authservice.RefreshGuard, logger *zap.Logger) {
	_ = issuer
	_ = broker
	_ = guard
	logger.Info("bot auth services ready")
}
