// Command callback runs the public OAuth callback listener: the only
// HTTP-reachable process in the system. It validates IdP redirects against
// the handoff store and never holds token material.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/adapter/cache"
	"github.com/shhvang/rSpotify/internal/cert"
	"github.com/shhvang/rSpotify/internal/config"
	httptransport "github.com/shhvang/rSpotify/internal/http"
	"github.com/shhvang/rSpotify/internal/http/handler"
	httpmiddleware "github.com/shhvang/rSpotify/internal/http/middleware"
	"github.com/shhvang/rSpotify/internal/server"
	"github.com/shhvang/rSpotify/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newRedisClient,
			newHandoffStore,
			newCertManager,
			newCertReporter,
			newRateLimiter,
			newCallbackHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startRenewLoop, startHTTPServer),
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

func newHandoffStore(client redis.UniversalClient) *cache.RedisHandoffStore {
	return cache.NewRedisHandoffStore(client)
}

func newCertManager(cfg config.Config, logger *zap.Logger) *cert.Manager {
	return cert.NewManager(cfg, logger)
}

func newCertReporter(m *cert.Manager) handler.CertReporter {
	return m
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newCallbackHandler(store *cache.RedisHandoffStore, certs handler.CertReporter, cfg config.Config, logger *zap.Logger) *handler.CallbackHandler {
	return handler.NewCallbackHandler(store, certs, cfg, logger)
}

func useTelemetry(*telemetry.Provider) {}

func startRenewLoop(lc fx.Lifecycle, certs *cert.Manager, cfg config.Config) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			go certs.RenewLoop(runCtx, cfg.CertCheckInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	httpAddr := ":" + cfg.HTTPPort
	httpsAddr := ":" + cfg.HTTPSPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, httpAddr, httpsAddr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
