// Package server runs the callback listener's HTTP and HTTPS endpoints.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shhvang/rSpotify/internal/cert"
)

// HTTPServer serves the callback routes over HTTPS with ACME-managed
// certificates, keeping the plain listener up for HTTP-01 challenges.
type HTTPServer struct {
	Engine *gin.Engine
	Certs  *cert.Manager
	logger *zap.Logger
}

// NewHTTPServer creates a server with sane defaults such as recovery
// middleware already installed on the engine.
func NewHTTPServer(router *gin.Engine, certs *cert.Manager, logger *zap.Logger) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{Engine: router, Certs: certs, logger: logger}
}

// Run starts both listeners and shuts them down when ctx is done.
//
// The plain listener always serves the ACME challenge path. When initial
// certificate acquisition fails the full application is served over plain
// HTTP instead of crashing: the challenge needs this listener reachable for
// a later issuance attempt to succeed, so staying up is the recovery path.
func (s *HTTPServer) Run(ctx context.Context, httpAddr, httpsAddr string) error {
	ensureCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	bundle, err := s.Certs.Ensure(ensureCtx)
	cancel()

	var fallback http.Handler
	if err != nil {
		// Loud on purpose: every operator should see this.
		s.log().Error("TLS certificate unavailable, serving HTTP-only until issuance succeeds", zap.Error(err))
		fallback = s.Engine
	} else {
		s.log().Info("serving with TLS certificate",
			zap.String("domain", bundle.Domain),
			zap.Time("not_after", bundle.NotAfter),
		)
	}

	challengeSrv := &http.Server{
		Addr:    httpAddr,
		Handler: s.Certs.HTTPHandler(fallback),
	}
	tlsSrv := &http.Server{
		Addr:    httpsAddr,
		Handler: s.Engine,
		// GetCertificate lets autocert swap renewed certificates without
		// interrupting established connections.
		TLSConfig: &tls.Config{GetCertificate: s.Certs.GetCertificate},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := challengeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := tlsSrv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen https: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := challengeSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		if err := tlsSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown https: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *HTTPServer) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
