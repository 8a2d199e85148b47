// Package cert owns the callback domain's TLS certificate. Acquisition and
// renewal run through the ACME HTTP-01 challenge via autocert; the rest of
// the listener only ever sees GetCertificate and the health status.
package cert

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/shhvang/rSpotify/internal/config"
)

// Bundle summarizes the active certificate for one domain.
type Bundle struct {
	Domain    string
	NotBefore time.Time
	NotAfter  time.Time
}

// Status is the health-probe view of the manager.
type Status struct {
	Domain   string
	Degraded bool
	NotAfter time.Time
}

// Manager wraps an autocert.Manager for a single domain. Issuance failures
// flip it into degraded mode instead of crashing the listener: the HTTP-01
// challenge needs a reachable plain-HTTP listener to succeed on a later
// attempt, so staying up is the recovery path.
type Manager struct {
	domain      string
	renewBefore time.Duration
	acme        *autocert.Manager
	logger      *zap.Logger

	mu       sync.RWMutex
	degraded bool
	notAfter time.Time
}

// NewManager builds the manager from config.
func NewManager(cfg config.Config, logger *zap.Logger) *Manager {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.CallbackDomain),
		Cache:      autocert.DirCache(cfg.ACMECacheDir),
		Email:      cfg.ACMEEmail,
	}
	if cfg.ACMEDirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.ACMEDirectoryURL}
	}
	return &Manager{
		domain:      cfg.CallbackDomain,
		renewBefore: cfg.CertRenewBefore,
		acme:        m,
		logger:      logger,
	}
}

// GetCertificate is handed to tls.Config. autocert swaps renewed certificates
// in memory without touching established connections.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, err := m.acme.GetCertificate(hello)
	if err != nil {
		return nil, err
	}
	if bundle, berr := summarize(m.domain, cert); berr == nil {
		m.record(bundle)
	}
	return cert, nil
}

// HTTPHandler serves /.well-known/acme-challenge and delegates everything
// else to fallback. Mounted on the plain port 80 listener, which must stay
// reachable whenever renewal might occur.
func (m *Manager) HTTPHandler(fallback http.Handler) http.Handler {
	return m.acme.HTTPHandler(fallback)
}

// Ensure forces issuance for the domain, returning the resulting bundle.
// Called once at startup and from the renewal loop; a cached, still-valid
// certificate returns without touching the ACME directory.
func (m *Manager) Ensure(ctx context.Context) (*Bundle, error) {
	cert, err := m.acme.GetCertificate(&tls.ClientHelloInfo{ServerName: m.domain})
	if err != nil {
		m.markDegraded()
		return nil, fmt.Errorf("ensure certificate for %s: %w", m.domain, err)
	}
	bundle, err := summarize(m.domain, cert)
	if err != nil {
		m.markDegraded()
		return nil, err
	}
	m.record(bundle)
	return bundle, nil
}

// RenewLoop re-checks the certificate on the given interval. autocert renews
// on its own once the remaining validity is short; the loop exists to retry
// after degraded startups and to surface the renewal window in logs.
func (m *Manager) RenewLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bundle, err := m.Ensure(ctx)
			if err != nil {
				m.log().Error("certificate renewal check failed", zap.String("domain", m.domain), zap.Error(err))
				continue
			}
			remaining := time.Until(bundle.NotAfter)
			if remaining < m.renewBefore {
				m.log().Warn("certificate inside renewal window",
					zap.String("domain", m.domain),
					zap.Duration("remaining", remaining),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Status reports the manager state for the health probe.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{Domain: m.domain, Degraded: m.degraded, NotAfter: m.notAfter}
}

func (m *Manager) record(bundle *Bundle) {
	m.mu.Lock()
	m.degraded = false
	m.notAfter = bundle.NotAfter
	m.mu.Unlock()
}

func (m *Manager) markDegraded() {
	m.mu.Lock()
	m.degraded = true
	m.mu.Unlock()
}

func (m *Manager) log() *zap.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return zap.L()
}

// summarize extracts validity bounds from the active certificate chain.
func summarize(domain string, cert *tls.Certificate) (*Bundle, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return nil, fmt.Errorf("certificate for %s has no chain", domain)
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parse certificate for %s: %w", domain, err)
		}
		leaf = parsed
	}
	return &Bundle{Domain: domain, NotBefore: leaf.NotBefore, NotAfter: leaf.NotAfter}, nil
}
