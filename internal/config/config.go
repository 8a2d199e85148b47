package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration shared by the callback and bot
// processes. Both read the same environment surface; each binary uses the
// subset it needs.
type Config struct {
	Environment string
	ServiceName string

	// Callback listener.
	CallbackDomain string
	HTTPPort       string
	HTTPSPort      string
	RateLimitRPM   int

	// Spotify application.
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyScopes       []string
	SpotifyAuthURL      string
	SpotifyTokenURL     string

	// Deep-link target for the post-authorization redirect.
	BotUsername string

	// Handoff store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Token records.
	DatabaseURL string

	// Lifecycle windows.
	StateTTL      time.Duration
	HandoffTTL    time.Duration
	RefreshBuffer time.Duration

	// Token encryption key, base64 of 32 raw bytes.
	TokenCipherKey []byte

	// ACME / certificate renewal.
	ACMEEmail         string
	ACMECacheDir      string
	ACMEDirectoryURL  string
	CertRenewBefore   time.Duration
	CertCheckInterval time.Duration

	// Token endpoint retry budget for transient failures.
	ExchangeMaxRetries int

	TelemetryEndpoint string
	TelemetryInsecure bool
}

// RedirectURL is the single registered OAuth redirect URI.
func (c Config) RedirectURL() string {
	return fmt.Sprintf("https://%s/callback", c.CallbackDomain)
}

// BotDeepLink builds the bot entry link carrying the handoff identifier.
func (c Config) BotDeepLink(handoffID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", c.BotUsername, handoffID)
}

// defaultScopes mirrors the permissions the bot's playback and playlist
// features need.
var defaultScopes = []string{
	"user-read-currently-playing",
	"user-modify-playback-state",
	"user-read-playback-state",
	"playlist-modify-public",
	"playlist-modify-private",
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	clientID := strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("SPOTIFY_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("SPOTIFY_CLIENT_SECRET is required")
	}
	domain := strings.TrimSpace(os.Getenv("CALLBACK_DOMAIN"))
	if domain == "" {
		return Config{}, fmt.Errorf("CALLBACK_DOMAIN is required")
	}
	botUsername := strings.TrimSpace(os.Getenv("BOT_USERNAME"))
	if botUsername == "" {
		return Config{}, fmt.Errorf("BOT_USERNAME is required")
	}

	cipherKey, err := loadCipherKey()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:         getEnv("APP_ENV", "development"),
		ServiceName:         getEnv("SERVICE_NAME", "rspotify-auth"),
		CallbackDomain:      domain,
		HTTPPort:            getEnv("HTTP_PORT", "80"),
		HTTPSPort:           getEnv("HTTPS_PORT", "443"),
		RateLimitRPM:        getInt("RATE_LIMIT_RPM", 300),
		SpotifyClientID:     clientID,
		SpotifyClientSecret: clientSecret,
		SpotifyScopes:       getList("SPOTIFY_SCOPES", defaultScopes),
		SpotifyAuthURL:      getEnv("SPOTIFY_AUTH_URL", "https://accounts.spotify.com/authorize"),
		SpotifyTokenURL:     getEnv("SPOTIFY_TOKEN_URL", "https://accounts.spotify.com/api/token"),
		BotUsername:         botUsername,
		RedisAddr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StateTTL:            getDuration("STATE_TTL", 5*time.Minute),
		HandoffTTL:          getDuration("HANDOFF_TTL", 10*time.Minute),
		RefreshBuffer:       getDuration("REFRESH_BUFFER", 5*time.Minute),
		TokenCipherKey:      cipherKey,
		ACMEEmail:           os.Getenv("ACME_EMAIL"),
		ACMECacheDir:        getEnv("ACME_CACHE_DIR", "./data/acme"),
		ACMEDirectoryURL:    os.Getenv("ACME_DIRECTORY_URL"),
		CertRenewBefore:     getDuration("CERT_RENEW_BEFORE", 30*24*time.Hour),
		CertCheckInterval:   getDuration("CERT_CHECK_INTERVAL", 24*time.Hour),
		ExchangeMaxRetries:  getInt("EXCHANGE_MAX_RETRIES", 3),
		TelemetryEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:   getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.HandoffTTL < cfg.StateTTL {
		return Config{}, fmt.Errorf("HANDOFF_TTL must not be shorter than STATE_TTL")
	}

	return cfg, nil
}

func loadCipherKey() ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv("TOKEN_CIPHER_KEY"))
	if raw == "" {
		return nil, fmt.Errorf("TOKEN_CIPHER_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_CIPHER_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_CIPHER_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
