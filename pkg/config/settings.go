package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	StoreLive   = "live"
	StoreNoop   = "noop"
	StoreMemory = "memory"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	BotToken    string `env:"BOT_TOKEN, required"`
	WebhookHost string `env:"WEBHOOK_HOST"`
	Port        string `env:"PORT, default=8000"`

	StoreMode     string `env:"STORE_MODE, default=live"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SupabaseDBURL string `env:"SUPABASE_DB_URL"`

	SessionBackend string        `env:"SESSION_BACKEND, default=memory"`
	SessionTTL     time.Duration `env:"SESSION_TTL, default=24h"`
	Redis          RedisSettings

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS, default=3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY, default=1s"`

	LogLevel       string `env:"LOG_LEVEL, default=info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT, default=false"`

	FlowsFile string `env:"FLOWS_FILE"`
}

type RedisSettings struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// LoadSettings reads an optional .env file and then the process environment.
func LoadSettings(ctx context.Context) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadSettingsFrom(ctx, envconfig.OsLookuper())
}

// LoadSettingsFrom resolves settings through l. Tests pass envconfig.MapLookuper.
func LoadSettingsFrom(ctx context.Context, l envconfig.Lookuper) (*Settings, error) {
	var s Settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &s, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if s.DatabaseURL == "" {
		s.DatabaseURL = s.SupabaseDBURL
	}
	s.StoreMode = strings.ToLower(strings.TrimSpace(s.StoreMode))
	s.SessionBackend = strings.ToLower(strings.TrimSpace(s.SessionBackend))
	s.WebhookHost = strings.TrimRight(s.WebhookHost, "/")

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	switch s.StoreMode {
	case StoreLive, StoreNoop, StoreMemory:
	default:
		return fmt.Errorf("settings validation failed: unknown STORE_MODE %q", s.StoreMode)
	}
	switch s.SessionBackend {
	case SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("settings validation failed: unknown SESSION_BACKEND %q", s.SessionBackend)
	}
	if s.RetryMaxAttempts < 1 {
		return fmt.Errorf("settings validation failed: RETRY_MAX_ATTEMPTS must be at least 1, got %d", s.RetryMaxAttempts)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("settings validation failed: RETRY_DELAY must not be negative")
	}
	if s.SessionTTL < 0 {
		return fmt.Errorf("settings validation failed: SESSION_TTL must not be negative")
	}
	return nil
}

// DummyCredentials reports whether the database DSN is absent or the literal "dummy".
func (s *Settings) DummyCredentials() bool {
	dsn := strings.TrimSpace(s.DatabaseURL)
	return dsn == "" || strings.EqualFold(dsn, "dummy")
}

// EffectiveStoreMode resolves live mode without credentials to noop.
func (s *Settings) EffectiveStoreMode() string {
	if s.StoreMode == StoreLive && s.DummyCredentials() {
		return StoreNoop
	}
	return s.StoreMode
}

func (s *Settings) WebhookMode() bool {
	return s.WebhookHost != ""
}

func (s *Settings) WebhookPath() string {
	return "/webhook/" + s.BotToken
}

func (s *Settings) WebhookURL() string {
	return s.WebhookHost + s.WebhookPath()
}
