package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// PlaceholderGeminiKey is the value shipped in example env files; it is
// treated the same as an unset key.
const PlaceholderGeminiKey = "your_gemini_api_key"

type Config struct {
	Env       string `mapstructure:"PM_ENV"`
	HTTPAddr  string `mapstructure:"PM_HTTP_ADDR"`
	PublicURL string `mapstructure:"PM_PUBLIC_ORIGIN"`

	Database      DBConfig            `mapstructure:",squash"`
	Cache         CacheConfig         `mapstructure:",squash"`
	Security      SecurityConfig      `mapstructure:",squash"`
	Auth          AuthConfig          `mapstructure:",squash"`
	LinkedIn      LinkedInConfig      `mapstructure:",squash"`
	Gemini        GeminiConfig        `mapstructure:",squash"`
	Storage       StorageConfig       `mapstructure:",squash"`
	Sweeper       SweeperConfig       `mapstructure:",squash"`
	Observability ObservabilityConfig `mapstructure:",squash"`

	HTTPClientTimeout time.Duration `mapstructure:"PM_HTTP_CLIENT_TIMEOUT"`
}

type DBConfig struct {
	Type        string `mapstructure:"PM_DB_TYPE"` // "memory" or "postgres"
	PostgresDSN string `mapstructure:"PM_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr string `mapstructure:"PM_REDIS_ADDR"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"PM_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"PM_CORS_ALLOWED_ORIGINS"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"PM_AUTH_JWT_SECRET"`
	JWTAudience string `mapstructure:"PM_AUTH_JWT_AUDIENCE"`
	CookieName  string `mapstructure:"PM_AUTH_COOKIE_NAME"`
}

type LinkedInConfig struct {
	ClientID     string `mapstructure:"PM_LINKEDIN_CLIENT_ID"`
	ClientSecret string `mapstructure:"PM_LINKEDIN_CLIENT_SECRET"`
	RedirectURI  string `mapstructure:"PM_LINKEDIN_REDIRECT_URI"`
	APIURL       string `mapstructure:"PM_LINKEDIN_API_URL"`
	AuthURL      string `mapstructure:"PM_LINKEDIN_AUTH_URL"`
	TokenURL     string `mapstructure:"PM_LINKEDIN_TOKEN_URL"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"PM_GEMINI_API_KEY"`
	Model  string `mapstructure:"PM_GEMINI_MODEL"`
	APIURL string `mapstructure:"PM_GEMINI_API_URL"`
}

type StorageConfig struct {
	URL        string `mapstructure:"PM_STORAGE_URL"`
	ServiceKey string `mapstructure:"PM_STORAGE_SERVICE_KEY"`
	Bucket     string `mapstructure:"PM_STORAGE_BUCKET"`
}

type SweeperConfig struct {
	Enabled  bool          `mapstructure:"PM_SWEEP_ENABLED"`
	Interval time.Duration `mapstructure:"PM_SWEEP_INTERVAL"`
	Delay    time.Duration `mapstructure:"PM_SWEEP_DELAY"`
	LeaseTTL time.Duration `mapstructure:"PM_SWEEP_LEASE_TTL"`
}

type ObservabilityConfig struct {
	SentryDSN    string `mapstructure:"PM_SENTRY_DSN"`
	OTLPEndpoint string `mapstructure:"PM_OTLP_ENDPOINT"`
}

func loadDotEnvFiles() {
	candidates := []string{".env"}
	if root, err := moduleRoot(""); err == nil {
		candidates = append(candidates, filepath.Join(root, ".env"))
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PM_ENV", "dev")
	v.SetDefault("PM_HTTP_ADDR", ":8080")
	v.SetDefault("PM_PUBLIC_ORIGIN", "http://localhost:3000")
	v.SetDefault("PM_DB_TYPE", "memory")
	v.SetDefault("PM_POSTGRES_DSN", "")
	v.SetDefault("PM_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("PM_RATE_LIMIT_RPM", 120)
	v.SetDefault("PM_CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("PM_AUTH_JWT_SECRET", "")
	v.SetDefault("PM_AUTH_JWT_AUDIENCE", "authenticated")
	v.SetDefault("PM_AUTH_COOKIE_NAME", "pm_session")
	v.SetDefault("PM_LINKEDIN_CLIENT_ID", "")
	v.SetDefault("PM_LINKEDIN_CLIENT_SECRET", "")
	v.SetDefault("PM_LINKEDIN_REDIRECT_URI", "")
	v.SetDefault("PM_LINKEDIN_API_URL", "https://api.linkedin.com/v2")
	v.SetDefault("PM_LINKEDIN_AUTH_URL", "https://www.linkedin.com/oauth/v2/authorization")
	v.SetDefault("PM_LINKEDIN_TOKEN_URL", "https://www.linkedin.com/oauth/v2/accessToken")
	v.SetDefault("PM_GEMINI_API_KEY", "")
	v.SetDefault("PM_GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("PM_GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("PM_STORAGE_URL", "")
	v.SetDefault("PM_STORAGE_SERVICE_KEY", "")
	v.SetDefault("PM_STORAGE_BUCKET", "post-images")
	v.SetDefault("PM_SWEEP_ENABLED", true)
	v.SetDefault("PM_SWEEP_INTERVAL", "1m")
	v.SetDefault("PM_SWEEP_DELAY", "2s")
	v.SetDefault("PM_SWEEP_LEASE_TTL", "10m")
	v.SetDefault("PM_SENTRY_DSN", "")
	v.SetDefault("PM_OTLP_ENDPOINT", "")
	v.SetDefault("PM_HTTP_CLIENT_TIMEOUT", "30s")
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Handle array parsing for comma-separated values
	if origins := v.GetString("PM_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("PM_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	c.LinkedIn.APIURL = strings.TrimRight(c.LinkedIn.APIURL, "/")
	c.Gemini.APIURL = strings.TrimRight(c.Gemini.APIURL, "/")
	c.Storage.URL = strings.TrimRight(c.Storage.URL, "/")
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid PM_ENV %q (must be dev, test, or prod)", c.Env)
	}
	switch c.Database.Type {
	case "memory":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("PM_POSTGRES_DSN is required when PM_DB_TYPE=postgres")
		}
	default:
		return fmt.Errorf("invalid PM_DB_TYPE %q (must be memory or postgres)", c.Database.Type)
	}
	if c.IsProd() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("PM_AUTH_JWT_SECRET is required in prod")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("PM_SWEEP_INTERVAL must be positive")
	}
	if c.Sweeper.Delay < 0 {
		return fmt.Errorf("PM_SWEEP_DELAY must not be negative")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// GeminiConfigured reports whether a usable Gemini key is present.
func (c *Config) GeminiConfigured() bool {
	return c.Gemini.APIKey != "" && c.Gemini.APIKey != PlaceholderGeminiKey
}

// StorageConfigured reports whether uploads can go to real object storage.
func (c *Config) StorageConfigured() bool {
	return c.Storage.URL != "" && c.Storage.ServiceKey != ""
}
