package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	DatabaseURL string
	PrefsPath   string

	IdentityURL     string
	IdentityAnonKey string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	Google OAuthConfig

	ProbeInterval time.Duration
	NoticeTTL     time.Duration

	StubPort string
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		PrefsPath:   getEnv("PREFS_PATH", "ebonics-prefs.db"),

		IdentityURL:     getEnv("IDENTITY_URL", "http://localhost:9999"),
		IdentityAnonKey: getEnv("IDENTITY_ANON_KEY", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", time.Hour),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 720*time.Hour),

		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		},

		ProbeInterval: getDuration("PROBE_INTERVAL", 5*time.Second),
		NoticeTTL:     getDuration("NOTICE_TTL", 3*time.Second),

		StubPort: getEnv("STUB_PORT", "9999"),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
