// Package config loads the server configuration from environment variables.
//
// Everything the application needs from the environment is read here, once,
// at startup. Components receive plain values (secret, TTL, base URL, ...) at
// construction and never call os.Getenv themselves.
//
// main loads an optional .env file with godotenv before calling Load, so local
// development can keep settings in a file while deployments use real env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Google   GoogleConfig
	Storage  StorageConfig
	Sentry   SentryConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// URL is the public origin of the server. Locally stored media is
	// published under URL + "/uploads/...".
	URL string
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver string
	Path   string // sqlite file, or ":memory:"
	URL    string // postgres DSN
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether the server-side Google OAuth routes can be mounted.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

type StorageConfig struct {
	Backend        string
	MediaDir       string
	MaxUploadBytes int64
	S3             S3Config
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

type SentryConfig struct {
	DSN         string
	Environment string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

const defaultMaxUploadBytes = 512 << 20 // 512 MiB

// Load reads and validates the configuration.
func Load() (*Config, error) {
	port, err := getIntEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := getDurationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	bcryptCost, err := getIntEnv("BCRYPT_COST", 12)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getIntEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}

	serverURL := strings.TrimRight(getEnv("SERVER_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port: port,
			URL:  serverURL,
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:   getEnv("DB_PATH", "data/media.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			TokenTTL:   tokenTTL,
			BcryptCost: bcryptCost,
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GOOGLE_CALLBACK_URL", serverURL+"/auth/google/callback"),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
			MediaDir:       getEnv("MEDIA_DIR", "public"),
			MaxUploadBytes: int64(maxUpload),
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", ""),
				Region:    getEnv("S3_REGION", ""),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				PublicURL: strings.TrimRight(getEnv("S3_PUBLIC_URL", ""), "/"),
			},
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("APP_ENV", "development"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver))
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.MediaDir == "" {
			errs = append(errs, errors.New("MEDIA_DIR is required for local storage"))
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" || c.Storage.S3.PublicURL == "" {
			errs = append(errs, errors.New("S3_BUCKET, S3_REGION and S3_PUBLIC_URL are required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendLocal, BackendS3, c.Storage.Backend))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}
