// Package config loads the server configuration.
//
// Configuration is resolved once in main and handed to constructors as a
// value. Nothing in the application reads environment variables after
// startup, so tests can build any configuration they need without touching
// the process environment.
//
// Precedence (lowest to highest):
//  1. defaults (Defaults)
//  2. a .env file, if present (github.com/joho/godotenv; it never overrides
//     variables that are already set)
//  3. environment variables
//  4. command-line flags
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port int

	// DBDriver is "sqlite" (modernc.org/sqlite) or "pgx" (PostgreSQL).
	DBDriver string
	DBDSN    string

	// JWTSecret signs access and verification tokens (HS256).
	// Rotating it invalidates every outstanding token.
	JWTSecret      string
	AccessTokenTTL time.Duration

	// PublicBaseURL prefixes the links sent in verification emails.
	PublicBaseURL string
	CORSOrigins   []string
	LogLevel      slog.Level

	MinIO    MinIOConfig
	Mailtrap MailtrapConfig

	SentryDSN         string
	SentryEnvironment string

	// Requests per minute per client, per route group.
	RateLimitMe   int
	RateLimitAuth int
}

// MinIOConfig configures the avatar image host.
// An empty Endpoint disables uploads.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the scheme://host used in avatar URLs
	// (e.g. a CDN in front of the bucket).
	PublicURL string
}

// MailtrapConfig configures outbound email. An empty APIKey makes the server
// log verification links instead of sending them.
type MailtrapConfig struct {
	APIKey    string
	URL       string
	FromEmail string
	FromName  string
}

// Defaults returns a development configuration. JWTSecret is intentionally
// empty: it has no safe default.
func Defaults() Config {
	return Config{
		Port:           8080,
		DBDriver:       "sqlite",
		DBDSN:          "data/contacts.db",
		AccessTokenTTL: 30 * time.Minute,
		PublicBaseURL:  "http://localhost:8080",
		CORSOrigins:    []string{"http://localhost:3000"},
		LogLevel:       slog.LevelInfo,
		MinIO: MinIOConfig{
			Bucket: "contacts-avatars",
		},
		Mailtrap: MailtrapConfig{
			URL:       "https://send.api.mailtrap.io/api/send",
			FromEmail: "no-reply@contacts.local",
			FromName:  "Contacts API",
		},
		SentryEnvironment: "development",
		RateLimitMe:       5,
		RateLimitAuth:     10,
	}
}

// Load builds the configuration from defaults, an optional .env file, the
// environment and the given command-line arguments (usually os.Args[1:]).
func Load(args []string) (Config, error) {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Defaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that the server cannot start with.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be set to at least 16 characters")
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "pgx" {
		return fmt.Errorf("config: unsupported DB_DRIVER %q (want sqlite or pgx)", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("config: DB_DSN must not be empty")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("config: ACCESS_TOKEN_TTL must be positive")
	}
	if c.RateLimitMe <= 0 || c.RateLimitAuth <= 0 {
		return errors.New("config: rate limits must be positive")
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("PORT", &c.Port)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("JWT_SECRET", &c.JWTSecret)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)

	if v, ok := lookup("ACCESS_TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: ACCESS_TOKEN_TTL: %w", err))
		} else {
			c.AccessTokenTTL = d
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("config: LOG_LEVEL: %w", err))
		}
	}

	str("MINIO_ENDPOINT", &c.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &c.MinIO.AccessKey)
	str("MINIO_SECRET_KEY", &c.MinIO.SecretKey)
	str("MINIO_BUCKET", &c.MinIO.Bucket)
	boolean("MINIO_USE_SSL", &c.MinIO.UseSSL)
	str("MINIO_PUBLIC_URL", &c.MinIO.PublicURL)

	str("MAILTRAP_API_KEY", &c.Mailtrap.APIKey)
	str("MAILTRAP_API_URL", &c.Mailtrap.URL)
	str("MAIL_FROM_EMAIL", &c.Mailtrap.FromEmail)
	str("MAIL_FROM_NAME", &c.Mailtrap.FromName)

	str("SENTRY_DSN", &c.SentryDSN)
	str("SENTRY_ENVIRONMENT", &c.SentryEnvironment)

	integer("RATE_LIMIT_ME", &c.RateLimitMe)
	integer("RATE_LIMIT_AUTH", &c.RateLimitAuth)

	return errors.Join(errs...)
}

// applyFlags lets the most common settings be overridden on the command line:
//
//	-port int      HTTP port
//	-db-driver s   sqlite | pgx
//	-db-dsn s      database DSN
//	-log-level s   debug | info | warn | error
func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("contacts-api", flag.ContinueOnError)

	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&c.DBDSN, "db-dsn", c.DBDSN, "database DSN")
	fs.TextVar(&c.LogLevel, "log-level", c.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parsing flags: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
