// Package config loads the server configuration from environment variables.
// Unset or empty variables take their defaults; a malformed value is an error
// rather than a silent fallback, and Load reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "legis-office-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN (DATABASE_URL)
}

// InviteConfig governs invitation code issuance.
type InviteConfig struct {
	ExpirationDays int  // default validity window in days
	CodeDigits     int  // length of generated numeric codes
	Debug          bool // expose codes on file in verify/use responses (development only)
}

// AuthConfig configures bearer tokens and password hashing.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTTTL         time.Duration
	BcryptCost     int
	BootstrapEmail string // first admin, created only when no profile exists
	BootstrapPass  string
}

// TopicCacheConfig bounds the in-process topic cache.
type TopicCacheConfig struct {
	Size int
	TTL  time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // mask secrets in request logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Store
	DB DBConfig

	// Domain
	Invite               InviteConfig
	FallbackAbbreviation string // numero suffix for topics without an abbreviation
	TopicCache           TopicCacheConfig

	// Auth
	Auth AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Stricter limit for login, registration and code checks, keyed per IP
	// and route.
	AuthRateRPS   float64
	AuthRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for callers that cannot continue without configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads, normalizes and validates the configuration. The returned error
// joins every malformed variable and every violated constraint.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.boolean("LOG_PRETTY", false),
		LogRedact:      e.boolean("LOG_REDACT", true),
		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "legis.db"),
			URL:    e.str("DATABASE_URL", ""),
		},

		Invite: InviteConfig{
			ExpirationDays: e.integer("INVITE_EXPIRATION_DAYS", 7),
			CodeDigits:     e.integer("INVITE_CODE_DIGITS", 4),
			Debug:          e.boolean("INVITE_DEBUG", false),
		},
		FallbackAbbreviation: strings.ToUpper(strings.TrimSpace(e.str("FALLBACK_ABBREVIATION", "GEN"))),
		TopicCache: TopicCacheConfig{
			Size: e.integer("TOPIC_CACHE_SIZE", 256),
			TTL:  e.duration("TOPIC_CACHE_TTL", 5*time.Minute),
		},

		Auth: AuthConfig{
			JWTSecret:      e.str("JWT_SECRET", ""),
			JWTIssuer:      e.str("JWT_ISSUER", "legis-office-backend"),
			JWTTTL:         e.duration("JWT_TTL", 12*time.Hour),
			BcryptCost:     e.integer("BCRYPT_COST", bcrypt.DefaultCost),
			BootstrapEmail: strings.ToLower(strings.TrimSpace(e.str("BOOTSTRAP_ADMIN_EMAIL", ""))),
			BootstrapPass:  e.str("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},

		RateRPS:       e.float("RATE_RPS", 5.0),
		RateBurst:     e.integer("RATE_BURST", 10),
		AuthRateRPS:   e.float("AUTH_RATE_RPS", 0.2),
		AuthRateBurst: e.integer("AUTH_RATE_BURST", 5),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "legis-office-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	cfg.normalize()
	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DB.Driver {
	case "postgresql", "pg":
		c.DB.Driver = "postgres"
	}
}

func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.URL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		check(false, "DB_DRIVER must be one of: sqlite, postgres")
	}

	check(c.Invite.ExpirationDays >= 1, "INVITE_EXPIRATION_DAYS must be >= 1")
	check(c.Invite.CodeDigits >= 4 && c.Invite.CodeDigits <= 9, "INVITE_CODE_DIGITS must be between 4 and 9")
	check(c.FallbackAbbreviation != "", "FALLBACK_ABBREVIATION must not be empty")
	check(c.TopicCache.Size >= 1 && c.TopicCache.TTL > 0, "TOPIC_CACHE_SIZE must be >= 1 and TOPIC_CACHE_TTL > 0")

	check(len(c.Auth.JWTSecret) >= 32, "JWT_SECRET must be at least 32 characters")
	check(c.Auth.JWTTTL > 0, "JWT_TTL must be > 0")
	check(c.Auth.BcryptCost >= bcrypt.MinCost && c.Auth.BcryptCost <= bcrypt.MaxCost, "BCRYPT_COST out of range")
	check((c.Auth.BootstrapEmail == "") == (c.Auth.BootstrapPass == ""),
		"BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.AuthRateRPS >= 0, "AUTH_RATE_RPS must be >= 0")
	check(c.AuthRateBurst >= 1, "AUTH_RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and collects the malformed ones.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (e *env) bad(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", k, v, kind))
}

// str returns the raw value, blanks included; only unset or empty falls back.
func (e *env) str(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(k, v, "number")
		return def
	}
	return f
}

func (e *env) boolean(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k, v, "boolean")
	return def
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(k, v, "duration")
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
