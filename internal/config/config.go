// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, ledger paths and bounds, display thresholds, rate limiting, the
// tracker mirror, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// LedgerConfig selects and tunes the persistence backend.
type LedgerConfig struct {
	Backend     string        // "file" (default) or "sqlite"
	Path        string        // flat-file ledger path
	BackupDir   string        // backup directory for the file backend
	DBPath      string        // SQLite path when Backend == "sqlite"
	LockTimeout time.Duration // bound on waiting for the ledger lock
	CacheTTL    time.Duration // read-cache time-to-live
}

// BoardConfig holds the traffic-light display thresholds.
type BoardConfig struct {
	GreenThreshold time.Duration // under this: green
	AmberThreshold time.Duration // under this: amber; beyond: red
}

// MirrorConfig configures the fire-and-forget tracking-service mirror.
type MirrorConfig struct {
	Enabled bool
	URL     string
	Token   string
	Timeout time.Duration
}

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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// Core
	Ledger LedgerConfig
	Board  BoardConfig
	Mirror MirrorConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Core
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(getenv("LEDGER_BACKEND", "file")),
			Path:        getenv("LEDGER_PATH", "data/requisitions.csv"),
			BackupDir:   getenv("BACKUP_DIR", "data/backups"),
			DBPath:      getenv("DB_PATH", "data/requisitions.db"),
			LockTimeout: getdur("LOCK_TIMEOUT", 10*time.Second),
			CacheTTL:    getdur("CACHE_TTL", 5*time.Second),
		},
		Board: BoardConfig{
			GreenThreshold: getdur("GREEN_THRESHOLD", 20*time.Minute),
			AmberThreshold: getdur("AMBER_THRESHOLD", 40*time.Minute),
		},
		Mirror: MirrorConfig{
			Enabled: getbool("MIRROR_ENABLED", false),
			URL:     getenv("MIRROR_URL", ""),
			Token:   getenv("MIRROR_TOKEN", ""),
			Timeout: getdur("MIRROR_TIMEOUT", 5*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-requisition-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Ledger.Backend {
	case "file", "sqlite":
	default:
		return cfg, errors.New(`LEDGER_BACKEND must be "file" or "sqlite"`)
	}
	if strings.TrimSpace(cfg.Ledger.Path) == "" {
		return cfg, errors.New("LEDGER_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Ledger.BackupDir) == "" {
		return cfg, errors.New("BACKUP_DIR must not be empty")
	}
	if cfg.Ledger.Backend == "sqlite" && strings.TrimSpace(cfg.Ledger.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty for the sqlite backend")
	}
	if cfg.Ledger.LockTimeout <= 0 {
		return cfg, errors.New("LOCK_TIMEOUT must be > 0")
	}
	if cfg.Ledger.CacheTTL < 0 {
		return cfg, errors.New("CACHE_TTL must be >= 0")
	}
	if cfg.Board.GreenThreshold <= 0 || cfg.Board.AmberThreshold <= cfg.Board.GreenThreshold {
		return cfg, errors.New("thresholds must satisfy 0 < GREEN_THRESHOLD < AMBER_THRESHOLD")
	}
	if cfg.Mirror.Enabled && strings.TrimSpace(cfg.Mirror.URL) == "" {
		return cfg, errors.New("MIRROR_URL must be set when MIRROR_ENABLED")
	}
	if cfg.Mirror.Timeout <= 0 {
		return cfg, errors.New("MIRROR_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
