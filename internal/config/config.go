// Package config loads the gateway's settings from the environment. Every key
// has a default; Load normalises what it can and reports everything else that
// is wrong in one error.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the dashboard origins allowed to call the gateway.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma separated
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// UpstreamConfig describes the dashboard REST API the gateway calls.
type UpstreamConfig struct {
	BaseURL       string        // UPSTREAM_BASE_URL
	Timeout       time.Duration // UPSTREAM_TIMEOUT, per attempt
	Token         string        // UPSTREAM_TOKEN, service credential fallback
	RetryAttempts int           // RETRY_ATTEMPTS
	RetryBackoff  time.Duration // RETRY_BACKOFF
}

// StreamConfig describes the upstream push stream of new enquiries.
type StreamConfig struct {
	Enabled      bool          // STREAM_ENABLED
	Path         string        // STREAM_PATH, relative to UPSTREAM_BASE_URL
	Event        string        // STREAM_EVENT
	ReconnectMin time.Duration // STREAM_RECONNECT_MIN
	ReconnectMax time.Duration // STREAM_RECONNECT_MAX
}

// EventsConfig tunes the browser event stream.
type EventsConfig struct {
	Buffer    int           // EVENTS_BUFFER, per subscriber
	Heartbeat time.Duration // EVENTS_HEARTBEAT
}

// Config holds all configuration values for the application.
type Config struct {
	// HTTP server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration // bounds graceful shutdown
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Submission ledger and paging
	DBPath           string
	DefaultPageLimit int
	MaxPageLimit     int
	IdempotencyTTL   time.Duration
	LedgerPurgeEvery time.Duration

	Upstream UpstreamConfig
	Stream   StreamConfig
	Events   EventsConfig

	// Inbound rate limiting
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment and validates the result. The returned Config
// is populated even when err is non-nil.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           ginMode(getenv("GIN_MODE", "release")),

		LogLevel:       logLevel(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath:           getenv("DB_PATH", "ledger.db"),
		DefaultPageLimit: getint("DEFAULT_PAGE_LIMIT", 10),
		MaxPageLimit:     getint("MAX_PAGE_LIMIT", 100),
		IdempotencyTTL:   getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		LedgerPurgeEvery: getdur("LEDGER_PURGE_EVERY", time.Hour),

		Upstream: loadUpstream(),
		Stream:   loadStream(),
		Events: EventsConfig{
			Buffer:    getint("EVENTS_BUFFER", 64),
			Heartbeat: getdur("EVENTS_HEARTBEAT", 25*time.Second),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "enquirydesk"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	return cfg, cfg.validate()
}

func loadUpstream() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:       strings.TrimRight(getenv("UPSTREAM_BASE_URL", "http://localhost:3000/api"), "/"),
		Timeout:       getdur("UPSTREAM_TIMEOUT", 10*time.Second),
		Token:         getenv("UPSTREAM_TOKEN", ""),
		RetryAttempts: getint("RETRY_ATTEMPTS", 3),
		RetryBackoff:  getdur("RETRY_BACKOFF", time.Second),
	}
}

func loadStream() StreamConfig {
	return StreamConfig{
		Enabled:      getbool("STREAM_ENABLED", true),
		Path:         normalizeBasePath(getenv("STREAM_PATH", "/enquiries/stream")),
		Event:        strings.TrimSpace(getenv("STREAM_EVENT", "newEnquiry")),
		ReconnectMin: getdur("STREAM_RECONNECT_MIN", time.Second),
		ReconnectMax: getdur("STREAM_RECONNECT_MAX", 30*time.Second),
	}
}

// validate returns every problem found, joined.
func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.DefaultPageLimit >= 1 && c.DefaultPageLimit <= c.MaxPageLimit,
		"DEFAULT_PAGE_LIMIT must be >= 1 and <= MAX_PAGE_LIMIT")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.LedgerPurgeEvery > 0, "LEDGER_PURGE_EVERY must be > 0")

	u, err := url.Parse(c.Upstream.BaseURL)
	check(err == nil && u.Scheme != "" && u.Host != "", "UPSTREAM_BASE_URL must be an absolute URL")
	check(c.Upstream.Timeout > 0, "UPSTREAM_TIMEOUT must be > 0")
	check(c.Upstream.RetryAttempts >= 1, "RETRY_ATTEMPTS must be >= 1")
	check(c.Upstream.RetryBackoff >= 0, "RETRY_BACKOFF must be >= 0")

	check(c.Stream.ReconnectMin > 0 && c.Stream.ReconnectMax >= c.Stream.ReconnectMin,
		"STREAM_RECONNECT_MIN must be > 0 and <= STREAM_RECONNECT_MAX")
	check(c.Stream.Event != "", "STREAM_EVENT must not be empty")
	check(c.Events.Buffer >= 1, "EVENTS_BUFFER must be >= 1")
	check(c.Events.Heartbeat > 0, "EVENTS_HEARTBEAT must be > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// ginMode lowercases m and falls back to release for unknown modes.
func ginMode(m string) string {
	switch m = strings.ToLower(m); m {
	case "debug", "release", "test":
		return m
	}
	return "release"
}

// logLevel lowercases l and accepts "warning" for "warn".
func logLevel(l string) string {
	if l = strings.ToLower(l); l == "warning" {
		return "warn"
	}
	return l
}

// lookup returns parse(value) for a set, non-empty key, and def otherwise or
// when parsing fails.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(s string) (string, error) { return s, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

var errNotBool = errors.New("not a boolean")

func getbool(k string, def bool) bool {
	return lookup(k, def, func(s string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errNotBool
	})
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

// normalizeBasePath returns p with one leading '/' and no trailing '/',
// or "/" for an empty path.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
