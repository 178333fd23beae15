package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Supported backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderSandbox = "sandbox"
	ProviderSquare  = "square"
	ProviderStatic  = "static"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	ServiceName        string
	LogFormat          string
	LogLevel           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	ShutdownTimeout    time.Duration
	MetricsNamespace   string
	OTLPEndpoint       string
	OTLPInsecure       bool
	TraceSampleRatio   float64

	RedisURL      string
	DatabaseURL   string
	RunMigrations bool

	OrderStore     string
	OrderRetention time.Duration

	RateLimitBackend string
	RateLimitWindow  time.Duration
	RateLimitMax     int

	PaymentProvider   string
	SquareAccessToken string
	SquareLocationID  string
	SquareEnv         string
	SquareBaseURL     string
	SquareVersion     string
	ProviderTimeout   time.Duration
	PaymentMinMinor   map[string]int64
	PaymentMaxMinor   map[string]int64
	LockBackend       string
	LockTTL           time.Duration

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	NotifyEnabled   bool
	MailFrom        string
	TaskQueue       string
	TaskConcurrency int

	CatalogProvider string
	CatalogCacheTTL time.Duration

	CheckoutAPIURL string
}

var currencies = []string{"USD", "MXN", "CAD"}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(env.Provider("", ".", func(s string) string { return s }))
}

// LoadForTests builds a Config from vars only, ignoring the process
// environment and .env files.
func LoadForTests(vars map[string]string) (*Config, error) {
	return load(mapProvider(vars))
}

func load(p koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(p, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		ServiceName:        valueOrDefault(k.String("SERVICE_NAME"), "candle-checkout"),
		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "checkout"),
		OTLPEndpoint:       strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:       parseBool(k.String("OTEL_EXPORTER_OTLP_INSECURE")),
		TraceSampleRatio:   parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),

		RedisURL:      strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:   strings.TrimSpace(k.String("DATABASE_URL")),
		RunMigrations: parseBool(k.String("RUN_MIGRATIONS")),

		OrderStore:     strings.ToLower(valueOrDefault(k.String("ORDER_STORE"), BackendMemory)),
		OrderRetention: parseDuration(k.String("ORDER_RETENTION"), "24h"),

		RateLimitBackend: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), BackendMemory)),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "60s"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 5),

		PaymentProvider:   strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), ProviderSandbox)),
		SquareAccessToken: strings.TrimSpace(k.String("SQUARE_ACCESS_TOKEN")),
		SquareLocationID:  strings.TrimSpace(k.String("SQUARE_LOCATION_ID")),
		SquareEnv:         strings.ToLower(valueOrDefault(k.String("SQUARE_ENV"), "sandbox")),
		SquareBaseURL:     strings.TrimSpace(k.String("SQUARE_BASE_URL")),
		SquareVersion:     strings.TrimSpace(k.String("SQUARE_VERSION")),
		ProviderTimeout:   parseDuration(k.String("PAYMENT_PROVIDER_TIMEOUT"), "10s"),
		PaymentMinMinor:   amountOverrides(k, "PAYMENT_MIN_"),
		PaymentMaxMinor:   amountOverrides(k, "PAYMENT_MAX_"),
		LockBackend:       strings.ToLower(valueOrDefault(k.String("LOCK_BACKEND"), BackendMemory)),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "30s"),

		BreakerMinRequests:  parseInt(k.String("CIRCUIT_PAYMENT_MIN_REQ"), 10),
		BreakerFailureRatio: parseFloat(k.String("CIRCUIT_PAYMENT_FAILURE_RATE"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("CIRCUIT_PAYMENT_OPEN_FOR"), "30s"),

		KafkaBrokers: splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "checkout.events"),

		NotifyEnabled:   parseBool(k.String("NOTIFY_ENABLED")),
		MailFrom:        valueOrDefault(k.String("MAIL_FROM"), "orders@candle.example"),
		TaskQueue:       valueOrDefault(k.String("TASK_QUEUE"), "default"),
		TaskConcurrency: parseInt(k.String("TASK_CONCURRENCY"), 5),

		CatalogProvider: strings.ToLower(valueOrDefault(k.String("CATALOG_PROVIDER"), ProviderStatic)),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		CheckoutAPIURL: valueOrDefault(k.String("CHECKOUT_API_URL"), "http://localhost:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected backend has what it needs.
func (c *Config) Validate() error {
	var errs []error
	needsRedis := c.OrderStore == BackendRedis || c.RateLimitBackend == BackendRedis ||
		c.LockBackend == BackendRedis || c.NotifyEnabled
	if needsRedis && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the selected backends"))
	}
	switch c.OrderStore {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when ORDER_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ORDER_STORE %q", c.OrderStore))
	}
	if c.RateLimitBackend != BackendMemory && c.RateLimitBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	if c.LockBackend != BackendMemory && c.LockBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend))
	}
	switch c.PaymentProvider {
	case ProviderSandbox:
	case ProviderSquare:
		if c.SquareAccessToken == "" || c.SquareLocationID == "" {
			errs = append(errs, errors.New("SQUARE_ACCESS_TOKEN and SQUARE_LOCATION_ID are required when PAYMENT_PROVIDER=square"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}
	switch c.CatalogProvider {
	case ProviderStatic:
	case ProviderSquare:
		if c.SquareAccessToken == "" {
			errs = append(errs, errors.New("SQUARE_ACCESS_TOKEN is required when CATALOG_PROVIDER=square"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CATALOG_PROVIDER %q", c.CatalogProvider))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// SquareAPIBase resolves the Square host for the configured environment.
func (c *Config) SquareAPIBase() string {
	if c.SquareBaseURL != "" {
		return c.SquareBaseURL
	}
	if c.SquareEnv == "production" {
		return "https://connect.squareup.com"
	}
	return "https://connect.squareupsandbox.com"
}

// mapProvider feeds a flat map to koanf.
type mapProvider map[string]string

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func amountOverrides(k *koanf.Koanf, prefix string) map[string]int64 {
	out := map[string]int64{}
	for _, cur := range currencies {
		raw := strings.TrimSpace(k.String(prefix + cur))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			out[cur] = v
		}
	}
	return out
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
