// Package config loads process-level configuration from environment
// variables (§6). Grounded on the explicit-Options-struct style used
// throughout the teacher's adapters (features/model/anthropic.Options,
// features/stream/pulse/clients/pulse.Options) and on
// codeready-toolchain-tarsy/pkg/database.LoadConfigFromEnv's
// getEnvOrDefault-plus-Validate shape, rather than a reflection-based
// struct-tag loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full set of environment-derived process configuration
// (§6 "Environment variables").
type Config struct {
	// LLMProvider selects the modelclient adapter: anthropic, openai, or
	// bedrock.
	LLMProvider string
	// LLMModel is the provider-specific model identifier.
	LLMModel string
	// LLMAPIKey authenticates against the provider. Empty disables the
	// reasoning node's LLM calls (graceful-degradation mode used by tests).
	LLMAPIKey string
	// LLMBaseURL is read from LLM_BASE_URL. It is not passed to any model
	// adapter; each provider uses its SDK's default endpoint.
	LLMBaseURL string
	// AWSRegion, AWSAccessKeyID, and AWSSecretAccessKey configure the
	// bedrock adapter when LLMProvider is "bedrock". Unused otherwise.
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// MaxEnrichmentWorkers bounds the parser's enrichment fan-out (§5).
	MaxEnrichmentWorkers int
	// EnrichmentTimeout bounds each enrichment future (§5).
	EnrichmentTimeout time.Duration

	// SessionStoreBackend selects the session.Store backend: memory,
	// redis, or sql.
	SessionStoreBackend string
	// RedisAddr is the redis backend's connection address.
	RedisAddr string
	// SQLDSN is the sql backend's connection string.
	SQLDSN string

	// LogLevel is debug, info, warn, or error.
	LogLevel string
	// LogFormat is text or json.
	LogFormat string

	// ScenariosDir is the directory scenario.Load reads per-scenario
	// descriptor subdirectories from.
	ScenariosDir string
	// TopologyFile is the path to the airport topology JSON document
	// topology.Load reads. Empty loads an empty graph (no spatial
	// propagation, used by deployments without a topology feed).
	TopologyFile string

	// HTTPAddr is the address httpapi's server listens on.
	HTTPAddr string
	// APIKey, when non-empty, is required in the X-API-Key header for
	// every /event/* request (§6 "Auth"). Empty disables auth.
	APIKey string
	// RateLimitPerMinute bounds requests per X-API-Key request header value
	// (or remote address when that header is absent) before httpapi returns
	// 429 (§6 "Rate-limit").
	// Zero disables rate limiting.
	RateLimitPerMinute int

	// AuditLogBackend selects the durable auditlog.Store: none or mongo.
	AuditLogBackend string
	// MongoURI and MongoDatabase configure the mongo audit-log backend.
	MongoURI      string
	MongoDatabase string

	// PulseEnabled fans turn events out to a Pulse/Redis stream in
	// addition to the synchronous SSE response, so other engine
	// replicas' subscribers observe the same turn.
	PulseEnabled bool
}

const (
	defaultSessionStoreBackend = "memory"
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
	defaultHTTPAddr            = ":8080"
	defaultMaxEnrichmentWorkers = 3
	defaultEnrichmentTimeout    = 10 * time.Second
	defaultScenariosDir         = "scenarios"
)

// FromEnv loads Config from the process environment, applying the
// defaults spec.md names where a variable is unset, and validates the
// result.
func FromEnv() (Config, error) {
	maxWorkers, err := strconv.Atoi(getEnvOrDefault("MAX_ENRICHMENT_WORKERS", strconv.Itoa(defaultMaxEnrichmentWorkers)))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid MAX_ENRICHMENT_WORKERS: %w", err)
	}
	enrichTimeout, err := time.ParseDuration(getEnvOrDefault("ENRICHMENT_TIMEOUT", defaultEnrichmentTimeout.String()))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid ENRICHMENT_TIMEOUT: %w", err)
	}
	rateLimit, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT_PER_MINUTE", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	cfg := Config{
		LLMProvider: getEnvOrDefault("LLM_PROVIDER", "anthropic"),
		LLMModel:    os.Getenv("LLM_MODEL"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		LLMBaseURL:  os.Getenv("LLM_BASE_URL"),

		AWSRegion:          getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),

		MaxEnrichmentWorkers: maxWorkers,
		EnrichmentTimeout:    enrichTimeout,

		SessionStoreBackend: getEnvOrDefault("SESSION_STORE_BACKEND", defaultSessionStoreBackend),
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		SQLDSN:              os.Getenv("SQL_DSN"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		LogFormat: getEnvOrDefault("LOG_FORMAT", defaultLogFormat),

		ScenariosDir: getEnvOrDefault("SCENARIOS_DIR", defaultScenariosDir),
		TopologyFile: os.Getenv("TOPOLOGY_FILE"),

		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", defaultHTTPAddr),
		APIKey:             os.Getenv("API_KEY"),
		RateLimitPerMinute: rateLimit,

		AuditLogBackend: getEnvOrDefault("AUDIT_LOG_BACKEND", "none"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getEnvOrDefault("MONGO_DATABASE", "apron_incident"),

		PulseEnabled: os.Getenv("PULSE_ENABLED") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants FromEnv cannot express through parsing alone.
func (c Config) Validate() error {
	switch c.SessionStoreBackend {
	case "memory", "redis", "sql":
	default:
		return fmt.Errorf("config: SESSION_STORE_BACKEND must be one of memory|redis|sql, got %q", c.SessionStoreBackend)
	}
	if c.SessionStoreBackend == "sql" && c.SQLDSN == "" {
		return fmt.Errorf("config: SQL_DSN is required when SESSION_STORE_BACKEND=sql")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.MaxEnrichmentWorkers < 1 {
		return fmt.Errorf("config: MAX_ENRICHMENT_WORKERS must be at least 1")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE cannot be negative")
	}
	switch c.AuditLogBackend {
	case "none", "mongo":
	default:
		return fmt.Errorf("config: AUDIT_LOG_BACKEND must be one of none|mongo, got %q", c.AuditLogBackend)
	}
	if c.AuditLogBackend == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("config: MONGO_URI is required when AUDIT_LOG_BACKEND=mongo")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
