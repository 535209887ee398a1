package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, "memory", cfg.SessionStoreBackend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 3, cfg.MaxEnrichmentWorkers)
	assert.Equal(t, 0, cfg.RateLimitPerMinute)
	assert.Equal(t, "scenarios", cfg.ScenariosDir)
	assert.Empty(t, cfg.TopologyFile)
	assert.Equal(t, "none", cfg.AuditLogBackend)
	assert.False(t, cfg.PulseEnabled)
}

func TestFromEnvRequiresMongoURIForMongoAuditBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_LOG_BACKEND", "mongo")

	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.AuditLogBackend)
}

func TestFromEnvRejectsUnknownSessionStoreBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_STORE_BACKEND", "mongo")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRequiresSQLDSNForSQLBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_STORE_BACKEND", "sql")

	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("SQL_DSN", "postgres://localhost/apron")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.SessionStoreBackend)
}

func TestFromEnvRejectsInvalidMaxEnrichmentWorkers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_ENRICHMENT_WORKERS", "not-a-number")

	_, err := FromEnv()
	assert.Error(t, err)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_BASE_URL",
		"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"MAX_ENRICHMENT_WORKERS", "ENRICHMENT_TIMEOUT",
		"SESSION_STORE_BACKEND", "REDIS_ADDR", "SQL_DSN",
		"LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR", "API_KEY", "RATE_LIMIT_PER_MINUTE",
		"SCENARIOS_DIR", "TOPOLOGY_FILE",
		"AUDIT_LOG_BACKEND", "MONGO_URI", "MONGO_DATABASE", "PULSE_ENABLED",
	} {
		t.Setenv(key, "")
	}
}
