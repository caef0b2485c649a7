package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings()
	require.NoError(t, err)

	require.Equal(t, ":5055", s.ServerAddr)
	require.Equal(t, "info", s.LogLevel)
	require.Equal(t, "http://localhost:8000", s.AdminAPIURL)
	require.Equal(t, "data/audit.db", s.AuditDBPath)
	require.Equal(t, "http://localhost:11434", s.OllamaBaseURL)
	require.Empty(t, s.RedisAddr)
	require.Equal(t, 0.85, s.HighConfidenceThreshold)
	require.Equal(t, 0.70, s.MediumConfidenceThreshold)
	require.Equal(t, 0.50, s.LowConfidenceThreshold)
}

func TestLoadSettingsThresholdOverride(t *testing.T) {
	t.Setenv("CONCIERGE_HIGH_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("CONCIERGE_LOW_CONFIDENCE_THRESHOLD", "0.4")

	s, err := LoadSettings()
	require.NoError(t, err)

	require.Equal(t, 0.9, s.HighConfidenceThreshold)
	require.Equal(t, 0.70, s.MediumConfidenceThreshold)
	require.Equal(t, 0.4, s.LowConfidenceThreshold)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("CONCIERGE_SERVER_ADDR", ":9000")
	t.Setenv("CONCIERGE_REDIS_ADDR", "localhost:6379")
	t.Setenv("CONCIERGE_BACKEND_JWT", "jwt-token")
	t.Setenv("CONCIERGE_LOG_LEVEL", "debug")

	s, err := LoadSettings()
	require.NoError(t, err)

	require.Equal(t, ":9000", s.ServerAddr)
	require.Equal(t, "localhost:6379", s.RedisAddr)
	require.Equal(t, "jwt-token", s.BackendJWT)
	require.Equal(t, "debug", s.LogLevel)
}
