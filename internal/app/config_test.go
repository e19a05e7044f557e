package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("PERIOD_POLICY", "strict")
	t.Setenv("REPORT_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	require.Equal(t, 1, cfg.FiscalYearStartMonth)
	require.Equal(t, 20*time.Second, cfg.RequestTimeout)
	require.False(t, cfg.IsProduction())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	require.Equal(t, periods.PolicyStrict, policy)

	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"driver":       {"STORE_DRIVER", "sqlite"},
		"policy":       {"PERIOD_POLICY", "lenient"},
		"fiscal month": {"FISCAL_YEAR_START_MONTH", "13"},
		"rate limit":   {"RATE_LIMIT_PER_MINUTE", "0"},
		"log level":    {"LOG_LEVEL", "chatty"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", DriverMemory)
			t.Setenv(env[0], env[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestIsProductionNilSafe(t *testing.T) {
	var cfg *Config
	require.False(t, cfg.IsProduction())
	require.True(t, (&Config{AppEnv: "production"}).IsProduction())
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("dropped")
	logger.Warn("kept", slog.Int64("tenant_id", 4))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.EqualValues(t, 4, line["tenant_id"])
}
