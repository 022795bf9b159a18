package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/config"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeYAML(t, "oracle:\n  base_url: http://oracle\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(200), cfg.Engine.InsuranceFeeBps)
	assert.Equal(t, int64(500), cfg.Engine.MaxDailyLossBps)
	assert.Equal(t, "UTC", cfg.Engine.BreakerTimezone)
	assert.Equal(t, 5*time.Minute, cfg.MaxPriceAge())
	assert.Equal(t, 3*time.Second, cfg.OracleTimeout())
	assert.Equal(t, time.Minute, cfg.ExpirySweepInterval())
	assert.Len(t, cfg.Venues, 3)
	assert.Equal(t, "ertvault.db", cfg.Storage.DSN)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeYAML(t, `
oracle:
  base_url: http://oracle
storage:
  dsn: from-yaml.db
venues:
  - name: curve
    kind: dex
`)
	t.Setenv("ERT_STORAGE_DSN", ":memory:")
	t.Setenv("ERT_HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "DEX", cfg.Venues[0].Kind)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing oracle", "engine:\n  max_daily_loss_bps: 100\n"},
		{"bad timezone", "oracle:\n  base_url: x\nengine:\n  breaker_timezone: Mars/Olympus\n"},
		{"duplicate venue", "oracle:\n  base_url: x\nvenues:\n  - {name: a, kind: DEX}\n  - {name: a, kind: PERP}\n"},
		{"skim out of range", "oracle:\n  base_url: x\nengine:\n  insurance_fee_bps: 20000\n"},
		{"bad yaml", "oracle: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ERT_ORACLE_URL", "")
			_, err := config.Load(writeYAML(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
