package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			InsuranceFeeBps:      200,
			MaxDailyLossBps:      500,
			BreakerTimezone:      "UTC",
			MaxPriceAgeSeconds:   300,
			OracleTimeoutSeconds: 1,
			Controllers:          []string{"0xkeeper"},
			MetricsNamespace:     "ertd_test",
		},
		Reserve: config.ReserveConfig{TargetUSD: "1000"},
		Oracle:  config.OracleConfig{BaseURL: "http://127.0.0.1:0"},
		Venues:  []config.VenueConfig{{Name: "uniswap", Kind: "DEX"}},
		Storage: config.StorageConfig{DSN: ":memory:"},
	}
}

func TestBuildApp_WiresServices(t *testing.T) {
	a, err := buildApp(testConfig())
	require.NoError(t, err)
	defer a.close()

	ctx := context.Background()
	_, err = a.ctl.Deposit(ctx, "0xlp", decimal.NewFromInt(100))
	require.NoError(t, err)

	info, err := a.ctl.VaultInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.TotalAssets.Equal(decimal.NewFromInt(100)))

	res, err := a.ctl.ReserveStatus(ctx)
	require.NoError(t, err)
	assert.True(t, res.Target.Equal(decimal.NewFromInt(1000)))

	assert.True(t, a.ctl.IsAdmin("0xkeeper"))
}

func TestBuildApp_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Reserve.TargetUSD = "lots"
	_, err := buildApp(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Venues = append(cfg.Venues, config.VenueConfig{Name: "mystery", Kind: "CEX"})
	_, err = buildApp(cfg)
	assert.Error(t, err)
}
