package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		mutate func(*Config)
	}{
		{"zero market rate", func(c *Config) { c.Ticks.MarketRate = 0 }},
		{"zero qty epsilon", func(c *Config) { c.Numeric.QtyEpsilon = 0 }},
		{"negative price floor", func(c *Config) { c.Numeric.PriceFloor = -1 }},
		{"buffer below one", func(c *Config) { c.Market.MarketBuyBuffer = 0.9 }},
		{"tax rate >= 1", func(c *Config) { c.Market.ConsumptionTaxRate = 1.0 }},
		{"inverted rate band", func(c *Config) { c.Bank.MinRate = 0.1; c.Bank.MaxRate = 0.05 }},
		{"unknown regime", func(c *Config) { c.Bank.Regime = "gold_standard" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	body := []byte("seed: 42\nbank:\n  regime: policy_rate\n  reserve_target: 0.25\nmarket:\n  order_ttl_ticks: 99\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, RegimePolicyRate, cfg.Bank.Regime)
	assert.Equal(t, 0.25, cfg.Bank.ReserveTarget)
	assert.Equal(t, uint64(99), cfg.Market.OrderTTLTicks)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().Numeric.QtyEpsilon, cfg.Numeric.QtyEpsilon)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SIM_SEED", "7")
	t.Setenv("SIM_BANK_REGIME", "policy_rate")
	t.Setenv("SIM_RESERVE_TARGET", "0.33")
	t.Setenv("SIM_MARKET_RATE", "0") // invalid, must be ignored

	cfg := LoadFromEnv("")
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, RegimePolicyRate, cfg.Bank.Regime)
	assert.Equal(t, 0.33, cfg.Bank.ReserveTarget)
	assert.Equal(t, Default().Ticks.MarketRate, cfg.Ticks.MarketRate)
}
