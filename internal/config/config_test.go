// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "flightscout", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().Stealth)
	assert.Equal(t, "en-GB,en;q=0.9", cfg.Browser().Headers["accept-language"])
	assert.Equal(t, 24, cfg.Search().MaxMonthAdvances)
	assert.Equal(t, 16, cfg.Search().ConvergenceSlack)
	assert.Equal(t, 3*time.Minute, cfg.Search().RequestTimeout)
	assert.Equal(t, WindowConfig{MinMs: 300, MaxMs: 900}, cfg.Pacing().Fill)
	assert.Equal(t, WindowConfig{MinMs: 300, MaxMs: 800}, cfg.Pacing().Click)
	assert.Equal(t, WindowConfig{MinMs: 100, MaxMs: 500}, cfg.Pacing().WaitFor)
	assert.Equal(t, WindowConfig{MinMs: 100, MaxMs: 200}, cfg.Pacing().Read)
	assert.Equal(t, "https://www.united.com/en/gb", cfg.Site().URL)
	assert.Equal(t, "Economy", cfg.Site().CabinLabels["economy"])
	assert.Equal(t, "Premium Economy", cfg.Site().CabinLabels["business"])
	assert.Equal(t, "Business or First", cfg.Site().CabinLabels["first"])
	assert.Equal(t, "json", cfg.Output().Format)
	require.NoError(t, cfg.Validate())
}

func TestSelectorTemplates(t *testing.T) {
	cfg := NewDefaultConfig()
	sel := cfg.Site().Selectors

	assert.Equal(t, `td.rdp-day[data-day="2025-10-22"] button.rdp-day_button`, sel.Day("2025-10-22"))

	sel.PassengerRow = `div.row[data-category="{category}"]`
	assert.Equal(t, `div.row[data-category="Adults"]`, sel.Row("Adults"))
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero month advances", func(c *Config) { c.SearchCfg.MaxMonthAdvances = 0 }, "search.max_month_advances"},
		{"zero convergence slack", func(c *Config) { c.SearchCfg.ConvergenceSlack = 0 }, "search.convergence_slack"},
		{"inverted pacing window", func(c *Config) { c.PacingCfg.Click = WindowConfig{MinMs: 900, MaxMs: 100} }, "click window"},
		{"negative action rate", func(c *Config) { c.PacingCfg.MaxActionsPerSecond = -1 }, "max_actions_per_second"},
		{"proxy without address", func(c *Config) { c.BrowserCfg.Proxy.Enabled = true }, "browser.proxy.address"},
		{"missing origin selector", func(c *Config) { c.SiteCfg.Selectors.Origin = "" }, "selectors.origin"},
		{"day selector without placeholder", func(c *Config) { c.SiteCfg.Selectors.DayButton = "td.day" }, "{day}"},
		{"unknown output format", func(c *Config) { c.OutputCfg.Format = "csv" }, "output.format"},
		{"negative output limit", func(c *Config) { c.OutputCfg.Limit = -3 }, "output.limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")

		yamlConfig := []byte(`
browser:
  headless: true
  headers:
    Accept-Language: "fr-FR,fr;q=0.9"
  proxy:
    enabled: true
    address: "http://127.0.0.1:8080"
search:
  max_month_advances: 6
  request_timeout: 90s
site:
  cabin_labels:
    business: "Business"
pacing:
  click:
    min_ms: 0
    max_ms: 0
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.True(t, cfg.Browser().Headless)
		assert.Equal(t, "http://127.0.0.1:8080", cfg.Browser().Proxy.Address)
		assert.Equal(t, 6, cfg.Search().MaxMonthAdvances)
		assert.Equal(t, 90*time.Second, cfg.Search().RequestTimeout)
		assert.Equal(t, "Business", cfg.Site().CabinLabels["business"])
		assert.Equal(t, WindowConfig{}, cfg.Pacing().Click)
		// A file header replaces the default of the same name instead of adding a second one.
		assert.Equal(t, "fr-FR,fr;q=0.9", cfg.Browser().Headers["accept-language"])
		assert.Len(t, cfg.Browser().Headers, 2)
		// Untouched sections keep their defaults.
		assert.Equal(t, 16, cfg.Search().ConvergenceSlack)
	})

	t.Run("database url comes from the environment", func(t *testing.T) {
		t.Setenv("FLIGHTSCOUT_DATABASE_URL", "postgres://scout@localhost/flights")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://scout@localhost/flights", cfg.Database().URL)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("search.convergence_slack", -1)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()
	cfg.SetBrowserHeadless(true)
	cfg.SetSearchRequestTimeout(time.Minute)
	cfg.SetOutputLimit(3)

	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, time.Minute, cfg.Search().RequestTimeout)
	assert.Equal(t, 3, cfg.Output().Limit)
}
