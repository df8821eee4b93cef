package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_Yaml(t *testing.T) {
	path := writeConfig(t, `
api_url: https://api.ledger.example
seed: SSEED
network_passphrase: Test Network
fee_debounce: 250ms
poll_interval: 1m
log_level: debug
movements_page_size: 50
rate_limit: "2.5"
`)

	cfg, err := Parse([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "https://api.ledger.example", cfg.APIURL)
	assert.Equal(t, "SSEED", cfg.Seed)
	assert.Equal(t, "Test Network", cfg.NetworkPassphrase)
	assert.Equal(t, 250*time.Millisecond, cfg.FeeDebounce)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 50, cfg.MovementsPageSize)
	assert.True(t, cfg.RateLimit.Equal(decimal.RequireFromString("2.5")))

	// defaults
	assert.Equal(t, defaultJournalDir, cfg.JournalDir)
	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
}

func TestParse_SeedFromEnv(t *testing.T) {
	t.Setenv(SeedEnv, "SENV")

	cfg, err := Parse([]string{"--api-url", "http://localhost:8000", "--fee-debounce", "1s"})
	require.NoError(t, err)
	assert.Equal(t, "SENV", cfg.Seed)
	assert.Equal(t, time.Second, cfg.FeeDebounce)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.Equal(t, defaultMovementsPageSize, cfg.MovementsPageSize)
}

func TestParse_Errors(t *testing.T) {
	t.Setenv(SeedEnv, "")

	tests := []struct {
		name string
		args []string
	}{
		{"missing api url", []string{"--rate-limit", "1"}},
		{"missing seed", []string{"--api-url", "http://localhost"}},
		{"bad yaml path", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"unknown flag", []string{"--pair", "BTC_USDT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParse_InvalidValues(t *testing.T) {
	t.Setenv(SeedEnv, "SENV")

	_, err := Parse([]string{"--api-url", "http://localhost", "--rate-limit", "fast"})
	assert.Error(t, err)

	_, err = Parse([]string{"--api-url", "http://localhost", "--rate-limit", "0"})
	assert.Error(t, err)

	_, err = Parse([]string{"--api-url", "http://localhost", "--log-level", "chatty"})
	assert.Error(t, err)
}

func TestParse_Setup(t *testing.T) {
	cfg, err := Parse([]string{"--setup"})
	require.NoError(t, err)
	assert.True(t, cfg.Setup)
}
