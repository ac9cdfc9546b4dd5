package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/aether/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		E2B: config.E2BConfig{APIKey: "e2b_test", DefaultTimeout: 60, MaxTimeout: 3600},
		Log: config.LogConfig{Level: "error"},
	}
}

func TestNewGateway_RequiresMasterKey(t *testing.T) {
	_, err := newGateway(baseConfig(), true, false)
	assert.ErrorContains(t, err, "master_key")
}

func TestNewGateway_DevKeyNeedsFlag(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = config.DevMasterKey

	_, err := newGateway(cfg, true, false)
	assert.ErrorContains(t, err, "--dev")
}

func TestNewGateway_DevFlagFillsKey(t *testing.T) {
	cfg := baseConfig()

	gw, err := newGateway(cfg, true, true)
	require.NoError(t, err)
	defer gw.Close()

	assert.Equal(t, config.DevMasterKey, cfg.Auth.MasterKey)
	assert.Nil(t, gw.store)
}

func TestNewGateway_DevFlagKeepsRealKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "sk_live_real"

	gw, err := newGateway(cfg, true, true)
	require.NoError(t, err)
	defer gw.Close()

	assert.Equal(t, "sk_live_real", cfg.Auth.MasterKey)
}

func TestNewGateway_RequiresProviderKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "sk_live_real"
	cfg.E2B.APIKey = ""

	_, err := newGateway(cfg, true, false)
	assert.ErrorContains(t, err, "api_key")
}

func TestNewGateway_WithoutAuth(t *testing.T) {
	gw, err := newGateway(baseConfig(), false, false)
	require.NoError(t, err)
	gw.Close()
}

func TestNewGateway_History(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth.MasterKey = "sk_live_real"
	cfg.History = config.HistoryConfig{Enabled: true, DBPath: filepath.Join(t.TempDir(), "aether.db")}

	gw, err := newGateway(cfg, true, false)
	require.NoError(t, err)
	defer gw.Close()

	assert.NotNil(t, gw.store)
}
