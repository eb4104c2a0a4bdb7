package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("CLAIM_EXCHANGE_ENABLED", "")
	t.Setenv("SETTLEMENT_THRESHOLD", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load(viper.New(), "/nonexistent/.env")
	require.NoError(t, err)
	assert.True(t, cfg.ClaimExchangeOn)
	assert.Equal(t, "0", cfg.SettlementThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8088", cfg.HTTPListenAddr)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("CLAIM_EXCHANGE_ENABLED", "false")
	t.Setenv("SETTLEMENT_THRESHOLD", "1000000")
	t.Setenv("EVM_PRIVATE_KEY", "deadbeef")
	t.Setenv("APTOS_COIN_TYPE", "0x1::aptos_coin::AptosCoin")

	cfg, err := Load(viper.New(), "/nonexistent/.env")
	require.NoError(t, err)
	assert.False(t, cfg.ClaimExchangeOn)
	assert.Equal(t, "1000000", cfg.SettlementThreshold)
	assert.Equal(t, "deadbeef", cfg.EVMPrivateKey)
	assert.Equal(t, "0x1::aptos_coin::AptosCoin", cfg.AptosCoinType)
}

func TestClaimExchangeEnabledImplementsFeatureFlag(t *testing.T) {
	cfg := &Config{ClaimExchangeOn: true}
	assert.True(t, cfg.ClaimExchangeEnabled())
}

func TestRedactedMasksPrivateKeys(t *testing.T) {
	cfg := &Config{EVMPrivateKey: "secret", XRPPrivateKey: "secret", AptosPrivateKey: "secret"}
	redacted := cfg.Redacted()
	assert.Equal(t, "***", redacted.EVMPrivateKey)
	assert.Equal(t, "***", redacted.XRPPrivateKey)
	assert.Equal(t, "***", redacted.AptosPrivateKey)
}
