// Package config loads claimbridge's runtime configuration from
// environment variables, with an optional .env file and cobra flag
// overrides wired in by cmd/claimrelay.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-configurable option this process
// recognizes, plus the ambient HTTP listen address it needs to serve
// its management surface on.
type Config struct {
	ClaimExchangeOn     bool
	SettlementThreshold string

	EVMNodeURL           string
	EVMPrivateKey        string
	EVMChainID           int64
	EVMDomainName        string
	EVMDomainVersion     string
	EVMVerifyingContract string

	XRPNodeURL    string
	XRPPrivateKey string
	XRPPublicKey  string
	XRPAccount    string

	AptosNodeURL    string
	AptosPrivateKey string
	AptosAccount    string
	AptosCoinType   string

	FirstHopURL string
	LogLevel    string

	HTTPListenAddr string
}

// envKeys lists every (viper key, env var) pair this process
// recognizes; key and env var are identical on purpose.
var envKeys = []string{
	"CLAIM_EXCHANGE_ENABLED",
	"SETTLEMENT_THRESHOLD",
	"EVM_NODE_URL",
	"EVM_PRIVATE_KEY",
	"EVM_CHAIN_ID",
	"EVM_DOMAIN_NAME",
	"EVM_DOMAIN_VERSION",
	"EVM_VERIFYING_CONTRACT",
	"XRP_NODE_URL",
	"XRP_PRIVATE_KEY",
	"XRP_PUBLIC_KEY",
	"XRP_ACCOUNT",
	"APTOS_NODE_URL",
	"APTOS_PRIVATE_KEY",
	"APTOS_ACCOUNT",
	"APTOS_COIN_TYPE",
	"FIRST_HOP_URL",
	"LOG_LEVEL",
	"HTTP_LISTEN_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CLAIM_EXCHANGE_ENABLED", true)
	v.SetDefault("SETTLEMENT_THRESHOLD", "0")
	v.SetDefault("EVM_CHAIN_ID", int64(1))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_LISTEN_ADDR", ":8088")
}

// Load reads configuration into a Config using v, an already-constructed
// viper instance (so a cobra root command can bind flags onto the same
// instance before calling Load). A .env file at dotenvPath is loaded
// first if present; pass "" to use the default ".env" lookup, or skip
// entirely if no file exists.
func Load(v *viper.Viper, dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		_ = godotenv.Load(dotenvPath)
	} else {
		_ = godotenv.Load()
	}

	setDefaults(v)
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		ClaimExchangeOn:     v.GetBool("CLAIM_EXCHANGE_ENABLED"),
		SettlementThreshold: v.GetString("SETTLEMENT_THRESHOLD"),

		EVMNodeURL:           v.GetString("EVM_NODE_URL"),
		EVMPrivateKey:        v.GetString("EVM_PRIVATE_KEY"),
		EVMChainID:           v.GetInt64("EVM_CHAIN_ID"),
		EVMDomainName:        v.GetString("EVM_DOMAIN_NAME"),
		EVMDomainVersion:     v.GetString("EVM_DOMAIN_VERSION"),
		EVMVerifyingContract: v.GetString("EVM_VERIFYING_CONTRACT"),

		XRPNodeURL:    v.GetString("XRP_NODE_URL"),
		XRPPrivateKey: v.GetString("XRP_PRIVATE_KEY"),
		XRPPublicKey:  v.GetString("XRP_PUBLIC_KEY"),
		XRPAccount:    v.GetString("XRP_ACCOUNT"),

		AptosNodeURL:    v.GetString("APTOS_NODE_URL"),
		AptosPrivateKey: v.GetString("APTOS_PRIVATE_KEY"),
		AptosAccount:    v.GetString("APTOS_ACCOUNT"),
		AptosCoinType:   v.GetString("APTOS_COIN_TYPE"),

		FirstHopURL: v.GetString("FIRST_HOP_URL"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		HTTPListenAddr: v.GetString("HTTP_LISTEN_ADDR"),
	}
	return cfg, nil
}

// ClaimExchangeEnabled implements httpapi.FeatureFlag.
func (c *Config) ClaimExchangeEnabled() bool { return c.ClaimExchangeOn }

// Redacted returns a copy of c with secret material replaced by a fixed
// placeholder, safe to pass to a logger.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.EVMPrivateKey != "" {
		cp.EVMPrivateKey = "***"
	}
	if cp.XRPPrivateKey != "" {
		cp.XRPPrivateKey = "***"
	}
	if cp.AptosPrivateKey != "" {
		cp.AptosPrivateKey = "***"
	}
	return cp
}
