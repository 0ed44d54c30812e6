// Package config loads all service configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	strutil "landchain/pkg/platform/strings"
)

// Config is the full service configuration.
type Config struct {
	Addr        string `env:"LANDCHAIN_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	Redis RedisConfig
	Kafka KafkaConfig

	// SolanaRPCEndpoints is the failover chain for transaction verification.
	SolanaRPCEndpoints []string `env:"SOLANA_RPC_ENDPOINTS" envSeparator:","`

	Council    CouncilConfig
	Governance GovernanceConfig
}

// RedisConfig configures the verdict cache. An empty URL disables it.
type RedisConfig struct {
	URL         string        `env:"REDIS_URL"`
	VerdictTTL  time.Duration `env:"REDIS_VERDICT_TTL" envDefault:"10m"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// KafkaConfig configures decision event publishing. Empty brokers disable it.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	DecisionTopic string   `env:"KAFKA_DECISION_TOPIC" envDefault:"landchain.decisions"`
}

// CouncilConfig configures the council allowlist and vote threshold.
type CouncilConfig struct {
	Wallets           []string `env:"COUNCIL_WALLETS" envSeparator:","`
	RequiredApprovals int      `env:"COUNCIL_REQUIRED_APPROVALS"`
}

// GovernanceConfig names the DAO authority and the on-chain governance
// accounts decisions are verified against. Verification is strict only when
// all four addresses are present.
type GovernanceConfig struct {
	DAOAuthorityWallet string `env:"DAO_AUTHORITY_WALLET"`
	ProgramID          string `env:"GOVERNANCE_PROGRAM_ID"`
	RealmAddress       string `env:"REALM_ADDRESS"`
	GovernanceAddress  string `env:"GOVERNANCE_ADDRESS"`
	SignerWallet       string `env:"GOVERNANCE_SIGNER_WALLET"`
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.SolanaRPCEndpoints = strutil.DedupeAndTrim(cfg.SolanaRPCEndpoints)
	cfg.Kafka.Brokers = strutil.DedupeAndTrim(cfg.Kafka.Brokers)
	cfg.Council.Wallets = strutil.DedupeAndTrim(cfg.Council.Wallets)
	return cfg, nil
}
