// Package config loads the bot configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "github.com/m3rciful/walletbot/core/database"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// CustodyConfig holds MPC custody provider settings.
type CustodyConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"CUSTODY_BASE_URL"`
	APIKey         string        `yaml:"api_key" envconfig:"CUSTODY_API_KEY"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"CUSTODY_TIMEOUT"`
	CreateAttempts int           `yaml:"create_attempts" envconfig:"CUSTODY_CREATE_ATTEMPTS"`
}

// EVMConfig holds the EVM chain RPC endpoint settings.
type EVMConfig struct {
	RPCURL  string `yaml:"rpc_url" envconfig:"EVM_RPC_URL"`
	ChainID int64  `yaml:"chain_id" envconfig:"EVM_CHAIN_ID"`
}

// SolanaConfig holds the Solana RPC endpoint settings.
type SolanaConfig struct {
	RPCURL string `yaml:"rpc_url" envconfig:"SOLANA_RPC_URL"`
}

// ChainsConfig groups per-chain RPC settings.
type ChainsConfig struct {
	EVM    EVMConfig    `yaml:"evm"`
	Solana SolanaConfig `yaml:"solana"`
}

// WalletConfig holds provisioning settings.
type WalletConfig struct {
	// Namespace is combined with the chat identity to form the custody
	// identity key, keeping deployments from colliding in the provider's
	// identity space.
	Namespace string `yaml:"namespace" envconfig:"WALLET_NAMESPACE"`
}

// KafkaConfig holds the optional transfer audit emitter settings.
// Emission is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"KAFKA_TOPIC"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Config aggregates all application configuration.
type Config struct {
	Telegram TelegramConfig      `yaml:"telegram"`
	Database coredatabase.Config `yaml:"database"`
	Custody  CustodyConfig       `yaml:"custody"`
	Chains   ChainsConfig        `yaml:"chains"`
	Wallet   WalletConfig        `yaml:"wallet"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and
// adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Custody.BaseURL) == "" {
		return fmt.Errorf("custody.base_url is required")
	}
	cfg.Custody.BaseURL = strings.TrimRight(cfg.Custody.BaseURL, "/")
	if cfg.Custody.Timeout <= 0 {
		cfg.Custody.Timeout = 30 * time.Second
	}
	if cfg.Custody.CreateAttempts <= 0 {
		cfg.Custody.CreateAttempts = 3
	}

	if strings.TrimSpace(cfg.Chains.EVM.RPCURL) == "" {
		return fmt.Errorf("chains.evm.rpc_url is required")
	}
	if strings.TrimSpace(cfg.Chains.Solana.RPCURL) == "" {
		return fmt.Errorf("chains.solana.rpc_url is required")
	}

	if strings.TrimSpace(cfg.Wallet.Namespace) == "" {
		return fmt.Errorf("wallet.namespace is required")
	}

	if len(cfg.Kafka.Brokers) > 0 && strings.TrimSpace(cfg.Kafka.Topic) == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}

	return nil
}
