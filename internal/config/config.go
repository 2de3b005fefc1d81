// Package config provides configuration management for the Trivia Pay organizer.
// Values are layered: built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variables (including a .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/trivia-pay/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Contract  ContractConfig  `yaml:"contract"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// LedgerConfig holds algod and indexer endpoints
type LedgerConfig struct {
	Network      types.Network `yaml:"network"`
	AlgodURL     string        `yaml:"algodUrl"`
	AlgodToken   string        `yaml:"algodToken"`
	IndexerURL   string        `yaml:"indexerUrl"`
	IndexerToken string        `yaml:"indexerToken"`
	ExplorerBase string        `yaml:"explorerBase"`
	// RequestsPerSecond throttles calls to public nodes
	RequestsPerSecond int           `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
	ConfirmRounds     uint64        `yaml:"confirmRounds"`
	// SharedBudget is the per-second request budget shared through Redis by
	// every organizer using the same nodes; 0 disables it. ReservedBudget of
	// it is kept for user-initiated calls.
	SharedBudget   int `yaml:"sharedBudget"`
	ReservedBudget int `yaml:"reservedBudget"`
}

// ContractConfig holds the default application id and escrow address.
// Both can be overridden at runtime and the override is persisted.
type ContractConfig struct {
	AppID         uint64 `yaml:"appId"`
	EscrowAddress string `yaml:"escrowAddress"`
}

// WalletConfig configures the key-backed wallet provider
type WalletConfig struct {
	Mnemonic string `yaml:"mnemonic"`
}

// RefreshConfig holds reconciliation settings
type RefreshConfig struct {
	Interval     time.Duration `yaml:"interval"`
	HistoryLimit int           `yaml:"historyLimit"`
	SeenCapacity int           `yaml:"seenCapacity"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	// Backend selects the key-value store: memory, redis or postgres
	Backend    string           `yaml:"backend"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	Database       string `yaml:"database"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	MaxConnections int    `yaml:"maxConnections"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// ClickHouseConfig holds the transaction archive configuration
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requestsPerSecond"`
	Burst             int `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration, pointed at public testnet nodes
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Ledger: LedgerConfig{
			Network:           types.NetworkTestnet,
			AlgodURL:          "https://testnet-api.algonode.cloud",
			IndexerURL:        "https://testnet-idx.algonode.cloud",
			ExplorerBase:      "https://testnet.algoexplorer.io/tx/",
			RequestsPerSecond: 10,
			Timeout:           15 * time.Second,
			ConfirmRounds:     4,
		},
		Contract: ContractConfig{
			AppID:         755792571,
			EscrowAddress: "ER745AB7H64MC7RO5PEL7YCDQ245JOHVPHN5WHO3FCGPI5Y7GHL5QGAT64",
		},
		Refresh: RefreshConfig{
			Interval:     30 * time.Second,
			HistoryLimit: 50,
			SeenCapacity: 500,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           "5432",
				Database:       "trivia_pay",
				User:           "trivia",
				MaxConnections: 10,
			},
			Redis: RedisConfig{Host: "localhost", Port: "6379", KeyPrefix: "triviapay:"},
			ClickHouse: ClickHouseConfig{
				Host:     "localhost",
				Port:     "9000",
				Database: "trivia_pay",
				User:     "default",
			},
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file and
// environment variables, then validates it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.Ledger.Network = types.Network(getEnv("NETWORK", string(c.Ledger.Network)))
	c.Ledger.AlgodURL = getEnv("ALGOD_SERVER", c.Ledger.AlgodURL)
	c.Ledger.AlgodToken = getEnv("ALGOD_TOKEN", c.Ledger.AlgodToken)
	c.Ledger.IndexerURL = getEnv("INDEXER_SERVER", c.Ledger.IndexerURL)
	c.Ledger.IndexerToken = getEnv("INDEXER_TOKEN", c.Ledger.IndexerToken)
	c.Ledger.ExplorerBase = getEnv("EXPLORER_BASE", c.Ledger.ExplorerBase)
	c.Ledger.RequestsPerSecond = getEnvAsInt("LEDGER_RPS", c.Ledger.RequestsPerSecond)
	c.Ledger.Timeout = getEnvAsDuration("LEDGER_TIMEOUT", c.Ledger.Timeout)
	c.Ledger.ConfirmRounds = getEnvAsUint("LEDGER_CONFIRM_ROUNDS", c.Ledger.ConfirmRounds)
	c.Ledger.SharedBudget = getEnvAsInt("LEDGER_SHARED_BUDGET", c.Ledger.SharedBudget)
	c.Ledger.ReservedBudget = getEnvAsInt("LEDGER_RESERVED_BUDGET", c.Ledger.ReservedBudget)

	c.Contract.AppID = getEnvAsUint("APP_ID", c.Contract.AppID)
	c.Contract.EscrowAddress = getEnv("ESCROW_ADDRESS", c.Contract.EscrowAddress)

	c.Wallet.Mnemonic = getEnv("WALLET_MNEMONIC", c.Wallet.Mnemonic)

	c.Refresh.Interval = getEnvAsDuration("REFRESH_INTERVAL", c.Refresh.Interval)
	c.Refresh.HistoryLimit = getEnvAsInt("TX_HISTORY_LIMIT", c.Refresh.HistoryLimit)
	c.Refresh.SeenCapacity = getEnvAsInt("SEEN_CAPACITY", c.Refresh.SeenCapacity)

	c.Storage.Backend = getEnv("KV_BACKEND", c.Storage.Backend)
	pg := &c.Storage.Postgres
	pg.Host = getEnv("POSTGRES_HOST", pg.Host)
	pg.Port = getEnv("POSTGRES_PORT", pg.Port)
	pg.Database = getEnv("POSTGRES_DB", pg.Database)
	pg.User = getEnv("POSTGRES_USER", pg.User)
	pg.Password = getEnv("POSTGRES_PASSWORD", pg.Password)
	pg.MaxConnections = getEnvAsInt("POSTGRES_MAX_CONNECTIONS", pg.MaxConnections)

	rd := &c.Storage.Redis
	rd.Host = getEnv("REDIS_HOST", rd.Host)
	rd.Port = getEnv("REDIS_PORT", rd.Port)
	rd.Password = getEnv("REDIS_PASSWORD", rd.Password)
	rd.DB = getEnvAsInt("REDIS_DB", rd.DB)
	rd.KeyPrefix = getEnv("REDIS_KEY_PREFIX", rd.KeyPrefix)

	ch := &c.Storage.ClickHouse
	ch.Enabled = getEnvAsBool("CLICKHOUSE_ENABLED", ch.Enabled)
	ch.Host = getEnv("CLICKHOUSE_HOST", ch.Host)
	ch.Port = getEnv("CLICKHOUSE_PORT", ch.Port)
	ch.Database = getEnv("CLICKHOUSE_DB", ch.Database)
	ch.User = getEnv("CLICKHOUSE_USER", ch.User)
	ch.Password = getEnv("CLICKHOUSE_PASSWORD", ch.Password)

	c.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Validate rejects configurations the organizer cannot run with
func (c *Config) Validate() error {
	if !c.Ledger.Network.IsValid() {
		return fmt.Errorf("unknown network %q", c.Ledger.Network)
	}
	if c.Ledger.AlgodURL == "" || c.Ledger.IndexerURL == "" {
		return fmt.Errorf("algod and indexer URLs are required")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.Refresh.HistoryLimit)
	}
	if c.Refresh.SeenCapacity <= 0 {
		return fmt.Errorf("seen capacity must be positive, got %d", c.Refresh.SeenCapacity)
	}
	if e := c.Contract.EscrowAddress; e != "" && len(e) != 58 {
		return fmt.Errorf("escrow address must be 58 characters, got %d", len(e))
	}
	if c.Ledger.SharedBudget > 0 && c.Storage.Backend != "redis" {
		return fmt.Errorf("a shared ledger budget needs the redis storage backend")
	}
	switch c.Storage.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// PostgresDSN returns the connection string for the Postgres key-value store
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pg.User, pg.Password, pg.Host, pg.Port, pg.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsUint(key string, defaultValue uint64) uint64 {
	value, err := strconv.ParseUint(getEnv(key, ""), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
