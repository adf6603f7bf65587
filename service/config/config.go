package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/brojonat/aleotx/client"
)

// History backends.
const (
	HistoryBackendFile     = "file"
	HistoryBackendPostgres = "postgres"
	HistoryBackendRedis    = "redis"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Wallet and ledger collaborators
	WalletBridgeURL string
	LedgerRPCURL    string
	LedgerRPS       float64
	ExplorerURL     string
	RelayerURL      string
	CallerAddress   string
	TreasuryAddress string

	// History configuration
	HistoryBackend string
	HistoryFile    string
	HistorySlot    string
	HistoryCap     int

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// NATS configuration; empty disables event publishing
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Confirmation polling
	PollMaxAttempts int
	PollInterval    time.Duration

	// Retry configuration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// LoadDotEnv loads variables from the given .env files without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Wallet and ledger collaborators
	cfg.WalletBridgeURL = os.Getenv("WALLET_BRIDGE_URL")
	cfg.LedgerRPCURL = getEnvOrDefault("LEDGER_RPC_URL", client.DefaultLedgerRPCURL)
	cfg.ExplorerURL = getEnvOrDefault("EXPLORER_URL", client.DefaultExplorerURL)
	cfg.RelayerURL = os.Getenv("RELAYER_URL")
	cfg.TreasuryAddress = getEnvOrDefault("TREASURY_ADDRESS", client.DefaultTreasuryAddress)
	cfg.CallerAddress = os.Getenv("CALLER_ADDRESS")

	rps, err := parseFloat("LEDGER_RPS", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LedgerRPS = rps
	}

	if !client.IsValidAddress(cfg.TreasuryAddress) {
		errs = append(errs, fmt.Errorf("TREASURY_ADDRESS %q is not a valid address", cfg.TreasuryAddress))
	}
	if cfg.CallerAddress != "" && !client.IsValidAddress(cfg.CallerAddress) {
		errs = append(errs, fmt.Errorf("CALLER_ADDRESS %q is not a valid address", cfg.CallerAddress))
	}

	// History configuration
	cfg.HistoryBackend = getEnvOrDefault("HISTORY_BACKEND", HistoryBackendFile)
	cfg.HistoryFile = getEnvOrDefault("HISTORY_FILE", "aleotx-history.json")
	cfg.HistorySlot = getEnvOrDefault("HISTORY_SLOT", "aleo_transaction_history")

	historyCap, err := parseInt("HISTORY_CAP", client.DefaultHistoryCap)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryCap = historyCap
	}

	// Database and Redis are only required by their history backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	switch cfg.HistoryBackend {
	case HistoryBackendFile:
	case HistoryBackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres"))
		}
	case HistoryBackendRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required when HISTORY_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_BACKEND must be one of file, postgres, redis; got %q", cfg.HistoryBackend))
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "aleotx-operations")

	// Confirmation polling
	maxAttempts, err := parseInt("POLL_MAX_ATTEMPTS", client.DefaultPollMaxAttempts)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollMaxAttempts = maxAttempts
	}

	pollInterval, err := parseDuration("POLL_INTERVAL", client.DefaultPollInterval.String())
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	// Retry configuration
	maxRetries, err := parseInt("MAX_RETRIES", client.DefaultMaxRetries)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxRetries = maxRetries
	}

	baseDelay, err := parseDuration("RETRY_BASE_DELAY", client.DefaultRetryBaseDelay.String())
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RetryBaseDelay = baseDelay
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.HistoryCap < 1 {
		errs = append(errs, fmt.Errorf("HistoryCap must be at least 1"))
	}

	if c.PollMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PollMaxAttempts must be at least 1"))
	}

	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 100ms"))
	}

	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MaxRetries must be at least 1"))
	}

	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("RetryBaseDelay must be positive"))
	}

	if c.LedgerRPS < 0 {
		errs = append(errs, fmt.Errorf("LedgerRPS cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// PollerConfig returns the confirmation polling budget.
func (c *Config) PollerConfig() client.PollerConfig {
	return client.PollerConfig{
		MaxAttempts:      c.PollMaxAttempts,
		Interval:         c.PollInterval,
		FailureThreshold: client.DefaultPollFailureThreshold,
	}
}

// RetryConfig returns the submission retry budget.
func (c *Config) RetryConfig() client.RetryConfig {
	return client.RetryConfig{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBaseDelay}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
