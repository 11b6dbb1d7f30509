package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is prepended to environment overrides, e.g. INDEXER_DATABASE_PASSWORD.
const envPrefix = "INDEXER"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Decoder    DecoderConfig    `mapstructure:"decoder"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	MaxOpenConns   int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ChainConfig contains upstream EVM node settings
type ChainConfig struct {
	RPCURL            string        `mapstructure:"rpc_url" validate:"required"`
	WSURL             string        `mapstructure:"ws_url"`
	ChainID           int64         `mapstructure:"chain_id" validate:"gt=0"`
	StartBlock        uint64        `mapstructure:"start_block"`
	Confirmations     uint64        `mapstructure:"confirmations"`
	RequestsPerSecond int           `mapstructure:"requests_per_second" validate:"gte=0"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
}

// IndexerConfig controls the block cursor and ingestion writer
type IndexerConfig struct {
	AutoStart            bool          `mapstructure:"auto_start"`
	PollInterval         time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxReorgDepth        uint64        `mapstructure:"max_reorg_depth" validate:"gt=0"`
	CommitTimeout        time.Duration `mapstructure:"commit_timeout" validate:"gt=0"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" validate:"gt=0"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" validate:"gtefield=RetryInitialInterval"`
	LeaseKey             int64         `mapstructure:"lease_key"`
	HashCacheSize        int           `mapstructure:"hash_cache_size" validate:"gte=0"`
	EvaluationQueueSize  int           `mapstructure:"evaluation_queue_size" validate:"gt=0"`
}

// AlertsConfig contains alert rule settings.
// Rules are read from RulesFile when set, otherwise built from the thresholds below.
type AlertsConfig struct {
	RulesFile              string        `mapstructure:"rules_file"`
	LargeTransferThreshold string        `mapstructure:"large_transfer_threshold" validate:"omitempty,numeric"`
	LargeValueThreshold    string        `mapstructure:"large_value_threshold" validate:"omitempty,numeric"`
	FailedTxThreshold      int           `mapstructure:"failed_tx_threshold" validate:"gte=0"`
	FailedTxWindow         time.Duration `mapstructure:"failed_tx_window"`
}

// DispatchConfig contains alert notification settings
type DispatchConfig struct {
	WebhookURL      string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
	QueueSize       int           `mapstructure:"queue_size" validate:"gt=0"`
	MinSeverity     string        `mapstructure:"min_severity" validate:"oneof=info warning critical"`
}

// StatsConfig contains aggregate refresh settings
type StatsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DecoderConfig contains signature decoding settings
type DecoderConfig struct {
	ABIDir string `mapstructure:"abi_dir"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig contains settings for the operational API.
// Mutating endpoints are open when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", "evm_indexer")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("database.connect_timeout", "10s")

	// Chain defaults
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.ws_url", "")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.confirmations", 0)
	v.SetDefault("chain.requests_per_second", 20)
	v.SetDefault("chain.fetch_timeout", "30s")

	// Indexer defaults
	v.SetDefault("indexer.auto_start", true)
	v.SetDefault("indexer.poll_interval", "5s")
	v.SetDefault("indexer.max_reorg_depth", 64)
	v.SetDefault("indexer.commit_timeout", "30s")
	v.SetDefault("indexer.retry_initial_interval", "1s")
	v.SetDefault("indexer.retry_max_interval", "1m")
	v.SetDefault("indexer.lease_key", 7_301_001)
	v.SetDefault("indexer.hash_cache_size", 4*1024*1024)
	v.SetDefault("indexer.evaluation_queue_size", 64)

	// Alert defaults
	v.SetDefault("alerts.rules_file", "")
	v.SetDefault("alerts.large_value_threshold", "")
	v.SetDefault("alerts.large_transfer_threshold", "1000000000000000000000000")
	v.SetDefault("alerts.failed_tx_threshold", 50)
	v.SetDefault("alerts.failed_tx_window", "10m")

	// Dispatch defaults
	v.SetDefault("dispatch.webhook_url", "")
	v.SetDefault("dispatch.timeout", "10s")
	v.SetDefault("dispatch.max_retries", 5)
	v.SetDefault("dispatch.initial_interval", "2s")
	v.SetDefault("dispatch.max_interval", "2m")
	v.SetDefault("dispatch.queue_size", 256)
	v.SetDefault("dispatch.min_severity", "info")

	// Stats defaults
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.interval", "5m")
	v.SetDefault("stats.timeout", "2m")

	// Decoder and auth keys are declared so environment overrides are picked up
	v.SetDefault("decoder.abi_dir", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "evm-indexer")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}
	if config.Alerts.FailedTxThreshold > 0 && config.Alerts.FailedTxWindow <= 0 {
		return fmt.Errorf("alerts.failed_tx_window is required when alerts.failed_tx_threshold is set")
	}
	return nil
}
