// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MerchantKeyEnv is the environment variable holding the merchant signing key.
const MerchantKeyEnv = "CARDANO_MERCHANT_SKEY"

// Config holds all configuration for the application
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Merchant MerchantConfig `mapstructure:"merchant"`
	TRP      TRPConfig      `mapstructure:"trp"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// APIConfig holds API-related configuration
type APIConfig struct {
	Port               string        `mapstructure:"port"`
	Version            string        `mapstructure:"version"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	RateLimit          int           `mapstructure:"rate_limit"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// MerchantConfig holds the merchant co-signing key as hex text.
type MerchantConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

// TRPConfig holds the submission endpoint settings
type TRPConfig struct {
	Endpoint     string            `mapstructure:"endpoint"`
	APIKey       string            `mapstructure:"api_key"`
	APIKeyHeader string            `mapstructure:"api_key_header"`
	Headers      map[string]string `mapstructure:"headers"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// PaymentConfig toggles optional checks in the submission pipeline
type PaymentConfig struct {
	VerifyTxHash bool `mapstructure:"verify_tx_hash"`
	Dedupe       bool `mapstructure:"dedupe"`
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	ReceiptTTL time.Duration `mapstructure:"receipt_ttl"`
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Brokers        string `mapstructure:"brokers"`
	SubmittedTopic string `mapstructure:"submitted_topic"`
	FailedTopic    string `mapstructure:"failed_topic"`
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	// ConfigFile is an optional YAML/JSON/TOML file.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment; a
	// missing file is ignored.
	EnvFile string
	// EnvPrefix prefixes every environment key, e.g. MERCHANTPAY_API_PORT.
	EnvPrefix string
	// Flags, when set, override file and environment values.
	Flags *pflag.FlagSet
}

// DefaultLoadOptions returns the options used by Load
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		EnvFile:   ".env",
		EnvPrefix: "MERCHANTPAY",
	}
}

// Load loads configuration from defaults, .env and environment variables
func Load() (*Config, error) {
	return LoadWithOptions(DefaultLoadOptions())
}

// LoadWithOptions loads configuration in increasing precedence: defaults,
// config file, environment, flags.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("merchant.signing_key", MerchantKeyEnv, envName(opts.EnvPrefix, "merchant.signing_key")); err != nil {
		return nil, fmt.Errorf("failed to bind merchant key env: %w", err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that make the process unable to start. A missing
// merchant key is not one of them: it is reported per request.
func (c *Config) Validate() error {
	if c.API.Port == "" {
		return errors.New("api.port is required")
	}
	if c.TRP.Endpoint == "" {
		return errors.New("trp.endpoint is required")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	if c.Payment.Dedupe && !c.Redis.Enabled {
		return errors.New("payment.dedupe requires redis.enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Brokers == "" {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// Flags returns the command-line flags understood by LoadWithOptions.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("merchantpay", pflag.ContinueOnError)
	flags.String("config", "", "Path to configuration file")
	flags.String("env-file", ".env", "Path to dotenv file")
	flags.String("api.port", "8080", "HTTP listen port")
	flags.String("log.level", "info", "Log level (debug, info, warn, error)")
	flags.String("trp.endpoint", "http://localhost:8164", "TRP submission endpoint")
	flags.Bool("payment.verify_tx_hash", false, "Check tx_hash_hex against the transaction body")
	return flags
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.version", "v1")
	v.SetDefault("api.cors_allowed_origins", []string{"*"})
	v.SetDefault("api.rate_limit", 60)
	v.SetDefault("api.rate_window", time.Minute)
	v.SetDefault("api.max_body_bytes", int64(1<<20))
	v.SetDefault("api.shutdown_timeout", 10*time.Second)

	v.SetDefault("merchant.signing_key", "")

	v.SetDefault("trp.endpoint", "http://localhost:8164")
	v.SetDefault("trp.api_key", "")
	v.SetDefault("trp.api_key_header", "dmtr-api-key")
	v.SetDefault("trp.headers", map[string]string{})
	v.SetDefault("trp.timeout", 30*time.Second)

	v.SetDefault("payment.verify_tx_hash", false)
	v.SetDefault("payment.dedupe", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "merchantpay:")
	v.SetDefault("redis.receipt_ttl", 72*time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.submitted_topic", "payments.submitted")
	v.SetDefault("kafka.failed_topic", "payments.failed")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "development")

	v.SetDefault("metrics.namespace", "merchantpay")
}

func envName(prefix, key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}
