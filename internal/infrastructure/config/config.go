package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	JWT         JWTConfig        `mapstructure:"jwt"`
	Chain       ChainConfig      `mapstructure:"chain"`
	Derivation  DerivationConfig `mapstructure:"derivation"`
	Fees        FeeConfig        `mapstructure:"fees"`
	Referral    ReferralConfig   `mapstructure:"referral"`
	Monitor     MonitorConfig    `mapstructure:"monitor"`
	Tracing     TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	AccessTTL int    `mapstructure:"access_token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// ChainConfig configures the upstream chain query provider and the asset
// served by this deployment
type ChainConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Asset            string `mapstructure:"asset"`
	AddressPrefix    string `mapstructure:"address_prefix"`
	AddressLength    int    `mapstructure:"address_length"`
	MinConfirmations int64  `mapstructure:"min_confirmations"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	WebhookSecret    string `mapstructure:"webhook_secret"`
}

// DerivationConfig configures deterministic deposit address derivation
type DerivationConfig struct {
	MasterSeed string `mapstructure:"master_seed"`
	Iterations int    `mapstructure:"iterations"`
}

// FeeConfig configures the withdrawal fee schedule
type FeeConfig struct {
	FixedFee    float64 `mapstructure:"fixed_fee"`
	UpstreamFee float64 `mapstructure:"upstream_fee"`
	PercentMin  float64 `mapstructure:"percent_min"`
	PercentMax  float64 `mapstructure:"percent_max"`
}

// ReferralConfig configures the activation referral reward
type ReferralConfig struct {
	RewardRate float64 `mapstructure:"reward_rate"`
}

// MonitorConfig configures the background transaction monitor
type MonitorConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	IntervalSeconds   int    `mapstructure:"interval_seconds"`
	PendingTTLMinutes int    `mapstructure:"pending_ttl_minutes"`
	RetentionDays     int    `mapstructure:"retention_days"`
	CleanupSchedule   string `mapstructure:"cleanup_schedule"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 100)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "custody_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.query_timeout", 30)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("jwt.access_token_ttl", 3600)
	viper.SetDefault("jwt.issuer", "custody-service")

	viper.SetDefault("chain.asset", "USDT")
	viper.SetDefault("chain.address_prefix", "T")
	viper.SetDefault("chain.address_length", 34)
	viper.SetDefault("chain.min_confirmations", 1)
	viper.SetDefault("chain.timeout_seconds", 10)

	viper.SetDefault("derivation.iterations", 2048)

	viper.SetDefault("fees.fixed_fee", 2.0)
	viper.SetDefault("fees.upstream_fee", 1.0)
	viper.SetDefault("fees.percent_min", 0.01)
	viper.SetDefault("fees.percent_max", 0.05)

	viper.SetDefault("referral.reward_rate", 0.10)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval_seconds", 30)
	viper.SetDefault("monitor.pending_ttl_minutes", 30)
	viper.SetDefault("monitor.retention_days", 90)
	viper.SetDefault("monitor.cleanup_schedule", "0 3 * * *")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 0.1)
	viper.SetDefault("tracing.insecure", false)
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if redisURL := os.Getenv("REDIS_HOST"); redisURL != "" {
		viper.Set("redis.host", redisURL)
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("jwt.secret", jwtSecret)
	}

	if baseURL := os.Getenv("CHAIN_BASE_URL"); baseURL != "" {
		viper.Set("chain.base_url", baseURL)
	}
	if apiKey := os.Getenv("CHAIN_API_KEY"); apiKey != "" {
		viper.Set("chain.api_key", apiKey)
	}
	if secret := os.Getenv("CHAIN_WEBHOOK_SECRET"); secret != "" {
		viper.Set("chain.webhook_secret", secret)
	}

	if seed := os.Getenv("DERIVATION_MASTER_SEED"); seed != "" {
		viper.Set("derivation.master_seed", seed)
	}
}

func validate(config *Config) error {
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if config.Derivation.MasterSeed == "" {
		return fmt.Errorf("derivation master seed is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Chain.WebhookSecret == "" {
		return fmt.Errorf("chain webhook secret is required")
	}

	if config.Fees.PercentMin > config.Fees.PercentMax {
		return fmt.Errorf("fees.percent_min cannot exceed fees.percent_max")
	}

	return nil
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
