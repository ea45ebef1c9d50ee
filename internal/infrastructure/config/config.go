package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/keygate/internal/shared/config"
)

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Database     sharedConfig.DatabaseConfig     `mapstructure:"database"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis"`
	Telegram     sharedConfig.TelegramConfig     `mapstructure:"telegram"`
	Admin        sharedConfig.AdminConfig        `mapstructure:"admin"`
	Payment      sharedConfig.PaymentConfig      `mapstructure:"payment"`
	Outline      sharedConfig.OutlineConfig      `mapstructure:"outline"`
	Scheduler    sharedConfig.SchedulerConfig    `mapstructure:"scheduler"`
	RateLimit    sharedConfig.RateLimitConfig    `mapstructure:"ratelimit"`
	Conversation sharedConfig.ConversationConfig `mapstructure:"conversation"`
	Catalog      sharedConfig.CatalogConfig      `mapstructure:"catalog"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (optional) and KEYGATE_* environment variables.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")

	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Redis.Enabled {
		return nil
	}
	if cfg.RateLimit.Backend == "redis" || cfg.Conversation.Store == "redis" {
		return fmt.Errorf("invalid configuration: redis backend selected but redis.enabled is false")
	}
	return nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "keygate.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.database", "keygate")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.workers", 8)

	v.SetDefault("admin.actor_id", 0)

	v.SetDefault("payment.cryptobot.base_url", "https://pay.crypt.bot/api")
	v.SetDefault("payment.cryptobot.asset", "USDT")
	v.SetDefault("payment.stripe.currency", "rub")
	v.SetDefault("payment.mock", false)

	v.SetDefault("outline.timeout", "15s")

	v.SetDefault("scheduler.scan_interval", "60s")
	v.SetDefault("scheduler.first_run_delay", "10s")
	v.SetDefault("scheduler.grace_period", "5m")
	v.SetDefault("scheduler.reminder_days", 3)
	v.SetDefault("scheduler.provision_concurrency", 4)

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.default", "3s")
	v.SetDefault("ratelimit.categories", map[string]string{
		"command":   "3s",
		"subscribe": "10s",
		"callback":  "2s",
		"message":   "1s",
	})

	v.SetDefault("conversation.store", "memory")
	v.SetDefault("conversation.ttl", "24h")
}
