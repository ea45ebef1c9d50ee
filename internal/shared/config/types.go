package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	Path            string `mapstructure:"path"` // sqlite file
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token" validate:"required"`
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PollTimeout   int    `mapstructure:"poll_timeout"` // seconds
	Workers       int    `mapstructure:"workers" validate:"gte=1"`
}

// UsePolling reports whether updates are pulled with getUpdates instead of pushed to a webhook.
func (t *TelegramConfig) UsePolling() bool {
	return t.WebhookURL == ""
}

type AdminConfig struct {
	ActorID int64 `mapstructure:"actor_id"`
}

type CryptoBotConfig struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	Asset    string `mapstructure:"asset"`
}

type StripeConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	SuccessURL string `mapstructure:"success_url" validate:"omitempty,url"`
	CancelURL  string `mapstructure:"cancel_url" validate:"omitempty,url"`
	Currency   string `mapstructure:"currency"`
}

type PaymentConfig struct {
	CryptoBot CryptoBotConfig `mapstructure:"cryptobot"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	// Mock replaces both rails with an always-paid verifier. Never enable in production.
	Mock bool `mapstructure:"mock"`
}

type OutlineServerConfig struct {
	Region     string `mapstructure:"region" validate:"required"`
	APIURL     string `mapstructure:"api_url" validate:"required,url"`
	CertSHA256 string `mapstructure:"cert_sha256" validate:"omitempty,hexadecimal,len=64"`
}

type OutlineConfig struct {
	Servers []OutlineServerConfig `mapstructure:"servers" validate:"dive"`
	Timeout time.Duration         `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	ScanInterval         time.Duration `mapstructure:"scan_interval" validate:"gt=0"`
	FirstRunDelay        time.Duration `mapstructure:"first_run_delay" validate:"gte=0"`
	GracePeriod          time.Duration `mapstructure:"grace_period" validate:"gt=0"`
	ReminderDays         int           `mapstructure:"reminder_days" validate:"gte=0"`
	ProvisionConcurrency int           `mapstructure:"provision_concurrency" validate:"gte=1"`
}

type RateLimitConfig struct {
	Backend    string                   `mapstructure:"backend" validate:"oneof=memory redis"`
	Default    time.Duration            `mapstructure:"default"`
	Categories map[string]time.Duration `mapstructure:"categories"`
}

type ConversationConfig struct {
	Store string        `mapstructure:"store" validate:"oneof=memory redis"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type CatalogConfig struct {
	// Path to a YAML file overriding the built-in plans and packages.
	Path string `mapstructure:"path"`
}
