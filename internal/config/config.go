package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // processing timezones must resolve on minimal images

	"github.com/spf13/viper"
)

const (
	// ProductIDPlaceholder is substituted with the product identifier in the alert query endpoint.
	ProductIDPlaceholder = "{productId}"
	// AvailableOnPlaceholder is substituted with the ISO-8601 date in the alert query endpoint.
	AvailableOnPlaceholder = "{availableOnDate}"

	defaultConfigPath = "configs/config.yaml"
)

// Config is the main struct that holds all configuration for the application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Notifiers NotifiersConfig `mapstructure:"notifiers"`
}

// LoggerConfig holds logging-specific settings.
type LoggerConfig struct {
	Level string `mapstructure:"level"`
	// Format is either "console" or "json".
	Format string `mapstructure:"format"`
}

// HTTPConfig holds HTTP server-specific settings.
type HTTPConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`
}

// RabbitMQConfig holds all settings for the RabbitMQ connection and the intake worker pool.
type RabbitMQConfig struct {
	DSN      string `mapstructure:"dsn"`
	Workers  int    `mapstructure:"workers"`
	Prefetch int    `mapstructure:"prefetch"`
}

// RedisConfig holds all settings for the Redis connection.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	OutcomeTTL time.Duration `mapstructure:"outcome_ttl"`
}

// DirectoryConfig describes how to reach the external User Directory.
type DirectoryConfig struct {
	// AlertQueryEndpointTemplate must contain both {productId} and {availableOnDate}.
	AlertQueryEndpointTemplate string        `mapstructure:"alert_query_endpoint_template"`
	Timeout                    time.Duration `mapstructure:"timeout"`
}

// DispatchConfig tunes the dispatch coordinator.
type DispatchConfig struct {
	// Timezone is the processing timezone used when an event carries no date.
	Timezone string `mapstructure:"timezone"`
	// MaxParallel bounds per-user fan-out. Values <= 1 notify sequentially.
	MaxParallel int `mapstructure:"max_parallel"`
}

// NotifiersConfig holds configurations for all notification channels.
type NotifiersConfig struct {
	// Mode can be "log_only" or "production".
	// In "log_only" mode, every user is routed to the LogNotifier.
	Mode     string         `mapstructure:"mode"`
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig holds SMTP settings for the email notifier.
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TelegramConfig holds settings for the Telegram notifier.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// Location resolves the configured processing timezone, falling back to UTC.
func (c DispatchConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig parses the YAML file and environment variables to return a configuration struct.
// CONFIG_PATH overrides the default file location.
func NewConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

// Load reads the configuration from the given file path.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("http.port", ":8080")
	v.SetDefault("http.gin_mode", "release")
	v.SetDefault("rabbitmq.workers", 5)
	v.SetDefault("rabbitmq.prefetch", 1)
	v.SetDefault("redis.outcome_ttl", 24*time.Hour)
	v.SetDefault("directory.timeout", 5*time.Second)
	v.SetDefault("dispatch.timezone", "UTC")
	v.SetDefault("dispatch.max_parallel", 1)
	v.SetDefault("notifiers.mode", "log_only")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	tmpl := c.Directory.AlertQueryEndpointTemplate
	if tmpl == "" {
		return fmt.Errorf("config: directory.alert_query_endpoint_template is required")
	}
	for _, ph := range []string{ProductIDPlaceholder, AvailableOnPlaceholder} {
		if !strings.Contains(tmpl, ph) {
			return fmt.Errorf("config: directory.alert_query_endpoint_template is missing %s", ph)
		}
	}
	if c.Dispatch.Timezone != "" {
		if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
			return fmt.Errorf("config: invalid dispatch.timezone %q: %w", c.Dispatch.Timezone, err)
		}
	}
	return nil
}
