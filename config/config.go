// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	migrateOnly     = pflag.Bool("migrate-only", false, "Runs the database migrations and exits")
	validLogLevels  = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers  = []string{"sqlite", "postgres"}
	errNoJWTSecret  = errors.New("jwt.secret can't be empty")
	errNoRedisAddr  = errors.New("queue.redis_addr is required when the queue is enabled")
	errNoPublicURL  = errors.New("host.public_url can't be empty")
	errNoTurnstile  = errors.New("turnstile secret token is missing")
	errBadTokenTTL  = errors.New("token.ttl must be bigger than 0")
	errBadRateLimit = errors.New("security.rate_limit must be bigger than 0")
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Host     HostConfig     `mapstructure:"host"`
	DB       DBConfig       `mapstructure:"db"`
	Token    TokenConfig    `mapstructure:"token"`
	Mail     MailConfig     `mapstructure:"mail"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Jobs     JobsConfig     `mapstructure:"jobs"`

	Turnstile TurnstileConfig `mapstructure:"-"`

	// Set from the --migrate-only flag, never read from the config file
	MigrateOnly bool `mapstructure:"-"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

type HostConfig struct {
	Port int `mapstructure:"port"`
	// Base URL embedded into verification links sent by mail
	PublicURL string `mapstructure:"public_url"`
	// Base URL of the web app the verification endpoints redirect to
	FrontendURL string `mapstructure:"frontend_url"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// How long expired tokens are kept around before the cleanup job removes them
	Retention time.Duration `mapstructure:"retention"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"`
	// Upper bound for one SMTP hand-over, intake responses wait on it
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	URL         string        `mapstructure:"url"`
	Secret      string        `mapstructure:"secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type QueueConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Concurrency   int    `mapstructure:"concurrency"`
}

type ThrottleConfig struct {
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	// When enabled the linking endpoint requires a bearer token whose subject
	// matches the userId in the request body
	EnforceLinking bool `mapstructure:"enforce_linking"`
}

type SecurityConfig struct {
	RateLimit int `mapstructure:"rate_limit"`
}

type TurnstileConfig struct {
	Enabled     bool
	SecretToken string
}

type JobsConfig struct {
	OutboxRelay  string `mapstructure:"outbox_relay"`
	TokenCleanup string `mapstructure:"token_cleanup"`
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.public_url", "host_public_url")
	v.BindEnv("host.frontend_url", "host_frontend_url")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("token.ttl", "token_ttl")
	v.BindEnv("token.retention", "token_retention")

	v.BindEnv("mail.host", "mail_host")
	v.BindEnv("mail.port", "mail_port")
	v.BindEnv("mail.username", "mail_username")
	v.BindEnv("mail.password", "mail_password")
	v.BindEnv("mail.sender", "mail_sender_address")
	v.BindEnv("mail.timeout", "mail_timeout")

	v.BindEnv("notify.url", "notify_url")
	v.BindEnv("notify.secret", "notify_secret")
	v.BindEnv("notify.timeout", "notify_timeout")

	v.BindEnv("queue.enabled", "queue_enabled")
	v.BindEnv("queue.redis_addr", "queue_redis_addr")
	v.BindEnv("queue.redis_password", "queue_redis_password")

	v.BindEnv("jwt.secret", "jwt_secret")
	v.BindEnv("auth.enforce_linking", "auth_enforce_linking")

	v.BindEnv("security.rate_limit", "security_rate_limit")

	v.BindEnv("cloudflare.turnstile.enabled", "cloudflare_turnstile_enabled")
	v.BindEnv("cloudflare.turnstile.secret_token", "cloudflare_turnstile_secret_token")

	//
	// Defaults
	//
	SetDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: config.toml file is missing, running from environment variables and defaults only")
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if !v.GetBool("cloudflare.turnstile.enabled") {
		fmt.Println("[WARNING]: Cloudflare's turnstile is disabled. Public intake endpoints won't be guarded against bots")
	}

	return nil
}

// SetDefaults registers the default value of every key. Exposed so tests
// can get a fully populated config without touching flags or files.
func SetDefaults() {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.public_url", "http://localhost:8080")
	v.SetDefault("host.frontend_url", "http://localhost:5173")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("token.ttl", 24*time.Hour)
	v.SetDefault("token.retention", 7*24*time.Hour)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.timeout", 10*time.Second)

	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.max_attempts", 10)

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 5)

	v.SetDefault("throttle.resend_cooldown", time.Minute)

	v.SetDefault("jwt.ttl", 24*time.Hour*30)
	v.SetDefault("auth.enforce_linking", false)

	v.SetDefault("security.rate_limit", 10)

	v.SetDefault("cloudflare.turnstile.enabled", false)

	v.SetDefault("jobs.outbox_relay", "@every 1m")
	v.SetDefault("jobs.token_cleanup", "@every 24h")
}

// Load unmarshals the values gathered by Setup into a Config and validates it.
// The returned value is the only place the rest of the application reads
// configuration from.
func Load() (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config, %w", err)
	}

	cfg.Turnstile = TurnstileConfig{
		Enabled:     v.GetBool("cloudflare.turnstile.enabled"),
		SecretToken: v.GetString("cloudflare.turnstile.secret_token"),
	}
	cfg.MigrateOnly = *migrateOnly

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return errors.New("invalid log level provided")
	}

	if c.Host.Port <= 0 {
		return errors.New("invalid port provided")
	}

	if c.Host.PublicURL == "" {
		return errNoPublicURL
	}

	if !slices.Contains(validDBDrivers, c.DB.Driver) {
		return errors.New("invalid database driver provided")
	}

	if c.DB.DSN == "" {
		return errors.New("database dsn can't be empty")
	}

	if c.Token.TTL <= 0 {
		return errBadTokenTTL
	}

	if c.Security.RateLimit <= 0 {
		return errBadRateLimit
	}

	if c.Queue.Enabled && c.Queue.RedisAddr == "" {
		return errNoRedisAddr
	}

	if c.JWT.Secret == "" {
		return errNoJWTSecret
	}

	if c.Turnstile.Enabled && c.Turnstile.SecretToken == "" {
		return errNoTurnstile
	}

	if c.Mail.Host == "" {
		zap.L().Warn("No mail.host specified, verification mails will only be logged")
	}

	if c.Notify.URL == "" {
		zap.L().Warn("No notify.url specified, vendor notifications will only be logged")
	}

	return nil
}
