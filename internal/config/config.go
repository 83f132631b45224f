package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Log           LogConfig           `mapstructure:"log"`
	MySQL         DatabaseConfig      `mapstructure:"mysql"`
	ClickHouse    DatabaseConfig      `mapstructure:"clickhouse"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr  string `mapstructure:"addr"  validate:"required"`
	Debug bool   `mapstructure:"debug"` // include technical details in error bodies
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type BillingConfig struct {
	StripeSecretKey     string        `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string        `mapstructure:"stripe_webhook_secret"`
	PortalReturnURL     string        `mapstructure:"portal_return_url"  validate:"required,url"`
	TrialPlanID         string        `mapstructure:"trial_plan_id"      validate:"required"`
	TrialLength         time.Duration `mapstructure:"trial_length"       validate:"gt=0"`
	ReminderFrom        time.Duration `mapstructure:"reminder_from"      validate:"gt=0"`
	ReminderTo          time.Duration `mapstructure:"reminder_to"        validate:"gtfield=ReminderFrom"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"       validate:"gt=0"`
	PaceRPS             float64       `mapstructure:"pace_rps"           validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"` // required by serve, see ValidateServe
	InternalAPIKey string `mapstructure:"internal_api_key"`
}

type RateLimitConfig struct {
	Backend       string                `mapstructure:"backend"        validate:"oneof=memory redis"`
	KeyPrefix     string                `mapstructure:"key_prefix"`
	SweepInterval time.Duration         `mapstructure:"sweep_interval" validate:"gt=0"`
	Rules         map[string]RuleConfig `mapstructure:"rules"          validate:"required,dive"`
}

type RuleConfig struct {
	MaxRequests int           `mapstructure:"max_requests" validate:"gte=1"`
	Window      time.Duration `mapstructure:"window"       validate:"gt=0"`
}

type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=1"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type EndpointConfig struct {
	Name      string        `mapstructure:"name"`
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type NotificationsConfig struct {
	Topic       string           `mapstructure:"topic" validate:"required"`
	MaxAttempts int              `mapstructure:"max_attempts"`
	Endpoints   []EndpointConfig `mapstructure:"endpoints"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (REB_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// env override (REB_MYSQL_DSN, REB_BILLING_STRIPE_SECRET_KEY, ...)
	v.SetEnvPrefix("REB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MinJWTSecretLen is the shortest HS256 signing key serve accepts.
const MinJWTSecretLen = 32

// ValidateServe checks what only the HTTP server needs; workers load without it.
func (c Config) ValidateServe() error {
	tag := fmt.Sprintf("required,min=%d", MinJWTSecretLen)
	if err := validate.Var(c.Auth.JWTSecret, tag); err != nil {
		return fmt.Errorf("invalid config: auth.jwt_secret must be at least %d bytes: %w", MinJWTSecretLen, err)
	}
	return nil
}
