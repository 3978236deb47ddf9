// Package config loads service configuration from a YAML file and the
// environment. Priority: env > YAML > env-default tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration. SeedDemoData only applies to
// the in-memory stores.
type Config struct {
	Environment  string             `yaml:"environment"    env:"APP_ENV"        env-default:"development"`
	SeedDemoData bool               `yaml:"seed_demo_data" env:"SEED_DEMO_DATA"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Verification VerificationConfig `yaml:"verification"`
	Consent      ConsentConfig      `yaml:"consent"`
	SLA          SLAConfig          `yaml:"sla"`
	Audit        AuditConfig        `yaml:"audit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"  env:"SERVER_HANDLER_TIMEOUT"  env-default:"20s"`
	TrustedProxies  []string      `yaml:"trusted_proxies"  env:"SERVER_TRUSTED_PROXIES"  env-separator:","`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// AuthConfig describes the portal tokens this service accepts.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key" env:"AUTH_SIGNING_KEY"`
	Issuer     string `yaml:"issuer"      env:"AUTH_ISSUER"      env-default:"parent-portal"`
	Audience   string `yaml:"audience"    env:"AUTH_AUDIENCE"    env-default:"compliance"`
}

// DatabaseConfig is optional; without a URL the service runs on in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"               env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"DATABASE_MAX_OPEN_CONNS"    env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"DATABASE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME" env-default:"5m"`
	AutoMigrate     bool          `yaml:"auto_migrate"      env:"DATABASE_AUTO_MIGRATE"      env-default:"true"`
}

// RedisConfig is optional; without a URL the SLA tracker stays in memory.
type RedisConfig struct {
	URL          string        `yaml:"url"            env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"      env:"REDIS_POOL_SIZE"      env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"   env:"REDIS_DIAL_TIMEOUT"   env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"   env:"REDIS_READ_TIMEOUT"   env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout"  env:"REDIS_WRITE_TIMEOUT"  env-default:"3s"`
}

// KafkaConfig is optional; without brokers escalations are only logged.
type KafkaConfig struct {
	Brokers         string        `yaml:"brokers"          env:"KAFKA_BROKERS"`
	EscalationTopic string        `yaml:"escalation_topic" env:"KAFKA_ESCALATION_TOPIC" env-default:"compliance.grievance.escalations"`
	Acks            string        `yaml:"acks"             env:"KAFKA_ACKS"             env-default:"all"`
	Retries         int           `yaml:"retries"          env:"KAFKA_RETRIES"          env-default:"3"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"KAFKA_DELIVERY_TIMEOUT" env-default:"30s"`
	// FailureThreshold consecutive publish failures switch escalations to the log.
	FailureThreshold int `yaml:"failure_threshold" env:"KAFKA_FAILURE_THRESHOLD" env-default:"5"`
}

type VerificationConfig struct {
	CodePepper  string        `yaml:"code_pepper"  env:"VERIFICATION_CODE_PEPPER"`
	CodeTTL     time.Duration `yaml:"code_ttl"     env:"VERIFICATION_CODE_TTL"     env-default:"5m"`
	MaxAttempts int           `yaml:"max_attempts" env:"VERIFICATION_MAX_ATTEMPTS" env-default:"5"`
	// WebhookURL points at the external notification gateway. Empty means
	// codes are only logged (with the destination masked), which is for development.
	WebhookURL     string        `yaml:"webhook_url"     env:"VERIFICATION_WEBHOOK_URL"`
	WebhookToken   string        `yaml:"webhook_token"   env:"VERIFICATION_WEBHOOK_TOKEN"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"VERIFICATION_WEBHOOK_TIMEOUT" env-default:"5s"`
}

type ConsentConfig struct {
	// CatalogPath is a YAML purpose catalog. Empty uses the built-in catalog.
	CatalogPath string `yaml:"catalog_path" env:"CONSENT_CATALOG_PATH"`
}

type SLAConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SLA_SWEEP_INTERVAL" env-default:"5m"`
	TrackerTTL    time.Duration `yaml:"tracker_ttl"    env:"SLA_TRACKER_TTL"    env-default:"720h"`
}

type AuditConfig struct {
	BufferSize int `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE" env-default:"1024"`
}

// Load reads configuration. The YAML path comes from CONFIG_PATH
// (fallback ./config.yaml); a missing default file means env-only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	cfg.applyDevelopmentDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

const (
	devSigningKey = "dev-signing-key-change-me"
	devPepper     = "dev-code-pepper-change-me"
)

// applyDevelopmentDefaults fills secrets for local runs only.
func (c *Config) applyDevelopmentDefaults() {
	if c.IsProduction() {
		return
	}
	if c.Auth.SigningKey == "" {
		c.Auth.SigningKey = devSigningKey
	}
	if c.Verification.CodePepper == "" {
		c.Verification.CodePepper = devPepper
	}
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	if c.Verification.CodePepper == "" {
		errs = append(errs, errors.New("verification.code_pepper is required"))
	}
	if c.IsProduction() && (c.Auth.SigningKey == devSigningKey || c.Verification.CodePepper == devPepper) {
		errs = append(errs, errors.New("development secrets are not allowed in production"))
	}
	if c.Verification.CodeTTL <= 0 {
		errs = append(errs, errors.New("verification.code_ttl must be positive"))
	}
	if c.Verification.MaxAttempts <= 0 {
		errs = append(errs, errors.New("verification.max_attempts must be positive"))
	}
	if c.SLA.SweepInterval <= 0 {
		errs = append(errs, errors.New("sla.sweep_interval must be positive"))
	}
	if c.Audit.BufferSize < 0 {
		errs = append(errs, errors.New("audit.buffer_size must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}
