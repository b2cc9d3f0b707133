package config

import (
	"fmt"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// Config holds the application's configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Vault        VaultConfig        `mapstructure:"vault"`
	AdminAuth    AdminAuthConfig    `mapstructure:"admin_auth"`
	Token        TokenConfig        `mapstructure:"token"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Sweep        SweepConfig        `mapstructure:"sweep"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	EnablePprof  bool   `mapstructure:"enable_pprof"`
}

// StorageConfig selects the persistence backend. "postgres" is the production
// driver; "memory" runs the whole repo set in process for local development.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"`  // in minutes
	MaxConnIdleTime int    `mapstructure:"max_conn_idle_time"` // in minutes
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	SecretKey string `mapstructure:"secret_key"`
}

// AdminAuthConfig guards the admin endpoints. Secret is the HMAC key for the
// admin JWT; when Vault is enabled the key is fetched from there instead.
type AdminAuthConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	RegenerateLimit  int           `mapstructure:"regenerate_limit"`
	RegenerateWindow time.Duration `mapstructure:"regenerate_window"`
	ValidateRPM      int           `mapstructure:"validate_rpm"`
	ValidateBurst    int           `mapstructure:"validate_burst"`
}

type SweepConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	LeaderLockTTL time.Duration `mapstructure:"leader_lock_ttl"`
}

type ConversationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ChatConfig holds the public base URL that chat links are built on.
type ChatConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Storage.Driver != "postgres" && c.Storage.Driver != "memory" {
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("database.host is required for the postgres driver")
	}
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.base_url is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token.ttl must be positive")
	}
	if c.RateLimit.RegenerateLimit <= 0 || c.RateLimit.RegenerateWindow <= 0 {
		return fmt.Errorf("rate_limit.regenerate_limit and regenerate_window must be positive")
	}
	if c.Dispatch.Enabled && (len(c.Dispatch.Brokers) == 0 || c.Dispatch.Topic == "") {
		return fmt.Errorf("dispatch.brokers and dispatch.topic are required when dispatch is enabled")
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required when vault is enabled")
	}
	return nil
}

// applyDefaults fills the zero values Load left unset.
func (c *Config) applyDefaults() {
	if c.Token.TTL == 0 {
		c.Token.TTL = constants.DefaultTokenTTL
	}
	if c.RateLimit.RegenerateLimit == 0 {
		c.RateLimit.RegenerateLimit = constants.DefaultRegenerateLimit
	}
	if c.RateLimit.RegenerateWindow == 0 {
		c.RateLimit.RegenerateWindow = constants.DefaultRegenerateWindow
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = constants.DefaultSweepInterval
	}
	if c.Sweep.LeaderLockTTL == 0 {
		c.Sweep.LeaderLockTTL = constants.DefaultSweepInterval / 2
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = constants.ServiceName
	}
}
