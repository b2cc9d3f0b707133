package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

// Load reads the configuration from config.yaml and MAYSTORFIX_-prefixed
// environment variables, applies defaults, and validates the result.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 60)
	v.SetDefault("database.max_conn_idle_time", 10)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("rate_limit.validate_rpm", 120)
	v.SetDefault("rate_limit.validate_burst", 30)
	v.SetDefault("conversation.timeout", "5s")
	v.SetDefault("dispatch.topic", "chat.dispatch.events")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("/etc/maystorfix-chat/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, errors.Wrap(err, "failed to read config file")
		}
	}

	v.SetEnvPrefix("MAYSTORFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, v, nil
}

// WatchLogLevel re-reads log.level whenever the config file changes on disk
// and hands the new value to apply. Other keys require a restart.
func WatchLogLevel(v *viper.Viper, apply func(level string)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		if level := v.GetString("log.level"); level != "" {
			apply(level)
		}
	})
	v.WatchConfig()
}
