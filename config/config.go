// Package config loads runtime settings from an optional config file and
// environment variables, with validated defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Addr is the listen address of the demo hub server.
	Addr string `validate:"required"`
	// AllowedOrigins is the list of origins allowed to connect. The
	// default is ["*"].
	AllowedOrigins []string
	// Heartbeat is the interval between application-level pings while
	// connected.
	Heartbeat time.Duration `validate:"required,gt=0"`
	// ReconnectBaseDelay is the delay before the first reconnect attempt;
	// attempt k waits ReconnectBaseDelay * 2^(k-1).
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay" validate:"required,gt=0"`
	// MaxReconnectAttempts bounds automatic reconnection before the client
	// gives up.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" validate:"required,gt=0"`
	// ActivityRetention is how many recent activity entries are kept.
	ActivityRetention int `mapstructure:"activity_retention" validate:"required,gt=0"`
	// ActivityInterval is how often the hub synthesizes scripted activity.
	ActivityInterval time.Duration `mapstructure:"activity_interval" validate:"required,gt=0"`

	valid bool
}

var validate = validator.New()

// Load reads configuration from ./config.yaml when present and from
// environment variables (dots become underscores). Invalid values are left
// for Validate to catch.
func Load() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("addr", "127.0.0.1:8080")
	viper.SetDefault("allowedorigins", "*")
	viper.SetDefault("heartbeat", "30s")
	viper.SetDefault("reconnect_base_delay", "1s")
	viper.SetDefault("max_reconnect_attempts", 5)
	viper.SetDefault("activity_retention", 10)
	viper.SetDefault("activity_interval", "8s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	c.valid = true
	return nil
}
