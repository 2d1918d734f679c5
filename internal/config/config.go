package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-sync/internal/store"
)

type Config struct {
	Store store.Config `mapstructure:"store"`
	Sync  SyncConfig   `mapstructure:"sync"`
	Log   LogConfig    `mapstructure:"log"`
}

type SyncConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	RemoteURL       string `mapstructure:"remote_url"`
	BatchSize       int    `mapstructure:"batch_size"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// Interval returns the periodic drain interval.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Timeout returns the upload request timeout.
func (s SyncConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CLINICSYNC")
	viper.AutomaticEnv()

	viper.SetDefault("store.path", "clinic.db")
	viper.SetDefault("sync.interval_seconds", 30)
	viper.SetDefault("sync.batch_size", 50)
	viper.SetDefault("sync.timeout_seconds", 10)
	viper.SetDefault("sync.remote_url", "http://localhost:8080")
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
