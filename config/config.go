// Package config loads runtime configuration from an optional YAML file
// and ERRORWATCH_-prefixed environment variables, with defaults for
// every key.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type QueueConfig struct {
	Name        string        `mapstructure:"name"`
	Region      string        `mapstructure:"region"`
	EndpointURL string        `mapstructure:"endpoint_url"`
	WaitTime    time.Duration `mapstructure:"wait_time"`
}

type ProcessorConfig struct {
	SleepDelay  time.Duration `mapstructure:"sleep_delay"`
	WorkerCount int           `mapstructure:"worker_count"`
	WorkerQuota int           `mapstructure:"worker_quota"`
}

type WatcherConfig struct {
	SleepDelay time.Duration `mapstructure:"sleep_delay"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type EmailConfig struct {
	FromAddress string `mapstructure:"from_address"`
	Region      string `mapstructure:"region"`
	EndpointURL string `mapstructure:"endpoint_url"`
	VerifyEmail bool   `mapstructure:"verify_email"`
}

type MetricsConfig struct {
	CounterName string `mapstructure:"counter_name"`
	ListenAddr  string `mapstructure:"listen_addr"`
	PushGateway string `mapstructure:"push_gateway"`
}

type TriggersConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Queue     QueueConfig     `mapstructure:"queue"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Email     EmailConfig     `mapstructure:"email"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Triggers  TriggersConfig  `mapstructure:"triggers"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.name", "errorwatch-events")
	v.SetDefault("queue.region", "us-west-2")
	v.SetDefault("queue.endpoint_url", "")
	v.SetDefault("queue.wait_time", 18*time.Second)

	v.SetDefault("processor.sleep_delay", 20*time.Second)
	v.SetDefault("processor.worker_count", 0)
	v.SetDefault("processor.worker_quota", 200)

	v.SetDefault("watcher.sleep_delay", 300*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "errorwatch.db")

	v.SetDefault("email.from_address", "")
	v.SetDefault("email.region", "us-west-2")
	v.SetDefault("email.endpoint_url", "")
	v.SetDefault("email.verify_email", false)

	v.SetDefault("metrics.counter_name", "errorwatch_watcher_runs_total")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.push_gateway", "")

	v.SetDefault("triggers.file", "triggers.yaml")

	v.SetDefault("log.level", "info")
}

// Load reads configuration from path, or from ./config.yaml when path
// is empty. A missing default file is fine; an explicitly named file
// must exist. Environment variables override the file, e.g.
// ERRORWATCH_STORAGE_DSN for storage.dsn.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ERRORWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
