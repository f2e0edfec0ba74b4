// Package config loads monopolylog settings from a YAML file, a .env file and
// MONOPOLYLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MONOPOLYLOG"

// Config holds the resolved settings.
type Config struct {
	LogsDir      string            `mapstructure:"logs_dir"`
	Addr         string            `mapstructure:"addr"`
	ExportDir    string            `mapstructure:"export_dir"`
	MaxUploadMB  int64             `mapstructure:"max_upload_mb"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
	Services     map[string]string `mapstructure:"services"`
	Watch        bool              `mapstructure:"watch"`
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

var envPaths = []string{".env", "../.env"}

// LoadEnv loads the first .env file found. A missing file is not an error and
// variables already set in the environment are kept.
func LoadEnv(paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = envPaths
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("addr", ":8080")
	v.SetDefault("export_dir", "export_decision")
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("services", map[string]string{})
	v.SetDefault("watch", true)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, or .monopolylog.yaml from the home or working
// directory when cfgFile is empty, and decodes the result.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".monopolylog")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.LogsDir == "" {
		return Config{}, errors.New("logs_dir must not be empty")
	}
	if cfg.MaxUploadMB <= 0 {
		return Config{}, fmt.Errorf("max_upload_mb must be positive, got %d", cfg.MaxUploadMB)
	}
	return cfg, nil
}
