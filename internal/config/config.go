package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from an optional yaml file, with FYD_-prefixed
// environment variables overriding file values and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "[config.Load] read config file")
		}
	}

	v.SetDefault("app.name", "Fill Your Day")
	v.SetDefault("app.env", "dev")
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("storage.dir", defaultStorageDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetEnvPrefix("FYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}
	if cfg.API.BaseURL == "" {
		return nil, errors.New("[config.Load] api.base_url is required")
	}
	return &cfg, nil
}

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".fyd"
	}
	return filepath.Join(dir, "fyd")
}
