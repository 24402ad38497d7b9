package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"storebot/pkg/log"
)

// EnvPrefix prefixes every environment override, e.g. STOREBOT_BACKEND_BASE_URL.
const EnvPrefix = "STOREBOT"

var (
	mu sync.RWMutex
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config
	// loaded is the viper instance behind GlobalConfig, kept for WatchConfig
	loaded *viper.Viper
)

// secretKeys are usually only set through the environment, so viper must
// know about them even when the file does not mention them.
var secretKeys = []string{
	"backend.base_url",
	"assistant.api_key",
	"assistant.base_url",
	"database.password",
	"redis.password",
}

// LoadConfig loads configuration from file and environment variables. A
// .env file in the working directory is applied to the environment first.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	GlobalConfig = config
	loaded = v
	mu.Unlock()

	return config, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath("/etc/storebot")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Warn("Config file not found, using defaults and environment variables")
		return v, nil
	}
	log.WithField("file", v.ConfigFileUsed()).Info("Using config file")

	// config.<env>.yaml next to the main file overrides it key by key
	envConfigPath := filepath.Join(filepath.Dir(v.ConfigFileUsed()), fmt.Sprintf("config.%s.yaml", Env()))
	if _, err := os.Stat(envConfigPath); err == nil {
		envViper := viper.New()
		envViper.SetConfigFile(envConfigPath)
		if err := envViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read env config %s: %w", envConfigPath, err)
		}
		if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge env config %s: %w", envConfigPath, err)
		}
		log.WithField("file", envConfigPath).Info("Loaded environment config")
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// MustLoadConfig loads configuration and panics on error
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return config
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()

	if GlobalConfig == nil {
		panic("Config not loaded. Call LoadConfig first.")
	}
	return GlobalConfig
}

// WatchConfig reloads the configuration when the file changes and hands the
// new value to callback. Invalid edits are logged and ignored.
func WatchConfig(callback func(*Config)) error {
	mu.RLock()
	v := loaded
	mu.RUnlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return fmt.Errorf("config not loaded from a file")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.WithField("file", e.Name).Info("Config file changed")
		config, err := decode(v)
		if err != nil {
			log.WithError(err).Error("Failed to reload config")
			return
		}

		mu.Lock()
		GlobalConfig = config
		mu.Unlock()

		if callback != nil {
			callback(config)
		}
	})
	v.WatchConfig()
	return nil
}

// Env is the deployment environment, from STOREBOT_ENV. Defaults to dev.
func Env() string {
	if env := os.Getenv(EnvPrefix + "_ENV"); env != "" {
		return env
	}
	return "dev"
}

// IsDevelopment returns true if running in development mode
func IsDevelopment() bool {
	env := Env()
	return env == "dev" || env == "development"
}

// IsProduction returns true if running in production mode
func IsProduction() bool {
	env := Env()
	return env == "prod" || env == "production"
}
