// Package config loads QGenie settings once at process start.
//
// Sources, lowest to highest precedence: defaults, config.yaml, .env, and
// QGENIE_* environment variables (QGENIE_AI_URL overrides ai.url).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "QGENIE"

// AppDirName is the directory under the user's home holding local state.
const AppDirName = ".qgenie"

type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	AI         AIConfig         `mapstructure:"ai"`
	Credential CredentialConfig `mapstructure:"credential"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Export     ExportConfig     `mapstructure:"export"`
	Query      QueryConfig      `mapstructure:"query"`
}

type StoreConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type AIConfig struct {
	// Provider is "http" (annotation service contract) or "openai".
	Provider string        `mapstructure:"provider"`
	URL      string        `mapstructure:"url"`
	// ChatURL answers chat questions; it always speaks the HTTP contract.
	ChatURL  string        `mapstructure:"chat_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
}

type CredentialConfig struct {
	// Key is a base64 encoded 32-byte key.
	Key string `mapstructure:"key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
}

type QueryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration. configFile may be empty, in which case
// config.yaml is searched in ./configs, . and ~/.qgenie.
func Load(configFile string) (*Config, error) {
	// A missing .env is the normal case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, AppDirName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Store.Path == "" {
		p, err := DefaultStorePath()
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = p
	}
	return &cfg, nil
}

// DefaultStorePath returns ~/.qgenie/local_storage.sqlite, creating the directory.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, AppDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "local_storage.sqlite"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "")
	v.SetDefault("store.busy_timeout", "10s")

	v.SetDefault("ai.provider", "http")
	v.SetDefault("ai.url", "http://localhost:35816/api/v1/annotator")
	v.SetDefault("ai.chat_url", "http://localhost:35816/api/v1/chat")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "")

	v.SetDefault("credential.key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", "127.0.0.1:39722")

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.endpoint", "localhost:9000")
	v.SetDefault("export.access_key", "")
	v.SetDefault("export.secret_key", "")
	v.SetDefault("export.use_ssl", false)
	v.SetDefault("export.region", "")
	v.SetDefault("export.bucket", "qgenie-annotations")

	v.SetDefault("query.timeout", "30s")
}
