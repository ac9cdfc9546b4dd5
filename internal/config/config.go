package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/michaelbrown/aether/internal/sandbox"
)

// DevMasterKey is the well-known development secret. It is only accepted when
// the server is started in development mode and must never guard a real
// deployment.
const DevMasterKey = "sk_aether_dev_123"

type ServerConfig struct {
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	MaxConcurrent int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	System        string `mapstructure:"system" yaml:"system"`
	Location      string `mapstructure:"location" yaml:"location"`
}

type AuthConfig struct {
	MasterKey string `mapstructure:"master_key" yaml:"master_key"`
}

type E2BConfig struct {
	APIKey         string            `mapstructure:"api_key" yaml:"api_key"`
	APIURL         string            `mapstructure:"api_url" yaml:"api_url"`
	Domain         string            `mapstructure:"domain" yaml:"domain"`
	Template       string            `mapstructure:"template" yaml:"template"`
	DefaultTimeout int               `mapstructure:"default_timeout" yaml:"default_timeout"`
	MaxTimeout     int               `mapstructure:"max_timeout" yaml:"max_timeout"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout" yaml:"request_timeout"`
	Metadata       map[string]string `mapstructure:"metadata" yaml:"metadata,omitempty"`
	Debug          bool              `mapstructure:"debug" yaml:"debug"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	E2B     E2BConfig     `mapstructure:"e2b" yaml:"e2b"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	CORS    CORSConfig    `mapstructure:"cors" yaml:"cors"`
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory, and AETHER_* environment variables, in increasing order
// of precedence. An explicit path must exist; the default search locations
// may be empty.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aether")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aether")
	}

	setDefaults(v)

	v.SetEnvPrefix("aether")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The secrets keep the names operators already export.
	v.BindEnv("auth.master_key", "AETHER_MASTER_KEY")
	v.BindEnv("e2b.api_key", "E2B_API_KEY")
	v.BindEnv("e2b.domain", "E2B_DOMAIN")
	v.BindEnv("e2b.debug", "E2B_DEBUG")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Auth.MasterKey = expandEnv(cfg.Auth.MasterKey)
	cfg.E2B.APIKey = expandEnv(cfg.E2B.APIKey)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_concurrent", 0)
	v.SetDefault("server.system", "AETHER v1.2")
	v.SetDefault("server.location", "Addis Ababa Node")

	v.SetDefault("auth.master_key", "")

	v.SetDefault("e2b.api_key", "")
	v.SetDefault("e2b.api_url", "https://api.e2b.app")
	v.SetDefault("e2b.domain", "e2b.app")
	v.SetDefault("e2b.template", "code-interpreter-v1")
	v.SetDefault("e2b.default_timeout", 60)
	v.SetDefault("e2b.max_timeout", 3600)
	v.SetDefault("e2b.request_timeout", 5*time.Minute)
	v.SetDefault("e2b.debug", false)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", filepath.Join(os.Getenv("HOME"), ".aether", "aether.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allow_credentials", true)
}

// Validate reports configuration that would make every request fail. It is
// called once at startup.
func (c *Config) Validate() error {
	if c.Auth.MasterKey == "" {
		return errors.New("auth.master_key is not set (export AETHER_MASTER_KEY)")
	}
	return c.ValidateSandbox()
}

// ValidateSandbox checks only the e2b section, for entry points that do not
// authenticate callers.
func (c *Config) ValidateSandbox() error {
	if c.E2B.APIKey == "" && !c.E2B.Debug {
		return errors.New("e2b.api_key is not set (export E2B_API_KEY)")
	}
	if c.E2B.DefaultTimeout <= 0 {
		return fmt.Errorf("e2b.default_timeout must be positive, got %d", c.E2B.DefaultTimeout)
	}
	if c.E2B.MaxTimeout > 0 && c.E2B.MaxTimeout < c.E2B.DefaultTimeout {
		return fmt.Errorf("e2b.max_timeout (%d) is below e2b.default_timeout (%d)", c.E2B.MaxTimeout, c.E2B.DefaultTimeout)
	}
	return nil
}

// SandboxPolicy returns the session policy described by the e2b section.
func (c *Config) SandboxPolicy() sandbox.Policy {
	p := sandbox.DefaultPolicy()
	if c.E2B.Template != "" {
		p.Template = c.E2B.Template
	}
	if c.E2B.DefaultTimeout > 0 {
		p.DefaultTimeout = time.Duration(c.E2B.DefaultTimeout) * time.Second
	}
	p.MaxTimeout = time.Duration(c.E2B.MaxTimeout) * time.Second
	p.Metadata = c.E2B.Metadata
	return p
}

// E2BOptions returns the client options described by the e2b section.
func (c *Config) E2BOptions() sandbox.E2BOptions {
	return sandbox.E2BOptions{
		APIKey:         c.E2B.APIKey,
		APIURL:         c.E2B.APIURL,
		Domain:         c.E2B.Domain,
		RequestTimeout: c.E2B.RequestTimeout,
		Debug:          c.E2B.Debug,
	}
}

// UsesDevKey reports whether the configured secret is the public development key.
func (c *Config) UsesDevKey() bool {
	return c.Auth.MasterKey == DevMasterKey
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	c.Auth.MasterKey = mask(c.Auth.MasterKey)
	c.E2B.APIKey = mask(c.E2B.APIKey)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "********"
}

// expandEnv resolves values written as ${VAR} in the config file.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
