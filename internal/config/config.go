package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

const EnvPrefix = "BROWSER_RUNNER"

type Configuration struct {
	Server    Server             `mapstructure:"server"`
	Runner    Runner             `mapstructure:"runner"`
	Worker    Worker             `mapstructure:"worker"`
	Auth      Authentication     `mapstructure:"auth"`
	Browsers  map[string]Browser `mapstructure:"browsers"`
	LogFormat string             `mapstructure:"log-format" default:"console"`
	LogLevel  string             `mapstructure:"log-level" default:"info"`
}

type Server struct {
	ServerMode string `mapstructure:"mode" default:"dev"`
	HTTPPort   int    `mapstructure:"http-port" default:"8000"`
}

type Runner struct {
	MaxRetries      int           `mapstructure:"max-retries" default:"2"`
	GridURL         string        `mapstructure:"grid-url"`
	GridWaitTimeout time.Duration `mapstructure:"grid-wait-timeout" default:"30s"`
}

type Worker struct {
	// Command runs one test. It receives TEST_ID, TEST_PATH, TEST_RETRIES, BROWSER and GRID_URL.
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout" default:"5m"`
}

type Authentication struct {
	Enabled bool   `mapstructure:"enabled" default:"false"`
	Secret  string `mapstructure:"secret"`
}

type Browser struct {
	Limit       int    `mapstructure:"limit" default:"1"`
	BrowserName string `mapstructure:"browser-name"`
}

// NewConfiguration returns a configuration holding only default values.
func NewConfiguration() *Configuration {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("invalid configuration defaults: %v", err))
	}
	return cfg
}

// NewViper returns a viper instance reading BROWSER_RUNNER_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if not empty) into v and decodes the result over the defaults.
func Load(v *viper.Viper, path string) (*Configuration, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
		}
	}

	cfg := NewConfiguration()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	for name, b := range cfg.Browsers {
		if err := defaults.Set(&b); err != nil {
			return nil, fmt.Errorf("failed to set defaults for browser %q: %w", name, err)
		}
		if b.BrowserName == "" {
			b.BrowserName = name
		}
		cfg.Browsers[name] = b
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Configuration) Validate() error {
	var errs []error

	if len(c.Browsers) == 0 {
		errs = append(errs, errors.New("at least one browser must be configured"))
	}
	for name, b := range c.Browsers {
		if b.Limit < 1 {
			errs = append(errs, fmt.Errorf("browser %q: limit must be at least 1, got %d", name, b.Limit))
		}
	}
	if c.Runner.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.Runner.MaxRetries))
	}
	if len(c.Worker.Command) == 0 {
		errs = append(errs, errors.New("worker command is empty"))
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("authentication is enabled but no secret is set"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'console' or 'json'", c.LogFormat))
	}
	switch c.Server.ServerMode {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("invalid server mode %q: must be 'dev' or 'prod'", c.Server.ServerMode))
	}

	return errors.Join(errs...)
}

// BrowserNames returns the configured browsers sorted by name.
func (c *Configuration) BrowserNames() []string {
	names := make([]string, 0, len(c.Browsers))
	for name := range c.Browsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DebugMap returns the configuration as a map suitable for logging. Secrets are hidden.
func (c *Configuration) DebugMap() map[string]any {
	browsers := make(map[string]any, len(c.Browsers))
	for name, b := range c.Browsers {
		browsers[name] = map[string]any{"limit": b.Limit, "browserName": b.BrowserName}
	}
	secret := ""
	if c.Auth.Secret != "" {
		secret = "(hidden)"
	}
	return map[string]any{
		"server":    map[string]any{"mode": c.Server.ServerMode, "httpPort": c.Server.HTTPPort},
		"runner":    map[string]any{"maxRetries": c.Runner.MaxRetries, "gridUrl": c.Runner.GridURL, "gridWaitTimeout": c.Runner.GridWaitTimeout.String()},
		"worker":    map[string]any{"command": c.Worker.Command, "timeout": c.Worker.Timeout.String()},
		"auth":      map[string]any{"enabled": c.Auth.Enabled, "secret": secret},
		"browsers":  browsers,
		"logFormat": c.LogFormat,
		"logLevel":  c.LogLevel,
	}
}
