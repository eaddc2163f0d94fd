package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the escompat configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Engine  EngineConfig  `yaml:"engine"`
	Retry   RetryConfig   `yaml:"retry"`
	Index   IndexConfig   `yaml:"index"`
	Mapping MappingConfig `yaml:"mapping"`
	Alias   AliasConfig   `yaml:"alias"`
	Create  CreateConfig  `yaml:"create"`
	Events  EventsConfig  `yaml:"events"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EngineConfig holds search engine connection settings.
type EngineConfig struct {
	Addrs            []string `yaml:"addrs"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RetryConfig bounds retries of transient engine failures.
type RetryConfig struct {
	MaxAttempts *int `yaml:"max_attempts"` // retries after the first call; nil = default
	IntervalMS  int  `yaml:"interval_ms"`
}

// IndexConfig overrides settings of newly created indices. Zero keeps the mapping bundle's value.
type IndexConfig struct {
	Shards          int  `yaml:"number_of_shards"`
	Replicas        *int `yaml:"number_of_replicas"`
	MaxResultWindow int  `yaml:"max_result_window"`
	CreateParallel  int  `yaml:"create_parallelism"`
}

// MappingConfig selects the mapping bundle.
type MappingConfig struct {
	Dir string `yaml:"dir"` // empty = embedded bundle
}

// AliasConfig holds per-kind field rename tables applied on top of the base table.
type AliasConfig struct {
	Kinds map[string]map[string]string `yaml:"kinds"`
}

// CreateConfig holds create semantics.
type CreateConfig struct {
	MarkerField string `yaml:"marker_field"`
}

// EventsConfig holds the request event sink.
type EventsConfig struct {
	Driver   string   `yaml:"driver"` // none, redis (default: none)
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Stream   string   `yaml:"stream"`
	MaxLen   int64    `yaml:"max_len"`
}

// Settings returns the configured index setting overrides.
func (c IndexConfig) Settings() map[string]any {
	out := map[string]any{}
	if c.Shards > 0 {
		out["number_of_shards"] = c.Shards
	}
	if c.Replicas != nil {
		out["number_of_replicas"] = *c.Replicas
	}
	if c.MaxResultWindow > 0 {
		out["max_result_window"] = c.MaxResultWindow
	}
	return out
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Engine.ReadinessTimeout <= 0 {
		c.Engine.ReadinessTimeout = 30
	}
	if c.Retry.MaxAttempts == nil {
		n := 3
		c.Retry.MaxAttempts = &n
	}
	if c.Retry.IntervalMS <= 0 {
		c.Retry.IntervalMS = 1500
	}
	if c.Index.CreateParallel <= 0 {
		c.Index.CreateParallel = 4
	}
	if c.Create.MarkerField == "" {
		c.Create.MarkerField = "u"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Engine.Addrs) == 0 {
		return fmt.Errorf("engine.addrs is required")
	}
	if c.Retry.MaxAttempts != nil && *c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative, got %d", *c.Retry.MaxAttempts)
	}
	switch c.Events.Driver {
	case "none":
	case "redis":
		if len(c.Events.Addrs) == 0 {
			return fmt.Errorf("events.addrs is required for driver \"redis\"")
		}
	default:
		return fmt.Errorf("events.driver must be \"none\" or \"redis\", got %q", c.Events.Driver)
	}
	for kind := range c.Alias.Kinds {
		if kind == "" {
			return fmt.Errorf("alias.kinds: kind name must not be empty")
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
