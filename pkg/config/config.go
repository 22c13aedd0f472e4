package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/302ai/302-custom-mcp/pkg/bridge"
	"github.com/302ai/302-custom-mcp/pkg/credentials"
)

const (
	DefaultMode            = "stdio"
	DefaultPort            = 9593
	DefaultEndpoint        = "/rest"
	DefaultStreamablePath  = "/mcp"
	DefaultBaseURL         = "https://api.302.ai/mcp"
	DefaultUpstreamTimeout = 60 * time.Second
	DefaultEnvFile         = ".env"
)

// Environment variable names.
const (
	EnvMode            = "MCP_MODE"
	EnvPort            = "PORT"
	EnvEndpoint        = "MCP_ENDPOINT"
	EnvStreamablePath  = "MCP_STREAMABLE_PATH"
	EnvBaseURL         = "BASE_URL"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvAllowedOrigins  = "CORS_ALLOWED_ORIGINS"
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogJSONRPC      = "LOG_JSONRPC"
	EnvConfigFile      = "MCP_CONFIG"
)

// Config holds every setting of a bridge process.
type Config struct {
	APIKey          string        `yaml:"api_key"`
	Language        string        `yaml:"language"`
	Mode            string        `yaml:"mode"`
	Port            int           `yaml:"port"`
	Endpoint        string        `yaml:"endpoint"`
	StreamablePath  string        `yaml:"streamable_path"`
	BaseURL         string        `yaml:"base_url"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	LogFormat       string        `yaml:"log_format"`
	LogLevel        string        `yaml:"log_level"`
	LogJSONRPC      bool          `yaml:"log_jsonrpc"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIKey:          credentials.PlaceholderAPIKey,
		Language:        credentials.PlaceholderLanguage,
		Mode:            DefaultMode,
		Port:            DefaultPort,
		Endpoint:        DefaultEndpoint,
		StreamablePath:  DefaultStreamablePath,
		BaseURL:         DefaultBaseURL,
		UpstreamTimeout: DefaultUpstreamTimeout,
		AllowedOrigins:  []string{"*"},
		LogFormat:       "auto",
		LogLevel:        "info",
	}
}

// Load builds a Config from defaults, the YAML file at configFile (if any),
// and the environment. envFile is loaded into the process environment first;
// variables already set keep their values. Flags are applied by the caller.
func Load(configFile, envFile string, lookup func(string) (string, bool)) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if configFile == "" {
		configFile, _ = lookup(EnvConfigFile)
	}

	cfg := Default()
	if configFile != "" {
		if err := LoadFile(configFile, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFile decodes the YAML file at path over cfg. Keys absent from the file
// leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables lookup reports.
// The API key and language are not read here; the credential resolver
// consults the environment for them per request.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if val, ok := lookup(name); ok && val != "" {
			*dst = val
		}
	}
	str(EnvMode, &cfg.Mode)
	str(EnvEndpoint, &cfg.Endpoint)
	str(EnvStreamablePath, &cfg.StreamablePath)
	str(EnvBaseURL, &cfg.BaseURL)
	str(EnvLogFormat, &cfg.LogFormat)
	str(EnvLogLevel, &cfg.LogLevel)

	if val, ok := lookup(EnvPort); ok && val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Port = parsed
	}

	if val, ok := lookup(EnvUpstreamTimeout); ok && val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvUpstreamTimeout, err)
		}
		cfg.UpstreamTimeout = parsed
	}

	if val, ok := lookup(EnvAllowedOrigins); ok && val != "" {
		cfg.AllowedOrigins = SplitList(val)
	}

	if val, ok := lookup(EnvLogJSONRPC); ok && val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogJSONRPC, err)
		}
		cfg.LogJSONRPC = parsed
	}

	return nil
}

// Validate reports the first setting that cannot start a bridge.
func (c *Config) Validate() error {
	if _, err := c.TransportKind(); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1..65535", c.Port)
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return fmt.Errorf("endpoint %q must start with /", c.Endpoint)
	}
	if !strings.HasPrefix(c.StreamablePath, "/") {
		return fmt.Errorf("streamable path %q must start with /", c.StreamablePath)
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream timeout %s is negative", c.UpstreamTimeout)
	}
	return nil
}

// TransportKind parses Mode.
func (c *Config) TransportKind() (bridge.TransportKind, error) {
	return bridge.ParseTransportKind(c.Mode)
}

// Addr is the listen address for HTTP modes.
func (c *Config) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// SplitList splits a comma-separated list, dropping blank entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
