package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level toolnest configuration file.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Provider  ProviderConfig  `yaml:"provider"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Usage     UsageConfig     `yaml:"usage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	MaxBodySize     string     `yaml:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	GlobalRPM       int        `yaml:"global_rpm"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls token signing and the API key header.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
	Issuer       string `yaml:"issuer"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// DatabaseConfig selects the credential store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	DataDir      string `yaml:"data_dir,omitempty"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ProviderConfig points at an OpenAI-compatible chat completions API.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TextModel   string `yaml:"text_model"`
	VisionModel string `yaml:"vision_model"`
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
}

// RateLimitConfig holds the fixed-window rules per endpoint name.
type RateLimitConfig struct {
	Backend string                   `yaml:"backend"` // memory or database
	Default RateLimitRule            `yaml:"default"`
	Rules   map[string]RateLimitRule `yaml:"rules"`
}

// RateLimitRule is a request ceiling per window.
type RateLimitRule struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// UsageConfig controls the asynchronous usage recorder.
type UsageConfig struct {
	BufferSize  int `yaml:"buffer_size"`
	RecentLimit int `yaml:"recent_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Values absent from the file keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultRateLimitRules returns the per-endpoint limits toolnest ships with.
func DefaultRateLimitRules() map[string]RateLimitRule {
	perMinute := func(n int) RateLimitRule { return RateLimitRule{Limit: n, Window: "1m"} }
	return map[string]RateLimitRule{
		"health":        perMinute(5),
		"login":         perMinute(5),
		"register":      perMinute(5),
		"create_key":    perMinute(2),
		"list_keys":     perMinute(10),
		"key_usage":     perMinute(10),
		"revoke_key":    perMinute(2),
		"summarize":     perMinute(5),
		"paraphrase":    perMinute(5),
		"image_to_text": perMinute(5),
	}
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "6MB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "DELETE"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry:    "30m",
			Issuer:       "toolnest",
			APIKeyHeader: "X-API-Key",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Provider: ProviderConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			TextModel:   "deepseek-r1-distill-llama-70b",
			VisionModel: "meta-llama/llama-4-scout-17b-16e-instruct",
			Timeout:     "30s",
			MaxRetries:  2,
		},
		RateLimit: RateLimitConfig{
			Backend: "memory",
			Default: RateLimitRule{Limit: 60, Window: "1m"},
			Rules:   DefaultRateLimitRules(),
		},
		Usage: UsageConfig{
			BufferSize:  1024,
			RecentLimit: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
