package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TOOLNEST_DATA_DIR env var, or ~/.toolnest as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TOOLNEST_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".toolnest")
}

// stringKeys and intKeys are the settings that environment variables and
// flags may override on top of the config file.
var stringKeys = map[string]func(*config.YAMLConfig) *string{
	"server.host":           func(c *config.YAMLConfig) *string { return &c.Server.Host },
	"server.max_body_size":  func(c *config.YAMLConfig) *string { return &c.Server.MaxBodySize },
	"auth.jwt_secret":       func(c *config.YAMLConfig) *string { return &c.Auth.JWTSecret },
	"auth.jwt_expiry":       func(c *config.YAMLConfig) *string { return &c.Auth.JWTExpiry },
	"auth.api_key_header":   func(c *config.YAMLConfig) *string { return &c.Auth.APIKeyHeader },
	"database.driver":       func(c *config.YAMLConfig) *string { return &c.Database.Driver },
	"database.dsn":          func(c *config.YAMLConfig) *string { return &c.Database.DSN },
	"provider.base_url":     func(c *config.YAMLConfig) *string { return &c.Provider.BaseURL },
	"provider.api_key":      func(c *config.YAMLConfig) *string { return &c.Provider.APIKey },
	"provider.text_model":   func(c *config.YAMLConfig) *string { return &c.Provider.TextModel },
	"provider.vision_model": func(c *config.YAMLConfig) *string { return &c.Provider.VisionModel },
	"provider.timeout":      func(c *config.YAMLConfig) *string { return &c.Provider.Timeout },
	"rate_limit.backend":    func(c *config.YAMLConfig) *string { return &c.RateLimit.Backend },
	"logging.level":         func(c *config.YAMLConfig) *string { return &c.Logging.Level },
	"logging.format":        func(c *config.YAMLConfig) *string { return &c.Logging.Format },
}

var intKeys = map[string]func(*config.YAMLConfig) *int{
	"server.port":          func(c *config.YAMLConfig) *int { return &c.Server.Port },
	"server.global_rpm":    func(c *config.YAMLConfig) *int { return &c.Server.GlobalRPM },
	"provider.max_retries": func(c *config.YAMLConfig) *int { return &c.Provider.MaxRetries },
	"usage.buffer_size":    func(c *config.YAMLConfig) *int { return &c.Usage.BufferSize },
	"usage.recent_limit":   func(c *config.YAMLConfig) *int { return &c.Usage.RecentLimit },
}

// loadConfig builds the effective configuration: defaults, then the config
// file viper located, then TOOLNEST_* environment variables and bound flags.
func loadConfig() (*config.YAMLConfig, error) {
	if configErr != nil {
		return nil, configErr
	}

	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		fileCfg, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	// Values viper read from the file are unexpanded; expand them the same
	// way LoadYAMLConfig does so file values round-trip unchanged.
	for key, field := range stringKeys {
		if viper.IsSet(key) {
			*field(cfg) = os.ExpandEnv(viper.GetString(key))
		}
	}
	for key, field := range intKeys {
		if viper.IsSet(key) {
			*field(cfg) = viper.GetInt(key)
		}
	}

	if dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if cfg.Database.Driver == string(config.DialectSQLite) && cfg.Database.DSN == "" && cfg.Database.DataDir == "" {
		cfg.Database.DataDir = resolveDataDir()
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section. dev forces
// debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig, dev bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q (want text or json)", cfg.Format)
	}
}

// openStore opens the credential store described by cfg.
func openStore(cfg *config.YAMLConfig) (*config.Store, error) {
	store, err := config.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return store, nil
}

// lookupUser resolves a username or email to an account.
func lookupUser(ctx context.Context, store *config.Store, login string) (*model.User, error) {
	user, err := store.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", login, err)
	}
	return user, nil
}

// newKeyManager builds a key manager for CLI commands. Usage stats are
// served from a recorder that is closed by the returned func.
func newKeyManager(cfg *config.YAMLConfig, store *config.Store, logger *slog.Logger) (*service.KeyManager, func()) {
	recorder := service.NewUsageRecorder(store, logger, service.UsageRecorderConfig{
		BufferSize:  cfg.Usage.BufferSize,
		RecentLimit: cfg.Usage.RecentLimit,
	})
	keys := service.NewKeyManager(store, recorder, logger)
	return keys, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		keys.Wait()
		recorder.Close(ctx)
	}
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
