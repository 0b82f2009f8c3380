package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingJWTSecret is returned by Validate when no signing secret is set.
var ErrMissingJWTSecret = errors.New("auth.jwt_secret is required (set TOOLNEST_AUTH_JWT_SECRET)")

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseByteSize parses sizes such as "6MB", "512KB" or "1048576".
func ParseByteSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			mult = u.mult
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", field, s)
	}
	return d, nil
}

// MaxBodyBytes returns the request body limit in bytes.
func (c ServerConfig) MaxBodyBytes() (int64, error) {
	n, err := ParseByteSize(c.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("server.max_body_size: %w", err)
	}
	return n, nil
}

// ShutdownDuration returns the graceful shutdown timeout.
func (c ServerConfig) ShutdownDuration() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", c.ShutdownTimeout, 30*time.Second)
}

// TokenTTL returns the lifetime of issued bearer tokens.
func (c AuthConfig) TokenTTL() (time.Duration, error) {
	return parseDuration("auth.jwt_expiry", c.JWTExpiry, 30*time.Minute)
}

// RequestTimeout returns the bound on one provider call.
func (c ProviderConfig) RequestTimeout() (time.Duration, error) {
	return parseDuration("provider.timeout", c.Timeout, 30*time.Second)
}

// Validate checks the values serve depends on.
func (c *YAMLConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if _, err := c.Server.MaxBodyBytes(); err != nil {
		return err
	}
	if _, err := c.Server.ShutdownDuration(); err != nil {
		return err
	}
	if _, err := c.Auth.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.Provider.RequestTimeout(); err != nil {
		return err
	}
	if _, err := ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	switch c.RateLimit.Backend {
	case "", "memory", "database":
	default:
		return fmt.Errorf("rate_limit.backend: unknown backend %q (want memory or database)", c.RateLimit.Backend)
	}
	return nil
}
