package ratelimit

import (
	"fmt"
	"time"

	"github.com/toolnest/toolnest/internal/config"
)

// Rules maps endpoint names to their limits, with a fallback rule.
type Rules struct {
	Default Rule
	byName  map[string]Rule
}

// ParseRules converts the rate_limit configuration section.
func ParseRules(cfg config.RateLimitConfig) (*Rules, error) {
	def, err := parseRule("default", cfg.Default)
	if err != nil {
		return nil, err
	}
	r := &Rules{Default: def, byName: make(map[string]Rule, len(cfg.Rules))}
	for name, rc := range cfg.Rules {
		rule, err := parseRule(name, rc)
		if err != nil {
			return nil, err
		}
		r.byName[name] = rule
	}
	return r, nil
}

func parseRule(name string, rc config.RateLimitRule) (Rule, error) {
	if rc.Window == "" {
		return Rule{Limit: rc.Limit, Window: time.Minute}, nil
	}
	window, err := time.ParseDuration(rc.Window)
	if err != nil {
		return Rule{}, fmt.Errorf("rate limit rule %q: invalid window %q: %w", name, rc.Window, err)
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("rate limit rule %q: window must be positive", name)
	}
	return Rule{Limit: rc.Limit, Window: window}, nil
}

// Get returns the rule for name, or the default.
func (r *Rules) Get(name string) Rule {
	if rule, ok := r.byName[name]; ok {
		return rule
	}
	return r.Default
}

// MaxWindow returns the longest window of any rule.
func (r *Rules) MaxWindow() time.Duration {
	max := r.Default.Window
	for _, rule := range r.byName {
		if rule.Window > max {
			max = rule.Window
		}
	}
	return max
}
