package config

import (
	"fmt"
	"strings"

	"impactbond/crypto"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("admin: principal required")
	}
	admin, err := crypto.ParsePrincipal(c.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if crypto.IsSentinel(admin) {
		return fmt.Errorf("admin: %w", crypto.ErrSentinelAddress)
	}
	if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(c.Log.Level))]; !ok {
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret required when auth is enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	return nil
}
