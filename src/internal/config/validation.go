// FILE: loglayer/src/internal/config/validation.go
package config

import (
	"fmt"

	lconfig "github.com/lixenwraith/config"
)

// Validate checks a configuration assembled outside LoadWithCLI
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig is the centralized validator for the entire configuration
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	if err := validateDiagnostics(&cfg.Diagnostics); err != nil {
		return err
	}

	if err := validateAdmin(&cfg.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	if cfg.Status.IntervalSeconds < 0 {
		return fmt.Errorf("status: interval_seconds cannot be negative: %d", cfg.Status.IntervalSeconds)
	}

	return nil
}

func validateAdmin(cfg *AdminConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if err := lconfig.Port(cfg.Port); err != nil {
		return err
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Host != "0.0.0.0" {
		if err := lconfig.IPAddress(cfg.Host); err != nil {
			return err
		}
	}

	if cfg.ReloadsPerMinute < 0 {
		return fmt.Errorf("reloads_per_minute cannot be negative: %d", cfg.ReloadsPerMinute)
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 bytes")
	}

	return nil
}
