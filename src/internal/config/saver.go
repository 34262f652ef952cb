// FILE: loglayer/src/internal/config/saver.go
package config

import (
	"fmt"

	lconfig "github.com/lixenwraith/config"
)

// SaveToFile writes the configuration to path as TOML. The admin signing
// secret is left out; supply it through LOGLAYER_ADMIN_JWT_SECRET.
func (c *Config) SaveToFile(path string) error {
	if path == "" {
		return fmt.Errorf("cannot save config: path is empty")
	}

	lcfg, err := lconfig.NewBuilder().
		WithFile(path).
		WithTarget(c.forSave()).
		WithFileFormat("toml").
		Build()
	if err != nil && !isMissingFile(err) {
		return fmt.Errorf("failed to create config builder: %w", err)
	}

	if err := lcfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", path, err)
	}
	return nil
}

// forSave returns the copy of c that is written to disk
func (c *Config) forSave() *Config {
	out := *c
	out.Admin.JWTSecret = ""
	return &out
}
